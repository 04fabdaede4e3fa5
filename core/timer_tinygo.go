//go:build tinygo

package core

import "sync/atomic"

// Fallback tick counter for targets that have not registered a hardware
// time source yet. Atomic because interrupt code may read it.
var fallbackTicks uint32

func getSystemTicks() uint32 {
	return atomic.LoadUint32(&fallbackTicks)
}

func setSystemTicks(ticks uint32) {
	atomic.StoreUint32(&fallbackTicks, ticks)
}
