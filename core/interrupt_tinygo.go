//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks interrupts and returns the state to restore.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
