//go:build tinygo

package ch32

import "runtime/interrupt"

// irqSave disables interrupts and returns the previous state
func irqSave() interrupt.State {
	return interrupt.Disable()
}

// irqRestore restores the interrupt state
func irqRestore(state interrupt.State) {
	interrupt.Restore(state)
}
