//go:build !tinygo

package ch32

// irqState is a placeholder for interrupt state on regular Go
type irqState uintptr

// irqSave is a no-op on regular Go (for testing)
func irqSave() irqState {
	return 0
}

// irqRestore is a no-op on regular Go (for testing)
func irqRestore(state irqState) {
	// No-op
}
