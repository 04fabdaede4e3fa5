//go:build !tinygo

package core

// State stands in for the saved interrupt mask on host builds.
type State uintptr

// Host builds have no interrupts to mask; both halves are no-ops so
// shared code can bracket its critical sections unconditionally.

func disableInterrupts() State {
	return 0
}

func restoreInterrupts(State) {
}
