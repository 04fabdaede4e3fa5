//go:build !tinygo

package core

// On host builds the tick counter is advanced manually through SetTime;
// nothing touches it concurrently.

func getSystemTicks() uint32 {
	return systemTicks
}

func setSystemTicks(ticks uint32) {
	systemTicks = ticks
}
