//go:build tinygo

package main

// ModeConfig selects which protocol the board speaks on the RS-485 link.
type ModeConfig struct {
	// Standalone answers the printer's AMS-style polls directly instead
	// of serving the Klipper protocol.
	Standalone bool
}

// GetMode returns the boot mode. Fixed at compile time for now; reading a
// strap pin here would switch modes without touching the callers.
func GetMode() ModeConfig {
	return ModeConfig{
		Standalone: false,
	}
}
