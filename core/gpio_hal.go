package core

// GPIODriver is the abstract digital pin interface that core code uses.
// Platform-specific implementations handle actual hardware control.
// Handles naming a motor-channel sub-pin are accepted everywhere a
// physical pin is; the target routes them to its motor driver.
type GPIODriver interface {
	// SetupOutput configures a pin as a push-pull output driving the
	// given initial level. The level is applied before the pin starts
	// driving so the line never glitches through the old state.
	SetupOutput(pin PinHandle, initial bool) error

	// SetupInput configures a pin as a digital input. pull > 0 enables
	// the pull-up, pull < 0 the pull-down, 0 leaves the pin floating.
	SetupInput(pin PinHandle, pull int) error

	// Write drives an output pin high (true) or low (false).
	Write(pin PinHandle, value bool) error

	// Toggle inverts the current output level of a pin.
	Toggle(pin PinHandle) error

	// Reset reconfigures a pin as an output at the given level, even if
	// its config was clobbered. Used by shutdown paths.
	Reset(pin PinHandle, value bool) error

	// Read returns the sampled input level of a pin.
	Read(pin PinHandle) (bool, error)
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
