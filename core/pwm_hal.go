package core

// PWMOut is one configured hardware PWM output.
type PWMOut interface {
	// CycleTicks returns the actual cycle length after the driver rounds
	// the requested cycle to what its prescaler can do.
	CycleTicks() uint32

	// SetDuty sets the on time in timer ticks, clamped to the cycle.
	SetDuty(onTicks uint32)
}

// PWMDriver is the abstract hardware PWM interface that core code uses.
type PWMDriver interface {
	// Setup configures a pin for PWM with the requested cycle length in
	// timer ticks. Pins without an output-compare channel are rejected.
	Setup(pin PinHandle, cycleTicks uint32) (PWMOut, error)
}

// Global singleton used by core code.
var pwmDriver PWMDriver

// SetPWMDriver is called by target-specific code to register its driver.
func SetPWMDriver(d PWMDriver) {
	pwmDriver = d
}

// MustPWM returns the configured driver or panics if missing.
func MustPWM() PWMDriver {
	if pwmDriver == nil {
		panic("PWM driver not configured")
	}
	return pwmDriver
}
