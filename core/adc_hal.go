package core

// ADCDriver is the abstract ADC interface that core code uses. Channels
// are named by pin handle; the target maps handles to its converter's
// channel numbers.
type ADCDriver interface {
	// SetupChannel switches a pin to analog mode and returns the channel
	// number used for reads. Pins without an ADC channel are rejected.
	SetupChannel(pin PinHandle) (uint8, error)

	// Read runs one conversion and returns the raw 12-bit result.
	Read(channel uint8) (uint16, error)
}

// Global singleton used by core code.
var adcDriver ADCDriver

// SetADCDriver is called by target-specific code to register its driver.
func SetADCDriver(d ADCDriver) {
	adcDriver = d
}

// MustADC returns the configured driver or panics if missing.
func MustADC() ADCDriver {
	if adcDriver == nil {
		panic("ADC driver not configured")
	}
	return adcDriver
}
