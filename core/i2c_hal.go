package core

// I2CPort is one addressed device on a configured I2C bus. The driver
// pre-computes whatever per-device state it needs (shifted address,
// timing words) when the port is created.
type I2CPort interface {
	// Write sends data to the device in one START..STOP transaction.
	Write(data []byte) error

	// Read fills out with bytes from the device. A non-empty reg is
	// written first, with a repeated start between the phases.
	Read(reg, out []byte) error
}

// I2CDriver is the abstract I2C master interface that core code uses.
// Transfer failures come back as the sentinel errors in errors.go so
// callers can map them to wire status codes.
type I2CDriver interface {
	// Setup validates the bus number, brings the bus up at the given rate
	// on first use, and returns a port for the 7-bit device address.
	Setup(bus uint32, rate uint32, addr uint8) (I2CPort, error)
}

// Global singleton used by core code.
var i2cDriver I2CDriver

// SetI2CDriver is called by target-specific code to register its driver.
func SetI2CDriver(d I2CDriver) {
	i2cDriver = d
}

// MustI2C returns the configured driver or panics if missing.
func MustI2C() I2CDriver {
	if i2cDriver == nil {
		panic("I2C driver not configured")
	}
	return i2cDriver
}
