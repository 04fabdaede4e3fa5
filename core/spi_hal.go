package core

// SPIPort is one device's view of a configured SPI bus: a pre-computed
// control word the driver applies before each transfer, so devices with
// different modes and rates can share the bus.
type SPIPort interface {
	// Transfer shifts tx out while capturing into rx. rx may be nil to
	// discard the readback. Chip select is the caller's business.
	Transfer(tx, rx []byte) error
}

// SPIDriver is the abstract SPI master interface that core code uses.
// mode is the usual 2-bit CPOL/CPHA encoding; the driver picks the
// closest clock divider at or below rate.
type SPIDriver interface {
	Setup(bus uint32, mode uint8, rate uint32) (SPIPort, error)
}

// Global singleton used by core code.
var spiDriver SPIDriver

// SetSPIDriver is called by target-specific code to register its driver.
func SetSPIDriver(d SPIDriver) {
	spiDriver = d
}

// MustSPI returns the configured driver or panics if missing.
func MustSPI() SPIDriver {
	if spiDriver == nil {
		panic("SPI driver not configured")
	}
	return spiDriver
}
