// BMCU-C mainboard pinout. Names follow the signal labels in the board
// schematic.
package ch32

import "gomcu/core"

// RS-485 link to the printer.
var (
	BoardRS485TX = core.PhysicalPin(core.PortA, 9)
	BoardRS485RX = core.PhysicalPin(core.PortA, 10)
	BoardRS485DE = core.PhysicalPin(core.PortA, 12)
)

// Status LED and the four light pipe outputs.
var (
	BoardStatusLED = core.PhysicalPin(core.PortD, 1)
	BoardRGBOut    = [4]core.PinHandle{
		core.PhysicalPin(core.PortB, 0),
		core.PhysicalPin(core.PortB, 1),
		core.PhysicalPin(core.PortA, 8),
		core.PhysicalPin(core.PortA, 11),
	}
)

// AT8236 bridge inputs, one pair per motor channel.
var (
	motorHighPins = [core.MotorChannels]core.PinHandle{
		core.PhysicalPin(core.PortA, 15),
		core.PhysicalPin(core.PortB, 4),
		core.PhysicalPin(core.PortB, 6),
		core.PhysicalPin(core.PortB, 8),
	}
	motorLowPins = [core.MotorChannels]core.PinHandle{
		core.PhysicalPin(core.PortB, 3),
		core.PhysicalPin(core.PortB, 5),
		core.PhysicalPin(core.PortB, 7),
		core.PhysicalPin(core.PortB, 9),
	}
)

// Per-spool filament switches: PULL goes low while filament is buffered,
// ONLINE goes low while a spool is inserted.
var (
	BoardSpoolPull = [4]core.PinHandle{
		core.PhysicalPin(core.PortA, 0),
		core.PhysicalPin(core.PortA, 2),
		core.PhysicalPin(core.PortA, 4),
		core.PhysicalPin(core.PortA, 6),
	}
	BoardSpoolOnline = [4]core.PinHandle{
		core.PhysicalPin(core.PortA, 1),
		core.PhysicalPin(core.PortA, 3),
		core.PhysicalPin(core.PortA, 5),
		core.PhysicalPin(core.PortA, 7),
	}
)
