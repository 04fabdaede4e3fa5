// Package serial abstracts the host's serial port so tools can run
// against real hardware or a mock in tests.
package serial

import (
	"io"
)

// Port is the interface the host tools talk through.
type Port interface {
	io.ReadWriteCloser

	// Flush pushes any buffered data onto the wire.
	Flush() error
}

// Parity selects the link's parity bit.
type Parity byte

const (
	ParityNone Parity = 'N'
	ParityEven Parity = 'E'
	ParityOdd  Parity = 'O'
)

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g. "/dev/ttyUSB0", "COM3").
	Device string

	// Baud rate. USB CDC links ignore it.
	Baud int

	// Frame format. Zero values mean 8N1.
	Size     byte
	Parity   Parity
	StopBits byte

	// Read timeout in milliseconds (0 = blocking).
	ReadTimeout int
}

// DefaultConfig is the Klipper link: 250000 baud 8N1.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100,
	}
}

// BambuConfig is the printer-facing RS-485 link: 1.25M baud 8E1.
func BambuConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        1250000,
		Size:        8,
		Parity:      ParityEven,
		StopBits:    1,
		ReadTimeout: 100,
	}
}
