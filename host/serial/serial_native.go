//go:build !wasm

package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// NativePort wraps the tarm/serial implementation.
type NativePort struct {
	port *serial.Port
	cfg  *Config
}

// Open opens a native serial port with the given framing.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	serialConfig := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
		Size:        cfg.Size,
		StopBits:    serial.Stop1,
	}
	if cfg.StopBits == 2 {
		serialConfig.StopBits = serial.Stop2
	}
	switch cfg.Parity {
	case ParityEven:
		serialConfig.Parity = serial.ParityEven
	case ParityOdd:
		serialConfig.Parity = serial.ParityOdd
	default:
		serialConfig.Parity = serial.ParityNone
	}

	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &NativePort{
		port: port,
		cfg:  cfg,
	}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush is a no-op: tarm/serial writes through.
func (p *NativePort) Flush() error {
	return nil
}
