// SHT3x humidity/temperature sensing. The measurement protocol comes
// from tinygo.org/x/drivers; portBus adapts the I2C HAL to the bus
// interface that driver expects.
package core

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/sht3x"
)

// portBus adapts an I2CPort to tinygo.org/x/drivers.I2C. The port is
// already bound to a device address, so the addr argument is ignored.
type portBus struct {
	port I2CPort
}

var _ drivers.I2C = portBus{}

func (b portBus) Tx(addr uint16, w, r []byte) error {
	if len(r) == 0 {
		return b.port.Write(w)
	}
	return b.port.Read(w, r)
}

// HumiditySensor wraps an SHT3x for the sensor registry. The chamber
// humidity readout decides when the dry-box desiccant needs changing.
type HumiditySensor struct {
	dev sht3x.Device
}

// NewHumiditySensor claims the SHT3x default address on the given bus.
func NewHumiditySensor(bus, rate uint32) (*HumiditySensor, error) {
	port, err := MustI2C().Setup(bus, rate, sht3x.AddressA)
	if err != nil {
		return nil, err
	}
	return &HumiditySensor{dev: sht3x.New(portBus{port: port})}, nil
}

func (s *HumiditySensor) Name() string {
	return "sht3x"
}

// Sample returns an 8-byte payload: temperature in milli-degrees C and
// relative humidity in centi-percent, both signed big-endian 32-bit.
func (s *HumiditySensor) Sample() ([]byte, error) {
	temp, hum, err := s.dev.ReadTemperatureHumidity()
	if err != nil {
		return nil, err
	}
	hum32 := int32(hum)
	return []byte{
		byte(temp >> 24), byte(temp >> 16), byte(temp >> 8), byte(temp),
		byte(hum32 >> 24), byte(hum32 >> 16), byte(hum32 >> 8), byte(hum32),
	}, nil
}
