// Adapters binding the concrete bus masters to the portable driver
// interfaces. The masters hand out small config values; the adapters
// close over master+config so the command layer holds one opaque port
// per device. PinDriver, Motors and ADC satisfy their interfaces
// directly.
package ch32

import "gomcu/core"

var (
	_ core.GPIODriver  = (*PinDriver)(nil)
	_ core.MotorDriver = (*Motors)(nil)
	_ core.ADCDriver   = (*ADC)(nil)
	_ core.PWMOut      = PWMChannel{}
	_ core.I2CDriver   = I2CHAL{}
	_ core.SPIDriver   = SPIHAL{}
	_ core.PWMDriver   = PWMHAL{}
)

// I2CHAL adapts an I2CMaster to core.I2CDriver.
type I2CHAL struct {
	Master *I2CMaster
}

type i2cPort struct {
	m   *I2CMaster
	cfg I2CConfig
}

func (h I2CHAL) Setup(bus, rate uint32, addr uint8) (core.I2CPort, error) {
	cfg, err := h.Master.Setup(bus, rate, addr)
	if err != nil {
		return nil, err
	}
	return i2cPort{m: h.Master, cfg: cfg}, nil
}

func (p i2cPort) Write(data []byte) error {
	return p.m.Write(p.cfg, data)
}

func (p i2cPort) Read(reg, out []byte) error {
	return p.m.Read(p.cfg, reg, out)
}

// SPIHAL adapts an SPIMaster to core.SPIDriver.
type SPIHAL struct {
	Master *SPIMaster
}

type spiPort struct {
	m   *SPIMaster
	cfg SPIConfig
}

func (h SPIHAL) Setup(bus uint32, mode uint8, rate uint32) (core.SPIPort, error) {
	cfg, err := h.Master.Setup(bus, mode, rate)
	if err != nil {
		return nil, err
	}
	// Program the control word now so the first transfer starts from a
	// known bus state.
	if err := h.Master.Prepare(cfg); err != nil {
		return nil, err
	}
	return spiPort{m: h.Master, cfg: cfg}, nil
}

func (p spiPort) Transfer(tx, rx []byte) error {
	return p.m.Transfer(p.cfg, tx, rx)
}

// PWMHAL adapts the PWM timer driver to core.PWMDriver.
type PWMHAL struct {
	PWM *PWM
}

func (h PWMHAL) Setup(pin core.PinHandle, cycleTicks uint32) (core.PWMOut, error) {
	ch, err := h.PWM.Setup(pin, cycleTicks)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
