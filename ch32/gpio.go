// Digital pin driver.
//
// Pins are addressed by handle; physical handles resolve to a port register
// file and bit mask, motor sub-pin handles are routed to the AT8236 channel
// layer. A port is claimed, clock-gated and put into its reset configuration
// the first time one of its pins is touched.
package ch32

import (
	"errors"
	"fmt"

	"gomcu/core"
)

// PinDriver implements core.GPIODriver for the on-chip GPIO ports.
type PinDriver struct {
	dev    *Device
	clk    *Clock
	ports  [NumPorts]*PortRegs
	motors *Motors
}

func NewPinDriver(dev *Device, clk *Clock) *PinDriver {
	return &PinDriver{dev: dev, clk: clk}
}

// bindMotors attaches the motor-channel layer that receives writes to
// virtual sub-pin handles.
func (d *PinDriver) bindMotors(m *Motors) {
	d.motors = m
}

func pinBit(index uint8) uint32 { return 1 << index }

// portRegs returns the register file for a port, claiming and resetting it
// on first use.
func (d *PinDriver) portRegs(p core.PortID) (*PortRegs, error) {
	if int(p) >= NumPorts {
		return nil, fmt.Errorf("invalid GPIO port %d", p)
	}
	if d.ports[p] == nil {
		regs, err := d.dev.ClaimPort(p)
		if err != nil {
			return nil, err
		}
		if err := d.clk.EnablePort(p); err != nil {
			return nil, err
		}
		regs.CFGLR.Set(gpioCfgReset)
		regs.CFGHR.Set(gpioCfgReset)
		regs.OUTDR.Set(0)
		d.ports[p] = regs
	}
	return d.ports[p], nil
}

// configurePin replaces the 4-bit config nibble of one pin.
func configurePin(regs *PortRegs, index uint8, config uint32) {
	shift := uint(index&7) * 4
	cfg := regs.CFGLR
	if index >= 8 {
		cfg = regs.CFGHR
	}
	cfg.Set(cfg.Get()&^(0xF<<shift) | config<<shift)
}

func writeLevel(regs *PortRegs, index uint8, value bool) {
	if value {
		regs.BSHR.Set(pinBit(index))
	} else {
		regs.BCR.Set(pinBit(index))
	}
}

// SetupPeripheral hands a physical pin to a peripheral function: the config
// nibble is applied as given. For the pulled input config, pull > 0 selects
// the pull-up and pull <= 0 the pull-down.
func (d *PinDriver) SetupPeripheral(pin core.PinHandle, config uint32, pull int) error {
	if pin.IsVirtual() {
		return fmt.Errorf("%s is not a physical pin", pin)
	}
	regs, err := d.portRegs(pin.Port())
	if err != nil {
		return err
	}
	if config == GPIOConfig(GPIO_MODE_INPUT, GPIO_CNF_INPUT_PU_PD) {
		if pull > 0 {
			regs.BSHR.Set(pinBit(pin.Index()))
		} else {
			regs.BCR.Set(pinBit(pin.Index()))
		}
	}
	configurePin(regs, pin.Index(), config)
	return nil
}

// resetOutput drives the requested level and re-applies the output config,
// masked so an interrupt handler touching the same port cannot interleave.
func resetOutput(regs *PortRegs, index uint8, value bool) {
	state := irqSave()
	writeLevel(regs, index, value)
	configurePin(regs, index, GPIOConfig(GPIO_MODE_OUTPUT_50MHZ, GPIO_CNF_PUSHPULL))
	irqRestore(state)
}

func (d *PinDriver) motorRoute(pin core.PinHandle) (*Motors, error) {
	if d.motors == nil {
		return nil, errors.New("motor channels not configured")
	}
	return d.motors, nil
}

// SetupOutput makes a pin a push-pull output at the given level. Motor
// sub-pins configure their channel on first use and set the role state.
func (d *PinDriver) SetupOutput(pin core.PinHandle, initial bool) error {
	if pin.IsVirtual() {
		m, err := d.motorRoute(pin)
		if err != nil {
			return err
		}
		return m.WriteRole(pin.Channel(), pin.Role(), initial)
	}
	regs, err := d.portRegs(pin.Port())
	if err != nil {
		return err
	}
	resetOutput(regs, pin.Index(), initial)
	return nil
}

// Write drives an output pin to the given level.
func (d *PinDriver) Write(pin core.PinHandle, value bool) error {
	if pin.IsVirtual() {
		m, err := d.motorRoute(pin)
		if err != nil {
			return err
		}
		return m.WriteRole(pin.Channel(), pin.Role(), value)
	}
	regs, err := d.portRegs(pin.Port())
	if err != nil {
		return err
	}
	writeLevel(regs, pin.Index(), value)
	return nil
}

// Toggle inverts an output pin. The read-modify-write of the output data
// register runs with interrupts masked.
func (d *PinDriver) Toggle(pin core.PinHandle) error {
	state := irqSave()
	defer irqRestore(state)

	if pin.IsVirtual() {
		m, err := d.motorRoute(pin)
		if err != nil {
			return err
		}
		return m.ToggleRole(pin.Channel(), pin.Role())
	}
	regs, err := d.portRegs(pin.Port())
	if err != nil {
		return err
	}
	regs.OUTDR.Set(regs.OUTDR.Get() ^ pinBit(pin.Index()))
	return nil
}

// Reset re-applies output configuration and level, for recovery after a
// peripheral released the pin.
func (d *PinDriver) Reset(pin core.PinHandle, value bool) error {
	if pin.IsVirtual() {
		m, err := d.motorRoute(pin)
		if err != nil {
			return err
		}
		return m.WriteRole(pin.Channel(), pin.Role(), value)
	}
	regs, err := d.portRegs(pin.Port())
	if err != nil {
		return err
	}
	resetOutput(regs, pin.Index(), value)
	return nil
}

// SetupInput configures a pin as input. pull > 0 enables the pull-up,
// pull < 0 the pull-down, 0 leaves the pin floating.
func (d *PinDriver) SetupInput(pin core.PinHandle, pull int) error {
	if pin.IsVirtual() {
		return fmt.Errorf("%s cannot be an input", pin)
	}
	config := GPIOConfig(GPIO_MODE_INPUT, GPIO_CNF_FLOATING)
	if pull != 0 {
		config = GPIOConfig(GPIO_MODE_INPUT, GPIO_CNF_INPUT_PU_PD)
	}
	return d.SetupPeripheral(pin, config, pull)
}

// Read samples the input level of a pin.
func (d *PinDriver) Read(pin core.PinHandle) (bool, error) {
	if pin.IsVirtual() {
		return false, fmt.Errorf("%s cannot be read as an input", pin)
	}
	regs, err := d.portRegs(pin.Port())
	if err != nil {
		return false, err
	}
	return regs.INDR.Get()&pinBit(pin.Index()) != 0, nil
}
