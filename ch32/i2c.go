// I2C master.
//
// Blocking polled state machine: BUSY wait, START, address, data bytes,
// STOP. Every poll is bounded by one wall-clock deadline taken 5ms after
// transfer entry; a missing acknowledge is reported separately for the
// address-write, address-read and data phases. For reads the STOP request
// goes out before the final byte is pulled from the data register, which
// is what suppresses the acknowledge of that last byte.
package ch32

import (
	"errors"
	"fmt"

	"gomcu/core"
)

// transferDeadlineUS bounds every wait in one transfer.
const transferDeadlineUS = 5000

type i2cBusInfo struct {
	instance int
	periph   PeriphID
	scl      core.PinHandle
	sda      core.PinHandle
}

var i2cBusTable = [...]i2cBusInfo{
	{1, PeriphI2C1, core.PhysicalPin(core.PortB, 6), core.PhysicalPin(core.PortB, 7)},
	{2, PeriphI2C2, core.PhysicalPin(core.PortB, 10), core.PhysicalPin(core.PortB, 11)},
}

// I2CBusCount is the number of controllers exposed on the wire.
const I2CBusCount = len(i2cBusTable)

// I2CConfig is the handle for one target device on one bus. The address is
// stored pre-shifted with the R/W bit clear.
type I2CConfig struct {
	bus  uint32
	addr uint8
}

// I2CMaster implements core.I2CDriver over the two on-chip controllers.
type I2CMaster struct {
	dev   *Device
	clk   *Clock
	pins  *PinDriver
	time  core.TimeSource
	buses [I2CBusCount]*I2CRegs
}

func NewI2CMaster(dev *Device, clk *Clock, pins *PinDriver, ts core.TimeSource) *I2CMaster {
	return &I2CMaster{dev: dev, clk: clk, pins: pins, time: ts}
}

// Setup validates the bus number, brings the controller up on first use and
// returns a device handle. rate 0 defaults to 100kHz; rates above 400kHz
// are clamped to 400kHz.
func (m *I2CMaster) Setup(bus uint32, rate uint32, addr uint8) (I2CConfig, error) {
	if int(bus) >= I2CBusCount {
		return I2CConfig{}, fmt.Errorf("invalid i2c bus %d", bus)
	}
	info := &i2cBusTable[bus]

	if err := m.clk.EnablePeripheral(info.periph); err != nil {
		return I2CConfig{}, err
	}

	if m.buses[bus] == nil {
		regs, err := m.dev.ClaimI2C(info.instance)
		if err != nil {
			return I2CConfig{}, err
		}
		if err := m.initBus(regs, info, rate); err != nil {
			return I2CConfig{}, err
		}
		m.buses[bus] = regs
	}

	SetBits(m.buses[bus].CTLR1, I2C_CTLR1_PE)

	return I2CConfig{bus: bus, addr: (addr & 0x7F) << 1}, nil
}

// initBus configures pins and timing once per controller.
func (m *I2CMaster) initBus(regs *I2CRegs, info *i2cBusInfo, rate uint32) error {
	cfg := GPIOConfig(GPIO_MODE_OUTPUT_50MHZ, GPIO_CNF_AF_OPENDRAIN)
	if err := m.pins.SetupPeripheral(info.scl, cfg, 1); err != nil {
		return err
	}
	if err := m.pins.SetupPeripheral(info.sda, cfg, 1); err != nil {
		return err
	}

	// Reset pulse clears any stale bus state from before boot.
	regs.CTLR1.Set(I2C_CTLR1_SWRST)
	regs.CTLR1.Set(0)

	pclk, err := m.clk.PeripheralFreq(info.periph)
	if err != nil {
		return err
	}

	target := rate
	if target == 0 {
		target = 100000
	}
	if target > 400000 {
		target = 400000
	}

	freq := pclk / 1000000
	if freq < 2 {
		freq = 2
	}
	if freq > I2C_CTLR2_FREQ_Msk {
		freq = I2C_CTLR2_FREQ_Msk
	}
	regs.CTLR2.Set(freq)

	divider := pclk / (target * 2)
	if divider < 4 {
		divider = 4
	}
	if divider > I2C_CKCFGR_CCR_Msk {
		divider = I2C_CKCFGR_CCR_Msk
	}
	regs.CKCFGR.Set(divider)
	regs.RTR.Set(freq + 1)
	return nil
}

func (m *I2CMaster) busRegs(cfg I2CConfig) (*I2CRegs, error) {
	if int(cfg.bus) >= I2CBusCount || m.buses[cfg.bus] == nil {
		return nil, fmt.Errorf("i2c bus %d not set up", cfg.bus)
	}
	return m.buses[cfg.bus], nil
}

func (m *I2CMaster) deadline() uint32 {
	return m.time.ReadTime() + core.TimerFromUS(transferDeadlineUS)
}

// wait polls STAR1 until the set bits are all present and the clear bits
// all absent. A missing acknowledge wins over the deadline.
func (m *I2CMaster) wait(regs *I2CRegs, set, clear uint32, deadline uint32) error {
	for {
		star1 := regs.STAR1.Get()
		if star1&set == set && star1&clear == 0 {
			return nil
		}
		if star1&I2C_STAR1_AF != 0 {
			ClearBits(regs.STAR1, I2C_STAR1_AF)
			return core.ErrNACK
		}
		if !core.TimerIsBefore(m.time.ReadTime(), deadline) {
			return core.ErrTimeout
		}
	}
}

// start claims the bus and sends the address. xferLen steers the acknowledge
// strategy for reads: multi-byte reads enable auto-acknowledge up front,
// single-byte reads arm STOP right after the address phase.
func (m *I2CMaster) start(regs *I2CRegs, addr uint8, xferLen int, deadline uint32) error {
	for HasBits(regs.STAR2, I2C_STAR2_BUSY) {
		if !core.TimerIsBefore(m.time.ReadTime(), deadline) {
			return core.ErrTimeout
		}
	}

	SetBits(regs.CTLR1, I2C_CTLR1_PE)
	SetBits(regs.CTLR1, I2C_CTLR1_START)

	if err := m.wait(regs, I2C_STAR1_SB, 0, deadline); err != nil {
		return err
	}

	if addr&0x01 != 0 && xferLen > 1 {
		SetBits(regs.CTLR1, I2C_CTLR1_ACK)
	}

	regs.DATAR.Set(uint32(addr))

	if err := m.wait(regs, I2C_STAR1_ADDR, 0, deadline); err != nil {
		return err
	}

	// Reading STAR2 completes the address phase; for a single-byte read
	// the STOP has to be armed in the same critical section.
	state := irqSave()
	star2 := regs.STAR2.Get()
	if addr&0x01 != 0 && xferLen == 1 {
		regs.CTLR1.Set(I2C_CTLR1_STOP | I2C_CTLR1_PE)
	}
	irqRestore(state)

	if star2&I2C_STAR2_MSL == 0 {
		return core.Unrecoverable("Failed to send i2c addr")
	}
	return nil
}

func (m *I2CMaster) sendByte(regs *I2CRegs, b byte, deadline uint32) error {
	regs.DATAR.Set(uint32(b))
	return m.wait(regs, I2C_STAR1_TXE, 0, deadline)
}

// readByte pulls one byte; with exactly one byte left after this one, the
// STOP request is armed in the same critical section as the data read.
func (m *I2CMaster) readByte(regs *I2CRegs, deadline uint32, remaining int) (byte, error) {
	if err := m.wait(regs, I2C_STAR1_RXNE, 0, deadline); err != nil {
		return 0, err
	}
	state := irqSave()
	b := byte(regs.DATAR.Get())
	if remaining == 1 {
		regs.CTLR1.Set(I2C_CTLR1_STOP | I2C_CTLR1_PE)
	}
	irqRestore(state)
	return b, nil
}

func (m *I2CMaster) stop(regs *I2CRegs, deadline uint32) error {
	regs.CTLR1.Set(I2C_CTLR1_STOP | I2C_CTLR1_PE)
	return m.wait(regs, 0, I2C_STAR1_TXE, deadline)
}

// Write sends data to the device. The STOP goes out even when a byte was
// rejected, so the bus is released on every path.
func (m *I2CMaster) Write(cfg I2CConfig, data []byte) error {
	regs, err := m.busRegs(cfg)
	if err != nil {
		return err
	}
	deadline := m.deadline()

	err = m.start(regs, cfg.addr, len(data), deadline)
	if errors.Is(err, core.ErrNACK) {
		err = core.ErrStartNACK
	}
	if core.IsUnrecoverable(err) {
		return err
	}

	for i := 0; i < len(data) && err == nil; i++ {
		err = m.sendByte(regs, data[i], deadline)
	}

	stopErr := m.stop(regs, deadline)
	if err == nil {
		err = stopErr
	}
	return err
}

// Read performs an optional register-address write followed by a repeated
// start and the read itself.
func (m *I2CMaster) Read(cfg I2CConfig, reg []byte, out []byte) error {
	regs, err := m.busRegs(cfg)
	if err != nil {
		return err
	}
	deadline := m.deadline()

	if len(reg) > 0 {
		err = m.start(regs, cfg.addr, len(reg), deadline)
		if errors.Is(err, core.ErrNACK) {
			err = core.ErrStartNACK
		}
		if core.IsUnrecoverable(err) {
			return err
		}
		for i := 0; i < len(reg) && err == nil; i++ {
			err = m.sendByte(regs, reg[i], deadline)
		}
		if err != nil {
			m.stop(regs, deadline)
			return err
		}
	}

	err = m.start(regs, cfg.addr|0x01, len(out), deadline)
	if errors.Is(err, core.ErrNACK) {
		err = core.ErrStartReadNACK
	}
	if core.IsUnrecoverable(err) {
		return err
	}
	if err != nil {
		m.stop(regs, deadline)
		return err
	}

	for i := range out {
		b, err := m.readByte(regs, deadline, len(out)-1-i)
		if err != nil {
			return err
		}
		out[i] = b
	}

	// The STOP was armed with the last byte; wait for the data register
	// to drain.
	return m.wait(regs, 0, I2C_STAR1_RXNE, deadline)
}
