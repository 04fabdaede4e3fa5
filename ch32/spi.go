// SPI master.
//
// Transfers are blocking full-duplex shifts, one byte at a time. Setup
// picks the largest power-of-two clock divisor that keeps the bus at or
// below the requested rate; the control word is only rewritten when it
// actually changes, with the peripheral disabled across the rewrite so
// the clock line cannot glitch mid-reprogram.
package ch32

import (
	"fmt"

	"gomcu/core"
)

type spiBusInfo struct {
	instance int
	periph   PeriphID
	sck      core.PinHandle
	mosi     core.PinHandle
	miso     core.PinHandle
}

var spiBusTable = [...]spiBusInfo{
	{1, PeriphSPI1,
		core.PhysicalPin(core.PortA, 5),
		core.PhysicalPin(core.PortA, 7),
		core.PhysicalPin(core.PortA, 6)},
	{2, PeriphSPI2,
		core.PhysicalPin(core.PortB, 13),
		core.PhysicalPin(core.PortB, 15),
		core.PhysicalPin(core.PortB, 14)},
}

// SPIBusCount is the number of controllers exposed on the wire.
const SPIBusCount = len(spiBusTable)

// Divisor search bounds: the BR field encodes pclk/2 .. pclk/128.
const (
	spiMinDivisorShift = 1
	spiMaxBRField      = 6
)

// SPIConfig is a pre-computed control word for one device on one bus.
type SPIConfig struct {
	bus   uint32
	ctlr1 uint32
}

// SPIMaster implements core.SPIDriver over the two on-chip controllers.
type SPIMaster struct {
	dev   *Device
	clk   *Clock
	pins  *PinDriver
	time  core.TimeSource
	buses [SPIBusCount]*SPIRegs
	// Last control word applied per bus; Prepare skips matching rewrites.
	shadow [SPIBusCount]uint32
}

func NewSPIMaster(dev *Device, clk *Clock, pins *PinDriver, ts core.TimeSource) *SPIMaster {
	return &SPIMaster{dev: dev, clk: clk, pins: pins, time: ts}
}

// spiDivisorField returns the BR field encoding the largest divisor
// 2^(br+1) with pclk/divisor <= rate, or the maximum field when even the
// largest divisor is too fast.
func spiDivisorField(pclk, rate uint32) uint32 {
	for br := uint32(0); br < spiMaxBRField; br++ {
		if pclk>>(br+spiMinDivisorShift) <= rate {
			return br
		}
	}
	return spiMaxBRField
}

// Setup validates the bus number, brings the controller up on first use
// and returns the control word for the requested mode and rate. mode is
// the usual 2-bit CPOL/CPHA encoding.
func (m *SPIMaster) Setup(bus uint32, mode uint8, rate uint32) (SPIConfig, error) {
	if int(bus) >= SPIBusCount {
		return SPIConfig{}, fmt.Errorf("invalid spi bus %d", bus)
	}
	if mode > 3 {
		return SPIConfig{}, fmt.Errorf("invalid spi mode %d", mode)
	}
	info := &spiBusTable[bus]

	if m.buses[bus] == nil {
		regs, err := m.dev.ClaimSPI(info.instance)
		if err != nil {
			return SPIConfig{}, err
		}
		if err := m.clk.EnablePeripheral(info.periph); err != nil {
			return SPIConfig{}, err
		}
		af := GPIOConfig(GPIO_MODE_OUTPUT_50MHZ, GPIO_CNF_AF_PUSHPULL)
		if err := m.pins.SetupPeripheral(info.sck, af, 0); err != nil {
			return SPIConfig{}, err
		}
		if err := m.pins.SetupPeripheral(info.mosi, af, 0); err != nil {
			return SPIConfig{}, err
		}
		if err := m.pins.SetupInput(info.miso, 0); err != nil {
			return SPIConfig{}, err
		}
		m.buses[bus] = regs
	}

	pclk, err := m.clk.PeripheralFreq(info.periph)
	if err != nil {
		return SPIConfig{}, err
	}

	ctlr1 := uint32(SPI_CTLR1_MSTR | SPI_CTLR1_SSM | SPI_CTLR1_SSI | SPI_CTLR1_SPE)
	if mode&1 != 0 {
		ctlr1 |= SPI_CTLR1_CPHA
	}
	if mode&2 != 0 {
		ctlr1 |= SPI_CTLR1_CPOL
	}
	ctlr1 |= spiDivisorField(pclk, rate) << SPI_CTLR1_BR_Shift

	return SPIConfig{bus: bus, ctlr1: ctlr1}, nil
}

func (m *SPIMaster) busRegs(cfg SPIConfig) (*SPIRegs, error) {
	if int(cfg.bus) >= SPIBusCount || m.buses[cfg.bus] == nil {
		return nil, fmt.Errorf("spi bus %d not set up", cfg.bus)
	}
	return m.buses[cfg.bus], nil
}

// Prepare applies the control word for a device. Nothing happens when the
// bus is already programmed for it; otherwise the peripheral is disabled,
// stale receive data drained, and the new word written.
func (m *SPIMaster) Prepare(cfg SPIConfig) error {
	regs, err := m.busRegs(cfg)
	if err != nil {
		return err
	}
	if m.shadow[cfg.bus] == cfg.ctlr1 {
		return nil
	}
	ClearBits(regs.CTLR1, SPI_CTLR1_SPE)
	for HasBits(regs.STATR, SPI_STATR_RXNE) {
		regs.DATAR.Get()
	}
	regs.CTLR1.Set(cfg.ctlr1)
	m.shadow[cfg.bus] = cfg.ctlr1
	return nil
}

// spiWaitFlag bounds the TXE/RXNE/BSY polls. A flag that never comes on a
// master-only bus means the peripheral is wedged, which no retry at this
// level can fix.
func (m *SPIMaster) spiWaitFlag(regs *SPIRegs, mask uint32, set bool, deadline uint32) error {
	for {
		if HasBits(regs.STATR, mask) == set {
			return nil
		}
		if !core.TimerIsBefore(m.time.ReadTime(), deadline) {
			return core.Unrecoverable("spi flag wait stuck")
		}
	}
}

// Transfer shifts tx out while capturing into rx. rx may be nil to
// discard the readback, or alias tx for an in-place exchange. The call
// returns after the busy flag clears, so the last clock edge has happened
// by the time a caller drops chip select.
func (m *SPIMaster) Transfer(cfg SPIConfig, tx, rx []byte) error {
	regs, err := m.busRegs(cfg)
	if err != nil {
		return err
	}
	if err := m.Prepare(cfg); err != nil {
		return err
	}
	deadline := m.time.ReadTime() + core.TimerFromUS(transferDeadlineUS)

	// Drop anything left in the receiver from a previous transfer.
	for HasBits(regs.STATR, SPI_STATR_RXNE) {
		regs.DATAR.Get()
	}

	for i := range tx {
		if err := m.spiWaitFlag(regs, SPI_STATR_TXE, true, deadline); err != nil {
			return err
		}
		regs.DATAR.Set(uint32(tx[i]))
		if err := m.spiWaitFlag(regs, SPI_STATR_RXNE, true, deadline); err != nil {
			return err
		}
		b := byte(regs.DATAR.Get())
		if rx != nil {
			rx[i] = b
		}
	}

	return m.spiWaitFlag(regs, SPI_STATR_BSY, false, deadline)
}
