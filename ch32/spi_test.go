package ch32

import (
	"bytes"
	"testing"

	"gomcu/core"
)

// attachSPISim wires a loopback device onto an SPI register file: every
// byte written to the data register comes straight back, and the status
// flags behave as if the shift register empties instantly.
func attachSPISim(regs *SPIRegs) *spiSim {
	s := &spiSim{statr: SPI_STATR_TXE}
	regs.CTLR1 = &simReg{
		get: func() uint32 { return s.ctlr1 },
		set: func(v uint32) {
			s.ctlr1History = append(s.ctlr1History, v)
			s.ctlr1 = v
		},
	}
	regs.STATR = &simReg{
		get: func() uint32 { return s.statr },
		set: func(v uint32) { s.statr = v },
	}
	regs.DATAR = &simReg{
		set: func(v uint32) {
			s.shifted = append(s.shifted, byte(v))
			s.rxByte = byte(v)
			s.statr |= SPI_STATR_RXNE
		},
		get: func() uint32 {
			s.statr &^= SPI_STATR_RXNE
			return uint32(s.rxByte)
		},
	}
	return s
}

type spiSim struct {
	ctlr1        uint32
	ctlr1History []uint32
	statr        uint32
	rxByte       byte
	shifted      []byte
}

func newTestSPI(t *testing.T) (*SPIMaster, *spiSim, *Device) {
	t.Helper()
	dev := NewSimDevice()
	sim := attachSPISim(dev.spis[0])
	clk, err := SetupClocks(mustClaimRCC(t, dev))
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}
	pins := NewPinDriver(dev, clk)
	return NewSPIMaster(dev, clk, pins, &tickSource{step: 1}), sim, dev
}

func TestSPIDivisorSearch(t *testing.T) {
	// 144MHz peripheral clock on SPI1.
	cases := []struct {
		rate uint32
		br   uint32
	}{
		{72000000, 0},  // /2 = 72MHz
		{40000000, 1},  // /4 = 36MHz
		{10000000, 3},  // /16 = 9MHz; /8 would be 18MHz, too fast
		{1000000, 6},   // /128 = 1.125MHz; nothing slower exists
		{100000, 6},    // below the floor still picks /128
		{144000000, 0}, // /2 satisfies rate = pclk
	}
	for _, c := range cases {
		if got := spiDivisorField(144000000, c.rate); got != c.br {
			t.Errorf("spiDivisorField(144MHz, %d): expected BR %d, got %d", c.rate, c.br, got)
		}
	}
}

func TestSPISetup(t *testing.T) {
	m, _, dev := newTestSPI(t)

	cfg, err := m.Setup(0, 3, 10000000)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	want := uint32(SPI_CTLR1_MSTR | SPI_CTLR1_SSM | SPI_CTLR1_SSI | SPI_CTLR1_SPE |
		SPI_CTLR1_CPOL | SPI_CTLR1_CPHA | 3<<SPI_CTLR1_BR_Shift)
	if cfg.ctlr1 != want {
		t.Errorf("Expected control word %#x, got %#x", want, cfg.ctlr1)
	}

	// SCK/MOSI alternate-function push-pull, MISO floating input.
	portA := dev.ports[core.PortA]
	if got := cfgNibble(portA, 5); got != 0xB {
		t.Errorf("Expected AF push-pull on SCK, got %#x", got)
	}
	if got := cfgNibble(portA, 7); got != 0xB {
		t.Errorf("Expected AF push-pull on MOSI, got %#x", got)
	}
	if got := cfgNibble(portA, 6); got != 0x4 {
		t.Errorf("Expected floating input on MISO, got %#x", got)
	}

	if _, err := m.Setup(0, 4, 1000000); err == nil {
		t.Error("Expected error for mode beyond 3")
	}
	if _, err := m.Setup(5, 0, 1000000); err == nil {
		t.Error("Expected error for bus beyond this part")
	}
}

func TestSPIPrepareOnlyOnChange(t *testing.T) {
	m, sim, _ := newTestSPI(t)

	cfg, err := m.Setup(0, 0, 10000000)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if err := m.Prepare(cfg); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	writes := len(sim.ctlr1History)
	if writes == 0 {
		t.Fatal("First prepare did not program the control register")
	}
	// The peripheral must be disabled before the new word lands.
	last := sim.ctlr1History[len(sim.ctlr1History)-1]
	if len(sim.ctlr1History) < 2 || sim.ctlr1History[len(sim.ctlr1History)-2]&SPI_CTLR1_SPE != 0 {
		t.Error("Control word rewritten without disabling the peripheral first")
	}
	if last != cfg.ctlr1 {
		t.Errorf("Final control word %#x, expected %#x", last, cfg.ctlr1)
	}

	// Same word again: nothing to do.
	if err := m.Prepare(cfg); err != nil {
		t.Fatalf("Second prepare failed: %v", err)
	}
	if len(sim.ctlr1History) != writes {
		t.Error("Prepare rewrote an unchanged control word")
	}

	// A different mode reprograms.
	cfg2, err := m.Setup(0, 2, 10000000)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := m.Prepare(cfg2); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(sim.ctlr1History) == writes {
		t.Error("Prepare skipped a changed control word")
	}
}

func TestSPITransferLoopback(t *testing.T) {
	m, sim, _ := newTestSPI(t)

	cfg, err := m.Setup(0, 0, 1000000)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	tx := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	rx := make([]byte, len(tx))
	if err := m.Transfer(cfg, tx, rx); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if !bytes.Equal(sim.shifted, tx) {
		t.Errorf("Shifted wrong bytes: %#v", sim.shifted)
	}
	if !bytes.Equal(rx, tx) {
		t.Errorf("Loopback mismatch: %#v", rx)
	}

	// Discarding the readback leaves rx untouched.
	if err := m.Transfer(cfg, []byte{0x01}, nil); err != nil {
		t.Fatalf("Send-only transfer failed: %v", err)
	}
}

func TestSPITransferWedgedBus(t *testing.T) {
	dev := NewSimDevice()
	clk, err := SetupClocks(mustClaimRCC(t, dev))
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}
	pins := NewPinDriver(dev, clk)
	m := NewSPIMaster(dev, clk, pins, &tickSource{step: 100})

	cfg, err := m.Setup(0, 0, 1000000)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	// TXE is up (reset value) but RXNE never arrives: the byte goes out
	// and the readback poll must end in the unrecoverable kind.
	err = m.Transfer(cfg, []byte{0x55}, nil)
	if err == nil {
		t.Fatal("Expected error from a dead receiver")
	}
	if !core.IsUnrecoverable(err) {
		t.Errorf("Expected unrecoverable error, got %v", err)
	}
}
