package ch32

import (
	"testing"

	"gomcu/core"
	"gomcu/protocol"
)

func newTestUART(t *testing.T, cfg UARTConfig) (*UART, *protocol.FifoBuffer, *protocol.FifoBuffer, *Device) {
	t.Helper()
	dev := NewSimDevice()
	for i := range dev.ports {
		livePort(dev.ports[i])
	}
	clk, err := SetupClocks(mustClaimRCC(t, dev))
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}
	pins := NewPinDriver(dev, clk)
	rx := protocol.NewFifoBuffer(64)
	tx := protocol.NewFifoBuffer(64)
	u, err := NewUART(dev, clk, 1, cfg, pins, rx, tx)
	if err != nil {
		t.Fatalf("NewUART failed: %v", err)
	}
	return u, rx, tx, dev
}

func TestUARTSetup(t *testing.T) {
	u, _, _, dev := newTestUART(t, UARTConfig{Baud: 115200})

	regs := dev.usarts[0]
	// USART1 hangs off the 144MHz APB2 bus.
	if got := regs.BRR.Get(); got != 144000000/115200 {
		t.Errorf("Expected baud divisor %d, got %d", 144000000/115200, got)
	}
	want := uint32(USART_CTLR1_UE | USART_CTLR1_RE | USART_CTLR1_TE | USART_CTLR1_RXNEIE)
	if got := regs.CTLR1.Get(); got != want {
		t.Errorf("Expected control word %#x, got %#x", want, got)
	}

	portA := dev.ports[core.PortA]
	if got := cfgNibble(portA, 9); got != 0xB {
		t.Errorf("Expected AF push-pull on TX, got %#x", got)
	}
	if got := cfgNibble(portA, 10); got != 0x8 {
		t.Errorf("Expected pulled input on RX, got %#x", got)
	}
	if portA.OUTDR.Get()&(1<<10) == 0 {
		t.Error("RX pull-up not selected")
	}
	_ = u
}

func TestUARTParityFraming(t *testing.T) {
	_, _, _, dev := newTestUART(t, UARTConfig{Baud: 1250000, ParityEven: true})

	ctlr1 := dev.usarts[0].CTLR1.Get()
	if ctlr1&USART_CTLR1_PCE == 0 || ctlr1&USART_CTLR1_M == 0 {
		t.Errorf("Expected 8E1 framing bits, got control word %#x", ctlr1)
	}
	if ctlr1&USART_CTLR1_PS != 0 {
		t.Errorf("Expected even parity, got control word %#x", ctlr1)
	}
	if got := dev.usarts[0].BRR.Get(); got != 144000000/1250000 {
		t.Errorf("Expected baud divisor %d, got %d", 144000000/1250000, got)
	}
}

func TestUARTReceiveInterrupt(t *testing.T) {
	u, rx, _, dev := newTestUART(t, UARTConfig{Baud: 115200})
	regs := dev.usarts[0]

	regs.DATAR.Set(0x42)
	regs.STATR.Set(USART_STATR_RXNE | USART_STATR_TXE)
	u.HandleIRQ()

	buf := make([]byte, 4)
	if n := rx.Read(buf); n != 1 || buf[0] != 0x42 {
		t.Errorf("Expected byte 0x42 in the receive queue, got %d bytes %#v", n, buf[:n])
	}

	// An overrun still delivers the byte sitting in the data register.
	regs.DATAR.Set(0x43)
	regs.STATR.Set(USART_STATR_ORE | USART_STATR_TXE)
	u.HandleIRQ()
	if n := rx.Read(buf); n != 1 || buf[0] != 0x43 {
		t.Errorf("Expected overrun byte 0x43, got %d bytes %#v", n, buf[:n])
	}
}

func TestUARTTransmitInterrupt(t *testing.T) {
	u, _, tx, dev := newTestUART(t, UARTConfig{Baud: 115200})
	regs := dev.usarts[0]

	tx.Write([]byte{0x10, 0x20})
	u.KickTX()
	if regs.CTLR1.Get()&USART_CTLR1_TXEIE == 0 {
		t.Fatal("KickTX did not enable the transmit-empty interrupt")
	}

	regs.STATR.Set(USART_STATR_TXE)
	u.HandleIRQ()
	if got := regs.DATAR.Get(); got != 0x10 {
		t.Errorf("Expected first byte 0x10 in data register, got %#x", got)
	}

	u.HandleIRQ()
	if got := regs.DATAR.Get(); got != 0x20 {
		t.Errorf("Expected second byte 0x20 in data register, got %#x", got)
	}

	// Queue drained: the next empty interrupt switches itself off.
	u.HandleIRQ()
	if regs.CTLR1.Get()&USART_CTLR1_TXEIE != 0 {
		t.Error("Transmit-empty interrupt still enabled with nothing to send")
	}
}

func TestUARTDriverEnable(t *testing.T) {
	de := core.PhysicalPin(core.PortA, 12)
	u, _, tx, dev := newTestUART(t, UARTConfig{Baud: 1250000, ParityEven: true, DEPin: de, HasDEPin: true})
	regs := dev.usarts[0]
	portA := dev.ports[core.PortA]

	if portA.OUTDR.Get()&(1<<12) != 0 {
		t.Error("DE pin not idle low after setup")
	}

	tx.Write([]byte{0x7F})
	u.KickTX()
	if portA.OUTDR.Get()&(1<<12) == 0 {
		t.Error("DE pin not raised for transmission")
	}

	regs.STATR.Set(USART_STATR_TXE)
	u.HandleIRQ()

	// Last byte handed over; the empty interrupt hands off to the
	// transmission-complete interrupt with DE still up.
	u.HandleIRQ()
	ctlr1 := regs.CTLR1.Get()
	if ctlr1&USART_CTLR1_TXEIE != 0 {
		t.Error("Transmit-empty interrupt still enabled after handoff")
	}
	if ctlr1&USART_CTLR1_TCIE == 0 {
		t.Error("Transmission-complete interrupt not armed")
	}
	if portA.OUTDR.Get()&(1<<12) == 0 {
		t.Error("DE pin dropped before the last frame finished")
	}

	regs.STATR.Set(USART_STATR_TC)
	u.HandleIRQ()
	if portA.OUTDR.Get()&(1<<12) != 0 {
		t.Error("DE pin not dropped after transmission complete")
	}
	if regs.CTLR1.Get()&USART_CTLR1_TCIE != 0 {
		t.Error("Transmission-complete interrupt still armed")
	}
}
