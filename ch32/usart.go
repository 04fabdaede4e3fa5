// USART driver.
//
// Interrupt driven on both sides: the receive interrupt pushes bytes into
// a queue owned by the transport, the transmit-empty interrupt pulls the
// next byte from its queue or switches itself off when nothing is left.
// Optional RS-485 support raises a driver-enable pin for the duration of
// a transmission and drops it from the transmission-complete interrupt.
package ch32

import (
	"fmt"

	"gomcu/core"
)

// RxSink receives bytes pushed from the receive interrupt. A full sink
// drops the byte; the link layer recovers through its own framing.
type RxSink interface {
	Write(data []byte) int
}

// TxSource supplies bytes to the transmit interrupt.
type TxSource interface {
	Read(data []byte) int
	IsEmpty() bool
}

type usartBusInfo struct {
	instance int
	periph   PeriphID
	tx       core.PinHandle
	rx       core.PinHandle
}

var usartBusTable = [...]usartBusInfo{
	{1, PeriphUSART1, core.PhysicalPin(core.PortA, 9), core.PhysicalPin(core.PortA, 10)},
	{2, PeriphUSART2, core.PhysicalPin(core.PortA, 2), core.PhysicalPin(core.PortA, 3)},
	{3, PeriphUSART3, core.PhysicalPin(core.PortB, 10), core.PhysicalPin(core.PortB, 11)},
}

// UARTConfig selects the line parameters of one USART.
type UARTConfig struct {
	Baud uint32
	// ParityEven switches the link to 8E1 (9-bit word with even parity),
	// the framing of the printer-side RS-485 bus. Default is 8N1.
	ParityEven bool
	// DEPin, when set, is driven high across every transmission. Used for
	// the RS-485 transceiver's driver-enable input.
	DEPin    core.PinHandle
	HasDEPin bool
}

// UART is one configured USART instance.
type UART struct {
	regs *USARTRegs
	pins *PinDriver
	rx   RxSink
	tx   TxSource

	// Control word with the interrupt enables at rest.
	baseCtlr1 uint32
	de        core.PinHandle
	hasDE     bool
	scratch   [1]byte
}

// NewUART claims a USART (n is the hardware number, 1..3), configures its
// pins and line parameters and leaves it running with the receive
// interrupt enabled.
func NewUART(dev *Device, clk *Clock, n int, cfg UARTConfig, pins *PinDriver, rx RxSink, tx TxSource) (*UART, error) {
	if n < 1 || n > len(usartBusTable) {
		return nil, fmt.Errorf("no USART%d on this part", n)
	}
	if cfg.Baud == 0 {
		return nil, fmt.Errorf("USART%d: baud rate not set", n)
	}
	info := &usartBusTable[n-1]

	regs, err := dev.ClaimUSART(info.instance)
	if err != nil {
		return nil, err
	}
	if err := clk.EnablePeripheral(info.periph); err != nil {
		return nil, err
	}

	if err := pins.SetupPeripheral(info.tx, GPIOConfig(GPIO_MODE_OUTPUT_50MHZ, GPIO_CNF_AF_PUSHPULL), 0); err != nil {
		return nil, err
	}
	if err := pins.SetupInput(info.rx, 1); err != nil {
		return nil, err
	}

	u := &UART{regs: regs, pins: pins, rx: rx, tx: tx}

	if cfg.HasDEPin {
		if err := pins.SetupOutput(cfg.DEPin, false); err != nil {
			return nil, err
		}
		u.de = cfg.DEPin
		u.hasDE = true
	}

	pclk, err := clk.PeripheralFreq(info.periph)
	if err != nil {
		return nil, err
	}
	regs.BRR.Set(pclk / cfg.Baud)

	u.baseCtlr1 = USART_CTLR1_UE | USART_CTLR1_RE | USART_CTLR1_TE | USART_CTLR1_RXNEIE
	if cfg.ParityEven {
		// Even parity in a 9-bit frame keeps 8 data bits on the wire.
		u.baseCtlr1 |= USART_CTLR1_PCE | USART_CTLR1_M
	}
	regs.CTLR1.Set(u.baseCtlr1)
	return u, nil
}

// HandleIRQ services the USART interrupt. Runs with interrupts already
// masked; everything here must stay allocation free.
func (u *UART) HandleIRQ() {
	statr := u.regs.STATR.Get()

	// An overrun still leaves the last received byte in the data register;
	// reading it clears both flags. The lost byte surfaces as a framing
	// error one layer up.
	if statr&(USART_STATR_RXNE|USART_STATR_ORE) != 0 {
		u.scratch[0] = byte(u.regs.DATAR.Get())
		u.rx.Write(u.scratch[:])
	}

	ctlr1 := u.regs.CTLR1.Get()

	if statr&USART_STATR_TXE != 0 && ctlr1&USART_CTLR1_TXEIE != 0 {
		if u.tx.Read(u.scratch[:]) == 1 {
			u.regs.DATAR.Set(uint32(u.scratch[0]))
		} else if u.hasDE {
			// Out of data: stop the empty interrupt but keep DE up until
			// the last frame has left the shift register.
			u.regs.CTLR1.Set(u.baseCtlr1 | USART_CTLR1_TCIE)
		} else {
			u.regs.CTLR1.Set(u.baseCtlr1)
		}
		return
	}

	if statr&USART_STATR_TC != 0 && ctlr1&USART_CTLR1_TCIE != 0 {
		ClearBits(u.regs.STATR, USART_STATR_TC)
		if u.tx.IsEmpty() {
			u.regs.CTLR1.Set(u.baseCtlr1)
			if u.hasDE {
				u.pins.Write(u.de, false)
			}
		}
	}
}

// KickTX starts transmission of queued bytes. Safe to call with nothing
// queued or with a transmission already running.
func (u *UART) KickTX() {
	if u.tx.IsEmpty() {
		return
	}
	state := irqSave()
	if u.hasDE {
		u.pins.Write(u.de, true)
	}
	SetBits(u.regs.CTLR1, USART_CTLR1_TXEIE)
	irqRestore(state)
}
