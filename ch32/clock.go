// Clock tree bring-up and peripheral clock services.
//
// The part boots on the 8MHz internal RC. Bring-up switches to the 12MHz
// crystal through the PLL at x12 for a 144MHz system clock, with APB1
// divided by two (the I2C and low-speed bus limit) and APB2 undivided.
package ch32

import (
	"fmt"

	"gomcu/core"
)

// Crystal and derived frequencies.
const (
	FreqHSE = 12000000
	FreqSys = 144000000
)

// PLL multiplier applied to the crystal.
const pllMul = 12

// Iteration bound for oscillator/PLL/switch readiness polls. The loops
// normally finish in a few hundred spins; blowing through this means the
// oscillator is dead and the part cannot run at spec.
const readyLoopLimit = 1 << 20

// PeriphID names a clock-gated peripheral.
type PeriphID uint8

const (
	PeriphAFIO PeriphID = iota
	PeriphGPIOA
	PeriphGPIOB
	PeriphGPIOC
	PeriphGPIOD
	PeriphGPIOE
	PeriphADC1
	PeriphTIM1
	PeriphSPI1
	PeriphUSART1
	PeriphTIM2
	PeriphTIM3
	PeriphTIM4
	PeriphSPI2
	PeriphUSART2
	PeriphUSART3
	PeriphI2C1
	PeriphI2C2
)

type periphGate struct {
	apb1 bool
	bit  uint32
}

// Gate bit per peripheral. Indexed by PeriphID; lookups validate the id
// before touching the table.
var periphGates = [...]periphGate{
	PeriphAFIO:   {false, RCC_APB2_AFIO},
	PeriphGPIOA:  {false, RCC_APB2_IOPA},
	PeriphGPIOB:  {false, RCC_APB2_IOPB},
	PeriphGPIOC:  {false, RCC_APB2_IOPC},
	PeriphGPIOD:  {false, RCC_APB2_IOPD},
	PeriphGPIOE:  {false, RCC_APB2_IOPE},
	PeriphADC1:   {false, RCC_APB2_ADC1},
	PeriphTIM1:   {false, RCC_APB2_TIM1},
	PeriphSPI1:   {false, RCC_APB2_SPI1},
	PeriphUSART1: {false, RCC_APB2_USART1},
	PeriphTIM2:   {true, RCC_APB1_TIM2},
	PeriphTIM3:   {true, RCC_APB1_TIM3},
	PeriphTIM4:   {true, RCC_APB1_TIM4},
	PeriphSPI2:   {true, RCC_APB1_SPI2},
	PeriphUSART2: {true, RCC_APB1_USART2},
	PeriphUSART3: {true, RCC_APB1_USART3},
	PeriphI2C1:   {true, RCC_APB1_I2C1},
	PeriphI2C2:   {true, RCC_APB1_I2C2},
}

// gpioPeriph maps a port to its clock gate id.
func gpioPeriph(p core.PortID) (PeriphID, error) {
	if int(p) >= NumPorts {
		return 0, fmt.Errorf("no GPIO port %d on this part", p)
	}
	return PeriphGPIOA + PeriphID(p), nil
}

// Clock owns the RCC block after bring-up and is the only path to the
// clock gates and bus frequencies.
type Clock struct {
	rcc *RCCRegs
}

func waitReady(r Reg, mask uint32, what string) error {
	for i := 0; i < readyLoopLimit; i++ {
		if r.Get()&mask == mask {
			return nil
		}
	}
	return core.Unrecoverable(what + " not ready")
}

// waitStopped polls a status flag until it deasserts, bounded like
// waitReady.
func waitStopped(r Reg, mask uint32, what string) error {
	for i := 0; i < readyLoopLimit; i++ {
		if r.Get()&mask == 0 {
			return nil
		}
	}
	return core.Unrecoverable(what + " not stopped")
}

// SetupClocks runs the bring-up sequence and returns the clock services.
// The returned error is unrecoverable when an oscillator or the PLL never
// reports ready, or when the switch to the PLL is not confirmed.
func SetupClocks(rcc *RCCRegs) (*Clock, error) {
	SetBits(rcc.CTLR, RCC_CTLR_HSEON)
	if err := waitReady(rcc.CTLR, RCC_CTLR_HSERDY, "HSE"); err != nil {
		return nil, err
	}

	// A warm restart can land here with the PLL still running. Its source
	// and multiplier fields may only change while the PLL is off.
	ClearBits(rcc.CTLR, RCC_CTLR_PLLON)
	if err := waitStopped(rcc.CTLR, RCC_CTLR_PLLRDY, "PLL"); err != nil {
		return nil, err
	}

	cfgr0 := rcc.CFGR0.Get()
	cfgr0 &^= RCC_CFGR0_PLLSRC_HSE | RCC_CFGR0_PLLXTPRE | RCC_CFGR0_PLLMULL_Msk | RCC_CFGR0_PPRE1_Msk
	cfgr0 |= RCC_CFGR0_PLLSRC_HSE | RCC_CFGR0_PLLMULL(pllMul) | RCC_CFGR0_PPRE1_DIV2
	rcc.CFGR0.Set(cfgr0)

	SetBits(rcc.CTLR, RCC_CTLR_PLLON)
	if err := waitReady(rcc.CTLR, RCC_CTLR_PLLRDY, "PLL"); err != nil {
		return nil, err
	}

	cfgr0 = rcc.CFGR0.Get()
	cfgr0 &^= RCC_CFGR0_SW_Msk
	cfgr0 |= RCC_CFGR0_SW_PLL
	rcc.CFGR0.Set(cfgr0)

	for i := 0; ; i++ {
		if rcc.CFGR0.Get()&RCC_CFGR0_SWS_Msk == RCC_CFGR0_SWS_PLL {
			break
		}
		if i >= readyLoopLimit {
			return nil, core.Unrecoverable("sysclk switch to PLL not confirmed")
		}
	}

	return &Clock{rcc: rcc}, nil
}

// SysFreq returns the system clock frequency.
func (c *Clock) SysFreq() uint32 { return FreqSys }

// APB prescaler decode table: 0xx undivided, then /2 /4 /8 /16.
var apbDividers = [8]uint32{1, 1, 1, 1, 2, 4, 8, 16}

// PCLK1 returns the APB1 bus frequency as actually programmed.
func (c *Clock) PCLK1() uint32 {
	div := apbDividers[(c.rcc.CFGR0.Get()>>8)&0x7]
	return FreqSys / div
}

// PCLK2 returns the APB2 bus frequency as actually programmed.
func (c *Clock) PCLK2() uint32 {
	div := apbDividers[(c.rcc.CFGR0.Get()>>11)&0x7]
	return FreqSys / div
}

// TimerInputFreq returns the clock feeding the timer prescalers. Timer
// clocks double when their APB bus is divided, which lands both APB1 and
// APB2 timers back at the system frequency with this configuration.
func (c *Clock) TimerInputFreq() uint32 { return FreqSys }

// EnablePeripheral opens the clock gate of a peripheral. Unknown ids are
// rejected. Enabling an already-enabled gate is harmless.
func (c *Clock) EnablePeripheral(id PeriphID) error {
	if int(id) >= len(periphGates) {
		return fmt.Errorf("unknown peripheral id %d", id)
	}
	g := periphGates[id]
	if g.apb1 {
		SetBits(c.rcc.APB1PCENR, g.bit)
	} else {
		SetBits(c.rcc.APB2PCENR, g.bit)
	}
	return nil
}

// EnablePort opens the clock gate of a GPIO port.
func (c *Clock) EnablePort(p core.PortID) error {
	id, err := gpioPeriph(p)
	if err != nil {
		return err
	}
	return c.EnablePeripheral(id)
}

// PeripheralFreq returns the bus frequency feeding a peripheral.
func (c *Clock) PeripheralFreq(id PeriphID) (uint32, error) {
	if int(id) >= len(periphGates) {
		return 0, fmt.Errorf("unknown peripheral id %d", id)
	}
	if periphGates[id].apb1 {
		return c.PCLK1(), nil
	}
	return c.PCLK2(), nil
}
