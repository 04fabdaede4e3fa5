// Hardware PWM over the timer output-compare channels.
//
// Each PWM-capable pin maps to a fixed (timer, channel) pair in its
// default (unremapped) routing. Setup claims the timer on first use,
// picks the smallest prescaler that fits the requested cycle into the
// 16-bit reload register, and switches the channel to PWM mode one.
package ch32

import (
	"fmt"

	"gomcu/core"
)

// Timer counters and compare registers are 16 bits wide.
const pwmMaxPeriod = 0x10000

type pwmPinInfo struct {
	pin     core.PinHandle
	timer   int // hardware timer number 1..4
	channel int // output compare channel 1..4
}

// Default-routing PWM map for the pins bonded out on this board family.
var pwmPinTable = [...]pwmPinInfo{
	{core.PhysicalPin(core.PortA, 8), 1, 1},
	{core.PhysicalPin(core.PortA, 9), 1, 2},
	{core.PhysicalPin(core.PortA, 10), 1, 3},
	{core.PhysicalPin(core.PortA, 11), 1, 4},
	{core.PhysicalPin(core.PortA, 6), 3, 1},
	{core.PhysicalPin(core.PortA, 7), 3, 2},
	{core.PhysicalPin(core.PortB, 0), 3, 3},
	{core.PhysicalPin(core.PortB, 1), 3, 4},
	{core.PhysicalPin(core.PortB, 6), 4, 1},
	{core.PhysicalPin(core.PortB, 7), 4, 2},
	{core.PhysicalPin(core.PortB, 8), 4, 3},
	{core.PhysicalPin(core.PortB, 9), 4, 4},
}

var pwmTimerPeriph = map[int]PeriphID{
	1: PeriphTIM1,
	3: PeriphTIM3,
	4: PeriphTIM4,
}

// PWMChannel is the handle for one configured output.
type PWMChannel struct {
	tim     *TimerRegs
	channel int
	period  uint32
}

// CycleTicks returns the actual cycle length in timer ticks after
// prescaling, which may round below the requested cycle.
func (c PWMChannel) CycleTicks() uint32 { return c.period }

// PWM hands out output-compare channels on TIM1/TIM3/TIM4.
type PWM struct {
	dev    *Device
	clk    *Clock
	pins   *PinDriver
	timers map[int]*TimerRegs
}

func NewPWM(dev *Device, clk *Clock, pins *PinDriver) *PWM {
	return &PWM{dev: dev, clk: clk, pins: pins, timers: make(map[int]*TimerRegs)}
}

func (p *PWM) timerRegs(n int) (*TimerRegs, error) {
	if tim, ok := p.timers[n]; ok {
		return tim, nil
	}
	periph, ok := pwmTimerPeriph[n]
	if !ok {
		return nil, fmt.Errorf("TIM%d not usable for pwm", n)
	}
	tim, err := p.dev.ClaimTimer(n)
	if err != nil {
		return nil, err
	}
	if err := p.clk.EnablePeripheral(periph); err != nil {
		return nil, err
	}
	p.timers[n] = tim
	return tim, nil
}

// Setup configures a pin for PWM with the requested cycle length in timer
// input clock ticks. The duty starts at zero.
func (p *PWM) Setup(pin core.PinHandle, cycleTicks uint32) (PWMChannel, error) {
	var info *pwmPinInfo
	for i := range pwmPinTable {
		if pwmPinTable[i].pin == pin {
			info = &pwmPinTable[i]
			break
		}
	}
	if info == nil {
		return PWMChannel{}, fmt.Errorf("%s has no pwm channel", pin)
	}
	if cycleTicks == 0 {
		return PWMChannel{}, fmt.Errorf("pwm cycle must be nonzero")
	}

	tim, err := p.timerRegs(info.timer)
	if err != nil {
		return PWMChannel{}, err
	}

	af := GPIOConfig(GPIO_MODE_OUTPUT_50MHZ, GPIO_CNF_AF_PUSHPULL)
	if err := p.pins.SetupPeripheral(pin, af, 0); err != nil {
		return PWMChannel{}, err
	}

	// Smallest prescaler that fits the cycle in 16 bits.
	prescale := (cycleTicks + pwmMaxPeriod - 1) / pwmMaxPeriod
	period := cycleTicks / prescale

	tim.PSC.Set(prescale - 1)
	tim.ATRLR.Set(period - 1)

	// PWM mode 1 with preload on the channel's CCMR half-register.
	ccmr := tim.CHCTLR1
	if info.channel > 2 {
		ccmr = tim.CHCTLR2
	}
	shift := uint(((info.channel - 1) & 1) * 8)
	v := ccmr.Get()
	v &^= 0xFF << shift
	v |= (TIM_CCMR_OCM_PWM1 | TIM_CCMR_OCPE) << shift
	ccmr.Set(v)

	SetBits(tim.CCER, TIM_CCER_CC1E<<uint((info.channel-1)*4))

	if info.timer == 1 {
		// The advanced timer gates all outputs behind the main enable.
		SetBits(tim.BDTR, TIM_BDTR_MOE)
	}

	tim.SWEVGR.Set(TIM_SWEVGR_UG)
	SetBits(tim.CTLR1, TIM_CTLR1_ARPE|TIM_CTLR1_CEN)

	ch := PWMChannel{tim: tim, channel: info.channel, period: period}
	ch.SetDuty(0)
	return ch, nil
}

// SetDuty sets the on time of a channel in timer ticks, clamped to the
// cycle length.
func (c PWMChannel) SetDuty(onTicks uint32) {
	if c.tim == nil {
		return
	}
	if onTicks > c.period {
		onTicks = c.period
	}
	switch c.channel {
	case 1:
		c.tim.CH1CVR.Set(onTicks)
	case 2:
		c.tim.CH2CVR.Set(onTicks)
	case 3:
		c.tim.CH3CVR.Set(onTicks)
	case 4:
		c.tim.CH4CVR.Set(onTicks)
	}
}
