// ADC driver.
//
// Single polled conversions against ADC1. The converter is calibrated
// once at construction; each read selects the channel as rank one of a
// one-entry regular sequence, restarts the converter and polls for end
// of conversion.
package ch32

import (
	"fmt"

	"gomcu/core"
)

// Sample time field: 239.5 cycles, the slowest setting. Accuracy over
// speed for thermistor-class sources.
const adcSampleCycles = 0x7

// adcChannelForPin maps the analog-capable pins to their ADC channel.
type adcPinChannel struct {
	pin     core.PinHandle
	channel uint8
}

var adcPinTable = [...]adcPinChannel{
	{core.PhysicalPin(core.PortA, 0), 0},
	{core.PhysicalPin(core.PortA, 1), 1},
	{core.PhysicalPin(core.PortA, 2), 2},
	{core.PhysicalPin(core.PortA, 3), 3},
	{core.PhysicalPin(core.PortA, 4), 4},
	{core.PhysicalPin(core.PortA, 5), 5},
	{core.PhysicalPin(core.PortA, 6), 6},
	{core.PhysicalPin(core.PortA, 7), 7},
	{core.PhysicalPin(core.PortB, 0), 8},
	{core.PhysicalPin(core.PortB, 1), 9},
}

// ADC owns ADC1 after construction.
type ADC struct {
	regs *ADCRegs
	pins *PinDriver
	time core.TimeSource
}

// NewADC claims ADC1, powers it up and runs the calibration sequence.
func NewADC(dev *Device, clk *Clock, pins *PinDriver, ts core.TimeSource) (*ADC, error) {
	regs, err := dev.ClaimADC()
	if err != nil {
		return nil, err
	}
	if err := clk.EnablePeripheral(PeriphADC1); err != nil {
		return nil, err
	}

	a := &ADC{regs: regs, pins: pins, time: ts}

	SetBits(regs.CTLR2, ADC_CTLR2_ADON)

	deadline := ts.ReadTime() + core.TimerFromUS(transferDeadlineUS)
	SetBits(regs.CTLR2, ADC_CTLR2_RSTCAL)
	if err := a.waitClear(ADC_CTLR2_RSTCAL, deadline); err != nil {
		return nil, err
	}
	SetBits(regs.CTLR2, ADC_CTLR2_CAL)
	if err := a.waitClear(ADC_CTLR2_CAL, deadline); err != nil {
		return nil, err
	}

	// Slowest sample time on every channel.
	var samptr uint32
	for i := 0; i < 8; i++ {
		samptr |= adcSampleCycles << (i * 3)
	}
	regs.SAMPTR1.Set(samptr)
	regs.SAMPTR2.Set(samptr)

	return a, nil
}

func (a *ADC) waitClear(mask uint32, deadline uint32) error {
	for a.regs.CTLR2.Get()&mask != 0 {
		if !core.TimerIsBefore(a.time.ReadTime(), deadline) {
			return core.Unrecoverable("adc calibration stuck")
		}
	}
	return nil
}

// SetupChannel validates that a pin has an ADC channel, switches it to
// analog mode and returns the channel number.
func (a *ADC) SetupChannel(pin core.PinHandle) (uint8, error) {
	for i := range adcPinTable {
		e := &adcPinTable[i]
		if e.pin == pin {
			cfg := GPIOConfig(GPIO_MODE_INPUT, GPIO_CNF_ANALOG)
			if err := a.pins.SetupPeripheral(pin, cfg, 0); err != nil {
				return 0, err
			}
			return e.channel, nil
		}
	}
	return 0, fmt.Errorf("%s has no adc channel", pin)
}

// Read runs one conversion on a channel and returns the 12-bit result.
func (a *ADC) Read(channel uint8) (uint16, error) {
	if int(channel) >= len(adcPinTable) {
		return 0, fmt.Errorf("invalid adc channel %d", channel)
	}

	ClearBits(a.regs.STATR, ADC_STATR_EOC)
	a.regs.RSQR3.Set(uint32(channel))
	SetBits(a.regs.CTLR2, ADC_CTLR2_ADON)

	deadline := a.time.ReadTime() + core.TimerFromUS(transferDeadlineUS)
	for !HasBits(a.regs.STATR, ADC_STATR_EOC) {
		if !core.TimerIsBefore(a.time.ReadTime(), deadline) {
			return 0, core.Unrecoverable("adc conversion stuck")
		}
	}
	return uint16(a.regs.RDATAR.Get() & ADC_RDATAR_DATA_Msk), nil
}
