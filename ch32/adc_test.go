package ch32

import (
	"testing"

	"gomcu/core"
)

// adcSim completes calibration instantly and answers every started
// conversion with the sample registered for the selected channel.
type adcSim struct {
	regs    *ADCRegs
	samples [10]uint16
	started int
}

func attachADCSim(regs *ADCRegs) *adcSim {
	s := &adcSim{regs: regs}
	regs.CTLR2 = &echoReg{hook: func(v uint32) uint32 {
		// Calibration hardware finishes before the driver can poll.
		v &^= ADC_CTLR2_RSTCAL | ADC_CTLR2_CAL
		if v&ADC_CTLR2_ADON != 0 {
			ch := regs.RSQR3.Get() & 0x1F
			if ch < uint32(len(s.samples)) {
				regs.RDATAR.Set(uint32(s.samples[ch]))
			}
			SetBits(regs.STATR, ADC_STATR_EOC)
			s.started++
		}
		return v
	}}
	return s
}

func newTestADC(t *testing.T) (*ADC, *adcSim, *Device) {
	t.Helper()
	dev := NewSimDevice()
	sim := attachADCSim(dev.adc)
	clk, err := SetupClocks(mustClaimRCC(t, dev))
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}
	pins := NewPinDriver(dev, clk)
	a, err := NewADC(dev, clk, pins, &tickSource{step: 1})
	if err != nil {
		t.Fatalf("NewADC failed: %v", err)
	}
	return a, sim, dev
}

func TestADCCalibration(t *testing.T) {
	_, _, dev := newTestADC(t)

	if dev.adc.CTLR2.Get()&ADC_CTLR2_ADON == 0 {
		t.Error("Converter not powered on")
	}
	// Slowest sample time (239.5 cycles) on all channels: eight 3-bit
	// fields of 0x7.
	if got := dev.adc.SAMPTR1.Get(); got != 0xFFFFFF {
		t.Errorf("Expected sample time word 0xFFFFFF, got %#x", got)
	}
	if got := dev.adc.SAMPTR2.Get(); got != 0xFFFFFF {
		t.Errorf("Expected sample time word 0xFFFFFF, got %#x", got)
	}
}

func TestADCCalibrationStuck(t *testing.T) {
	dev := NewSimDevice()
	clk, err := SetupClocks(mustClaimRCC(t, dev))
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}
	pins := NewPinDriver(dev, clk)

	// Plain memory cells: RSTCAL never self-clears.
	_, err = NewADC(dev, clk, pins, &tickSource{step: 100})
	if err == nil {
		t.Fatal("Expected calibration to hit its deadline")
	}
	if !core.IsUnrecoverable(err) {
		t.Errorf("Expected unrecoverable error, got %v", err)
	}
}

func TestADCSetupChannel(t *testing.T) {
	a, _, dev := newTestADC(t)

	ch, err := a.SetupChannel(core.PhysicalPin(core.PortB, 1))
	if err != nil {
		t.Fatalf("SetupChannel failed: %v", err)
	}
	if ch != 9 {
		t.Errorf("Expected channel 9 for PB1, got %d", ch)
	}
	if got := cfgNibble(dev.ports[core.PortB], 1); got != 0x0 {
		t.Errorf("Expected analog config 0x0, got %#x", got)
	}

	if _, err := a.SetupChannel(core.PhysicalPin(core.PortB, 2)); err == nil {
		t.Error("Expected error for a pin without an adc channel")
	}
}

func TestADCRead(t *testing.T) {
	a, sim, _ := newTestADC(t)
	sim.samples[3] = 0x123
	sim.samples[8] = 0xABC

	ch, err := a.SetupChannel(core.PhysicalPin(core.PortA, 3))
	if err != nil {
		t.Fatalf("SetupChannel failed: %v", err)
	}
	v, err := a.Read(ch)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v != 0x123 {
		t.Errorf("Expected sample 0x123, got %#x", v)
	}

	v, err = a.Read(8)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v != 0xABC {
		t.Errorf("Expected sample 0xABC, got %#x", v)
	}

	if _, err := a.Read(16); err == nil {
		t.Error("Expected error for a channel beyond this part")
	}
}
