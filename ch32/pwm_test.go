package ch32

import (
	"testing"

	"gomcu/core"
)

func newTestPWM(t *testing.T) (*PWM, *Device) {
	t.Helper()
	dev := NewSimDevice()
	clk, err := SetupClocks(mustClaimRCC(t, dev))
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}
	return NewPWM(dev, clk, NewPinDriver(dev, clk)), dev
}

func TestPWMSetup(t *testing.T) {
	p, dev := newTestPWM(t)

	// PB8 is TIM4 channel 3. A 1kHz cycle at the 144MHz timer clock needs
	// 144000 ticks, which does not fit 16 bits: prescale 3, period 48000.
	ch, err := p.Setup(core.PhysicalPin(core.PortB, 8), 144000)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if ch.CycleTicks() != 48000 {
		t.Errorf("Expected cycle of 48000 ticks, got %d", ch.CycleTicks())
	}

	tim := dev.tims[3]
	if got := tim.PSC.Get(); got != 2 {
		t.Errorf("Expected prescaler 2, got %d", got)
	}
	if got := tim.ATRLR.Get(); got != 47999 {
		t.Errorf("Expected reload 47999, got %d", got)
	}

	// Channel 3 lives in the low byte of the second capture/compare mode
	// register.
	if got := tim.CHCTLR2.Get() & 0xFF; got != TIM_CCMR_OCM_PWM1|TIM_CCMR_OCPE {
		t.Errorf("Expected PWM mode one with preload, got %#x", got)
	}
	if tim.CCER.Get()&(TIM_CCER_CC1E<<8) == 0 {
		t.Error("Channel 3 output not enabled")
	}
	if got := tim.CTLR1.Get(); got&(TIM_CTLR1_CEN|TIM_CTLR1_ARPE) != TIM_CTLR1_CEN|TIM_CTLR1_ARPE {
		t.Errorf("Timer not running with preload, control word %#x", got)
	}
	if got := cfgNibble(dev.ports[core.PortB], 8); got != 0xB {
		t.Errorf("Expected AF push-pull on the output pin, got %#x", got)
	}

	// Duty starts at zero.
	if got := tim.CH3CVR.Get(); got != 0 {
		t.Errorf("Expected zero initial duty, got %d", got)
	}
}

func TestPWMSetupAdvancedTimer(t *testing.T) {
	p, dev := newTestPWM(t)

	// PA8 is TIM1 channel 1; the advanced timer needs the main output
	// enable on top of the channel enable.
	if _, err := p.Setup(core.PhysicalPin(core.PortA, 8), 1000); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	tim := dev.tims[0]
	if tim.BDTR.Get()&TIM_BDTR_MOE == 0 {
		t.Error("Main output enable not set on TIM1")
	}
	if got := tim.PSC.Get(); got != 0 {
		t.Errorf("Expected no prescaling for a short cycle, got %d", got)
	}
	if got := tim.ATRLR.Get(); got != 999 {
		t.Errorf("Expected reload 999, got %d", got)
	}
}

func TestPWMSetupSharedTimer(t *testing.T) {
	p, _ := newTestPWM(t)

	// PA6 and PA7 are channels 1 and 2 of the same timer; the second setup
	// must reuse the claim.
	if _, err := p.Setup(core.PhysicalPin(core.PortA, 6), 1000); err != nil {
		t.Fatalf("First setup failed: %v", err)
	}
	if _, err := p.Setup(core.PhysicalPin(core.PortA, 7), 1000); err != nil {
		t.Fatalf("Second setup on the same timer failed: %v", err)
	}
}

func TestPWMSetupErrors(t *testing.T) {
	p, _ := newTestPWM(t)

	if _, err := p.Setup(core.PhysicalPin(core.PortC, 13), 1000); err == nil {
		t.Error("Expected error for a pin without a pwm channel")
	}
	if _, err := p.Setup(core.PhysicalPin(core.PortA, 8), 0); err == nil {
		t.Error("Expected error for a zero cycle")
	}
}

func TestPWMSetDutyClamps(t *testing.T) {
	p, dev := newTestPWM(t)

	ch, err := p.Setup(core.PhysicalPin(core.PortB, 6), 1000)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	tim := dev.tims[3]

	ch.SetDuty(250)
	if got := tim.CH1CVR.Get(); got != 250 {
		t.Errorf("Expected duty 250, got %d", got)
	}
	ch.SetDuty(5000)
	if got := tim.CH1CVR.Get(); got != 1000 {
		t.Errorf("Expected duty clamped to 1000, got %d", got)
	}

	// The zero handle is inert.
	var none PWMChannel
	none.SetDuty(100)
}
