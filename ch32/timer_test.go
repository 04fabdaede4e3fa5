package ch32

import "testing"

func newTestTimer(t *testing.T, dispatch func(uint32) uint32) (*SysTimer, *Device) {
	t.Helper()
	dev := NewSimDevice()
	clk, err := SetupClocks(mustClaimRCC(t, dev))
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}
	st, err := NewSysTimer(dev, clk, dispatch)
	if err != nil {
		t.Fatalf("NewSysTimer failed: %v", err)
	}
	return st, dev
}

func mustClaimRCC(t *testing.T, dev *Device) *RCCRegs {
	t.Helper()
	rcc, err := dev.ClaimRCC()
	if err != nil {
		t.Fatalf("ClaimRCC failed: %v", err)
	}
	liveRCC(rcc)
	return rcc
}

func TestSysTimerInit(t *testing.T) {
	st, _ := newTestTimer(t, func(now uint32) uint32 { return now + 1000 })

	if got := st.tim.PSC.Get(); got != 143 {
		t.Errorf("Expected prescaler 143 for a 1MHz tick, got %d", got)
	}
	if st.tim.DMAINTENR.Get()&TIM_DMAINTENR_UIE == 0 {
		t.Error("Update interrupt not enabled")
	}
	if st.tim.CTLR1.Get()&TIM_CTLR1_CEN == 0 {
		t.Error("Counter not running")
	}
	// Init ends with a kick.
	if got := st.tim.ATRLR.Get(); got != kickTicks {
		t.Errorf("Expected first deadline %d ticks out, got %d", kickTicks, got)
	}
}

func TestSysTimerScheduleClampsPast(t *testing.T) {
	st, _ := newTestTimer(t, func(now uint32) uint32 { return now + 1000 })

	// A wake time at or before now still arms a real deadline.
	st.scheduleNext(st.ReadTime())
	if got := st.tim.ATRLR.Get(); got != 2 {
		t.Errorf("Expected minimum deadline of 2 ticks, got %d", got)
	}
	if st.tim.SWEVGR.Get()&TIM_SWEVGR_UG == 0 {
		t.Error("Reload not forced after reschedule")
	}
}

func TestSysTimerIRQAdvancesTime(t *testing.T) {
	var dispatched []uint32
	st, _ := newTestTimer(t, func(now uint32) uint32 {
		dispatched = append(dispatched, now)
		return now + 100
	})

	// The simulated counter stays at zero, so time only advances by the
	// armed period on each interrupt.
	st.HandleIRQ()
	if got := st.ReadTime(); got != kickTicks {
		t.Errorf("Expected time %d after first interrupt, got %d", kickTicks, got)
	}
	if len(dispatched) != 1 || dispatched[0] != kickTicks {
		t.Errorf("Dispatch saw wrong time: %v", dispatched)
	}
	if got := st.tim.ATRLR.Get(); got != 100 {
		t.Errorf("Expected next deadline 100 ticks out, got %d", got)
	}

	st.HandleIRQ()
	if got := st.ReadTime(); got != kickTicks+100 {
		t.Errorf("Expected time %d after second interrupt, got %d", kickTicks+100, got)
	}
}

func TestSysTimerClaimsTIM2Once(t *testing.T) {
	_, dev := newTestTimer(t, func(now uint32) uint32 { return now + 1000 })

	if _, err := dev.ClaimTimer(2); err == nil {
		t.Error("Expected second TIM2 claim to fail")
	}
}
