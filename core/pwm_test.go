package core

import "testing"

func TestConfigPWMOut(t *testing.T) {
	clearObjects(t)
	drv := &fakePWMDriver{}
	SetPWMDriver(drv)
	InitPWMCommands()

	// oid=3 pin=PA6(6) cycle_ticks=14400 value=4800 default=0 max_duration=0
	data := encodeArgs(3, 6, 14400, 4800, 0, 0)
	if err := handleConfigPWMOut(&data); err != nil {
		t.Fatalf("config_pwm_out failed: %v", err)
	}

	pwm := hardwarePWMs[3]
	if pwm == nil {
		t.Fatal("HardwarePWM not created")
	}
	if drv.out.cycle != 14400 {
		t.Errorf("Cycle ticks %d, want 14400", drv.out.cycle)
	}
	if len(drv.out.duties) != 1 || drv.out.duties[0] != 4800 {
		t.Errorf("Initial duty not applied: %v", drv.out.duties)
	}
}

func TestSetPWMOut(t *testing.T) {
	clearObjects(t)
	drv := &fakePWMDriver{}
	SetPWMDriver(drv)

	data := encodeArgs(3, 6, 14400, 0, 0, 0)
	if err := handleConfigPWMOut(&data); err != nil {
		t.Fatal(err)
	}

	data = encodeArgs(3, 7200)
	if err := handleSetPWMOut(&data); err != nil {
		t.Fatal(err)
	}
	if last := drv.out.duties[len(drv.out.duties)-1]; last != 7200 {
		t.Errorf("Duty %d, want 7200", last)
	}
}

func TestQueuePWMOutMaxDuration(t *testing.T) {
	clearObjects(t)
	drv := &fakePWMDriver{}
	SetPWMDriver(drv)

	// default duty 0, max_duration 1000
	data := encodeArgs(3, 6, 14400, 0, 0, 1000)
	if err := handleConfigPWMOut(&data); err != nil {
		t.Fatal(err)
	}

	data = encodeArgs(3, 5000, 7200)
	if err := handleQueuePWMOut(&data); err != nil {
		t.Fatal(err)
	}

	pwm := hardwarePWMs[3]
	if pwm.Flags&PWM_CHECK_END == 0 || pwm.EndTime != 6000 {
		t.Fatalf("Watchdog not armed: flags=%x end=%d", pwm.Flags, pwm.EndTime)
	}

	if res := pwm.Timer.Handler(&pwm.Timer); res != SF_RESCHEDULE {
		t.Fatal("Load with watchdog must reschedule")
	}
	if last := drv.out.duties[len(drv.out.duties)-1]; last != 7200 {
		t.Errorf("Scheduled duty %d, want 7200", last)
	}

	if res := pwm.Timer.Handler(&pwm.Timer); res != SF_DONE {
		t.Fatal("End event must finish")
	}
	if last := drv.out.duties[len(drv.out.duties)-1]; last != 0 {
		t.Errorf("Watchdog duty %d, want default 0", last)
	}
}

func TestShutdownAllHardwarePWM(t *testing.T) {
	clearObjects(t)
	drv := &fakePWMDriver{}
	SetPWMDriver(drv)

	// default duty 1200
	data := encodeArgs(3, 6, 14400, 7200, 1200, 0)
	if err := handleConfigPWMOut(&data); err != nil {
		t.Fatal(err)
	}

	ShutdownAllHardwarePWM()

	if last := drv.out.duties[len(drv.out.duties)-1]; last != 1200 {
		t.Errorf("Shutdown duty %d, want default 1200", last)
	}
}
