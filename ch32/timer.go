package ch32

// TickFreq is the system timebase rate. TIM2 is prescaled from the timer
// input clock down to one tick per microsecond.
const TickFreq = 1000000

// kickTicks is how far ahead an immediate wakeup is scheduled.
const kickTicks = 50

// SysTimer runs the event timebase on TIM2. Time is kept as timerBase plus
// the live counter; every reschedule folds the counter back into timerBase
// so the 16-bit hardware counter never has to wrap on its own.
type SysTimer struct {
	tim       *TimerRegs
	timerBase uint32
	dispatch  func(now uint32) uint32
}

// NewSysTimer claims TIM2, starts it at the tick rate and schedules the
// first wakeup. dispatch is called from the update interrupt with the
// current time and returns the next wake time.
func NewSysTimer(dev *Device, clk *Clock, dispatch func(now uint32) uint32) (*SysTimer, error) {
	tim, err := dev.ClaimTimer(2)
	if err != nil {
		return nil, err
	}
	if err := clk.EnablePeripheral(PeriphTIM2); err != nil {
		return nil, err
	}

	t := &SysTimer{tim: tim, dispatch: dispatch}

	state := irqSave()
	defer irqRestore(state)

	tim.PSC.Set(clk.TimerInputFreq()/TickFreq - 1)
	tim.ATRLR.Set(1000)
	tim.CNT.Set(0)
	tim.DMAINTENR.Set(TIM_DMAINTENR_UIE)
	tim.CTLR1.Set(TIM_CTLR1_CEN)

	t.timerBase = 0
	t.Kick()
	return t, nil
}

// ReadTime returns the current time in ticks.
func (t *SysTimer) ReadTime() uint32 {
	return t.timerBase + t.tim.CNT.Get()
}

// scheduleNext arms the update interrupt for the given wake time. Times
// already in the past (or closer than the reload latency) are pulled to a
// minimum of two ticks out.
func (t *SysTimer) scheduleNext(next uint32) {
	now := t.ReadTime()
	diff := int32(next - now)
	if diff < 2 {
		diff = 2
	}
	t.timerBase = now
	t.tim.ATRLR.Set(uint32(diff))
	t.tim.CNT.Set(0)
	t.tim.SWEVGR.Set(TIM_SWEVGR_UG)
}

// Kick forces a wakeup shortly after now, so newly scheduled events get
// picked up without waiting for the previously armed deadline.
func (t *SysTimer) Kick() {
	t.scheduleNext(t.ReadTime() + kickTicks)
}

// HandleIRQ services the TIM2 update interrupt: fold the elapsed period
// into the timebase, run due events and arm the next deadline.
func (t *SysTimer) HandleIRQ() {
	t.tim.INTFR.Set(^uint32(TIM_INTFR_UIF))
	t.timerBase += t.tim.ATRLR.Get()

	state := irqSave()
	next := t.dispatch(t.ReadTime())
	t.scheduleNext(next)
	irqRestore(state)
}

// DelayUS busy-waits for the given number of microseconds.
func (t *SysTimer) DelayUS(usecs uint32) {
	end := t.ReadTime() + usecs
	for int32(t.ReadTime()-end) < 0 {
	}
}
