// Trigger synchronization implementing Klipper's trsync protocol. A
// trsync fans one trigger event out to registered callbacks and keeps
// the host informed with periodic state reports until it fires or its
// timeout expires.
package core

import (
	"gomcu/protocol"
)

// TriggerSync flags.
const (
	TSF_CAN_TRIGGER = 1 << 0
	TSF_TRIGGERED   = 1 << 1
)

// TriggerSignal is one callback registered with a TriggerSync.
type TriggerSignal struct {
	Callback func(reason uint8)
	Next     *TriggerSignal
}

// TriggerSync coordinates switch triggers with host-side motion.
type TriggerSync struct {
	OID           uint8
	Flags         uint8
	TriggerReason uint8
	ExpireReason  uint8
	ReportTicks   uint32
	ReportTimer   Timer
	ExpireTimer   Timer
	Signals       *TriggerSignal
}

var triggerSyncs = make(map[uint8]*TriggerSync)

// InitTriggerSyncCommands registers the trsync command family.
func InitTriggerSyncCommands() {
	RegisterCommand("trsync_start", "oid=%c report_clock=%u report_ticks=%u expire_reason=%c", handleTriggerSyncStart)
	RegisterCommand("trsync_set_timeout", "oid=%c clock=%u", handleTriggerSyncSetTimeout)
	RegisterCommand("trsync_trigger", "oid=%c reason=%c", handleTriggerSyncTrigger)
	RegisterResponse("trsync_state", "oid=%c can_trigger=%c trigger_reason=%c clock=%u")
}

func handleTriggerSyncStart(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	reportClock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	reportTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	expireReason, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	ts, exists := triggerSyncs[uint8(oid)]
	if !exists {
		ts = &TriggerSync{OID: uint8(oid)}
		triggerSyncs[uint8(oid)] = ts
	}

	ts.Flags = TSF_CAN_TRIGGER
	ts.TriggerReason = 0
	ts.ExpireReason = uint8(expireReason)
	ts.ReportTicks = reportTicks

	if reportTicks > 0 {
		ts.ReportTimer.Next = nil
		ts.ReportTimer.WakeTime = reportClock
		ts.ReportTimer.Handler = ts.reportEvent
		ScheduleTimer(&ts.ReportTimer)
	}
	return nil
}

func handleTriggerSyncSetTimeout(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	ts, exists := triggerSyncs[uint8(oid)]
	if !exists {
		return nil
	}

	ts.ExpireTimer.Next = nil
	ts.ExpireTimer.WakeTime = clock
	ts.ExpireTimer.Handler = ts.expireEvent
	ScheduleTimer(&ts.ExpireTimer)
	return nil
}

func handleTriggerSyncTrigger(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	reason, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if ts, exists := triggerSyncs[uint8(oid)]; exists {
		TriggerSyncDoTrigger(ts, uint8(reason))
	}
	return nil
}

// TriggerSyncDoTrigger fires a trigger event. The first trigger wins;
// later calls are ignored.
func TriggerSyncDoTrigger(ts *TriggerSync, reason uint8) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if ts.Flags&TSF_CAN_TRIGGER == 0 {
		return
	}
	ts.Flags &^= TSF_CAN_TRIGGER
	ts.Flags |= TSF_TRIGGERED
	ts.TriggerReason = reason

	for signal := ts.Signals; signal != nil; signal = signal.Next {
		if signal.Callback != nil {
			signal.Callback(reason)
		}
	}
}

// TriggerSyncAddSignal registers a callback with a trigger sync.
func TriggerSyncAddSignal(ts *TriggerSync, callback func(reason uint8)) *TriggerSignal {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	signal := &TriggerSignal{Callback: callback, Next: ts.Signals}
	ts.Signals = signal
	return signal
}

// reportEvent sends the periodic state report while the trsync is armed.
func (ts *TriggerSync) reportEvent(t *Timer) uint8 {
	ts.report()
	if ts.Flags&TSF_CAN_TRIGGER != 0 {
		t.WakeTime = GetTime() + ts.ReportTicks
		return SF_RESCHEDULE
	}
	return SF_DONE
}

// expireEvent fires the trigger with the expire reason when the host's
// deadline passes without a real trigger.
func (ts *TriggerSync) expireEvent(t *Timer) uint8 {
	TriggerSyncDoTrigger(ts, ts.ExpireReason)
	ts.report()
	return SF_DONE
}

func (ts *TriggerSync) report() {
	canTrigger := uint32(0)
	if ts.Flags&TSF_CAN_TRIGGER != 0 {
		canTrigger = 1
	}
	clock := GetTime()

	SendResponse("trsync_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ts.OID))
		protocol.EncodeVLQUint(output, canTrigger)
		protocol.EncodeVLQUint(output, uint32(ts.TriggerReason))
		protocol.EncodeVLQUint(output, clock)
	})
}

// GetTriggerSync retrieves a trigger sync by OID.
func GetTriggerSync(oid uint8) (*TriggerSync, bool) {
	ts, exists := triggerSyncs[oid]
	return ts, exists
}
