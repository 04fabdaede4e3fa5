// Endstop objects implementing Klipper's endstop protocol. On this
// board they watch the filament presence and spool switches, but any
// digital input works: the host arms a two-stage sampler that fires a
// trsync once enough consecutive samples match the trigger level.
package core

import (
	"gomcu/protocol"
)

// Endstop flags.
const (
	ESF_PIN_HIGH = 1 << 0 // trigger level is high
	ESF_HOMING   = 1 << 1 // sampler armed
)

// Endstop is one configured switch input.
type Endstop struct {
	OID           uint8
	Pin           PinHandle
	Flags         uint8
	Timer         Timer
	SampleTime    uint32
	SampleCount   uint8
	TriggerCount  uint8
	RestTime      uint32
	NextWake      uint32
	TriggerSync   *TriggerSync
	TriggerReason uint8
}

var endstops = make(map[uint8]*Endstop)

// InitEndstopCommands registers the endstop command family.
func InitEndstopCommands() {
	RegisterCommand("config_endstop", "oid=%c pin=%u pull_up=%c", handleConfigEndstop)
	RegisterCommand("endstop_home", "oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u pin_value=%c trsync_oid=%c trigger_reason=%c", handleEndstopHome)
	RegisterCommand("endstop_query_state", "oid=%c", handleEndstopQueryState)
	RegisterResponse("endstop_state", "oid=%c homing=%c next_clock=%u pin_value=%c")
}

func handleConfigEndstop(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rawPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pullUp, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pin, err := ParseWirePin(rawPin)
	if err != nil {
		return err
	}

	pull := 0
	if pullUp != 0 {
		pull = 1
	}
	if err := MustGPIO().SetupInput(pin, pull); err != nil {
		return err
	}

	endstops[uint8(oid)] = &Endstop{OID: uint8(oid), Pin: pin}
	return nil
}

func handleEndstopHome(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	sampleTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	sampleCount, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	restTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pinValue, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	trsyncOID, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	triggerReason, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	es, exists := endstops[uint8(oid)]
	if !exists {
		return nil
	}

	es.Timer.Next = nil

	// A zero sample count disarms the sampler.
	if sampleCount == 0 {
		es.TriggerSync = nil
		es.Flags = 0
		return nil
	}

	ts, exists := GetTriggerSync(uint8(trsyncOID))
	if !exists {
		return nil
	}

	es.SampleTime = sampleTicks
	es.SampleCount = uint8(sampleCount)
	es.TriggerCount = uint8(sampleCount)
	es.RestTime = restTicks
	es.TriggerSync = ts
	es.TriggerReason = uint8(triggerReason)
	es.Flags = ESF_HOMING
	if pinValue != 0 {
		es.Flags |= ESF_PIN_HIGH
	}

	es.Timer.WakeTime = clock
	es.Timer.Handler = es.checkEvent
	ScheduleTimer(&es.Timer)
	return nil
}

func handleEndstopQueryState(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	es, exists := endstops[uint8(oid)]
	if !exists {
		return nil
	}

	state := disableInterrupts()
	eflags := es.Flags
	nextWake := es.NextWake
	restoreInterrupts(state)

	pinValue := uint32(0)
	if v, err := MustGPIO().Read(es.Pin); err == nil && v {
		pinValue = 1
	}

	homing := uint32(0)
	if eflags&ESF_HOMING != 0 {
		homing = 1
	}

	SendResponse("endstop_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, homing)
		protocol.EncodeVLQUint(output, nextWake)
		protocol.EncodeVLQUint(output, pinValue)
	})
	return nil
}

// triggered reports whether the pin currently sits at the trigger level.
func (es *Endstop) triggered() bool {
	pinHigh, err := MustGPIO().Read(es.Pin)
	if err != nil {
		return false
	}
	return pinHigh == (es.Flags&ESF_PIN_HIGH != 0)
}

// checkEvent is the first-stage poll: on a level match it switches to
// oversampling to debounce the switch.
func (es *Endstop) checkEvent(t *Timer) uint8 {
	nextWake := t.WakeTime + es.RestTime

	if !es.triggered() {
		t.WakeTime = nextWake
		return SF_RESCHEDULE
	}

	es.NextWake = nextWake
	t.Handler = es.oversampleEvent
	return es.oversampleEvent(t)
}

// oversampleEvent confirms a trigger with consecutive samples; any
// mismatch restarts the first stage.
func (es *Endstop) oversampleEvent(t *Timer) uint8 {
	if !es.triggered() {
		t.Handler = es.checkEvent
		t.WakeTime = es.NextWake
		es.TriggerCount = es.SampleCount
		return SF_RESCHEDULE
	}

	es.TriggerCount--
	if es.TriggerCount == 0 {
		if es.TriggerSync != nil {
			TriggerSyncDoTrigger(es.TriggerSync, es.TriggerReason)
		}
		return SF_DONE
	}

	t.WakeTime += es.SampleTime
	return SF_RESCHEDULE
}
