// Digital output objects implementing Klipper's digital_out protocol.
// Works on pin handles, so the host can schedule motor-channel sub-pins
// with the same commands it uses for plain port pins.
package core

import (
	"gomcu/protocol"
)

// DigitalOut flags.
const (
	DF_ON         = 1 << 0 // current pin state
	DF_TOGGLING   = 1 << 1 // software PWM active
	DF_CHECK_END  = 1 << 2 // max_duration monitoring armed
	DF_DEFAULT_ON = 1 << 3 // default state for shutdown/power loss
)

// DigitalOut is one configured output pin.
type DigitalOut struct {
	OID   uint8
	Pin   PinHandle
	Flags uint8

	Timer Timer

	// Software PWM timing, in timer ticks.
	OnDuration  uint32
	OffDuration uint32
	CycleTime   uint32
	EndTime     uint32

	// Longest time the pin may stay away from its default state.
	MaxDuration uint32
}

var digitalOutputs = make(map[uint8]*DigitalOut)

// InitGPIOCommands registers the digital_out command family.
func InitGPIOCommands() {
	RegisterCommand("config_digital_out", "oid=%c pin=%u value=%c default_value=%c max_duration=%u", handleConfigDigitalOut)
	RegisterCommand("queue_digital_out", "oid=%c clock=%u on_ticks=%u", handleQueueDigitalOut)
	RegisterCommand("update_digital_out", "oid=%c value=%c", handleUpdateDigitalOut)
	RegisterCommand("set_digital_out_pwm_cycle", "oid=%c cycle_ticks=%u", handleSetDigitalOutPWMCycle)
}

func handleConfigDigitalOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rawPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	defaultValue, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	maxDuration, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pin, err := ParseWirePin(rawPin)
	if err != nil {
		return err
	}

	dout := &DigitalOut{
		OID:         uint8(oid),
		Pin:         pin,
		MaxDuration: maxDuration,
	}
	if defaultValue != 0 {
		dout.Flags |= DF_DEFAULT_ON
	}

	initial := value != 0
	if err := MustGPIO().SetupOutput(pin, initial); err != nil {
		return err
	}
	if initial {
		dout.Flags |= DF_ON
	}

	digitalOutputs[uint8(oid)] = dout
	return nil
}

func handleQueueDigitalOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	onTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	dout, exists := digitalOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	if dout.CycleTime != 0 {
		// Software PWM: split the cycle into on and off durations.
		if onTicks > dout.CycleTime {
			onTicks = dout.CycleTime
		}
		dout.OnDuration = onTicks
		dout.OffDuration = dout.CycleTime - onTicks

		if dout.OnDuration > 0 && dout.OffDuration > 0 {
			dout.Flags |= DF_TOGGLING
		} else {
			dout.Flags &^= DF_TOGGLING
			if dout.OnDuration > 0 {
				dout.Flags |= DF_ON
			} else {
				dout.Flags &^= DF_ON
			}
		}
	} else {
		if onTicks > 0 {
			dout.Flags |= DF_ON
		} else {
			dout.Flags &^= DF_ON
		}
		dout.Flags &^= DF_TOGGLING
	}

	if dout.MaxDuration != 0 {
		newStateOn := dout.Flags&DF_ON != 0
		defaultOn := dout.Flags&DF_DEFAULT_ON != 0
		if newStateOn != defaultOn {
			dout.EndTime = clock + dout.MaxDuration
			dout.Flags |= DF_CHECK_END
		} else {
			dout.Flags &^= DF_CHECK_END
		}
	}

	dout.Timer.Next = nil
	dout.Timer.WakeTime = clock
	dout.Timer.Handler = dout.loadEvent
	ScheduleTimer(&dout.Timer)
	return nil
}

func handleUpdateDigitalOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	dout, exists := digitalOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	state := value != 0
	if err := MustGPIO().Write(dout.Pin, state); err != nil {
		return err
	}
	if state {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}
	dout.Flags &^= DF_TOGGLING
	return nil
}

func handleSetDigitalOutPWMCycle(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	cycleTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if dout, exists := digitalOutputs[uint8(oid)]; exists {
		dout.CycleTime = cycleTicks
	}
	return nil
}

// loadEvent fires at the scheduled clock: start PWM toggling, or apply a
// plain level and optionally arm the max_duration watchdog.
func (dout *DigitalOut) loadEvent(t *Timer) uint8 {
	if dout.Flags&DF_TOGGLING != 0 {
		if err := MustGPIO().Write(dout.Pin, true); err != nil {
			dout.Flags &^= DF_TOGGLING
			return SF_DONE
		}
		dout.Flags |= DF_ON
		t.WakeTime = GetTime() + dout.OnDuration
		t.Handler = dout.toggleEvent
		return SF_RESCHEDULE
	}

	state := dout.Flags&DF_ON != 0
	if err := MustGPIO().Write(dout.Pin, state); err != nil {
		return SF_DONE
	}

	if dout.Flags&DF_CHECK_END != 0 {
		t.WakeTime = dout.EndTime
		t.Handler = dout.endEvent
		return SF_RESCHEDULE
	}
	return SF_DONE
}

// toggleEvent flips the pin each half-cycle of the software PWM.
func (dout *DigitalOut) toggleEvent(t *Timer) uint8 {
	if dout.Flags&DF_TOGGLING == 0 {
		return SF_DONE
	}

	newState := dout.Flags&DF_ON == 0
	if err := MustGPIO().Write(dout.Pin, newState); err != nil {
		dout.Flags &^= DF_TOGGLING
		return SF_DONE
	}
	if newState {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}

	nextDuration := dout.OffDuration
	if newState {
		nextDuration = dout.OnDuration
	}

	now := GetTime()
	if dout.Flags&DF_CHECK_END != 0 && !TimerIsBefore(now+nextDuration, dout.EndTime) {
		t.WakeTime = dout.EndTime
		t.Handler = dout.endEvent
		return SF_RESCHEDULE
	}

	t.WakeTime = now + nextDuration
	return SF_RESCHEDULE
}

// endEvent enforces max_duration: back to the default state.
func (dout *DigitalOut) endEvent(t *Timer) uint8 {
	defaultState := dout.Flags&DF_DEFAULT_ON != 0
	if err := MustGPIO().Write(dout.Pin, defaultState); err != nil {
		return SF_DONE
	}
	if defaultState {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}
	dout.Flags &^= DF_TOGGLING | DF_CHECK_END
	return SF_DONE
}

// ShutdownDigitalOut forces one pin back to its default state. Reset
// reconfigures the pin, so this works even if the config was clobbered.
func ShutdownDigitalOut(dout *DigitalOut) {
	defaultState := dout.Flags&DF_DEFAULT_ON != 0
	_ = MustGPIO().Reset(dout.Pin, defaultState)

	if defaultState {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}
	dout.Flags &^= DF_TOGGLING | DF_CHECK_END
	dout.Timer.Next = nil
}

// ShutdownAllDigitalOut returns every configured pin to its default
// state. Called from the global shutdown path.
func ShutdownAllDigitalOut() {
	for _, dout := range digitalOutputs {
		if dout != nil {
			ShutdownDigitalOut(dout)
		}
	}
}
