// Hardware PWM objects implementing Klipper's pwm_out protocol, backed
// by the target's timer output-compare channels.
package core

import (
	"gomcu/protocol"
)

// HardwarePWM flags.
const (
	PWM_CHECK_END = 1 << 0 // max_duration monitoring armed
)

// HardwarePWM is one configured hardware PWM output.
type HardwarePWM struct {
	OID   uint8
	Pin   PinHandle
	Out   PWMOut
	Flags uint8

	Timer Timer

	// Duty in timer ticks; the cycle length comes from the driver.
	Value        uint32
	DefaultValue uint32
	MaxDuration  uint32
	EndTime      uint32
}

var hardwarePWMs = make(map[uint8]*HardwarePWM)

// InitPWMCommands registers the pwm_out command family.
func InitPWMCommands() {
	RegisterCommand("config_pwm_out", "oid=%c pin=%u cycle_ticks=%u value=%hu default_value=%hu max_duration=%u", handleConfigPWMOut)
	RegisterCommand("queue_pwm_out", "oid=%c clock=%u value=%hu", handleQueuePWMOut)
	RegisterCommand("set_pwm_out", "oid=%c value=%hu", handleSetPWMOut)

	RegisterConstant("PWM_MAX", 255)
}

func handleConfigPWMOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rawPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	cycleTicks, err := protocol.DecodeVLQUint(data)
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

	out, err := MustPWM().Setup(pin, cycleTicks)
	if err != nil {
		return err
	}

	pwm := &HardwarePWM{
		OID:          uint8(oid),
		Pin:          pin,
		Out:          out,
		Value:        value,
		DefaultValue: defaultValue,
		MaxDuration:  maxDuration,
	}
	out.SetDuty(pwm.Value)

	hardwarePWMs[uint8(oid)] = pwm
	return nil
}

func handleQueuePWMOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pwm, exists := hardwarePWMs[uint8(oid)]
	if !exists {
		return nil
	}

	pwm.Value = value

	if pwm.MaxDuration != 0 {
		if pwm.Value != pwm.DefaultValue {
			pwm.EndTime = clock + pwm.MaxDuration
			pwm.Flags |= PWM_CHECK_END
		} else {
			pwm.Flags &^= PWM_CHECK_END
		}
	}

	pwm.Timer.Next = nil
	pwm.Timer.WakeTime = clock
	pwm.Timer.Handler = pwm.loadEvent
	ScheduleTimer(&pwm.Timer)
	return nil
}

func handleSetPWMOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pwm, exists := hardwarePWMs[uint8(oid)]
	if !exists {
		return nil
	}

	pwm.Value = value
	pwm.Out.SetDuty(pwm.Value)
	return nil
}

// loadEvent applies the scheduled duty and optionally arms the
// max_duration watchdog.
func (pwm *HardwarePWM) loadEvent(t *Timer) uint8 {
	pwm.Out.SetDuty(pwm.Value)

	if pwm.Flags&PWM_CHECK_END != 0 {
		t.WakeTime = pwm.EndTime
		t.Handler = pwm.endEvent
		return SF_RESCHEDULE
	}
	return SF_DONE
}

// endEvent enforces max_duration: back to the default duty.
func (pwm *HardwarePWM) endEvent(t *Timer) uint8 {
	pwm.Value = pwm.DefaultValue
	pwm.Out.SetDuty(pwm.Value)
	pwm.Flags &^= PWM_CHECK_END
	return SF_DONE
}

// ShutdownHardwarePWM returns one output to its default duty.
func ShutdownHardwarePWM(pwm *HardwarePWM) {
	pwm.Value = pwm.DefaultValue
	pwm.Out.SetDuty(pwm.Value)
	pwm.Flags &^= PWM_CHECK_END
	pwm.Timer.Next = nil
}

// ShutdownAllHardwarePWM returns every output to its default duty.
// Called from the global shutdown path.
func ShutdownAllHardwarePWM() {
	for _, pwm := range hardwarePWMs {
		if pwm != nil {
			ShutdownHardwarePWM(pwm)
		}
	}
}
