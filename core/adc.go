// Analog input objects implementing Klipper's analog_in protocol. A
// timer oversamples each channel and a task sends the accumulated sum,
// with optional range checking that shuts the firmware down when a
// reading leaves its window too often.
package core

import (
	"gomcu/protocol"
)

// Analog input states.
const (
	ADCStateIdle          = 0
	ADCStateReady         = 1
	ADCStateSampling      = 2
	ADCStateReportPending = 3
)

// AnalogIn is one configured analog input channel.
type AnalogIn struct {
	OID     uint8
	Pin     PinHandle
	Channel uint8
	State   uint8

	Timer Timer

	RestTime      uint32 // ticks between reporting cycles
	SampleTime    uint32 // ticks between individual samples
	NextBeginTime uint32

	SampleCount   uint8
	CurrentSample uint8

	Value uint32 // accumulated sum of samples

	MinValue        uint16
	MaxValue        uint16
	RangeCheckCount uint8
	InvalidCount    uint8
	PendingValue    uint16
}

var analogInputs = make(map[uint8]*AnalogIn)

// Wake flag for the analog-in task.
var analogInWake bool

// InitADCCommands registers the analog_in command family.
func InitADCCommands() {
	RegisterCommand("config_analog_in", "oid=%c pin=%u", handleConfigAnalogIn)
	RegisterCommand("query_analog_in", "oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u min_value=%hu max_value=%hu range_check_count=%c", handleQueryAnalogIn)
	RegisterResponse("analog_in_state", "oid=%c next_clock=%u value=%hu")

	// 12-bit converter.
	RegisterConstant("ADC_MAX", uint32(4095))
}

func handleConfigAnalogIn(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rawPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pin, err := ParseWirePin(rawPin)
	if err != nil {
		return err
	}
	channel, err := MustADC().SetupChannel(pin)
	if err != nil {
		return err
	}

	analogInputs[uint8(oid)] = &AnalogIn{
		OID:     uint8(oid),
		Pin:     pin,
		Channel: channel,
		State:   ADCStateReady,
	}
	return nil
}

func handleQueryAnalogIn(data *[]byte) error {
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
	minValue, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	maxValue, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rangeCheckCount, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	ain, exists := analogInputs[uint8(oid)]
	if !exists {
		return nil
	}

	ain.SampleTime = sampleTicks
	ain.SampleCount = uint8(sampleCount)
	ain.RestTime = restTicks
	ain.MinValue = uint16(minValue)
	ain.MaxValue = uint16(maxValue)
	ain.RangeCheckCount = uint8(rangeCheckCount)
	ain.NextBeginTime = clock

	ain.Value = 0
	ain.CurrentSample = 0
	ain.InvalidCount = 0

	// A zero sample count stops sampling without starting a new cycle.
	if ain.SampleCount == 0 {
		ain.State = ADCStateReady
		ain.Timer.Next = nil
		return nil
	}

	ain.State = ADCStateSampling
	ain.Timer.Next = nil
	ain.Timer.WakeTime = clock
	ain.Timer.Handler = ain.sampleEvent
	ScheduleTimer(&ain.Timer)
	return nil
}

func wakeAnalogInTask() {
	state := disableInterrupts()
	analogInWake = true
	restoreInterrupts(state)
}

// AnalogInTask sends analog_in_state messages for channels that have
// finished a sample cycle. Runs in task context so the response encoding
// stays out of the timer interrupt.
func AnalogInTask() {
	state := disableInterrupts()
	if !analogInWake {
		restoreInterrupts(state)
		return
	}
	analogInWake = false
	restoreInterrupts(state)

	for oid, ain := range analogInputs {
		if ain == nil || ain.State != ADCStateReportPending {
			continue
		}

		// Snapshot the fields the timer also touches.
		state = disableInterrupts()
		if ain.State != ADCStateReportPending {
			restoreInterrupts(state)
			continue
		}
		value := ain.PendingValue
		nextClock := ain.NextBeginTime
		ain.State = ADCStateReady
		restoreInterrupts(state)

		SendResponse("analog_in_state", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(oid))
			protocol.EncodeVLQUint(output, nextClock)
			protocol.EncodeVLQUint(output, uint32(value))
		})
	}
}

// sampleEvent takes one sample; after the last sample of a cycle it
// range-checks the sum and hands the report to the task.
func (ain *AnalogIn) sampleEvent(t *Timer) uint8 {
	if ain.State != ADCStateSampling {
		// The task flips the state back to sampling when the next cycle
		// begins; a report-pending timer keeps its schedule.
		if ain.State != ADCStateReportPending && ain.State != ADCStateReady {
			return SF_DONE
		}
		ain.State = ADCStateSampling
	}

	value, err := MustADC().Read(ain.Channel)
	if err != nil {
		if IsUnrecoverable(err) {
			TryShutdown("ADC fault: " + err.Error())
		}
		ain.State = ADCStateReady
		return SF_DONE
	}

	ain.Value += uint32(value)
	ain.CurrentSample++

	if ain.CurrentSample < ain.SampleCount {
		t.WakeTime = GetTime() + ain.SampleTime
		return SF_RESCHEDULE
	}

	// Cycle complete. The accumulator truncates to 16 bits, matching the
	// host's expectations for the oversampled sum.
	sum16 := uint16(ain.Value)

	if sum16 < ain.MinValue || sum16 > ain.MaxValue {
		ain.InvalidCount++
		// A zero range_check_count shuts down on the first violation.
		if ain.RangeCheckCount == 0 || ain.InvalidCount >= ain.RangeCheckCount {
			TryShutdown("ADC out of range")
			ain.InvalidCount = 0
		}
	} else {
		ain.InvalidCount = 0
	}

	ain.NextBeginTime += ain.RestTime
	ain.PendingValue = sum16
	ain.State = ADCStateReportPending
	ain.Value = 0
	ain.CurrentSample = 0

	t.WakeTime = ain.NextBeginTime
	wakeAnalogInTask()
	return SF_RESCHEDULE
}

// ShutdownAnalogIn stops sampling on one input.
func ShutdownAnalogIn(ain *AnalogIn) {
	ain.State = ADCStateReady
	ain.PendingValue = 0
	ain.Timer.Next = nil
}

// ShutdownAllAnalogIn stops sampling on all configured inputs. Called
// from the global shutdown path.
func ShutdownAllAnalogIn() {
	for _, ain := range analogInputs {
		if ain != nil {
			ShutdownAnalogIn(ain)
		}
	}
}
