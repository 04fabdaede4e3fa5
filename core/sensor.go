// Sensor registry. Sensors are small driver objects (angle sensors on
// the spool bus, the humidity probe) registered by target code at init
// time and exposed to the host through an OID-based command family.
// Besides one-shot reads the host can start timer-driven polling; each
// poll emits a sensor_poll_data response.
package core

import (
	"errors"

	"gomcu/protocol"
)

// Sensor is one readable device behind the registry.
type Sensor interface {
	// Name identifies the sensor type in debug output.
	Name() string

	// Sample performs one measurement and returns the payload bytes
	// reported to the host.
	Sample() ([]byte, error)
}

// SensorWriter is implemented by sensors that accept raw configuration
// writes from the host.
type SensorWriter interface {
	WriteRaw(data []byte) error
}

// SensorInstance wraps a registered sensor with its polling state.
type SensorInstance struct {
	OID    uint8
	Sensor Sensor

	Timer     Timer
	PollTicks uint32
	Active    bool
	LastError error
}

var sensors = make(map[uint8]*SensorInstance)

// RegisterSensor adds a sensor to the registry. Called from target
// init code, before the host connects.
func RegisterSensor(oid uint8, s Sensor) error {
	if s == nil {
		return errors.New("nil sensor")
	}
	if _, exists := sensors[oid]; exists {
		return errors.New("sensor OID already registered")
	}
	sensors[oid] = &SensorInstance{OID: oid, Sensor: s}
	return nil
}

// GetSensor retrieves a registered sensor by OID.
func GetSensor(oid uint8) (*SensorInstance, bool) {
	inst, exists := sensors[oid]
	return inst, exists
}

// InitSensorCommands registers the sensor command family.
func InitSensorCommands() {
	RegisterCommand("sensor_read", "oid=%c", handleSensorRead)
	RegisterCommand("sensor_write", "oid=%c data=%*s", handleSensorWrite)
	RegisterCommand("sensor_start_poll", "oid=%c poll_ticks=%u", handleSensorStartPoll)
	RegisterCommand("sensor_stop_poll", "oid=%c", handleSensorStopPoll)
	RegisterCommand("sensor_query_state", "oid=%c", handleSensorQueryState)

	RegisterResponse("sensor_data", "oid=%c data=%*s")
	RegisterResponse("sensor_poll_data", "oid=%c data=%*s")
	RegisterResponse("sensor_state", "oid=%c active=%c error=%c")
}

func handleSensorRead(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	inst, exists := sensors[uint8(oid)]
	if !exists {
		return nil
	}

	payload, err := inst.Sensor.Sample()
	if err != nil {
		inst.LastError = err
		return reportSensorError(inst, err)
	}
	inst.LastError = nil

	SendResponse("sensor_data", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQBytes(output, payload)
	})
	return nil
}

func handleSensorWrite(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	raw, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	inst, exists := sensors[uint8(oid)]
	if !exists {
		return nil
	}

	w, ok := inst.Sensor.(SensorWriter)
	if !ok {
		return errors.New("sensor does not accept writes")
	}
	if err := w.WriteRaw(raw); err != nil {
		inst.LastError = err
		return reportSensorError(inst, err)
	}
	inst.LastError = nil
	return nil
}

func handleSensorStartPoll(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pollTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if pollTicks == 0 {
		return errors.New("poll_ticks must be greater than 0")
	}

	inst, exists := sensors[uint8(oid)]
	if !exists {
		return nil
	}

	inst.PollTicks = pollTicks
	inst.Active = true
	inst.Timer.Next = nil
	inst.Timer.WakeTime = GetTime() + pollTicks
	inst.Timer.Handler = inst.pollEvent
	ScheduleTimer(&inst.Timer)
	return nil
}

func handleSensorStopPoll(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if inst, exists := sensors[uint8(oid)]; exists {
		inst.Active = false
	}
	return nil
}

func handleSensorQueryState(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	inst, exists := sensors[uint8(oid)]
	if !exists {
		return nil
	}

	active := uint32(0)
	if inst.Active {
		active = 1
	}
	errFlag := uint32(0)
	if inst.LastError != nil {
		errFlag = 1
	}

	SendResponse("sensor_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, active)
		protocol.EncodeVLQUint(output, errFlag)
	})
	return nil
}

// pollEvent runs one poll cycle. A recoverable bus error keeps the
// poll running; an unrecoverable one shuts the machine down.
func (inst *SensorInstance) pollEvent(t *Timer) uint8 {
	if !inst.Active {
		return SF_DONE
	}

	payload, err := inst.Sensor.Sample()
	if err != nil {
		inst.LastError = err
		if IsUnrecoverable(err) {
			TryShutdown("sensor fault: " + err.Error())
			return SF_DONE
		}
		RecordTiming(EvtBusRetry, inst.OID, GetTime(), 0, 0)
	} else {
		inst.LastError = nil
		SendResponse("sensor_poll_data", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(inst.OID))
			protocol.EncodeVLQBytes(output, payload)
		})
	}

	t.WakeTime += inst.PollTicks
	return SF_RESCHEDULE
}

// reportSensorError escalates unrecoverable bus faults; everything
// else bubbles up to the dispatcher as a plain error.
func reportSensorError(inst *SensorInstance, err error) error {
	if IsUnrecoverable(err) {
		TryShutdown("sensor fault: " + err.Error())
	}
	return err
}
