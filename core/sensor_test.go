package core

import (
	"errors"
	"testing"
)

type scriptedSensor struct {
	payloads [][]byte
	errs     []error
	calls    int
	written  [][]byte
}

func (s *scriptedSensor) Name() string { return "scripted" }

func (s *scriptedSensor) Sample() ([]byte, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.payloads) {
		return s.payloads[i], nil
	}
	return []byte{0}, nil
}

func (s *scriptedSensor) WriteRaw(data []byte) error {
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

func TestRegisterSensor(t *testing.T) {
	clearObjects(t)

	if err := RegisterSensor(1, &scriptedSensor{}); err != nil {
		t.Fatal(err)
	}
	if err := RegisterSensor(1, &scriptedSensor{}); err == nil {
		t.Error("Duplicate OID must be rejected")
	}
	if err := RegisterSensor(2, nil); err == nil {
		t.Error("Nil sensor must be rejected")
	}
	if _, ok := GetSensor(1); !ok {
		t.Error("Registered sensor not found")
	}
}

func TestSensorRead(t *testing.T) {
	clearObjects(t)
	InitSensorCommands()
	scratch := captureResponses(t)

	sensor := &scriptedSensor{payloads: [][]byte{{0x11, 0x22}}}
	if err := RegisterSensor(1, sensor); err != nil {
		t.Fatal(err)
	}

	data := encodeArgs(1)
	if err := handleSensorRead(&data); err != nil {
		t.Fatal(err)
	}
	if sensor.calls != 1 {
		t.Errorf("Expected 1 sample, got %d", sensor.calls)
	}
	if len(scratch.Result()) == 0 {
		t.Error("No sensor_data response sent")
	}
}

func TestSensorWrite(t *testing.T) {
	clearObjects(t)
	InitSensorCommands()

	sensor := &scriptedSensor{}
	if err := RegisterSensor(1, sensor); err != nil {
		t.Fatal(err)
	}

	data := append(encodeArgs(1), encodeByteString([]byte{0x07, 0x00})...)
	if err := handleSensorWrite(&data); err != nil {
		t.Fatal(err)
	}
	if len(sensor.written) != 1 || sensor.written[0][0] != 0x07 {
		t.Errorf("Write not delivered: %v", sensor.written)
	}
}

func TestSensorPolling(t *testing.T) {
	clearObjects(t)
	InitSensorCommands()
	scratch := captureResponses(t)
	SetTime(0)

	sensor := &scriptedSensor{payloads: [][]byte{{1}, {2}}}
	if err := RegisterSensor(1, sensor); err != nil {
		t.Fatal(err)
	}

	data := encodeArgs(1, 500)
	if err := handleSensorStartPoll(&data); err != nil {
		t.Fatal(err)
	}

	inst, _ := GetSensor(1)
	if !inst.Active || inst.Timer.WakeTime != 500 {
		t.Fatalf("Poll timer not armed: active=%v wake=%d", inst.Active, inst.Timer.WakeTime)
	}

	if res := inst.pollEvent(&inst.Timer); res != SF_RESCHEDULE {
		t.Fatal("Poll must reschedule")
	}
	if inst.Timer.WakeTime != 1000 {
		t.Errorf("Next poll at %d, want 1000", inst.Timer.WakeTime)
	}
	if len(scratch.Result()) == 0 {
		t.Error("No sensor_poll_data response sent")
	}

	// Stop: the next fire winds the timer down.
	data = encodeArgs(1)
	if err := handleSensorStopPoll(&data); err != nil {
		t.Fatal(err)
	}
	if res := inst.pollEvent(&inst.Timer); res != SF_DONE {
		t.Error("Stopped poll must not reschedule")
	}
}

func TestSensorPollRecoverableErrorKeepsPolling(t *testing.T) {
	clearObjects(t)
	InitSensorCommands()
	captureResponses(t)
	SetTime(0)

	sensor := &scriptedSensor{errs: []error{errors.New("transient")}}
	if err := RegisterSensor(1, sensor); err != nil {
		t.Fatal(err)
	}

	data := encodeArgs(1, 500)
	if err := handleSensorStartPoll(&data); err != nil {
		t.Fatal(err)
	}

	inst, _ := GetSensor(1)
	if res := inst.pollEvent(&inst.Timer); res != SF_RESCHEDULE {
		t.Error("Recoverable sample error must keep the poll alive")
	}
	if inst.LastError == nil {
		t.Error("LastError not recorded")
	}
	if IsShutdown() {
		t.Error("Recoverable error must not shut down")
	}
}

func TestSensorPollZeroTicksRejected(t *testing.T) {
	clearObjects(t)

	if err := RegisterSensor(1, &scriptedSensor{}); err != nil {
		t.Fatal(err)
	}
	data := encodeArgs(1, 0)
	if err := handleSensorStartPoll(&data); err == nil {
		t.Error("Zero poll_ticks must be rejected")
	}
}

func TestSensorQueryState(t *testing.T) {
	clearObjects(t)
	InitSensorCommands()
	scratch := captureResponses(t)

	if err := RegisterSensor(1, &scriptedSensor{}); err != nil {
		t.Fatal(err)
	}
	data := encodeArgs(1)
	if err := handleSensorQueryState(&data); err != nil {
		t.Fatal(err)
	}
	if len(scratch.Result()) == 0 {
		t.Error("No sensor_state response sent")
	}
}

func TestAS5600Sample(t *testing.T) {
	clearObjects(t)
	port := &fakeI2CPort{}
	drv := &fakeI2CDriver{port: port}
	SetI2CDriver(drv)

	sensor, err := NewAS5600(0, 400000)
	if err != nil {
		t.Fatal(err)
	}
	if drv.addr != AS5600_ADDR {
		t.Errorf("Wrong device address: %#x", drv.addr)
	}

	// The fake returns the same bytes for every register read: the
	// 1-byte STATUS read sees the MD bit, the 2-byte angle read sees
	// both bytes.
	port.readData = []byte{AS5600_STATUS_MD, 0x00}
	if _, err := sensor.Sample(); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if sensor.Position() != 0 {
		t.Errorf("First sample must not move the odometer: %d", sensor.Position())
	}

	// Second sample at a higher angle accumulates the delta.
	first := sensor.lastAngle
	port.readData = []byte{AS5600_STATUS_MD, 0x10}
	if _, err := sensor.Sample(); err != nil {
		t.Fatal(err)
	}
	want := int32(int16((sensor.lastAngle-first)<<4) >> 4)
	if sensor.Position() != want {
		t.Errorf("Odometer delta %d, want %d", sensor.Position(), want)
	}
}

func TestAS5600NoMagnet(t *testing.T) {
	clearObjects(t)
	port := &fakeI2CPort{readData: []byte{0x00}}
	SetI2CDriver(&fakeI2CDriver{port: port})

	sensor, err := NewAS5600(0, 400000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sensor.Sample(); err != ErrNoMagnet {
		t.Errorf("Expected ErrNoMagnet, got %v", err)
	}
	if sensor.Position() != 0 {
		t.Error("Odometer moved without a magnet")
	}
}

func TestAS5600WrapAround(t *testing.T) {
	clearObjects(t)
	port := &fakeI2CPort{}
	SetI2CDriver(&fakeI2CDriver{port: port})

	sensor, err := NewAS5600(0, 400000)
	if err != nil {
		t.Fatal(err)
	}

	// Angle 4090, then 6: a forward wrap of 12 counts, not -4084.
	sensor.lastAngle = 4090
	sensor.haveAngle = true
	port.readData = []byte{AS5600_STATUS_MD, 0x06}
	if _, err := sensor.Sample(); err != nil {
		t.Fatal(err)
	}
	if sensor.Position() != 12 {
		t.Errorf("Wrap delta %d, want 12", sensor.Position())
	}
}

func TestAS5600WriteRaw(t *testing.T) {
	clearObjects(t)
	port := &fakeI2CPort{}
	SetI2CDriver(&fakeI2CDriver{port: port})

	sensor, err := NewAS5600(0, 400000)
	if err != nil {
		t.Fatal(err)
	}

	if err := sensor.WriteRaw([]byte{AS5600_CONF_L, 0x03}); err != nil {
		t.Fatal(err)
	}
	if len(port.writes) != 1 || port.writes[0][0] != AS5600_CONF_L {
		t.Errorf("Register write wrong: %v", port.writes)
	}
	if err := sensor.WriteRaw([]byte{0x01}); err == nil {
		t.Error("Odd-length write data must be rejected")
	}
}

func TestPortBusAdapter(t *testing.T) {
	port := &fakeI2CPort{readData: []byte{0xAA}}
	bus := portBus{port: port}

	if err := bus.Tx(0x44, []byte{0x24, 0x00}, nil); err != nil {
		t.Fatal(err)
	}
	if len(port.writes) != 1 {
		t.Fatalf("Write-only Tx did not write: %v", port.writes)
	}

	out := make([]byte, 1)
	if err := bus.Tx(0x44, []byte{0x24}, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 0xAA {
		t.Errorf("Read phase returned %#x", out[0])
	}
	if len(port.readRegs) != 1 || port.readRegs[0][0] != 0x24 {
		t.Errorf("Register phase wrong: %v", port.readRegs)
	}
}
