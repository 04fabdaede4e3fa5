package core

// Fake HAL drivers shared by the package tests. Each fake records the
// calls it sees keyed by the wire pin number, so tests assert against
// the same numbering the host uses.

import (
	"errors"
	"testing"

	"gomcu/protocol"
)

type fakeGPIO struct {
	levels  map[uint32]bool
	pulls   map[uint32]int
	outputs map[uint32]bool
	inputs  map[uint32]bool
	resets  int
	writes  int
	failAll bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{
		levels:  make(map[uint32]bool),
		pulls:   make(map[uint32]int),
		outputs: make(map[uint32]bool),
		inputs:  make(map[uint32]bool),
	}
}

func (g *fakeGPIO) SetupOutput(pin PinHandle, initial bool) error {
	if g.failAll {
		return errors.New("gpio failure")
	}
	g.outputs[pin.Wire()] = true
	g.levels[pin.Wire()] = initial
	return nil
}

func (g *fakeGPIO) SetupInput(pin PinHandle, pull int) error {
	if g.failAll {
		return errors.New("gpio failure")
	}
	g.inputs[pin.Wire()] = true
	g.pulls[pin.Wire()] = pull
	return nil
}

func (g *fakeGPIO) Write(pin PinHandle, value bool) error {
	if g.failAll {
		return errors.New("gpio failure")
	}
	g.levels[pin.Wire()] = value
	g.writes++
	return nil
}

func (g *fakeGPIO) Toggle(pin PinHandle) error {
	g.levels[pin.Wire()] = !g.levels[pin.Wire()]
	return nil
}

func (g *fakeGPIO) Reset(pin PinHandle, value bool) error {
	g.resets++
	g.outputs[pin.Wire()] = true
	g.levels[pin.Wire()] = value
	return nil
}

func (g *fakeGPIO) Read(pin PinHandle) (bool, error) {
	if g.failAll {
		return false, errors.New("gpio failure")
	}
	return g.levels[pin.Wire()], nil
}

type fakeMotor struct {
	state    [MotorChannels][2]bool
	coastAll int
}

func (m *fakeMotor) WriteRole(channel MotorChannel, role MotorRole, value bool) error {
	if channel >= MotorChannels {
		return errors.New("bad channel")
	}
	m.state[channel][role] = value
	return nil
}

func (m *fakeMotor) ToggleRole(channel MotorChannel, role MotorRole) error {
	m.state[channel][role] = !m.state[channel][role]
	return nil
}

func (m *fakeMotor) ReadRole(channel MotorChannel, role MotorRole) (bool, error) {
	if channel >= MotorChannels {
		return false, errors.New("bad channel")
	}
	return m.state[channel][role], nil
}

func (m *fakeMotor) Coast(channel MotorChannel) error {
	m.state[channel][MotorDrive] = false
	m.state[channel][MotorDir] = false
	return nil
}

func (m *fakeMotor) Forward(channel MotorChannel) error {
	m.state[channel][MotorDrive] = true
	m.state[channel][MotorDir] = false
	return nil
}

func (m *fakeMotor) Reverse(channel MotorChannel) error {
	m.state[channel][MotorDrive] = true
	m.state[channel][MotorDir] = true
	return nil
}

func (m *fakeMotor) CoastAll() {
	m.coastAll++
	for ch := MotorChannel(0); ch < MotorChannels; ch++ {
		_ = m.Coast(ch)
	}
}

type fakeADC struct {
	samples map[uint8]uint16
	readErr error
}

func newFakeADC() *fakeADC {
	return &fakeADC{samples: make(map[uint8]uint16)}
}

func (a *fakeADC) SetupChannel(pin PinHandle) (uint8, error) {
	if pin.IsVirtual() {
		return 0, errors.New("not an analog pin")
	}
	switch pin.Port() {
	case PortA:
		if pin.Index() <= 7 {
			return pin.Index(), nil
		}
	case PortB:
		if pin.Index() <= 1 {
			return 8 + pin.Index(), nil
		}
	}
	return 0, errors.New("not an analog pin")
}

func (a *fakeADC) Read(channel uint8) (uint16, error) {
	if a.readErr != nil {
		return 0, a.readErr
	}
	return a.samples[channel], nil
}

type fakeI2CPort struct {
	writes   [][]byte
	readRegs [][]byte
	readData []byte
	err      error
}

func (p *fakeI2CPort) Write(data []byte) error {
	p.writes = append(p.writes, append([]byte(nil), data...))
	return p.err
}

func (p *fakeI2CPort) Read(reg, out []byte) error {
	p.readRegs = append(p.readRegs, append([]byte(nil), reg...))
	if p.err != nil {
		return p.err
	}
	copy(out, p.readData)
	return nil
}

type fakeI2CDriver struct {
	port     *fakeI2CPort
	bus      uint32
	rate     uint32
	addr     uint8
	setupErr error
}

func (d *fakeI2CDriver) Setup(bus, rate uint32, addr uint8) (I2CPort, error) {
	if d.setupErr != nil {
		return nil, d.setupErr
	}
	d.bus, d.rate, d.addr = bus, rate, addr
	if d.port == nil {
		d.port = &fakeI2CPort{}
	}
	return d.port, nil
}

type fakeSPIPort struct {
	transfers [][]byte
	err       error
}

func (p *fakeSPIPort) Transfer(tx, rx []byte) error {
	p.transfers = append(p.transfers, append([]byte(nil), tx...))
	if p.err != nil {
		return p.err
	}
	// Loopback.
	copy(rx, tx)
	return nil
}

type fakeSPIDriver struct {
	port *fakeSPIPort
	bus  uint32
	mode uint8
	rate uint32
}

func (d *fakeSPIDriver) Setup(bus uint32, mode uint8, rate uint32) (SPIPort, error) {
	d.bus, d.mode, d.rate = bus, mode, rate
	if d.port == nil {
		d.port = &fakeSPIPort{}
	}
	return d.port, nil
}

type fakePWMOut struct {
	cycle  uint32
	duties []uint32
}

func (o *fakePWMOut) CycleTicks() uint32 { return o.cycle }

func (o *fakePWMOut) SetDuty(onTicks uint32) {
	o.duties = append(o.duties, onTicks)
}

type fakePWMDriver struct {
	out *fakePWMOut
}

func (d *fakePWMDriver) Setup(pin PinHandle, cycleTicks uint32) (PWMOut, error) {
	if pin.IsVirtual() {
		return nil, errors.New("no pwm on virtual pins")
	}
	if d.out == nil {
		d.out = &fakePWMOut{cycle: cycleTicks}
	}
	return d.out, nil
}

// captureResponses routes SendResponse output into a scratch buffer and
// restores the previous transport when the test ends.
func captureResponses(t *testing.T) *protocol.ScratchOutput {
	t.Helper()
	scratch := protocol.NewScratchOutput()
	prev := globalTransport
	SetGlobalTransport(protocol.NewTransport(scratch, nil))
	t.Cleanup(func() { globalTransport = prev })
	return scratch
}

// encodeArgs builds a command payload from VLQ-encoded values.
func encodeArgs(values ...uint32) []byte {
	output := protocol.NewScratchOutput()
	for _, v := range values {
		protocol.EncodeVLQUint(output, v)
	}
	return output.Result()
}

// encodeByteString builds a length-prefixed byte string payload.
func encodeByteString(data []byte) []byte {
	output := protocol.NewScratchOutput()
	protocol.EncodeVLQBytes(output, data)
	return output.Result()
}

// clearObjects resets the OID tables and firmware state between tests.
func clearObjects(t *testing.T) {
	t.Helper()
	prevGPIO, prevMotor, prevADC := gpioDriver, motorDriver, adcDriver
	prevI2C, prevSPI, prevPWM := i2cDriver, spiDriver, pwmDriver
	t.Cleanup(func() {
		digitalOutputs = make(map[uint8]*DigitalOut)
		analogInputs = make(map[uint8]*AnalogIn)
		motorOuts = make(map[uint8]*MotorOut)
		i2cDevices = make(map[uint8]*I2CDevice)
		spiDevices = make(map[uint8]*SPIDevice)
		hardwarePWMs = make(map[uint8]*HardwarePWM)
		endstops = make(map[uint8]*Endstop)
		triggerSyncs = make(map[uint8]*TriggerSync)
		sensors = make(map[uint8]*SensorInstance)
		timerList = nil
		gpioDriver, motorDriver, adcDriver = prevGPIO, prevMotor, prevADC
		i2cDriver, spiDriver, pwmDriver = prevI2C, prevSPI, prevPWM
		ResetFirmwareState()
	})
	digitalOutputs = make(map[uint8]*DigitalOut)
	analogInputs = make(map[uint8]*AnalogIn)
	motorOuts = make(map[uint8]*MotorOut)
	i2cDevices = make(map[uint8]*I2CDevice)
	spiDevices = make(map[uint8]*SPIDevice)
	hardwarePWMs = make(map[uint8]*HardwarePWM)
	endstops = make(map[uint8]*Endstop)
	triggerSyncs = make(map[uint8]*TriggerSync)
	sensors = make(map[uint8]*SensorInstance)
	timerList = nil
	ResetFirmwareState()
}
