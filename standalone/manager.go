// Package standalone runs the board as a Bambu bus device: without a
// Klipper host it answers the printer's AMS-style polls directly,
// driving the motor channels and reporting the spool switches.
package standalone

import (
	"errors"

	"gomcu/bambubus"
	"gomcu/core"
)

// NoGate marks the parked state in status reports.
const NoGate = 0xff

// statusInterval is how often an online device pushes an unsolicited
// status frame.
const statusInterval = core.TimerFreq / 2

// Pins lists the inputs sampled for status reports. Both switch banks
// are active-low on the board.
type Pins struct {
	SpoolOnline [core.MotorChannels]core.PinHandle
	SpoolPull   [core.MotorChannels]core.PinHandle
}

// Manager owns the device side of the bus: it extracts frames
// addressed to it from the RX stream, executes them and writes reply
// frames through the supplied sink.
type Manager struct {
	address uint8
	pins    Pins
	gpio    core.GPIODriver
	motors  core.MotorDriver
	write   func([]byte)

	rx  []byte
	seq uint8

	activeGate uint8
	lastError  uint8
	online     bool
	peer       uint8

	statusTimer core.Timer
	running     bool
}

// NewManager wires a manager to its drivers. write receives complete
// frames ready for the UART TX queue.
func NewManager(address uint8, pins Pins, gpio core.GPIODriver, motors core.MotorDriver, write func([]byte)) *Manager {
	return &Manager{
		address:    address,
		pins:       pins,
		gpio:       gpio,
		motors:     motors,
		write:      write,
		activeGate: NoGate,
		peer:       bambubus.HostAddress,
	}
}

// Start configures the switch inputs, parks the motors and arms the
// periodic status push.
func (m *Manager) Start() error {
	if m.running {
		return errors.New("already running")
	}

	for ch := 0; ch < core.MotorChannels; ch++ {
		if err := m.gpio.SetupInput(m.pins.SpoolOnline[ch], 1); err != nil {
			return err
		}
		if err := m.gpio.SetupInput(m.pins.SpoolPull[ch], 1); err != nil {
			return err
		}
	}

	m.motors.CoastAll()
	m.activeGate = NoGate
	m.running = true

	m.statusTimer.WakeTime = core.GetTime() + statusInterval
	m.statusTimer.Handler = m.statusEvent
	core.ScheduleTimer(&m.statusTimer)

	return nil
}

// Stop parks the motors and cancels the status push.
func (m *Manager) Stop() {
	m.running = false
	core.UnscheduleTimer(&m.statusTimer)
	m.motors.CoastAll()
	m.activeGate = NoGate
}

func (m *Manager) IsRunning() bool {
	return m.running
}

// Ingest feeds received bytes into the frame scanner. Partial frames
// stay buffered until the rest arrives.
func (m *Manager) Ingest(data []byte) {
	m.rx = append(m.rx, data...)
	frames, consumed := bambubus.ExtractFrames(m.rx)
	m.rx = m.rx[:copy(m.rx, m.rx[consumed:])]

	for _, frame := range frames {
		if frame.Dst != m.address {
			continue
		}
		m.handleFrame(frame)
	}
}

func (m *Manager) handleFrame(frame bambubus.Frame) {
	m.online = true
	m.peer = frame.Src

	switch frame.Command {
	case bambubus.CmdPing:
		m.sendAck(frame)

	case bambubus.CmdHome:
		m.motors.CoastAll()
		m.activeGate = NoGate
		m.lastError = 0
		m.sendAck(frame)

	case bambubus.CmdSelectGate:
		// Gate index travels in the second payload byte.
		if len(frame.Payload) < 2 {
			m.sendError(frame.Src, bambubus.ErrBadArgument)
			return
		}
		gate := frame.Payload[1]
		if int(gate) >= core.MotorChannels {
			m.sendError(frame.Src, bambubus.ErrBadArgument)
			return
		}
		m.motors.CoastAll()
		if err := m.motors.Forward(core.MotorChannel(gate)); err != nil {
			m.sendError(frame.Src, bambubus.ErrBadArgument)
			return
		}
		m.activeGate = gate
		m.sendAck(frame)
		m.sendStatus(frame.Src)

	case bambubus.CmdQueryStatus:
		m.sendStatus(frame.Src)

	default:
		m.sendError(frame.Src, bambubus.ErrUnknownCommand)
	}
}

func (m *Manager) sendAck(frame bambubus.Frame) {
	m.sendReply(frame.Src, frame.Command|bambubus.AckMask, nil)
}

func (m *Manager) sendError(dst, code uint8) {
	m.lastError = code
	m.sendReply(dst, bambubus.RspError, []byte{code})
}

// sendStatus reports [doors, filament, error, active_gate, gates].
// Door and filament bits come from the active-low switch banks.
func (m *Manager) sendStatus(dst uint8) {
	var doors, filament uint8
	for ch := 0; ch < core.MotorChannels; ch++ {
		if level, err := m.gpio.Read(m.pins.SpoolOnline[ch]); err == nil && !level {
			doors |= 1 << ch
		}
		if level, err := m.gpio.Read(m.pins.SpoolPull[ch]); err == nil && !level {
			filament |= 1 << ch
		}
	}

	payload := []byte{doors, filament, m.lastError, m.activeGate, core.MotorChannels}
	m.sendReply(dst, bambubus.RspStatus, payload)
}

func (m *Manager) sendReply(dst, cmd uint8, payload []byte) {
	frame, err := bambubus.BuildFrame(m.seq, m.address, dst, cmd, payload)
	if err != nil {
		return
	}
	m.seq++
	m.write(frame)
}

// statusEvent pushes a periodic status frame once the host has been
// heard from.
func (m *Manager) statusEvent(t *core.Timer) uint8 {
	if !m.running {
		return core.SF_DONE
	}
	if m.online {
		m.sendStatus(m.peer)
	}
	t.WakeTime += statusInterval
	return core.SF_RESCHEDULE
}
