// AT8236 motor channels.
//
// Each channel feeds the two inputs of one AT8236 H-bridge. The channel
// keeps a drive bit and a direction bit and rederives both bridge inputs
// on every change: coast is both low, forward asserts the high-side input,
// reverse the low-side input. Pins are configured on the first touch of a
// channel; later touches reuse the configuration.
package ch32

import (
	"fmt"

	"gomcu/core"
)

type motorChannel struct {
	configured bool
	drive      bool
	dir        bool
}

// Motors implements core.MotorDriver over pairs of GPIO outputs.
type Motors struct {
	pins     *PinDriver
	channels [core.MotorChannels]motorChannel
}

// NewMotors builds the channel layer and attaches it to the pin driver so
// that virtual sub-pin handles resolve here.
func NewMotors(pins *PinDriver) *Motors {
	m := &Motors{pins: pins}
	pins.bindMotors(m)
	return m
}

func (m *Motors) channel(ch core.MotorChannel, role core.MotorRole) (*motorChannel, error) {
	if int(ch) >= core.MotorChannels {
		return nil, fmt.Errorf("invalid motor channel %d", ch)
	}
	if role > core.MotorDir {
		return nil, fmt.Errorf("invalid motor role %d", role)
	}
	return &m.channels[ch], nil
}

// ensure configures a channel's pin pair on first use. Both bridge inputs
// start low so the motor coasts.
func (m *Motors) ensure(ch core.MotorChannel, st *motorChannel) error {
	if st.configured {
		return nil
	}
	if err := m.pins.SetupOutput(motorHighPins[ch], false); err != nil {
		return err
	}
	if err := m.pins.SetupOutput(motorLowPins[ch], false); err != nil {
		return err
	}
	st.drive = false
	st.dir = false
	st.configured = true
	return nil
}

// apply projects the (drive, dir) state onto the bridge inputs.
func (m *Motors) apply(ch core.MotorChannel, st *motorChannel) error {
	high, low := false, false
	if st.drive {
		if st.dir {
			low = true
		} else {
			high = true
		}
	}
	if err := m.pins.Write(motorHighPins[ch], high); err != nil {
		return err
	}
	return m.pins.Write(motorLowPins[ch], low)
}

func (m *Motors) setRole(st *motorChannel, role core.MotorRole, value bool) {
	if role == core.MotorDir {
		st.dir = value
	} else {
		st.drive = value
	}
}

// WriteRole updates one sub-pin and rederives the bridge outputs.
func (m *Motors) WriteRole(ch core.MotorChannel, role core.MotorRole, value bool) error {
	st, err := m.channel(ch, role)
	if err != nil {
		return err
	}
	if err := m.ensure(ch, st); err != nil {
		return err
	}
	m.setRole(st, role, value)
	return m.apply(ch, st)
}

// ToggleRole flips one sub-pin and rederives the bridge outputs.
func (m *Motors) ToggleRole(ch core.MotorChannel, role core.MotorRole) error {
	st, err := m.channel(ch, role)
	if err != nil {
		return err
	}
	if err := m.ensure(ch, st); err != nil {
		return err
	}
	if role == core.MotorDir {
		st.dir = !st.dir
	} else {
		st.drive = !st.drive
	}
	return m.apply(ch, st)
}

// ReadRole returns the stored state of one sub-pin.
func (m *Motors) ReadRole(ch core.MotorChannel, role core.MotorRole) (bool, error) {
	st, err := m.channel(ch, role)
	if err != nil {
		return false, err
	}
	if role == core.MotorDir {
		return st.dir, nil
	}
	return st.drive, nil
}

// Coast releases a channel: both bridge inputs low.
func (m *Motors) Coast(ch core.MotorChannel) error {
	return m.WriteRole(ch, core.MotorDrive, false)
}

// Forward runs a channel forward.
func (m *Motors) Forward(ch core.MotorChannel) error {
	st, err := m.channel(ch, core.MotorDrive)
	if err != nil {
		return err
	}
	if err := m.ensure(ch, st); err != nil {
		return err
	}
	st.drive = true
	st.dir = false
	return m.apply(ch, st)
}

// Reverse runs a channel in reverse.
func (m *Motors) Reverse(ch core.MotorChannel) error {
	st, err := m.channel(ch, core.MotorDrive)
	if err != nil {
		return err
	}
	if err := m.ensure(ch, st); err != nil {
		return err
	}
	st.drive = true
	st.dir = true
	return m.apply(ch, st)
}

// CoastAll releases every configured channel. Used on shutdown, so errors
// are not propagated; an unconfigured channel is already coasting.
func (m *Motors) CoastAll() {
	for ch := range m.channels {
		st := &m.channels[ch]
		if !st.configured {
			continue
		}
		st.drive = false
		m.apply(core.MotorChannel(ch), st)
	}
}
