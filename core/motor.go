// Motor channel objects for the four H-bridge feed motors. The bridge
// sub-pins are also reachable as virtual pins through the digital_out
// commands; this module adds channel-level commands so the host can
// switch a whole channel between coast, forward and reverse atomically
// and schedule direction changes against the clock.
package core

import (
	"fmt"

	"gomcu/protocol"
)

// Motor channel drive states on the wire.
const (
	MotorStateCoast   = 0
	MotorStateForward = 1
	MotorStateReverse = 2
)

// MotorOut is one configured motor channel.
type MotorOut struct {
	OID     uint8
	Channel MotorChannel
	State   uint8

	Timer Timer

	// Scheduled state applied when the timer fires.
	PendingState uint8
}

var motorOuts = make(map[uint8]*MotorOut)

// InitMotorCommands registers the motor_channel command family.
func InitMotorCommands() {
	RegisterCommand("config_motor_channel", "oid=%c channel=%c", handleConfigMotorChannel)
	RegisterCommand("motor_channel_set", "oid=%c state=%c", handleMotorChannelSet)
	RegisterCommand("queue_motor_channel", "oid=%c clock=%u state=%c", handleQueueMotorChannel)
	RegisterCommand("motor_channel_query", "oid=%c", handleMotorChannelQuery)
	RegisterResponse("motor_channel_state", "oid=%c state=%c drive=%c dir=%c")
}

func handleConfigMotorChannel(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	channel, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if channel >= MotorChannels {
		return fmt.Errorf("invalid motor channel %d", channel)
	}

	mo := &MotorOut{OID: uint8(oid), Channel: MotorChannel(channel)}

	// Configuration leaves the channel coasting.
	if err := MustMotor().Coast(mo.Channel); err != nil {
		return err
	}

	motorOuts[uint8(oid)] = mo
	return nil
}

// applyMotorState drives a channel into one of the three wire states.
func applyMotorState(mo *MotorOut, state uint8) error {
	var err error
	switch state {
	case MotorStateCoast:
		err = MustMotor().Coast(mo.Channel)
	case MotorStateForward:
		err = MustMotor().Forward(mo.Channel)
	case MotorStateReverse:
		err = MustMotor().Reverse(mo.Channel)
	default:
		return fmt.Errorf("invalid motor state %d", state)
	}
	if err != nil {
		return err
	}
	mo.State = state
	return nil
}

func handleMotorChannelSet(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	state, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	mo, exists := motorOuts[uint8(oid)]
	if !exists {
		return nil
	}
	return applyMotorState(mo, uint8(state))
}

func handleQueueMotorChannel(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	state, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if state > MotorStateReverse {
		return fmt.Errorf("invalid motor state %d", state)
	}

	mo, exists := motorOuts[uint8(oid)]
	if !exists {
		return nil
	}

	mo.PendingState = uint8(state)
	mo.Timer.Next = nil
	mo.Timer.WakeTime = clock
	mo.Timer.Handler = mo.loadEvent
	ScheduleTimer(&mo.Timer)
	return nil
}

func handleMotorChannelQuery(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	mo, exists := motorOuts[uint8(oid)]
	if !exists {
		return nil
	}

	drive, err := MustMotor().ReadRole(mo.Channel, MotorDrive)
	if err != nil {
		return err
	}
	dir, err := MustMotor().ReadRole(mo.Channel, MotorDir)
	if err != nil {
		return err
	}

	SendResponse("motor_channel_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(mo.State))
		protocol.EncodeVLQUint(output, boolToUint(drive))
		protocol.EncodeVLQUint(output, boolToUint(dir))
	})
	return nil
}

// loadEvent applies a scheduled channel state.
func (mo *MotorOut) loadEvent(t *Timer) uint8 {
	_ = applyMotorState(mo, mo.PendingState)
	return SF_DONE
}
