package core

import (
	"fmt"
	"strconv"
)

// PortID identifies a GPIO port. The wire protocol numbers ports from 0
// ('A'); how many ports exist is a property of the target.
type PortID uint8

const (
	PortA PortID = iota
	PortB
	PortC
	PortD
	PortE
)

// MotorChannel identifies one H-bridge motor channel.
type MotorChannel uint8

// MotorRole selects one of the two sub-pins of a motor channel.
type MotorRole uint8

const (
	// MotorDrive is the drive sub-pin: 0 coasts, 1 runs the channel.
	MotorDrive MotorRole = 0
	// MotorDir is the direction sub-pin: 0 forward, 1 reverse.
	MotorDir MotorRole = 1
)

// Wire layout of the pin namespace. Physical pins occupy [0, VirtualPinBase)
// as port*16+index; the motor-channel sub-pins occupy a small window starting
// at VirtualPinBase as channel*2+role.
const (
	pinsPerPort    = 16
	VirtualPinBase = 256
	MotorChannels  = 4
	motorRoles     = 2
)

type pinKind uint8

const (
	pinPhysical pinKind = iota
	pinVirtual
)

// PinHandle names a pin across the HAL boundary. It is a tagged value:
// either a physical port pin or one sub-pin of a virtual motor channel.
// The zero value is PA0.
type PinHandle struct {
	kind    pinKind
	port    PortID
	index   uint8
	channel MotorChannel
	role    MotorRole
}

// PhysicalPin builds a handle for a port pin. Validity (does the port exist
// on this target) is checked by the driver that receives the handle.
func PhysicalPin(port PortID, index uint8) PinHandle {
	return PinHandle{kind: pinPhysical, port: port, index: index}
}

// VirtualPin builds a handle for a motor-channel sub-pin.
func VirtualPin(channel MotorChannel, role MotorRole) PinHandle {
	return PinHandle{kind: pinVirtual, channel: channel, role: role}
}

// ParseWirePin decodes a pin number from the wire into a handle. Numbers
// outside the physical range and the virtual window are rejected here;
// whether a decoded physical pin exists is up to the target driver.
func ParseWirePin(raw uint32) (PinHandle, error) {
	if raw < VirtualPinBase {
		return PhysicalPin(PortID(raw/pinsPerPort), uint8(raw%pinsPerPort)), nil
	}
	v := raw - VirtualPinBase
	if v >= MotorChannels*motorRoles {
		return PinHandle{}, fmt.Errorf("invalid pin %d", raw)
	}
	return VirtualPin(MotorChannel(v/motorRoles), MotorRole(v%motorRoles)), nil
}

// IsVirtual reports whether the handle names a motor-channel sub-pin.
func (h PinHandle) IsVirtual() bool { return h.kind == pinVirtual }

// Port returns the port of a physical handle.
func (h PinHandle) Port() PortID { return h.port }

// Index returns the pin index within the port of a physical handle.
func (h PinHandle) Index() uint8 { return h.index }

// Channel returns the motor channel of a virtual handle.
func (h PinHandle) Channel() MotorChannel { return h.channel }

// Role returns the sub-pin role of a virtual handle.
func (h PinHandle) Role() MotorRole { return h.role }

// Wire returns the pin number used on the wire for this handle.
func (h PinHandle) Wire() uint32 {
	if h.kind == pinVirtual {
		return VirtualPinBase + uint32(h.channel)*motorRoles + uint32(h.role)
	}
	return uint32(h.port)*pinsPerPort + uint32(h.index)
}

// String renders the configuration name: "PA0".."PE15" for physical pins,
// "AT8236_M1_DRIVE".."AT8236_M4_DIR" for motor sub-pins.
func (h PinHandle) String() string {
	if h.kind == pinVirtual {
		suffix := "_DRIVE"
		if h.role == MotorDir {
			suffix = "_DIR"
		}
		return "AT8236_M" + strconv.Itoa(int(h.channel)+1) + suffix
	}
	return "P" + string(rune('A'+h.port)) + strconv.Itoa(int(h.index))
}
