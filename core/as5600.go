// AS5600 magnetic angle sensor, used as the filament odometer on the
// spool bus. Each poll reads the raw 12-bit angle and accumulates the
// shortest-path delta into a signed position counter, so the host sees
// continuous travel instead of a wrapping angle.
package core

import "errors"

// ErrNoMagnet reports a sample taken without a detected magnet.
var ErrNoMagnet = errors.New("as5600: magnet not detected")

// AS5600 is one angle sensor on an I2C bus.
type AS5600 struct {
	port I2CPort

	lastAngle uint16
	haveAngle bool
	position  int32
}

// NewAS5600 claims the sensor's fixed address on the given bus.
func NewAS5600(bus, rate uint32) (*AS5600, error) {
	port, err := MustI2C().Setup(bus, rate, AS5600_ADDR)
	if err != nil {
		return nil, err
	}
	return &AS5600{port: port}, nil
}

func (s *AS5600) Name() string {
	return "as5600"
}

// Position returns the accumulated odometer count in angle LSBs
// (4096 per revolution).
func (s *AS5600) Position() int32 {
	return s.position
}

// readReg reads n consecutive registers starting at reg.
func (s *AS5600) readReg(reg uint8, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := s.port.Read([]byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Sample reads STATUS, RAWANGLE and AGC and returns a 7-byte payload:
// status, angle (2 bytes big-endian), position (4 bytes big-endian).
func (s *AS5600) Sample() ([]byte, error) {
	status, err := s.readReg(AS5600_STATUS, 1)
	if err != nil {
		return nil, err
	}
	if status[0]&AS5600_STATUS_MD == 0 {
		// No magnet means no spool on this channel; the angle output
		// is garbage, so the accumulator must not move.
		return nil, ErrNoMagnet
	}

	raw, err := s.readReg(AS5600_RAWANGLE_H, 2)
	if err != nil {
		return nil, err
	}
	angle := (uint16(raw[0])<<8 | uint16(raw[1])) & AS5600_ANGLE_MASK

	if s.haveAngle {
		// Sign-extend the 12-bit difference so a wrap across 0
		// becomes a small signed step.
		delta := int16((angle-s.lastAngle)<<4) >> 4
		s.position += int32(delta)
	}
	s.lastAngle = angle
	s.haveAngle = true

	return []byte{
		status[0],
		byte(angle >> 8), byte(angle),
		byte(s.position >> 24), byte(s.position >> 16),
		byte(s.position >> 8), byte(s.position),
	}, nil
}

// WriteRaw writes register/value pairs, letting the host set ZPOS or
// CONF without a dedicated command.
func (s *AS5600) WriteRaw(data []byte) error {
	if len(data) == 0 || len(data)%2 != 0 {
		return errors.New("as5600: write data must be reg/value pairs")
	}
	for i := 0; i < len(data); i += 2 {
		if err := s.port.Write(data[i : i+2]); err != nil {
			return err
		}
	}
	return nil
}
