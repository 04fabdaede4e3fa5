// Package bambubus implements the serial framing the BMCU shares with
// Bambu Lab AMS hardware: preambled frames with a CRC8 header check, a
// little-endian CRC16 trailer and short/long length encodings, carried
// over RS-485 at 1.25M baud 8E1.
package bambubus

import (
	"bytes"
	"errors"
	"fmt"
)

// Preamble opens every frame.
var Preamble = []byte{0x3d, 0xc5}

const (
	// A short frame carries its total body length (everything after
	// the preamble) in one byte; a long frame uses two with the high
	// bit of the first set.
	ShortMaxBody = 0x3f
	LongMaxBody  = 0x3fff

	shortOverhead = 8 // len(1) seq src dst cmd crc8 + crc16(2)
	longOverhead  = 9 // len(2) seq src dst cmd crc8 + crc16(2)

	CmdPing        = 0x01
	CmdHome        = 0x02
	CmdSelectGate  = 0x03
	CmdQueryStatus = 0x04

	// Replies: a command acknowledges as itself with AckMask set.
	AckMask   = 0x80
	RspStatus = 0x90
	RspError  = 0x91

	// Error payload codes.
	ErrUnknownCommand = 0x01
	ErrBadArgument    = 0x02

	// Default bus addresses.
	HostAddress   = 0x01
	DeviceAddress = 0x11

	// Link parameters.
	BaudRate = 1250000
)

var ErrPayloadTooLong = errors.New("payload too long for a bus frame")

// Frame is one decoded bus message.
type Frame struct {
	Sequence uint8
	Src      uint8
	Dst      uint8
	Command  uint8
	Payload  []byte
	Long     bool
}

// BuildFrame assembles a complete wire frame. The long form is used
// only when the payload does not fit the short one.
func BuildFrame(seq, src, dst, cmd uint8, payload []byte) ([]byte, error) {
	long := len(payload)+shortOverhead > ShortMaxBody

	frame := make([]byte, 0, len(payload)+2+longOverhead)
	frame = append(frame, Preamble...)
	if long {
		bodyLen := len(payload) + longOverhead
		if bodyLen > LongMaxBody {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(payload))
		}
		frame = append(frame, 0x80|uint8(bodyLen>>8), uint8(bodyLen))
	} else {
		frame = append(frame, uint8(len(payload)+shortOverhead))
	}
	frame = append(frame, seq, src, dst, cmd)
	frame = append(frame, CRC8(frame))
	frame = append(frame, payload...)

	crc := CRC16(frame)
	frame = append(frame, uint8(crc), uint8(crc>>8))
	return frame, nil
}

// Codec builds outgoing frames with a rolling sequence number.
type Codec struct {
	src uint8
	dst uint8
	seq uint8
}

func NewCodec(src, dst uint8) *Codec {
	return &Codec{src: src, dst: dst}
}

// Build frames one command to the codec's peer and advances the
// sequence.
func (c *Codec) Build(cmd uint8, payload []byte) ([]byte, error) {
	frame, err := BuildFrame(c.seq, c.src, c.dst, cmd, payload)
	if err != nil {
		return nil, err
	}
	c.seq++
	return frame, nil
}

// decodeLength reads the body length field at off. It reports the
// field size and whether the long form was used.
func decodeLength(buf []byte, off int) (bodyLen, size int, long bool, ok bool) {
	b := buf[off]
	if b&0x80 != 0 {
		if off+1 >= len(buf) {
			return 0, 0, false, false
		}
		bodyLen = int(b&0x3f)<<8 | int(buf[off+1])
		if bodyLen < longOverhead {
			return 0, 0, false, false
		}
		return bodyLen, 2, true, true
	}
	if int(b) < shortOverhead {
		return 0, 0, false, false
	}
	return int(b), 1, false, true
}

// ExtractFrames scans buf for valid frames and returns them along with
// the number of bytes consumed. Corrupt candidates are skipped one
// byte at a time so a bad length field cannot swallow a good frame
// behind it; an incomplete frame at the tail is left unconsumed.
func ExtractFrames(buf []byte) ([]Frame, int) {
	var frames []Frame
	start := 0

	for {
		sync := bytes.Index(buf[start:], Preamble)
		if sync < 0 {
			// Keep a trailing preamble half in the buffer.
			if len(buf) > 0 && buf[len(buf)-1] == Preamble[0] {
				return frames, len(buf) - 1
			}
			return frames, len(buf)
		}
		sync += start

		if sync+3 > len(buf) {
			return frames, sync
		}

		bodyLen, lengthSize, long, ok := decodeLength(buf, sync+2)
		if !ok {
			start = sync + 1
			continue
		}

		end := sync + 2 + bodyLen
		if end > len(buf) {
			return frames, sync
		}

		frame := buf[sync:end]
		headerCRCIdx := 2 + lengthSize + 4
		if CRC8(frame[:headerCRCIdx]) != frame[headerCRCIdx] {
			start = sync + 1
			continue
		}

		payloadEnd := len(frame) - 2
		gotCRC := uint16(frame[payloadEnd]) | uint16(frame[payloadEnd+1])<<8
		if CRC16(frame[:payloadEnd]) != gotCRC {
			start = sync + 1
			continue
		}

		seqIdx := 2 + lengthSize
		payload := make([]byte, payloadEnd-(headerCRCIdx+1))
		copy(payload, frame[headerCRCIdx+1:payloadEnd])

		frames = append(frames, Frame{
			Sequence: frame[seqIdx],
			Src:      frame[seqIdx+1],
			Dst:      frame[seqIdx+2],
			Command:  frame[seqIdx+3],
			Payload:  payload,
			Long:     long,
		})
		start = end
	}
}
