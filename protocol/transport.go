package protocol

import "sync/atomic"

// CommandHandler is called once per command decoded from a frame. The
// handler consumes its arguments from *data and leaves the remainder
// for the next command in the same frame.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device side of the link. It validates incoming
// frames, tracks the host's rolling sequence number, acknowledges
// every frame and encodes outgoing responses.
//
// The same sequence value serves both directions: it is the next
// sequence expected from the host and the one stamped on ACKs and
// responses, which is how the host learns what the device expects.
type Transport struct {
	isSynchronized uint32 // atomic bool
	nextSequence   uint32 // atomic, 0x10-0x1f

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func() // invoked when the host restarts its sequence
	flushCallback func() // invoked to push an ACK out immediately
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		isSynchronized: 1,
		nextSequence:   MessageDest,
		output:         output,
		handler:        handler,
	}
}

// Receive parses as many complete frames as input holds and consumes
// the bytes it used. Partial frames stay buffered for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.getSynchronized() {
			// Scan for a sync byte; everything before it is noise
			// left over from the framing error that desynced us.
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}

			if syncPos >= 0 {
				data = data[syncPos+1:]
				t.setSynchronized(true)
				t.sendAck()
			} else {
				data = nil
			}
		} else {
			if data[0] == MessageValueSync {
				data = data[1:]
				continue
			}

			if len(data) < MessageLengthMin {
				break
			}

			msgLen := int(data[MessagePositionLen])
			if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
				t.setSynchronized(false)
				continue
			}

			seq := data[MessagePositionSeq]
			if seq&^MessageSeqMask != MessageDest {
				t.setSynchronized(false)
				continue
			}

			if len(data) < msgLen {
				break
			}

			if data[msgLen-MessageTrailerSync] != MessageValueSync {
				t.setSynchronized(false)
				continue
			}

			frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
				uint16(data[msgLen-MessageTrailerCRC+1])
			if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
				t.setSynchronized(false)
				continue
			}

			frame := data[MessageHeaderSize : msgLen-MessageTrailerSize]
			data = data[msgLen:]

			// A sequence back at MessageDest after we advanced means
			// the host restarted; drop our state and follow it.
			expectedSeq := uint8(atomic.LoadUint32(&t.nextSequence))
			if seq == MessageDest && expectedSeq != MessageDest {
				atomic.StoreUint32(&t.nextSequence, MessageDest)
				expectedSeq = MessageDest
				if t.resetCallback != nil {
					t.resetCallback()
				}
			}

			if seq == expectedSeq {
				nextSeq := ((seq + 1) & MessageSeqMask) | MessageDest
				atomic.StoreUint32(&t.nextSequence, uint32(nextSeq))
				_ = t.parseFrame(frame)
			}
			// Acknowledge either way. On a sequence mismatch the ACK
			// carries the expected number, which the host treats as a
			// NAK and retransmits from.
			t.sendAck()
		}
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame dispatches the commands packed into one frame. A panic in
// a handler forces a resync instead of taking the firmware down.
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.setSynchronized(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.setSynchronized(false)
			return err
		}

		if t.handler != nil {
			if err := t.handler(uint16(cmdID), &frame); err != nil {
				// Handler errors abort the frame but not the link.
				return err
			}
		}
	}
	return nil
}

// sendAck emits a payload-less frame carrying the expected sequence.
// The host's serial queue blocks on this before it accepts responses,
// so the flush callback pushes it out ahead of any buffered output.
func (t *Transport) sendAck() {
	ns := uint8(atomic.LoadUint32(&t.nextSequence))
	crc := CRC16([]byte{MessageLengthMin, ns})

	t.output.Output([]byte{
		MessageLengthMin,
		ns,
		uint8(crc >> 8),
		uint8(crc & 0xff),
		MessageValueSync,
	})

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one framed message whose payload is produced by
// frameData. The length byte is patched in once the payload size is
// known. The sequence is not advanced: any number of responses may
// share the sequence of the command that triggered them.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()

	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output([]byte{0, seq})

	frameData(t.output)

	written := len(t.output.DataSince(cursor))
	t.output.Update(cursor, uint8(written+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xff),
		MessageValueSync,
	})
}

// SendCommand frames a single command with its encoded arguments.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the link to its initial state, as after a reconnect.
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.nextSequence, MessageDest)

	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers a hook run when a host restart is seen.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback registers a hook run after every ACK so the byte
// can be pushed onto the wire without waiting for the main loop.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

func (t *Transport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *Transport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&t.isSynchronized, 0)
	}
}
