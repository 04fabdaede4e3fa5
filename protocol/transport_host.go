package protocol

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ResponseHandler is called for each response frame received from the
// device, after the leading response ID has been decoded.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host side of the link: it frames outgoing
// commands, waits for the matching ACK, and hands received responses
// to a channel or callback. A background goroutine owns the serial
// read loop.
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq     uint32 // atomic, 0x10-0x1f
	isSynchronized uint32 // atomic bool

	inputBuffer  *FifoBuffer
	outputBuffer *bytes.Buffer

	ackChan      chan *Message
	responseChan chan *Message

	responseHandler ResponseHandler

	writeMutex sync.Mutex
	readMutex  sync.Mutex

	stopChan chan struct{}
	doneChan chan struct{}
}

// Message is one parsed frame.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // frame contents without header or trailer
	CRC      uint16
}

func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		inputBuffer:  NewFifoBuffer(512),
		outputBuffer: bytes.NewBuffer(make([]byte, 0, 256)),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}

	atomic.StoreUint32(&t.isSynchronized, 1)

	go t.readLoop()

	return t
}

// SendCommand frames a command, writes it and blocks until the device
// acknowledges it or the default timeout passes.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	msg, err := t.buildCommandMessage(cmdID, args)
	if err != nil {
		return fmt.Errorf("build command: %w", err)
	}

	if err := t.writeMessage(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	if err := t.waitForAck(timeout); err != nil {
		return fmt.Errorf("await ack: %w", err)
	}

	return nil
}

func (t *HostTransport) buildCommandMessage(cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	t.outputBuffer.Reset()

	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	t.outputBuffer.Write([]byte{0, seq}) // length patched below

	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}

	payload := scratch.Result()
	t.outputBuffer.Write(payload)

	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", msgLen, MessageLengthMax)
	}

	data := t.outputBuffer.Bytes()
	data[MessagePositionLen] = uint8(msgLen)

	crc := CRC16(data[:MessageHeaderSize+len(payload)])
	t.outputBuffer.Write([]byte{uint8(crc >> 8), uint8(crc & 0xff), MessageValueSync})

	msgCopy := make([]byte, t.outputBuffer.Len())
	copy(msgCopy, t.outputBuffer.Bytes())

	return msgCopy, nil
}

func (t *HostTransport) writeMessage(msg []byte) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}

	return nil
}

// waitForAck blocks for the ACK matching the in-flight command and
// advances the sequence on success.
func (t *HostTransport) waitForAck(timeout time.Duration) error {
	select {
	case ack := <-t.ackChan:
		expectedSeq := uint8(atomic.LoadUint32(&t.currentSeq))
		if ack.Sequence != expectedSeq {
			return fmt.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", expectedSeq, ack.Sequence)
		}

		nextSeq := ((expectedSeq + 1) & MessageSeqMask) | MessageDest
		atomic.StoreUint32(&t.currentSeq, uint32(nextSeq))

		return nil

	case <-time.After(timeout):
		return fmt.Errorf("ack timeout after %v", timeout)

	case <-t.stopChan:
		return fmt.Errorf("transport stopped")
	}
}

// ReceiveResponse blocks for the next response frame.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("response timeout after %v", timeout)

	case <-t.stopChan:
		return nil, fmt.Errorf("transport stopped")
	}
}

// SetResponseHandler registers a callback invoked from the read loop
// for every response, in addition to the response channel.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.responseHandler = handler
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if err != nil {
			if err == io.EOF {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if n > 0 {
			t.inputBuffer.Write(buffer[:n])
			t.processMessages()
		}
	}
}

func (t *HostTransport) processMessages() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	data := t.inputBuffer.Data()

	for len(data) > 0 {
		if !t.getSynchronized() {
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

			seq := data[MessagePositionSeq]
			payload := make([]byte, msgLen-MessageHeaderSize-MessageTrailerSize)
			copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])

			msg := &Message{
				Length:   data[MessagePositionLen],
				Sequence: seq,
				Payload:  payload,
				CRC:      frameCRC,
			}

			data = data[msgLen:]

			t.dispatchMessage(msg)
		}
	}

	consumed := t.inputBuffer.Available() - len(data)
	if consumed > 0 {
		t.inputBuffer.Pop(consumed)
	}
}

// dispatchMessage routes an empty frame to the ACK channel and
// anything else to the response path.
func (t *HostTransport) dispatchMessage(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
		}
		return
	}

	if t.responseHandler != nil {
		payloadCopy := make([]byte, len(msg.Payload))
		copy(payloadCopy, msg.Payload)
		cmdID, err := DecodeVLQUint(&payloadCopy)
		if err == nil {
			_ = t.responseHandler(uint16(cmdID), &payloadCopy)
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		// Channel full: drop the oldest so fresh state wins.
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the read loop and closes the serial port.
func (t *HostTransport) Close() error {
	close(t.stopChan)
	<-t.doneChan

	if t.port != nil {
		return t.port.Close()
	}
	return nil
}

// Reset drops buffered state and restarts the sequence, as after a
// device reset.
func (t *HostTransport) Reset() {
	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.currentSeq, MessageDest)

	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}

	if t.inputBuffer.Available() > 0 {
		t.inputBuffer.Pop(t.inputBuffer.Available())
	}
}

func (t *HostTransport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *HostTransport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&t.isSynchronized, 0)
	}
}

// GetCurrentSequence reports the next sequence to be sent.
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
