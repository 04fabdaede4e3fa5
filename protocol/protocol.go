// Package protocol implements the Klipper MCU wire format: framed
// messages carrying a VLQ-encoded command stream, with a
// length/sequence header, a big-endian CRC-16 and a 0x7e sync byte.
//
// On the wire a message looks like
//
//	[len][seq][payload...][crc_hi][crc_lo][0x7e]
//
// where len covers the whole message and seq carries a 4-bit rolling
// counter in its low bits with MessageDest in the high bits.
package protocol

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3 // offset back from the end of the message
	MessageTrailerSync = 1
	MessageValueSync   = 0x7e
	MessageSeqMask     = 0x0f
	MessageDest        = 0x10

	// MessageMax sizes the scratch output buffer. It is deliberately
	// larger than one frame so several queued responses fit between
	// flushes of the serial link.
	MessageMax = 512
)
