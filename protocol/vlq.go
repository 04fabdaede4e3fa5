package protocol

import "errors"

// ErrBufferTooSmall reports a field that ends before its encoding does.
var ErrBufferTooSmall = errors.New("truncated field")

// Integers travel as Klipper VLQs: seven payload bits per byte, most
// significant group first, continuation bit set on every byte but the
// last. The leading group is sign-folded, so small negative values
// encode in a single byte.

// EncodeVLQInt appends the encoding of v to output. Each range test
// decides whether the corresponding 7-bit group is still needed.
func EncodeVLQInt(output OutputBuffer, v int32) {
	if !(-(1<<26) <= v && v < (3<<26)) {
		output.Output([]byte{byte((v>>28)&0x7f) | 0x80})
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		output.Output([]byte{byte((v>>21)&0x7f) | 0x80})
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		output.Output([]byte{byte((v>>14)&0x7f) | 0x80})
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		output.Output([]byte{byte((v>>7)&0x7f) | 0x80})
	}
	output.Output([]byte{byte(v & 0x7f)})
}

// EncodeVLQUint appends the encoding of v to output. Unsigned values
// share the signed wire form.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one VLQ from the front of *data, advancing the
// slice past the consumed bytes.
func DecodeVLQInt(data *[]byte) (int32, error) {
	if len(*data) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32((*data)[0])
	*data = (*data)[1:]

	v := c & 0x7f
	if (c & 0x60) == 0x60 {
		// Leading group is sign-folded negative.
		v |= ^uint32(0x1f)
	}

	for c&0x80 != 0 {
		if len(*data) == 0 {
			return 0, ErrBufferTooSmall
		}
		c = uint32((*data)[0])
		*data = (*data)[1:]
		v = (v << 7) | (c & 0x7f)
	}

	return int32(v), nil
}

// DecodeVLQUint reads one VLQ from the front of *data as unsigned.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	val, err := DecodeVLQInt(data)
	return uint32(val), err
}

// EncodeVLQBytes appends a length-prefixed byte string to output.
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes reads a length-prefixed byte string from the front of
// *data. The returned slice aliases the input.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	length, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if len(*data) < int(length) {
		return nil, ErrBufferTooSmall
	}
	result := (*data)[:length]
	*data = (*data)[length:]
	return result, nil
}
