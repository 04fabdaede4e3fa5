package protocol

import (
	"bytes"
	"testing"
)

func TestVLQKnownEncodings(t *testing.T) {
	cases := []struct {
		value int32
		want  []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{-1, []byte{0x7f}},
		{95, []byte{0x5f}},
		{96, []byte{0x80, 0x60}},
		{-32, []byte{0x60}},
		{-33, []byte{0xff, 0x5f}},
		{300, []byte{0x82, 0x2c}},
	}

	for _, tc := range cases {
		output := NewScratchOutput()
		EncodeVLQInt(output, tc.value)
		if got := output.Result(); !bytes.Equal(got, tc.want) {
			t.Errorf("encode %d = %#v, want %#v", tc.value, got, tc.want)
		}
	}
}

func TestVLQRoundTripInt(t *testing.T) {
	values := []int32{
		0, 1, -1, 31, -32, 96, -33, 127, -128, 255,
		1000, -1000, 65535, -65535, 1 << 20, -(1 << 20),
		1<<31 - 1, -(1 << 31),
	}

	for _, want := range values {
		output := NewScratchOutput()
		EncodeVLQInt(output, want)
		encoded := output.Result()

		data := encoded
		got, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("decode of %d (%v) failed: %v", want, encoded, err)
			continue
		}
		if got != want {
			t.Errorf("round trip of %d gave %d (%v)", want, got, encoded)
		}
		if len(data) != 0 {
			t.Errorf("decode of %d left %d bytes unread", want, len(data))
		}
	}
}

func TestVLQRoundTripUint(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 255, 4095, 1 << 16, 1 << 24, 1<<32 - 1}

	for _, want := range values {
		output := NewScratchOutput()
		EncodeVLQUint(output, want)

		data := output.Result()
		got, err := DecodeVLQUint(&data)
		if err != nil {
			t.Fatalf("decode of %d failed: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip of %d gave %d", want, got)
		}
	}
}

func TestVLQBytes(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01},
		{0x01, 0x02, 0x03},
		{0xff, 0xfe, 0xfd},
		make([]byte, 50),
	}

	for _, want := range cases {
		output := NewScratchOutput()
		EncodeVLQBytes(output, want)

		data := output.Result()
		got, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Fatalf("decode of %d-byte string failed: %v", len(want), err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("round trip gave %v, want %v", got, want)
		}
		if len(data) != 0 {
			t.Errorf("decode left %d bytes unread", len(data))
		}
	}
}

func TestVLQTruncated(t *testing.T) {
	// Continuation bit set with nothing after it.
	data := []byte{0x80}
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}

	// Byte string whose announced length exceeds the data.
	data = []byte{0x05, 0x01, 0x02}
	if _, err := DecodeVLQBytes(&data); err != ErrBufferTooSmall {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}

	// Empty input.
	data = nil
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
}
