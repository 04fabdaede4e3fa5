// Package tinycompress emits zlib streams built from stored DEFLATE
// blocks. No compression happens: the point is a dictionary payload any
// standard inflater accepts, produced without pulling compress/flate's
// tables and allocator into a TinyGo binary.
package tinycompress

import (
	"hash"
	"hash/adler32"
	"io"
)

// maxStoredBlock is the largest payload one stored DEFLATE block can
// carry (the block length field is 16 bits).
const maxStoredBlock = 0xffff

// zlibHeader declares deflate with a 32KB window, default compression.
// Inflaters only look at the method and the window size.
var zlibHeader = [2]byte{0x78, 0x9c}

// Writer accumulates input and emits it as a zlib stream on Close.
type Writer struct {
	out   io.Writer
	buf   []byte
	adler hash.Hash32
}

// NewWriter returns a writer that sends the finished stream to w. The
// input buffer is sized for a full dictionary up front so Write never
// reallocates.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		out:   w,
		buf:   make([]byte, 0, 8192),
		adler: adler32.New(),
	}
}

// Write buffers p. The stream goes out on Close.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	w.adler.Write(p)
	return len(p), nil
}

// Close emits the header, the buffered data as stored blocks and the
// Adler-32 trailer.
func (w *Writer) Close() error {
	if _, err := w.out.Write(zlibHeader[:]); err != nil {
		return err
	}

	data := w.buf
	for {
		n := len(data)
		if n > maxStoredBlock {
			n = maxStoredBlock
		}

		final := byte(0)
		if n == len(data) {
			final = 1
		}

		// Stored block: type 00, then length and its one's complement,
		// both little endian.
		hdr := [5]byte{
			final,
			byte(n), byte(n >> 8),
			byte(^n), byte(^n >> 8),
		}
		if _, err := w.out.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.out.Write(data[:n]); err != nil {
			return err
		}

		if final == 1 {
			break
		}
		data = data[n:]
	}

	sum := w.adler.Sum32()
	trailer := [4]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	_, err := w.out.Write(trailer[:])
	return err
}
