// Package wire provides the append-only byte sink and forward-only byte
// cursor that typed block codecs write to and read from.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated indicates a read past the end of the buffer.
var ErrTruncated = errors.New("truncated data")

// Writer appends encoded fields to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity hint n.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// WriteByte appends one byte. It never fails.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// PutByte appends one byte.
func (w *Writer) PutByte(b byte) {
	w.buf = append(w.buf, b)
}

// PutBool appends a bool as a single 0/1 byte.
func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// PutUvarint appends an unsigned LEB128 varint.
func (w *Writer) PutUvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// PutVarint appends a zig-zag signed varint.
func (w *Writer) PutVarint(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

// PutUint64 appends a fixed little-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Write appends raw bytes. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// PutString appends the raw bytes of s with no length prefix.
func (w *Writer) PutString(s string) {
	w.buf = append(w.buf, s...)
}

// Grow extends the buffer by n zero bytes and returns the new region.
func (w *Writer) Grow(n int) []byte {
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start:]
}

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes. The slice aliases the Writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Reset discards all written bytes, keeping the allocation.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Reader is a forward-only cursor over a byte slice.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a cursor positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// ReadByte reads one byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, fmt.Errorf("read byte at %d: %w", r.off, ErrTruncated)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadBool reads a single 0/1 byte. Any non-zero byte is true.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadUvarint reads an unsigned varint.
func (r *Reader) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("read uvarint at %d: %w", r.off, ErrTruncated)
	}
	r.off += n
	return v, nil
}

// ReadVarint reads a zig-zag signed varint.
func (r *Reader) ReadVarint() (int64, error) {
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("read varint at %d: %w", r.off, ErrTruncated)
	}
	r.off += n
	return v, nil
}

// ReadUint64 reads a fixed little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	p, err := r.Next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// Next returns the next n bytes without copying and advances past them.
func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("read %d bytes at %d of %d: %w", n, r.off, len(r.buf), ErrTruncated)
	}
	p := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return p, nil
}

// Skip advances past n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.Next(n)
	return err
}
