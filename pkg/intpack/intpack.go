// Package intpack packs bounded batches of 64-bit integers with
// frame-of-reference coding.
//
// Batch layout:
//
//	header: 1 byte   mode (bits 0-1) | width code (bits 2-4)
//	base:   uvarint  minimum value (mode FOR) or first value (delta modes)
//	body:   ceil(k*width/8) bytes, k packed values, least significant bit first
//
// Modes:
//
//	0 FOR:        value[i] = base + body[i]                      k = n
//	1 delta:      value[i] = value[i-1] + body[i-1]              k = n-1
//	2 zig-zag:    value[i] = value[i-1] + unzigzag(body[i-1])    k = n-1
//
// Widths are restricted to powers of two so that a packed value never spans
// two 64-bit words. The batch length is not stored; the reader must know it.
package intpack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/eunmann/typedblock/pkg/wire"
)

// BatchSize is the maximum number of values in one batch.
const BatchSize = 128

// ErrBadHeader indicates a batch header with an unknown mode or width.
var ErrBadHeader = errors.New("invalid frame-of-reference header")

const (
	modeFOR = iota
	modeDelta
	modeZigZag
	numModes
)

var widths = [8]uint{0, 1, 2, 4, 8, 16, 32, 64}

// widthCode returns the smallest width code holding nbits bits.
func widthCode(nbits int) byte {
	for code, w := range widths {
		if uint(nbits) <= w {
			return byte(code)
		}
	}
	return 7
}

func zigzag(d int64) uint64 { return uint64(d<<1) ^ uint64(d>>63) }

func unzigzag(z uint64) int64 { return int64(z>>1) ^ -int64(z&1) }

// Pack appends one batch. len(batch) must be between 1 and BatchSize.
func Pack(w *wire.Writer, batch []uint64) {
	n := len(batch)
	if n == 0 {
		return
	}
	if n > BatchSize {
		panic(fmt.Sprintf("intpack: batch of %d exceeds %d", n, BatchSize))
	}

	lo, hi := batch[0], batch[0]
	sorted := true
	var maxDelta, maxZig uint64
	for i := 1; i < n; i++ {
		v := batch[i]
		lo = min(lo, v)
		hi = max(hi, v)
		if v < batch[i-1] {
			sorted = false
		} else {
			maxDelta = max(maxDelta, v-batch[i-1])
		}
		maxZig = max(maxZig, zigzag(int64(v-batch[i-1])))
	}

	mode := byte(modeFOR)
	code := widthCode(bits.Len64(hi - lo))
	cost := int(widths[code]) * n
	if n > 1 {
		if zc := widthCode(bits.Len64(maxZig)); int(widths[zc])*(n-1) < cost {
			mode, code, cost = modeZigZag, zc, int(widths[zc])*(n-1)
		}
		if sorted {
			if dc := widthCode(bits.Len64(maxDelta)); int(widths[dc])*(n-1) < cost {
				mode, code = modeDelta, dc
			}
		}
	}

	w.PutByte(mode | code<<2)
	width := widths[code]
	if mode == modeFOR {
		w.PutUvarint(lo)
		body := w.Grow(bodyLen(n, width))
		for i, v := range batch {
			put(body, i, width, v-lo)
		}
		return
	}

	w.PutUvarint(batch[0])
	body := w.Grow(bodyLen(n-1, width))
	for i := 1; i < n; i++ {
		d := batch[i] - batch[i-1]
		if mode == modeZigZag {
			d = zigzag(int64(d))
		}
		put(body, i-1, width, d)
	}
}

// Unpack reads one batch of len(dst) values into dst.
func Unpack(r *wire.Reader, dst []uint64) error {
	n := len(dst)
	if n == 0 {
		return nil
	}
	mode, width, err := readHeader(r)
	if err != nil {
		return err
	}
	base, err := r.ReadUvarint()
	if err != nil {
		return fmt.Errorf("read batch base: %w", err)
	}

	k := n
	if mode != modeFOR {
		k = n - 1
	}
	body, err := r.Next(bodyLen(k, width))
	if err != nil {
		return fmt.Errorf("read batch body: %w", err)
	}

	switch mode {
	case modeFOR:
		for i := range dst {
			dst[i] = base + get(body, i, width)
		}
	case modeDelta:
		dst[0] = base
		for i := 1; i < n; i++ {
			dst[i] = dst[i-1] + get(body, i-1, width)
		}
	case modeZigZag:
		dst[0] = base
		for i := 1; i < n; i++ {
			dst[i] = dst[i-1] + uint64(unzigzag(get(body, i-1, width)))
		}
	}
	return nil
}

// Skip steps over one batch of count values without unpacking it.
func Skip(r *wire.Reader, count int) error {
	if count == 0 {
		return nil
	}
	mode, width, err := readHeader(r)
	if err != nil {
		return err
	}
	if _, err := r.ReadUvarint(); err != nil {
		return fmt.Errorf("read batch base: %w", err)
	}
	k := count
	if mode != modeFOR {
		k = count - 1
	}
	if err := r.Skip(bodyLen(k, width)); err != nil {
		return fmt.Errorf("skip batch body: %w", err)
	}
	return nil
}

func readHeader(r *wire.Reader) (mode byte, width uint, err error) {
	h, err := r.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("read batch header: %w", err)
	}
	mode = h & 0x3
	code := (h >> 2) & 0x7
	if mode >= numModes || h>>5 != 0 {
		return 0, 0, fmt.Errorf("%w: 0x%02x", ErrBadHeader, h)
	}
	return mode, widths[code], nil
}

func bodyLen(k int, width uint) int {
	return (k*int(width) + 7) / 8
}

func put(body []byte, i int, width uint, v uint64) {
	switch width {
	case 0:
	case 1, 2, 4:
		pos := uint(i) * width
		body[pos/8] |= byte(v << (pos % 8))
	case 8:
		body[i] = byte(v)
	case 16:
		binary.LittleEndian.PutUint16(body[2*i:], uint16(v))
	case 32:
		binary.LittleEndian.PutUint32(body[4*i:], uint32(v))
	case 64:
		binary.LittleEndian.PutUint64(body[8*i:], v)
	}
}

func get(body []byte, i int, width uint) uint64 {
	switch width {
	case 1, 2, 4:
		pos := uint(i) * width
		return uint64(body[pos/8]>>(pos%8)) & (1<<width - 1)
	case 8:
		return uint64(body[i])
	case 16:
		return uint64(binary.LittleEndian.Uint16(body[2*i:]))
	case 32:
		return uint64(binary.LittleEndian.Uint32(body[4*i:]))
	case 64:
		return binary.LittleEndian.Uint64(body[8*i:])
	}
	return 0
}
