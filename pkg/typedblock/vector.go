package typedblock

import (
	"fmt"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/wire"
)

// vectorFormat is the only value of the vector and ndarray reserved byte.
const vectorFormat byte = 0

func encodeVectors(w *wire.Writer, values []flex.Value, extension bool) {
	if extension {
		w.PutByte(vectorFormat)
	}
	lens := make([]uint64, 0, len(values))
	var total int
	for _, v := range values {
		if !v.IsMissing() {
			lens = append(lens, uint64(len(v.Vec())))
			total += len(v.Vec())
		}
	}
	encodeUints(w, lens)

	fs := make([]float64, 0, total)
	for _, v := range values {
		if !v.IsMissing() {
			fs = append(fs, v.Vec()...)
		}
	}
	encodeFloatSlice(w, fs, extension)
}

func readVectorFormat(r *wire.Reader) error {
	format, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read vector format: %w", err)
	}
	if format != vectorFormat {
		return fmt.Errorf("%w: vector format %d", ErrCorrupt, format)
	}
	return nil
}

// sumCounts adds up per-value element counts, rejecting totals the rest of
// the block cannot hold.
func sumCounts(r *wire.Reader, counts []uint64) (int, error) {
	limit := uint64(maxPackedValues(r))
	var total uint64
	for _, c := range counts {
		total += c
		if c > limit || total > limit {
			return 0, fmt.Errorf("%w: %d packed elements in %d bytes", ErrCorrupt, total, r.Remaining())
		}
	}
	return int(total), nil
}

func readVectorLengths(r *wire.Reader, n int, extension bool) ([]uint64, int, error) {
	if extension {
		if err := readVectorFormat(r); err != nil {
			return nil, 0, err
		}
	}
	lens, err := readUints(r, n)
	if err != nil {
		return nil, 0, fmt.Errorf("decode vector lengths: %w", err)
	}
	total, err := sumCounts(r, lens)
	if err != nil {
		return nil, 0, err
	}
	return lens, total, nil
}

func decodeVectors(r *wire.Reader, out []flex.Value, numMissing int, extension bool) error {
	n := len(out) - numMissing
	lens, total, err := readVectorLengths(r, n, extension)
	if err != nil {
		return err
	}
	fs, err := decodeFloatSlice(r, total, extension)
	if err != nil {
		return fmt.Errorf("decode vector elements: %w", err)
	}
	vecs := make([][]float64, n)
	for i, l := range lens {
		vecs[i] = fs[:l:l]
		fs = fs[l:]
	}
	scatter(out, n, func(i int) flex.Value { return flex.Vec(vecs[i]) })
	return nil
}
