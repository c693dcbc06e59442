package typedblock

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/wire"
)

// Float strategies, stored in the leading reserved byte.
const (
	floatIntegerPromotion byte = 0
	floatLegacy           byte = 1
)

// promotable reports whether f survives a round trip through int64 with
// its exact bit pattern.
func promotable(f float64) bool {
	return math.Float64bits(float64(int64(f))) == math.Float64bits(f)
}

func rotateFloat(f float64) uint64 { return bits.RotateLeft64(math.Float64bits(f), 1) }

func unrotateFloat(u uint64) float64 { return math.Float64frombits(bits.RotateLeft64(u, -1)) }

// chooseFloatStrategy scans all floats once.
func chooseFloatStrategy(fs []float64) byte {
	for _, f := range fs {
		if !promotable(f) {
			return floatLegacy
		}
	}
	return floatIntegerPromotion
}

// encodeFloatSlice writes fs through the integer codec. Without the encoding
// extension there is no reserved byte and only the legacy strategy exists.
func encodeFloatSlice(w *wire.Writer, fs []float64, extension bool) {
	strategy := floatLegacy
	if extension {
		strategy = chooseFloatStrategy(fs)
		w.PutByte(strategy)
	}
	vals := make([]uint64, len(fs))
	for i, f := range fs {
		if strategy == floatIntegerPromotion {
			vals[i] = uint64(int64(f))
		} else {
			vals[i] = rotateFloat(f)
		}
	}
	encodeUints(w, vals)
}

// readFloatStrategy reads the reserved byte, if the block has one.
func readFloatStrategy(r *wire.Reader, extension bool) (byte, error) {
	if !extension {
		return floatLegacy, nil
	}
	strategy, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read float strategy: %w", err)
	}
	if strategy != floatIntegerPromotion && strategy != floatLegacy {
		return 0, fmt.Errorf("%w: float strategy %d", ErrCorrupt, strategy)
	}
	return strategy, nil
}

func floatFromWire(strategy byte, u uint64) float64 {
	if strategy == floatIntegerPromotion {
		return float64(int64(u))
	}
	return unrotateFloat(u)
}

// decodeFloatSlice reads n floats written by encodeFloatSlice.
func decodeFloatSlice(r *wire.Reader, n int, extension bool) ([]float64, error) {
	strategy, err := readFloatStrategy(r, extension)
	if err != nil {
		return nil, err
	}
	vals, err := readUints(r, n)
	if err != nil {
		return nil, fmt.Errorf("decode floats: %w", err)
	}
	fs := make([]float64, n)
	for i, u := range vals {
		fs[i] = floatFromWire(strategy, u)
	}
	return fs, nil
}

func encodeFloats(w *wire.Writer, values []flex.Value, extension bool) {
	fs := make([]float64, 0, len(values))
	for _, v := range values {
		if !v.IsMissing() {
			fs = append(fs, v.Float())
		}
	}
	encodeFloatSlice(w, fs, extension)
}

func decodeFloats(r *wire.Reader, out []flex.Value, numMissing int, extension bool) error {
	fs, err := decodeFloatSlice(r, len(out)-numMissing, extension)
	if err != nil {
		return err
	}
	scatter(out, len(fs), func(i int) flex.Value { return flex.Flt(fs[i]) })
	return nil
}
