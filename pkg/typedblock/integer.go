package typedblock

import (
	"errors"
	"fmt"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/intpack"
	"github.com/eunmann/typedblock/pkg/wire"
)

// encodeUints packs vals in batches of intpack.BatchSize.
func encodeUints(w *wire.Writer, vals []uint64) {
	for len(vals) > 0 {
		k := min(len(vals), intpack.BatchSize)
		intpack.Pack(w, vals[:k])
		vals = vals[k:]
	}
}

// decodeUints fills dst from consecutive batches.
func decodeUints(r *wire.Reader, dst []uint64) error {
	for len(dst) > 0 {
		k := min(len(dst), intpack.BatchSize)
		if err := intpack.Unpack(r, dst[:k]); err != nil {
			return packErr(err)
		}
		dst = dst[k:]
	}
	return nil
}

// readUints decodes n integers, refusing counts the input cannot hold.
func readUints(r *wire.Reader, n int) ([]uint64, error) {
	if n < 0 || n > maxPackedValues(r) {
		return nil, fmt.Errorf("%w: %d packed integers in %d bytes", ErrCorrupt, n, r.Remaining())
	}
	vals := make([]uint64, n)
	if err := decodeUints(r, vals); err != nil {
		return nil, err
	}
	return vals, nil
}

// maxPackedValues bounds how many integers the rest of r could hold. A batch
// costs at least two bytes.
func maxPackedValues(r *wire.Reader) int {
	return r.Remaining() / 2 * intpack.BatchSize
}

func packErr(err error) error {
	if errors.Is(err, intpack.ErrBadHeader) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return err
}

// encodeIntegers writes every non-Undefined integer.
func encodeIntegers(w *wire.Writer, values []flex.Value) {
	vals := make([]uint64, 0, len(values))
	for _, v := range values {
		if !v.IsMissing() {
			vals = append(vals, uint64(v.Int()))
		}
	}
	encodeUints(w, vals)
}

// decodeIntegers fills the non-Undefined slots of out.
func decodeIntegers(r *wire.Reader, out []flex.Value, numMissing int) error {
	vals, err := readUints(r, len(out)-numMissing)
	if err != nil {
		return fmt.Errorf("decode integers: %w", err)
	}
	scatter(out, len(vals), func(i int) flex.Value { return flex.Int(int64(vals[i])) })
	return nil
}

// scatter writes n produced values into the non-Undefined slots of out, in
// order.
func scatter(out []flex.Value, n int, produce func(i int) flex.Value) {
	j := 0
	for i := range out {
		if j == n {
			return
		}
		if out[i].IsMissing() {
			continue
		}
		out[i] = produce(j)
		j++
	}
}
