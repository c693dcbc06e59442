package typedblock

import (
	"errors"
	"fmt"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/valueser"
	"github.com/eunmann/typedblock/pkg/wire"
)

// encodeOpaque writes one serializer payload per non-Undefined value.
func encodeOpaque(w *wire.Writer, values []flex.Value) {
	for _, v := range values {
		if !v.IsMissing() {
			valueser.WritePayload(w, v)
		}
	}
}

func decodeOpaque(r *wire.Reader, out []flex.Value, tag flex.Tag) error {
	for i := range out {
		if out[i].IsMissing() {
			continue
		}
		v, err := valueser.ReadPayload(r, tag)
		if err != nil {
			return serErr(fmt.Errorf("decode %s value %d: %w", tag, i, err))
		}
		out[i] = v
	}
	return nil
}

func decodeHeterogeneous(r *wire.Reader, out []flex.Value) error {
	for i := range out {
		v, err := valueser.ReadValue(r)
		if err != nil {
			return serErr(fmt.Errorf("decode value %d: %w", i, err))
		}
		out[i] = v
	}
	return nil
}

// serErr classifies serializer failures with the codec's sentinels.
func serErr(err error) error {
	switch {
	case errors.Is(err, valueser.ErrUnknownTag):
		return fmt.Errorf("%w: %w", ErrUnsupportedTag, err)
	case errors.Is(err, valueser.ErrBadLength):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return err
}
