package typedblock

import (
	"fmt"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/valueser"
	"github.com/eunmann/typedblock/pkg/wire"
)

// MaxBlockValues is the largest NumElem that Decode and NewStream accept.
// Undefined values take no payload bytes, so NumElem cannot be checked
// against the block size; a corrupt BlockInfo can still make Decode allocate
// up to MaxBlockValues values.
const MaxBlockValues = 1 << 20

// Encode encodes a column into one block.
//
// Encoding is deterministic: the same values always produce the same bytes.
// It fails only with ErrInvalidArrayState, before any bytes are produced.
func Encode(values []flex.Value) ([]byte, BlockInfo, error) {
	return encode(values, true)
}

// encode optionally omits the encoding extension, producing the layout of
// older writers where floats carry no strategy byte.
func encode(values []flex.Value, extension bool) ([]byte, BlockInfo, error) {
	c := classify(values)

	var arrs []*flex.Array
	switch {
	case c.kind == censusHeterogeneous || c.tag.IsOpaque():
		for i, v := range values {
			if err := valueser.Validate(v); err != nil {
				return nil, BlockInfo{}, fmt.Errorf("%w: value %d: %w", ErrInvalidArrayState, i, err)
			}
		}
	case c.tag == flex.NDArray:
		var err error
		if arrs, err = compactArrays(values); err != nil {
			return nil, BlockInfo{}, err
		}
		// ndarrays have no pre-extension layout
		extension = true
	}

	w := wire.NewWriter(64 + 8*len(values))
	info := BlockInfo{Flags: FlagIsFlexible, NumElem: uint64(len(values))}
	if extension {
		info.Flags |= FlagEncodingExtension
	}
	info.Flags |= writeHeader(w, c, values)

	if c.kind == censusHomogeneous || c.kind == censusWithMissing {
		switch c.tag {
		case flex.Undefined:
		case flex.Integer:
			encodeIntegers(w, values)
		case flex.Float:
			encodeFloats(w, values, extension)
		case flex.String:
			encodeStrings(w, values)
		case flex.Vector:
			encodeVectors(w, values, extension)
		case flex.NDArray:
			encodeArrays(w, arrs)
		default:
			encodeOpaque(w, values)
		}
	}

	info.BlockSize = uint64(w.Len())
	return w.Bytes(), info, nil
}

// Decode decodes a whole block.
func Decode(info BlockInfo, data []byte) ([]flex.Value, error) {
	if info.NumElem > MaxBlockValues {
		return nil, fmt.Errorf("%w: %d values", ErrMalformedHeader, info.NumElem)
	}
	out := make([]flex.Value, info.NumElem)
	if err := DecodeInto(info, data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeInto decodes a whole block into out, which must hold exactly
// NumElem values. On error the contents of out are unspecified.
func DecodeInto(info BlockInfo, data []byte, out []flex.Value) error {
	if uint64(len(out)) != info.NumElem {
		return fmt.Errorf("%w: output holds %d values, block has %d", ErrLengthMismatch, len(out), info.NumElem)
	}
	if uint64(len(data)) != info.BlockSize {
		return fmt.Errorf("%w: %d bytes, header says %d", ErrLengthMismatch, len(data), info.BlockSize)
	}

	r := wire.NewReader(data)
	h, err := readHeader(r, info)
	if err != nil {
		return err
	}

	switch h.kind {
	case censusEmpty:
	case censusHeterogeneous:
		if err := decodeHeterogeneous(r, out); err != nil {
			return err
		}
	default:
		for i := range out {
			if h.isMissing(i) {
				out[i] = flex.Missing()
			} else {
				out[i] = flex.Zero(h.tag)
			}
		}
		if err := decodePayload(r, info, h, out); err != nil {
			return fmt.Errorf("decode %s block: %w", h.tag, err)
		}
	}

	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrLengthMismatch, r.Remaining())
	}
	return nil
}

func decodePayload(r *wire.Reader, info BlockInfo, h header, out []flex.Value) error {
	ext := info.EncodingExtension()
	switch h.tag {
	case flex.Undefined:
		return nil
	case flex.Integer:
		return decodeIntegers(r, out, h.numMissing)
	case flex.Float:
		return decodeFloats(r, out, h.numMissing, ext)
	case flex.String:
		return decodeStrings(r, out, h.numMissing)
	case flex.Vector:
		return decodeVectors(r, out, h.numMissing, ext)
	case flex.NDArray:
		return decodeArrays(r, out, h.numMissing)
	default:
		return decodeOpaque(r, out, h.tag)
	}
}
