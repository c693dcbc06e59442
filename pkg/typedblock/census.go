package typedblock

import (
	"fmt"
	"math/bits"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/valueser"
	"github.com/eunmann/typedblock/pkg/wire"
)

type censusKind uint8

const (
	censusEmpty censusKind = iota
	// censusHomogeneous covers a single tag, including all-Undefined.
	censusHomogeneous
	// censusWithMissing is one real tag plus Undefined.
	censusWithMissing
	censusHeterogeneous
)

// census is the result of classifying a column by its distinct tags.
type census struct {
	kind       censusKind
	tag        flex.Tag
	tags       flex.TagSet
	numMissing int
}

func classify(values []flex.Value) census {
	var c census
	for _, v := range values {
		c.tags = c.tags.Add(v.Tag())
		if v.IsMissing() {
			c.numMissing++
		}
	}
	switch n := c.tags.Len(); {
	case n == 0:
		c.kind = censusEmpty
	case n == 1:
		c.kind = censusHomogeneous
		c.tag = c.tags.Tags()[0]
	case n == 2 && c.tags.Has(flex.Undefined):
		c.kind = censusWithMissing
		for _, t := range c.tags.Tags() {
			if t != flex.Undefined {
				c.tag = t
			}
		}
	default:
		c.kind = censusHeterogeneous
	}
	return c
}

// header is the decoded form of a block header.
type header struct {
	kind       censusKind
	tag        flex.Tag
	numMissing int
	// missing has one bit per value, set for Undefined. Only present for
	// censusWithMissing.
	missing []uint64
}

// isMissing reports whether position i is Undefined.
func (h *header) isMissing(i int) bool {
	switch h.kind {
	case censusWithMissing:
		return h.missing[i/64]&(1<<(uint(i)%64)) != 0
	case censusHomogeneous:
		return h.tag == flex.Undefined
	}
	return false
}

// writeHeader appends the census part of the block. For heterogeneous
// columns it writes every value and returns the extra flag to set.
func writeHeader(w *wire.Writer, c census, values []flex.Value) uint32 {
	switch c.kind {
	case censusEmpty:
		w.PutByte(0)
	case censusHomogeneous:
		w.PutByte(1)
		w.PutByte(c.tag.WireCode())
	case censusWithMissing:
		w.PutByte(2)
		w.PutByte(c.tag.WireCode())
		for _, word := range missingBitmap(values) {
			w.PutUint64(word)
		}
	case censusHeterogeneous:
		for _, v := range values {
			valueser.WriteValue(w, v)
		}
		return FlagMultipleType
	}
	return 0
}

func missingBitmap(values []flex.Value) []uint64 {
	words := make([]uint64, (len(values)+63)/64)
	for i, v := range values {
		if v.IsMissing() {
			words[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return words
}

// readHeader decodes the census part of a block. For heterogeneous blocks it
// reads nothing; the caller reads the serialized values.
func readHeader(r *wire.Reader, info BlockInfo) (header, error) {
	if !info.IsFlexible() {
		return header{}, fmt.Errorf("%w: block is not typed (flags 0x%x)", ErrMalformedHeader, info.Flags)
	}
	n := int(info.NumElem)
	if info.MultipleType() {
		return header{kind: censusHeterogeneous}, nil
	}

	count, err := r.ReadByte()
	if err != nil {
		return header{}, fmt.Errorf("read type count: %w", err)
	}
	switch count {
	case 0:
		if n != 0 {
			return header{}, fmt.Errorf("%w: no types for %d values", ErrMalformedHeader, n)
		}
		return header{kind: censusEmpty}, nil
	case 1, 2:
	default:
		return header{}, fmt.Errorf("%w: type count %d", ErrMalformedHeader, count)
	}

	code, err := r.ReadByte()
	if err != nil {
		return header{}, fmt.Errorf("read type tag: %w", err)
	}
	tag, ok := flex.TagFromWire(code)
	if !ok {
		return header{}, fmt.Errorf("%w: %d", ErrUnsupportedTag, code)
	}

	if count == 1 {
		h := header{kind: censusHomogeneous, tag: tag}
		if tag == flex.Undefined {
			h.numMissing = n
		}
		return h, nil
	}

	if tag == flex.Undefined {
		return header{}, fmt.Errorf("%w: two-type block without a real type", ErrMalformedHeader)
	}
	nwords := (n + 63) / 64
	if nwords > r.Remaining()/8 {
		return header{}, fmt.Errorf("read missing bitmap of %d words: %w", nwords, ErrTruncated)
	}
	h := header{kind: censusWithMissing, tag: tag, missing: make([]uint64, nwords)}
	for i := range h.missing {
		h.missing[i], _ = r.ReadUint64()
		h.numMissing += bits.OnesCount64(h.missing[i])
	}
	if tail := n % 64; tail != 0 && h.missing[nwords-1]>>tail != 0 {
		return header{}, fmt.Errorf("%w: missing bitmap marks positions past %d", ErrMalformedHeader, n)
	}
	if h.numMissing == 0 || h.numMissing == n {
		return header{}, fmt.Errorf("%w: two-type block with %d of %d missing", ErrMalformedHeader, h.numMissing, n)
	}
	return h, nil
}
