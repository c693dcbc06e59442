package typedblock

import (
	"fmt"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/intpack"
	"github.com/eunmann/typedblock/pkg/valueser"
	"github.com/eunmann/typedblock/pkg/wire"
)

// valueDecoder is a resumable decoder for the non-Undefined values of one
// block. Each call either fills window (skip == 0) or steps over skip values
// (window empty), and returns how many units it handled. A decoder keeps its
// place between calls, so the next call resumes at the following value.
type valueDecoder interface {
	advance(window []flex.Value, skip int) (int, error)
}

// uintDecoder yields integers from consecutive packed batches, unpacking at
// most one batch at a time.
type uintDecoder struct {
	r *wire.Reader
	// remaining counts values still packed in the source.
	remaining int
	batch     [intpack.BatchSize]uint64
	pos, n    int
}

func newUintDecoder(r *wire.Reader, count int) (*uintDecoder, error) {
	if count < 0 || count > maxPackedValues(r) {
		return nil, fmt.Errorf("%w: %d packed integers in %d bytes", ErrCorrupt, count, r.Remaining())
	}
	return &uintDecoder{r: r, remaining: count}, nil
}

func (d *uintDecoder) fill() error {
	if d.remaining == 0 {
		return fmt.Errorf("%w: packed integers exhausted", ErrLengthMismatch)
	}
	k := min(d.remaining, intpack.BatchSize)
	if err := intpack.Unpack(d.r, d.batch[:k]); err != nil {
		return packErr(err)
	}
	d.remaining -= k
	d.pos, d.n = 0, k
	return nil
}

func (d *uintDecoder) next() (uint64, error) {
	if d.pos == d.n {
		if err := d.fill(); err != nil {
			return 0, err
		}
	}
	v := d.batch[d.pos]
	d.pos++
	return v, nil
}

// skip steps over k integers. Whole batches are stepped over without being
// unpacked.
func (d *uintDecoder) skip(k int) error {
	for k > 0 {
		if d.pos < d.n {
			c := min(k, d.n-d.pos)
			d.pos += c
			k -= c
			continue
		}
		if d.remaining == 0 {
			return fmt.Errorf("%w: packed integers exhausted", ErrLengthMismatch)
		}
		if size := min(d.remaining, intpack.BatchSize); k >= size {
			if err := intpack.Skip(d.r, size); err != nil {
				return packErr(err)
			}
			d.remaining -= size
			k -= size
			continue
		}
		if err := d.fill(); err != nil {
			return err
		}
	}
	return nil
}

type integerDecoder struct {
	ints *uintDecoder
}

func (d *integerDecoder) advance(window []flex.Value, skip int) (int, error) {
	if skip > 0 {
		return skip, d.ints.skip(skip)
	}
	for i := range window {
		u, err := d.ints.next()
		if err != nil {
			return i, err
		}
		window[i] = flex.Int(int64(u))
	}
	return len(window), nil
}

// floatStream yields floats from the integer codec.
type floatStream struct {
	strategy byte
	ints     *uintDecoder
}

func newFloatStream(r *wire.Reader, count int, extension bool) (*floatStream, error) {
	strategy, err := readFloatStrategy(r, extension)
	if err != nil {
		return nil, err
	}
	ints, err := newUintDecoder(r, count)
	if err != nil {
		return nil, err
	}
	return &floatStream{strategy: strategy, ints: ints}, nil
}

func (s *floatStream) next() (float64, error) {
	u, err := s.ints.next()
	if err != nil {
		return 0, err
	}
	return floatFromWire(s.strategy, u), nil
}

// read fills dst.
func (s *floatStream) read(dst []float64) error {
	for i := range dst {
		f, err := s.next()
		if err != nil {
			return err
		}
		dst[i] = f
	}
	return nil
}

type floatDecoder struct {
	floats *floatStream
}

func (d *floatDecoder) advance(window []flex.Value, skip int) (int, error) {
	if skip > 0 {
		return skip, d.floats.ints.skip(skip)
	}
	for i := range window {
		f, err := d.floats.next()
		if err != nil {
			return i, err
		}
		window[i] = flex.Flt(f)
	}
	return len(window), nil
}

type dictStringDecoder struct {
	dict []string
	ids  *uintDecoder
}

func (d *dictStringDecoder) advance(window []flex.Value, skip int) (int, error) {
	if skip > 0 {
		return skip, d.ids.skip(skip)
	}
	for i := range window {
		id, err := d.ids.next()
		if err != nil {
			return i, err
		}
		s, err := lookup(d.dict, id)
		if err != nil {
			return i, err
		}
		window[i] = flex.Str(s)
	}
	return len(window), nil
}

// directStringDecoder holds every length up front; the raw bytes follow them
// in the block.
type directStringDecoder struct {
	r    *wire.Reader
	lens []uint64
	next int
}

func (d *directStringDecoder) advance(window []flex.Value, skip int) (int, error) {
	if d.next+skip+len(window) > len(d.lens) {
		return 0, fmt.Errorf("%w: strings exhausted", ErrLengthMismatch)
	}
	if skip > 0 {
		var n uint64
		for _, l := range d.lens[d.next : d.next+skip] {
			n += l
		}
		d.next += skip
		return skip, d.r.Skip(int(n))
	}
	for i := range window {
		p, err := d.r.Next(int(d.lens[d.next]))
		if err != nil {
			return i, err
		}
		window[i] = flex.Str(string(p))
		d.next++
	}
	return len(window), nil
}

func newStringDecoder(r *wire.Reader, count int) (valueDecoder, error) {
	useDict, err := r.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("read dictionary flag: %w", err)
	}
	if useDict {
		dict, err := readDictionary(r)
		if err != nil {
			return nil, err
		}
		ids, err := newUintDecoder(r, count)
		if err != nil {
			return nil, err
		}
		return &dictStringDecoder{dict: dict, ids: ids}, nil
	}
	lens, err := readStringLengths(r, count)
	if err != nil {
		return nil, err
	}
	return &directStringDecoder{r: r, lens: lens}, nil
}

type vectorDecoder struct {
	lens   []uint64
	next   int
	floats *floatStream
}

func newVectorDecoder(r *wire.Reader, count int, extension bool) (*vectorDecoder, error) {
	lens, total, err := readVectorLengths(r, count, extension)
	if err != nil {
		return nil, err
	}
	floats, err := newFloatStream(r, total, extension)
	if err != nil {
		return nil, err
	}
	return &vectorDecoder{lens: lens, floats: floats}, nil
}

func (d *vectorDecoder) advance(window []flex.Value, skip int) (int, error) {
	if d.next+skip+len(window) > len(d.lens) {
		return 0, fmt.Errorf("%w: vectors exhausted", ErrLengthMismatch)
	}
	if skip > 0 {
		var n uint64
		for _, l := range d.lens[d.next : d.next+skip] {
			n += l
		}
		d.next += skip
		return skip, d.floats.ints.skip(int(n))
	}
	for i := range window {
		vec := make([]float64, d.lens[d.next])
		if err := d.floats.read(vec); err != nil {
			return i, err
		}
		window[i] = flex.Vec(vec)
		d.next++
	}
	return len(window), nil
}

type arrayDecoder struct {
	cur    arrayCursor
	floats *floatStream
}

func newArrayDecoder(r *wire.Reader, count int) (*arrayDecoder, error) {
	layout, err := readArrayLayout(r, count)
	if err != nil {
		return nil, err
	}
	floats, err := newFloatStream(r, layout.total, true)
	if err != nil {
		return nil, err
	}
	return &arrayDecoder{cur: arrayCursor{layout: layout}, floats: floats}, nil
}

func (d *arrayDecoder) advance(window []flex.Value, skip int) (int, error) {
	if d.cur.next+skip+len(window) > len(d.cur.layout.ranks) {
		return 0, fmt.Errorf("%w: ndarrays exhausted", ErrLengthMismatch)
	}
	if skip > 0 {
		var n int
		for range skip {
			_, _, count := d.cur.shape()
			n += count
		}
		return skip, d.floats.ints.skip(n)
	}
	for i := range window {
		shape, stride, count := d.cur.shape()
		elems := make([]float64, count)
		if err := d.floats.read(elems); err != nil {
			return i, err
		}
		a, err := buildArray(elems, shape, stride)
		if err != nil {
			return i, err
		}
		window[i] = flex.ND(a)
	}
	return len(window), nil
}

// opaqueDecoder reads serializer payloads of a known tag. Skipped payloads
// are walked but not built, since they carry no length prefix.
type opaqueDecoder struct {
	r   *wire.Reader
	tag flex.Tag
}

func (d *opaqueDecoder) advance(window []flex.Value, skip int) (int, error) {
	for i := range skip {
		if err := valueser.SkipPayload(d.r, d.tag); err != nil {
			return i, serErr(err)
		}
	}
	for i := range window {
		v, err := valueser.ReadPayload(d.r, d.tag)
		if err != nil {
			return i, serErr(err)
		}
		window[i] = v
	}
	return skip + len(window), nil
}

// mixedDecoder reads tagged serializer records of a heterogeneous block.
type mixedDecoder struct {
	r *wire.Reader
}

func (d *mixedDecoder) advance(window []flex.Value, skip int) (int, error) {
	for i := range skip {
		if err := valueser.SkipValue(d.r); err != nil {
			return i, serErr(err)
		}
	}
	for i := range window {
		v, err := valueser.ReadValue(d.r)
		if err != nil {
			return i, serErr(err)
		}
		window[i] = v
	}
	return skip + len(window), nil
}

// newValueDecoder builds the decoder for count non-Undefined values of tag.
func newValueDecoder(r *wire.Reader, info BlockInfo, tag flex.Tag, count int) (valueDecoder, error) {
	ext := info.EncodingExtension()
	switch tag {
	case flex.Integer:
		ints, err := newUintDecoder(r, count)
		if err != nil {
			return nil, err
		}
		return &integerDecoder{ints: ints}, nil
	case flex.Float:
		floats, err := newFloatStream(r, count, ext)
		if err != nil {
			return nil, err
		}
		return &floatDecoder{floats: floats}, nil
	case flex.String:
		return newStringDecoder(r, count)
	case flex.Vector:
		return newVectorDecoder(r, count, ext)
	case flex.NDArray:
		return newArrayDecoder(r, count)
	default:
		return &opaqueDecoder{r: r, tag: tag}, nil
	}
}
