// Package valueser serializes one flex.Value at a time. Typed blocks use it
// for opaque values and for columns that mix too many types to use a
// per-type codec.
//
// A record is the tag's wire code followed by the tag's payload. Payloads:
//
//	integer   varint
//	float     8 bytes, IEEE-754 bits little-endian
//	string    uvarint length, bytes
//	vector    uvarint length, 8 bytes per element
//	ndarray   uvarint ndim, ndim uvarint extents, 8 bytes per element
//	          (row-major, contiguous)
//	list      uvarint length, records
//	dict      uvarint length, key record and value record per entry
//	datetime  varint seconds, varint micros, varint timezone quarters
//	undefined nothing
package valueser

import (
	"errors"
	"fmt"
	"math"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/wire"
)

var (
	// ErrUnknownTag indicates a record whose tag byte is not a known type.
	ErrUnknownTag = errors.New("unknown value tag")
	// ErrBadLength indicates a length prefix that cannot fit in the input.
	ErrBadLength = errors.New("length prefix out of range")
)

// maxDepth bounds List/Dict nesting when reading untrusted input.
const maxDepth = 64

const maxArrayElems = 1 << 40

// Validate checks every NDArray reachable from v.
func Validate(v flex.Value) error {
	switch v.Tag() {
	case flex.NDArray:
		return v.Array().Validate()
	case flex.List:
		for _, e := range v.List() {
			if err := Validate(e); err != nil {
				return err
			}
		}
	case flex.Dict:
		for _, p := range v.Dict() {
			if err := Validate(p.Key); err != nil {
				return err
			}
			if err := Validate(p.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteValue appends a tagged record. NDArrays must already be valid.
func WriteValue(w *wire.Writer, v flex.Value) {
	w.PutByte(v.Tag().WireCode())
	WritePayload(w, v)
}

// WritePayload appends the payload of v without its tag.
func WritePayload(w *wire.Writer, v flex.Value) {
	switch v.Tag() {
	case flex.Integer:
		w.PutVarint(v.Int())
	case flex.Float:
		w.PutUint64(math.Float64bits(v.Float()))
	case flex.String:
		w.PutUvarint(uint64(len(v.Str())))
		w.PutString(v.Str())
	case flex.Vector:
		writeFloats(w, v.Vec())
	case flex.NDArray:
		a := v.Array().Compact()
		w.PutUvarint(uint64(len(a.Shape)))
		for _, s := range a.Shape {
			w.PutUvarint(uint64(s))
		}
		for _, f := range a.Elems {
			w.PutUint64(math.Float64bits(f))
		}
	case flex.List:
		w.PutUvarint(uint64(len(v.List())))
		for _, e := range v.List() {
			WriteValue(w, e)
		}
	case flex.Dict:
		w.PutUvarint(uint64(len(v.Dict())))
		for _, p := range v.Dict() {
			WriteValue(w, p.Key)
			WriteValue(w, p.Value)
		}
	case flex.DateTime:
		ts := v.Timestamp()
		w.PutVarint(ts.Seconds)
		w.PutVarint(int64(ts.Micros))
		w.PutVarint(int64(ts.TZQuarters))
	}
}

func writeFloats(w *wire.Writer, fs []float64) {
	w.PutUvarint(uint64(len(fs)))
	for _, f := range fs {
		w.PutUint64(math.Float64bits(f))
	}
}

// ReadValue reads a tagged record.
func ReadValue(r *wire.Reader) (flex.Value, error) {
	return readValue(r, 0)
}

// ReadPayload reads the payload of a value whose tag is already known.
func ReadPayload(r *wire.Reader, tag flex.Tag) (flex.Value, error) {
	return readPayload(r, tag, 0)
}

// SkipValue steps over a tagged record without building it.
func SkipValue(r *wire.Reader) error {
	return skipValue(r, 0)
}

// SkipPayload steps over the payload of a value whose tag is already known,
// without building it.
func SkipPayload(r *wire.Reader, tag flex.Tag) error {
	return skipPayload(r, tag, 0)
}

func skipValue(r *wire.Reader, depth int) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read value tag: %w", err)
	}
	tag, ok := flex.TagFromWire(b)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTag, b)
	}
	return skipPayload(r, tag, depth)
}

func skipPayload(r *wire.Reader, tag flex.Tag, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("value nesting deeper than %d", maxDepth)
	}
	switch tag {
	case flex.Undefined:
		return nil
	case flex.Integer:
		if _, err := r.ReadVarint(); err != nil {
			return fmt.Errorf("skip integer: %w", err)
		}
		return nil
	case flex.Float:
		if err := r.Skip(8); err != nil {
			return fmt.Errorf("skip float: %w", err)
		}
		return nil
	case flex.String:
		n, err := readLen(r, 1)
		if err != nil {
			return fmt.Errorf("skip string length: %w", err)
		}
		return r.Skip(n)
	case flex.Vector:
		n, err := readLen(r, 8)
		if err != nil {
			return fmt.Errorf("skip vector length: %w", err)
		}
		return r.Skip(8 * n)
	case flex.NDArray:
		_, count, err := readShape(r)
		if err != nil {
			return err
		}
		return r.Skip(8 * count)
	case flex.List:
		n, err := readLen(r, 1)
		if err != nil {
			return fmt.Errorf("skip list length: %w", err)
		}
		for range n {
			if err := skipValue(r, depth+1); err != nil {
				return err
			}
		}
		return nil
	case flex.Dict:
		n, err := readLen(r, 2)
		if err != nil {
			return fmt.Errorf("skip dict length: %w", err)
		}
		for range 2 * n {
			if err := skipValue(r, depth+1); err != nil {
				return err
			}
		}
		return nil
	case flex.DateTime:
		for range 3 {
			if _, err := r.ReadVarint(); err != nil {
				return fmt.Errorf("skip datetime: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownTag, tag)
}

func readValue(r *wire.Reader, depth int) (flex.Value, error) {
	b, err := r.ReadByte()
	if err != nil {
		return flex.Value{}, fmt.Errorf("read value tag: %w", err)
	}
	tag, ok := flex.TagFromWire(b)
	if !ok {
		return flex.Value{}, fmt.Errorf("%w: %d", ErrUnknownTag, b)
	}
	return readPayload(r, tag, depth)
}

func readPayload(r *wire.Reader, tag flex.Tag, depth int) (flex.Value, error) {
	if depth > maxDepth {
		return flex.Value{}, fmt.Errorf("value nesting deeper than %d", maxDepth)
	}
	switch tag {
	case flex.Undefined:
		return flex.Missing(), nil
	case flex.Integer:
		v, err := r.ReadVarint()
		if err != nil {
			return flex.Value{}, fmt.Errorf("read integer: %w", err)
		}
		return flex.Int(v), nil
	case flex.Float:
		bits, err := r.ReadUint64()
		if err != nil {
			return flex.Value{}, fmt.Errorf("read float: %w", err)
		}
		return flex.Flt(math.Float64frombits(bits)), nil
	case flex.String:
		n, err := readLen(r, 1)
		if err != nil {
			return flex.Value{}, fmt.Errorf("read string length: %w", err)
		}
		p, err := r.Next(n)
		if err != nil {
			return flex.Value{}, fmt.Errorf("read string: %w", err)
		}
		return flex.Str(string(p)), nil
	case flex.Vector:
		fs, err := readFloats(r)
		if err != nil {
			return flex.Value{}, fmt.Errorf("read vector: %w", err)
		}
		return flex.Vec(fs), nil
	case flex.NDArray:
		return readArray(r)
	case flex.List:
		n, err := readLen(r, 1)
		if err != nil {
			return flex.Value{}, fmt.Errorf("read list length: %w", err)
		}
		vs := make([]flex.Value, n)
		for i := range vs {
			if vs[i], err = readValue(r, depth+1); err != nil {
				return flex.Value{}, err
			}
		}
		return flex.ListOf(vs...), nil
	case flex.Dict:
		n, err := readLen(r, 2)
		if err != nil {
			return flex.Value{}, fmt.Errorf("read dict length: %w", err)
		}
		ps := make([]flex.Pair, n)
		for i := range ps {
			if ps[i].Key, err = readValue(r, depth+1); err != nil {
				return flex.Value{}, err
			}
			if ps[i].Value, err = readValue(r, depth+1); err != nil {
				return flex.Value{}, err
			}
		}
		return flex.DictOf(ps...), nil
	case flex.DateTime:
		var ts flex.Timestamp
		sec, err := r.ReadVarint()
		if err != nil {
			return flex.Value{}, fmt.Errorf("read datetime: %w", err)
		}
		micros, err := r.ReadVarint()
		if err != nil {
			return flex.Value{}, fmt.Errorf("read datetime: %w", err)
		}
		tz, err := r.ReadVarint()
		if err != nil {
			return flex.Value{}, fmt.Errorf("read datetime: %w", err)
		}
		ts.Seconds, ts.Micros, ts.TZQuarters = sec, int32(micros), int32(tz)
		return flex.Time(ts), nil
	}
	return flex.Value{}, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
}

func readFloats(r *wire.Reader) ([]float64, error) {
	n, err := readLen(r, 8)
	if err != nil {
		return nil, err
	}
	fs := make([]float64, n)
	for i := range fs {
		bits, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		fs[i] = math.Float64frombits(bits)
	}
	return fs, nil
}

func readArray(r *wire.Reader) (flex.Value, error) {
	shape, count, err := readShape(r)
	if err != nil {
		return flex.Value{}, err
	}
	elems := make([]float64, count)
	for i := range elems {
		bits, err := r.ReadUint64()
		if err != nil {
			return flex.Value{}, fmt.Errorf("read ndarray elements: %w", err)
		}
		elems[i] = math.Float64frombits(bits)
	}
	return flex.ND(flex.NewArray(elems, shape...)), nil
}

// readShape reads an ndarray's rank and extents and returns its element
// count, checked against the rest of the input.
func readShape(r *wire.Reader) ([]int, int, error) {
	ndim, err := readLen(r, 1)
	if err != nil {
		return nil, 0, fmt.Errorf("read ndarray rank: %w", err)
	}
	shape := make([]int, ndim)
	count := 1
	for i := range shape {
		s, err := readLen(r, 0)
		if err != nil {
			return nil, 0, fmt.Errorf("read ndarray shape: %w", err)
		}
		if s != 0 && count > maxArrayElems/s {
			return nil, 0, fmt.Errorf("read ndarray shape: %w", ErrBadLength)
		}
		shape[i] = s
		count *= s
	}
	if ndim == 0 {
		count = 0
	}
	if count < 0 || count > r.Remaining()/8 {
		return nil, 0, fmt.Errorf("read ndarray: %d elements: %w", count, ErrBadLength)
	}
	return shape, count, nil
}

// readLen reads a uvarint length and rejects values that could not fit in
// the rest of the input at minSize bytes per item.
func readLen(r *wire.Reader, minSize int) (int, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 || (minSize > 0 && int(n) > r.Remaining()/minSize) {
		return 0, fmt.Errorf("%w: %d", ErrBadLength, n)
	}
	return int(n), nil
}
