package typedblock

import (
	"fmt"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/wire"
)

// compactArrays validates every array and returns full copies of the
// non-Undefined ones, in column order.
func compactArrays(values []flex.Value) ([]*flex.Array, error) {
	arrs := make([]*flex.Array, 0, len(values))
	for i, v := range values {
		if v.IsMissing() {
			continue
		}
		a := v.Array()
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%w: value %d: %w", ErrInvalidArrayState, i, err)
		}
		arrs = append(arrs, a.Compact())
	}
	return arrs, nil
}

// encodeArrays writes arrays already compacted by compactArrays: ranks,
// element counts, shapes, strides, then every element.
func encodeArrays(w *wire.Writer, arrs []*flex.Array) {
	w.PutByte(vectorFormat)

	ranks := make([]uint64, len(arrs))
	counts := make([]uint64, len(arrs))
	var dims, total int
	for i, a := range arrs {
		ranks[i] = uint64(len(a.Shape))
		counts[i] = uint64(len(a.Elems))
		dims += len(a.Shape)
		total += len(a.Elems)
	}
	encodeUints(w, ranks)
	encodeUints(w, counts)

	shapes := make([]uint64, 0, dims)
	strides := make([]uint64, 0, dims)
	for _, a := range arrs {
		for d := range a.Shape {
			shapes = append(shapes, uint64(a.Shape[d]))
			strides = append(strides, uint64(int64(a.Stride[d])))
		}
	}
	encodeUints(w, shapes)
	encodeUints(w, strides)

	fs := make([]float64, 0, total)
	for _, a := range arrs {
		fs = append(fs, a.Elems...)
	}
	encodeFloatSlice(w, fs, true)
}

// arrayLayout is everything about n arrays except their elements.
type arrayLayout struct {
	ranks   []uint64
	counts  []uint64
	shapes  []uint64
	strides []uint64
	total   int
}

func readArrayLayout(r *wire.Reader, n int) (arrayLayout, error) {
	var l arrayLayout
	if err := readVectorFormat(r); err != nil {
		return l, err
	}
	var err error
	if l.ranks, err = readUints(r, n); err != nil {
		return l, fmt.Errorf("decode ndarray ranks: %w", err)
	}
	if l.counts, err = readUints(r, n); err != nil {
		return l, fmt.Errorf("decode ndarray counts: %w", err)
	}
	dims, err := sumCounts(r, l.ranks)
	if err != nil {
		return l, err
	}
	if l.shapes, err = readUints(r, dims); err != nil {
		return l, fmt.Errorf("decode ndarray shapes: %w", err)
	}
	if l.strides, err = readUints(r, dims); err != nil {
		return l, fmt.Errorf("decode ndarray strides: %w", err)
	}
	if l.total, err = sumCounts(r, l.counts); err != nil {
		return l, err
	}
	return l, nil
}

// arrayCursor hands out consecutive arrays described by a layout.
type arrayCursor struct {
	layout arrayLayout
	next   int
	dim    int
}

// shape returns the shape and strides of the next array and advances.
func (c *arrayCursor) shape() (shape, stride []int, count int) {
	rank := int(c.layout.ranks[c.next])
	count = int(c.layout.counts[c.next])
	shape = make([]int, rank)
	stride = make([]int, rank)
	for d := range rank {
		shape[d] = int(c.layout.shapes[c.dim+d])
		stride[d] = int(int64(c.layout.strides[c.dim+d]))
	}
	c.dim += rank
	c.next++
	return shape, stride, count
}

// buildArray wraps decoded elements and checks they match the layout.
func buildArray(elems []float64, shape, stride []int) (*flex.Array, error) {
	a := &flex.Array{Elems: elems, Shape: shape, Stride: stride}
	if a.NumElem() != len(elems) {
		return nil, fmt.Errorf("%w: ndarray of shape %v with %d elements", ErrCorrupt, shape, len(elems))
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return a, nil
}

func decodeArrays(r *wire.Reader, out []flex.Value, numMissing int) error {
	n := len(out) - numMissing
	layout, err := readArrayLayout(r, n)
	if err != nil {
		return err
	}
	fs, err := decodeFloatSlice(r, layout.total, true)
	if err != nil {
		return fmt.Errorf("decode ndarray elements: %w", err)
	}
	cur := arrayCursor{layout: layout}
	arrs := make([]*flex.Array, n)
	for i := range arrs {
		shape, stride, count := cur.shape()
		if arrs[i], err = buildArray(fs[:count:count], shape, stride); err != nil {
			return err
		}
		fs = fs[count:]
	}
	scatter(out, n, func(i int) flex.Value { return flex.ND(arrs[i]) })
	return nil
}
