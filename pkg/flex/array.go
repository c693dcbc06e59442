package flex

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"slices"
	"strings"
)

// ErrInvalidArray indicates an Array whose shape, strides and start offset
// address elements outside its backing slice.
var ErrInvalidArray = errors.New("invalid ndarray state")

// Array is an n-dimensional float64 array. Element idx lives at
// Elems[Start + sum(idx[d]*Stride[d])].
type Array struct {
	Elems  []float64
	Shape  []int
	Stride []int
	Start  int
}

// NewArray builds a full (contiguous, row-major) array over elems.
func NewArray(elems []float64, shape ...int) *Array {
	return &Array{
		Elems:  elems,
		Shape:  shape,
		Stride: CanonicalStrides(shape),
	}
}

// CanonicalStrides returns row-major strides for shape.
func CanonicalStrides(shape []int) []int {
	stride := make([]int, len(shape))
	step := 1
	for d := len(shape) - 1; d >= 0; d-- {
		stride[d] = step
		step *= shape[d]
	}
	return stride
}

// NumElem returns the number of logical elements, or -1 if the product of
// the extents does not fit in an int. An array with no dimensions holds no
// elements.
func (a *Array) NumElem() int {
	if a == nil || len(a.Shape) == 0 {
		return 0
	}
	n := uint64(1)
	for _, s := range a.Shape {
		if s < 0 {
			return -1
		}
		hi, lo := bits.Mul64(n, uint64(s))
		if hi != 0 || lo > math.MaxInt {
			return -1
		}
		n = lo
	}
	return int(n)
}

// Validate checks that every reachable offset is inside Elems.
func (a *Array) Validate() error {
	if a == nil {
		return nil
	}
	if len(a.Shape) != len(a.Stride) {
		return fmt.Errorf("%w: %d shape dims, %d stride dims", ErrInvalidArray, len(a.Shape), len(a.Stride))
	}
	for d, s := range a.Shape {
		if s < 0 {
			return fmt.Errorf("%w: negative extent %d in dim %d", ErrInvalidArray, s, d)
		}
	}
	n := a.NumElem()
	if n < 0 {
		return fmt.Errorf("%w: element count of shape %v overflows", ErrInvalidArray, a.Shape)
	}
	if n == 0 {
		return nil
	}
	size := len(a.Elems)
	if a.Start < 0 || a.Start >= size {
		return fmt.Errorf("%w: start %d outside %d elements", ErrInvalidArray, a.Start, size)
	}
	// Spans are bounded by size before they are formed.
	lo, hi := a.Start, a.Start
	for d, s := range a.Shape {
		stride := a.Stride[d]
		if s == 1 || stride == 0 {
			continue
		}
		step := stride
		if step < 0 {
			step = -step
		}
		if step >= size || s-1 > (size-1)/step {
			return fmt.Errorf("%w: dim %d (extent %d, stride %d) spans more than %d elements", ErrInvalidArray, d, s, stride, size)
		}
		if stride < 0 {
			lo -= (s - 1) * step
		} else {
			hi += (s - 1) * step
		}
		if lo < 0 || hi >= size {
			return fmt.Errorf("%w: offsets [%d, %d] outside %d elements", ErrInvalidArray, lo, hi, size)
		}
	}
	return nil
}

// IsFull reports whether the array is contiguous in canonical layout, with
// no unused elements.
func (a *Array) IsFull() bool {
	if a == nil {
		return true
	}
	return a.Start == 0 &&
		len(a.Elems) == a.NumElem() &&
		slices.Equal(a.Stride, CanonicalStrides(a.Shape))
}

// Compact returns a full array holding the same logical elements. A full
// array is returned as is.
func (a *Array) Compact() *Array {
	if a.IsFull() {
		return a
	}
	elems := make([]float64, 0, a.NumElem())
	a.each(func(off int) {
		elems = append(elems, a.Elems[off])
	})
	return NewArray(elems, slices.Clone(a.Shape)...)
}

// At returns the element at idx.
func (a *Array) At(idx ...int) float64 {
	off := a.Start
	for d, i := range idx {
		off += i * a.Stride[d]
	}
	return a.Elems[off]
}

// each visits element offsets in row-major logical order.
func (a *Array) each(fn func(off int)) {
	n := a.NumElem()
	if n == 0 {
		return
	}
	idx := make([]int, len(a.Shape))
	off := a.Start
	for range n {
		fn(off)
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			off += a.Stride[d]
			if idx[d] < a.Shape[d] {
				break
			}
			off -= idx[d] * a.Stride[d]
			idx[d] = 0
		}
	}
}

// LogicalEqual compares shapes and elements in logical order. Elements
// compare by bit pattern.
func (a *Array) LogicalEqual(o *Array) bool {
	var as, os []int
	if a != nil {
		as = a.Shape
	}
	if o != nil {
		os = o.Shape
	}
	if len(as) != len(os) || !slices.Equal(as, os) {
		return false
	}
	if a.NumElem() == 0 {
		return true
	}
	var av []float64
	a.each(func(off int) { av = append(av, a.Elems[off]) })
	i := 0
	equal := true
	o.each(func(off int) {
		if math.Float64bits(av[i]) != math.Float64bits(o.Elems[off]) {
			equal = false
		}
		i++
	})
	return equal
}

func (a *Array) String() string {
	if a == nil {
		return "ndarray()"
	}
	var b strings.Builder
	b.WriteString("ndarray(shape=")
	b.WriteString(fmt.Sprint(a.Shape))
	b.WriteString(", ")
	vals := make([]float64, 0, max(a.NumElem(), 0))
	a.each(func(off int) { vals = append(vals, a.Elems[off]) })
	b.WriteString(formatFloats(vals))
	b.WriteByte(')')
	return b.String()
}
