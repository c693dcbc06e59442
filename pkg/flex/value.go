package flex

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a single column value. Exactly one variant is active, selected by
// Tag. The zero Value is Undefined.
type Value struct {
	tag  Tag
	i    int64
	f    float64
	s    string
	vec  []float64
	nd   *Array
	list []Value
	dict []Pair
	dt   Timestamp
}

// Pair is one key/value entry of a Dict value.
type Pair struct {
	Key   Value
	Value Value
}

// Timestamp is a point in time with an explicit timezone offset.
type Timestamp struct {
	// Seconds since the Unix epoch, UTC.
	Seconds int64
	// Micros is the sub-second part, 0..999999.
	Micros int32
	// TZQuarters is the timezone offset in 15 minute units.
	TZQuarters int32
}

// Time converts d to a time.Time in a fixed zone matching its offset.
func (d Timestamp) Time() time.Time {
	zone := time.FixedZone("", int(d.TZQuarters)*15*60)
	return time.Unix(d.Seconds, int64(d.Micros)*1000).In(zone)
}

// TimestampOf converts t, keeping microsecond precision and rounding the zone
// offset down to a quarter hour.
func TimestampOf(t time.Time) Timestamp {
	_, off := t.Zone()
	return Timestamp{
		Seconds:    t.Unix(),
		Micros:     int32(t.Nanosecond() / 1000),
		TZQuarters: int32(off / (15 * 60)),
	}
}

// Missing returns an Undefined value.
func Missing() Value { return Value{} }

// Int returns an Integer value.
func Int(v int64) Value { return Value{tag: Integer, i: v} }

// Flt returns a Float value.
func Flt(v float64) Value { return Value{tag: Float, f: v} }

// Str returns a String value.
func Str(v string) Value { return Value{tag: String, s: v} }

// Vec returns a Vector value. The slice is not copied.
func Vec(v []float64) Value {
	if v == nil {
		v = []float64{}
	}
	return Value{tag: Vector, vec: v}
}

// ND returns an NDArray value. The array is not copied.
func ND(a *Array) Value {
	if a == nil {
		a = &Array{}
	}
	return Value{tag: NDArray, nd: a}
}

// ListOf returns a List value. The slice is not copied.
func ListOf(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{tag: List, list: vs}
}

// DictOf returns a Dict value. The slice is not copied.
func DictOf(ps ...Pair) Value {
	if ps == nil {
		ps = []Pair{}
	}
	return Value{tag: Dict, dict: ps}
}

// Time returns a DateTime value.
func Time(d Timestamp) Value { return Value{tag: DateTime, dt: d} }

// Zero returns the zero value of the given tag. It is used to mark slots
// that a codec will overwrite.
func Zero(t Tag) Value {
	switch t {
	case Vector:
		return Vec(nil)
	case NDArray:
		return ND(nil)
	case List:
		return ListOf()
	case Dict:
		return DictOf()
	default:
		return Value{tag: t}
	}
}

// Tag returns the active variant.
func (v Value) Tag() Tag { return v.tag }

// IsMissing reports whether v is Undefined.
func (v Value) IsMissing() bool { return v.tag == Undefined }

// Int returns the integer payload. It is 0 for other tags.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload. It is 0 for other tags.
func (v Value) Float() float64 { return v.f }

// Str returns the string payload.
func (v Value) Str() string { return v.s }

// Vec returns the vector payload.
func (v Value) Vec() []float64 { return v.vec }

// Array returns the n-dimensional array payload.
func (v Value) Array() *Array { return v.nd }

// List returns the list payload.
func (v Value) List() []Value { return v.list }

// Dict returns the dict payload.
func (v Value) Dict() []Pair { return v.dict }

// Timestamp returns the datetime payload.
func (v Value) Timestamp() Timestamp { return v.dt }

// Equal compares two values. Floats compare by bit pattern, so NaN equals
// NaN and 0.0 differs from -0.0. NDArrays compare by logical shape and
// element values, ignoring their physical layout.
func (v Value) Equal(o Value) bool {
	if v.tag != o.tag {
		return false
	}
	switch v.tag {
	case Undefined:
		return true
	case Integer:
		return v.i == o.i
	case Float:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case String:
		return v.s == o.s
	case Vector:
		return floatsEqual(v.vec, o.vec)
	case NDArray:
		return v.nd.LogicalEqual(o.nd)
	case List:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case Dict:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for i := range v.dict {
			if !v.dict[i].Key.Equal(o.dict[i].Key) || !v.dict[i].Value.Equal(o.dict[i].Value) {
				return false
			}
		}
		return true
	case DateTime:
		return v.dt == o.dt
	}
	return false
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}

// String renders v for display.
func (v Value) String() string {
	switch v.tag {
	case Undefined:
		return "None"
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case String:
		return v.s
	case Vector:
		return formatFloats(v.vec)
	case NDArray:
		return v.nd.String()
	case List:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Dict:
		parts := make([]string, len(v.dict))
		for i, p := range v.dict {
			parts[i] = p.Key.String() + ": " + p.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case DateTime:
		return v.dt.Time().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("<%s>", v.tag)
}

func formatFloats(fs []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range fs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}
