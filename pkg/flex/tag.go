// Package flex defines the dynamically-typed column value stored in typed blocks.
package flex

import "fmt"

// Tag identifies the active variant of a Value.
//
// Tags are ordered for in-memory use only. The byte written to disk is
// WireCode, which is fixed for compatibility with existing block files.
type Tag uint8

const (
	// Undefined marks a missing value. It is the zero Tag so that the zero
	// Value is missing.
	Undefined Tag = iota
	Integer
	Float
	String
	Vector
	List
	Dict
	DateTime
	NDArray

	numTags
)

// NumTags is the number of distinct tags.
const NumTags = int(numTags)

// Wire codes for each tag. Code 8 belonged to an image type that is not
// carried by this store.
const (
	wireInteger   byte = 0
	wireFloat     byte = 1
	wireString    byte = 2
	wireVector    byte = 3
	wireList      byte = 4
	wireDict      byte = 5
	wireDateTime  byte = 6
	wireUndefined byte = 7
	wireNDArray   byte = 9
)

var tagToWire = [numTags]byte{
	Undefined: wireUndefined,
	Integer:   wireInteger,
	Float:     wireFloat,
	String:    wireString,
	Vector:    wireVector,
	List:      wireList,
	Dict:      wireDict,
	DateTime:  wireDateTime,
	NDArray:   wireNDArray,
}

var tagNames = [numTags]string{
	Undefined: "undefined",
	Integer:   "integer",
	Float:     "float",
	String:    "string",
	Vector:    "vector",
	List:      "list",
	Dict:      "dict",
	DateTime:  "datetime",
	NDArray:   "ndarray",
}

// WireCode returns the on-disk byte for the tag.
func (t Tag) WireCode() byte {
	if t >= numTags {
		return 0xFF
	}
	return tagToWire[t]
}

// TagFromWire maps an on-disk byte back to a Tag.
// The second result is false for bytes outside the known enumeration.
func TagFromWire(b byte) (Tag, bool) {
	switch b {
	case wireInteger:
		return Integer, true
	case wireFloat:
		return Float, true
	case wireString:
		return String, true
	case wireVector:
		return Vector, true
	case wireList:
		return List, true
	case wireDict:
		return Dict, true
	case wireDateTime:
		return DateTime, true
	case wireUndefined:
		return Undefined, true
	case wireNDArray:
		return NDArray, true
	default:
		return Undefined, false
	}
}

// IsOpaque reports whether values of this tag are only ever written through
// the generic value serializer.
func (t Tag) IsOpaque() bool {
	return t == List || t == Dict || t == DateTime
}

func (t Tag) String() string {
	if t >= numTags {
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
	return tagNames[t]
}

// TagSet is a bit set of tags, used when taking a census of a column.
type TagSet uint16

// Add returns the set with t included.
func (s TagSet) Add(t Tag) TagSet { return s | 1<<t }

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool { return s&(1<<t) != 0 }

// Len returns the number of tags in the set.
func (s TagSet) Len() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Tags lists the tags in the set in Tag order.
func (s TagSet) Tags() []Tag {
	out := make([]Tag, 0, s.Len())
	for t := Tag(0); t < numTags; t++ {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}
