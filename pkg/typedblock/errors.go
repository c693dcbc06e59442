package typedblock

import (
	"errors"

	"github.com/eunmann/typedblock/pkg/wire"
)

var (
	// ErrMalformedHeader indicates a block header that fails sanity checks.
	ErrMalformedHeader = errors.New("malformed block header")
	// ErrUnsupportedTag indicates a type tag outside the known enumeration.
	ErrUnsupportedTag = errors.New("unsupported type tag")
	// ErrLengthMismatch indicates a block that decodes to a different number
	// of values or bytes than its header declares.
	ErrLengthMismatch = errors.New("block length mismatch")
	// ErrInvalidArrayState indicates an NDArray rejected before encoding.
	ErrInvalidArrayState = errors.New("invalid ndarray state")
	// ErrCorrupt indicates a payload field that is out of range.
	ErrCorrupt = errors.New("corrupt block payload")
	// ErrTruncated indicates a block that ends before its payload does.
	ErrTruncated = wire.ErrTruncated
)

// errDictionaryOverflow stops dictionary building. It never leaves the
// string encoder.
var errDictionaryOverflow = errors.New("string dictionary overflow")

// errBadAdvance reports a read that is neither a pure fill nor a pure skip.
var errBadAdvance = errors.New("advance needs either a window or a skip count")
