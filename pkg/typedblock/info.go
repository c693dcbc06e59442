// Package typedblock encodes a column of flex.Values into a self-describing
// byte block and decodes it back, either all at once or as a resumable
// stream that can skip values without materializing them.
package typedblock

// Block flags. The compression bits belong to the block file layer; the
// codec ignores them.
const (
	FlagLZ4Compression    uint32 = 1
	FlagIsFlexible        uint32 = 2
	FlagMultipleType      uint32 = 4
	FlagEncodingExtension uint32 = 8
	FlagZstdCompression   uint32 = 16
)

// BlockInfo describes an encoded block. It is stored next to the block,
// not inside it.
type BlockInfo struct {
	Flags uint32
	// NumElem is the number of values in the block.
	NumElem uint64
	// BlockSize is the encoded length in bytes.
	BlockSize uint64
}

// IsFlexible reports whether the block was written by the typed encoder.
func (b BlockInfo) IsFlexible() bool { return b.Flags&FlagIsFlexible != 0 }

// MultipleType reports whether the block holds serialized values of mixed
// types instead of a per-type payload.
func (b BlockInfo) MultipleType() bool { return b.Flags&FlagMultipleType != 0 }

// EncodingExtension reports whether float and vector payloads carry a
// leading strategy byte.
func (b BlockInfo) EncodingExtension() bool { return b.Flags&FlagEncodingExtension != 0 }
