// Package blockfile stores one column as a file of typed blocks.
//
// File layout, all integers little-endian:
//
//	header   magic u32 ("TBLK") | version u32
//	block    flags u32 | num_elem u64 | block_size u64 | stored_size u64 |
//	         xxhash64(stored) u64 | stored bytes
//	...
//	index    offset u64 per block
//	trailer  index_offset u64 | block_count u64 | magic u32
//
// flags, num_elem and block_size are the typedblock.BlockInfo of the block.
// When a compression flag is set the stored bytes are the compressed block
// and block_size is its decompressed length.
package blockfile

import (
	"encoding/binary"

	"github.com/eunmann/typedblock/pkg/typedblock"
)

const (
	// Magic is "TBLK" read as a little-endian u32.
	Magic uint32 = 0x4B4C4254
	// Version is the current file format version.
	Version uint32 = 1

	fileHeaderSize  = 8
	blockHeaderSize = 4 + 8 + 8 + 8 + 8
	trailerSize     = 8 + 8 + 4

	// maxBlockBytes bounds the decompressed size of one block.
	maxBlockBytes = 1 << 32
)

// BlockHeader is the per-block record preceding the stored bytes.
type BlockHeader struct {
	Info       typedblock.BlockInfo
	StoredSize uint64
	Checksum   uint64
}

// Compressed reports whether the stored bytes are compressed.
func (h BlockHeader) Compressed() bool {
	return h.Info.Flags&(typedblock.FlagLZ4Compression|typedblock.FlagZstdCompression) != 0
}

func (h BlockHeader) put(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Info.Flags)
	binary.LittleEndian.PutUint64(dst[4:12], h.Info.NumElem)
	binary.LittleEndian.PutUint64(dst[12:20], h.Info.BlockSize)
	binary.LittleEndian.PutUint64(dst[20:28], h.StoredSize)
	binary.LittleEndian.PutUint64(dst[28:36], h.Checksum)
}

func readBlockHeader(p []byte) BlockHeader {
	return BlockHeader{
		Info: typedblock.BlockInfo{
			Flags:     binary.LittleEndian.Uint32(p[0:4]),
			NumElem:   binary.LittleEndian.Uint64(p[4:12]),
			BlockSize: binary.LittleEndian.Uint64(p[12:20]),
		},
		StoredSize: binary.LittleEndian.Uint64(p[20:28]),
		Checksum:   binary.LittleEndian.Uint64(p[28:36]),
	}
}
