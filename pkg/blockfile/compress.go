package blockfile

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/eunmann/typedblock/pkg/typedblock"
)

// Compression selects the library compressor applied to each block. The
// zero value is LZ4.
type Compression uint8

const (
	CompressionLZ4 Compression = iota
	CompressionNone
	CompressionZstd
)

// ParseCompression maps a flag value to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "lz4", "":
		return CompressionLZ4, nil
	case "none", "off":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", s)
}

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// maxStoredRatio is the largest compressed/raw ratio worth keeping. Blocks
// that compress worse are stored raw.
const maxStoredRatio = 0.9

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

// compress returns the bytes to store for data and the flag describing
// them. Data is returned unchanged, with no flag, when compression does not
// pay for itself.
func compress(c Compression, data []byte) ([]byte, uint32, error) {
	if c == CompressionNone || len(data) == 0 {
		return data, 0, nil
	}

	var out []byte
	var flag uint32
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		// zero means incompressible
		if n == 0 {
			return data, 0, nil
		}
		out, flag = buf[:n], typedblock.FlagLZ4Compression
	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, 0, fmt.Errorf("create zstd encoder: %w", err)
		}
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
		flag = typedblock.FlagZstdCompression
	default:
		return nil, 0, fmt.Errorf("unknown compression %d", c)
	}

	if float64(len(out)) > float64(len(data))*maxStoredRatio {
		return data, 0, nil
	}
	return out, flag, nil
}

// decompress reverses compress given the block's flags and decompressed
// size.
func decompress(flags uint32, stored []byte, size uint64) ([]byte, error) {
	lz := flags&typedblock.FlagLZ4Compression != 0
	zs := flags&typedblock.FlagZstdCompression != 0
	switch {
	case lz && zs:
		return nil, fmt.Errorf("%w: both lz4 and zstd flags set", ErrCompression)
	case !lz && !zs:
		if uint64(len(stored)) != size {
			return nil, fmt.Errorf("%w: raw block of %d bytes, header says %d", ErrCompression, len(stored), size)
		}
		return stored, nil
	}
	if size > maxBlockBytes {
		return nil, fmt.Errorf("%w: block of %d bytes", ErrCompression, size)
	}

	if lz {
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrCompression, err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrCompression, n, size)
		}
		return out, nil
	}

	dec, err := getZstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer zstdDecoderPool.Put(dec)
	out, err := dec.DecodeAll(stored, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrCompression, err)
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrCompression, len(out), size)
	}
	return out, nil
}
