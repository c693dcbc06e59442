package blockfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/typedblock"
)

// Reader gives random access to the blocks of a block file.
//
// Thread Safety: Reader methods are safe for concurrent use. Close must be
// called once, after all other calls have returned. Blocks and streams
// obtained from an uncompressed block alias the mapped file and are valid
// only until Close.
type Reader struct {
	path    string
	data    []byte
	release func() error
	offsets []uint64
	headers []BlockHeader
	rows    uint64
}

// Open maps path and validates its header, trailer, index and block
// headers. Block contents are checked lazily by ReadBlock.
func Open(path string) (*Reader, error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{path: path, data: data, release: release}
	if err := r.parse(); err != nil {
		release()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) parse() error {
	size := uint64(len(r.data))
	if size < fileHeaderSize+trailerSize {
		return fmt.Errorf("%w: %d bytes", ErrTruncated, size)
	}
	if magic := binary.LittleEndian.Uint32(r.data[0:4]); magic != Magic {
		return fmt.Errorf("%w: header has %08x", ErrMagicMismatch, magic)
	}
	if v := binary.LittleEndian.Uint32(r.data[4:8]); v != Version {
		return fmt.Errorf("%w: %d (want %d)", ErrVersionMismatch, v, Version)
	}

	trailer := r.data[size-trailerSize:]
	if magic := binary.LittleEndian.Uint32(trailer[16:20]); magic != Magic {
		return fmt.Errorf("%w: trailer has %08x", ErrMagicMismatch, magic)
	}
	indexOffset := binary.LittleEndian.Uint64(trailer[0:8])
	count := binary.LittleEndian.Uint64(trailer[8:16])
	if count > size/blockHeaderSize || indexOffset < fileHeaderSize || indexOffset+8*count != size-trailerSize {
		return fmt.Errorf("%w: %d blocks indexed at %d in a %d byte file", ErrBlockIndex, count, indexOffset, size)
	}

	r.offsets = make([]uint64, count)
	r.headers = make([]BlockHeader, count)
	next := uint64(fileHeaderSize)
	for i := range r.offsets {
		off := binary.LittleEndian.Uint64(r.data[indexOffset+8*uint64(i):])
		if off != next || off+blockHeaderSize > indexOffset {
			return fmt.Errorf("%w: block %d at offset %d, expected %d", ErrBlockIndex, i, off, next)
		}
		h := readBlockHeader(r.data[off : off+blockHeaderSize])
		if h.Info.NumElem > typedblock.MaxBlockValues {
			return fmt.Errorf("%w: block %d holds %d values", ErrTooManyRows, i, h.Info.NumElem)
		}
		if h.StoredSize > indexOffset-off-blockHeaderSize {
			return fmt.Errorf("%w: block %d stores %d bytes past the index", ErrBlockIndex, i, h.StoredSize)
		}
		r.offsets[i] = off
		r.headers[i] = h
		r.rows += h.Info.NumElem
		next = off + blockHeaderSize + h.StoredSize
	}
	if next != indexOffset {
		return fmt.Errorf("%w: %d unindexed bytes before the index", ErrBlockIndex, indexOffset-next)
	}
	return nil
}

// Path returns the file path.
func (r *Reader) Path() string { return r.path }

// NumBlocks returns the number of blocks.
func (r *Reader) NumBlocks() int { return len(r.headers) }

// NumRows returns the total number of values across all blocks.
func (r *Reader) NumRows() uint64 { return r.rows }

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return int64(len(r.data)) }

// Header returns the header of block i.
func (r *Reader) Header(i int) (BlockHeader, error) {
	if i < 0 || i >= len(r.headers) {
		return BlockHeader{}, fmt.Errorf("%w: block %d of %d", ErrBlockIndex, i, len(r.headers))
	}
	return r.headers[i], nil
}

// ReadBlock verifies and decompresses block i and returns it ready for the
// typedblock decoders.
func (r *Reader) ReadBlock(i int) (typedblock.BlockInfo, []byte, error) {
	h, err := r.Header(i)
	if err != nil {
		return typedblock.BlockInfo{}, nil, err
	}
	start := r.offsets[i] + blockHeaderSize
	stored := r.data[start : start+h.StoredSize : start+h.StoredSize]
	if sum := xxhash.Sum64(stored); sum != h.Checksum {
		return typedblock.BlockInfo{}, nil, fmt.Errorf("%w: block %d has %016x, header says %016x", ErrChecksumMismatch, i, sum, h.Checksum)
	}
	data, err := decompress(h.Info.Flags, stored, h.Info.BlockSize)
	if err != nil {
		return typedblock.BlockInfo{}, nil, fmt.Errorf("block %d: %w", i, err)
	}
	return h.Info, data, nil
}

// DecodeBlock decodes every value of block i.
func (r *Reader) DecodeBlock(i int) ([]flex.Value, error) {
	info, data, err := r.ReadBlock(i)
	if err != nil {
		return nil, err
	}
	values, err := typedblock.Decode(info, data)
	if err != nil {
		return nil, fmt.Errorf("decode block %d: %w", i, err)
	}
	return values, nil
}

// StreamBlock returns a stream over block i.
func (r *Reader) StreamBlock(i int) (*typedblock.Stream, error) {
	info, data, err := r.ReadBlock(i)
	if err != nil {
		return nil, err
	}
	s, err := typedblock.NewStream(info, data)
	if err != nil {
		return nil, fmt.Errorf("stream block %d: %w", i, err)
	}
	return s, nil
}

// MaxReadAllRows is the largest column ReadAll loads. Larger columns must
// be read with Scan.
const MaxReadAllRows = 1 << 22

// ReadAll decodes the whole column.
func (r *Reader) ReadAll() ([]flex.Value, error) {
	if r.rows > MaxReadAllRows {
		return nil, fmt.Errorf("read all: %w: %d rows, limit %d", ErrTooManyRows, r.rows, MaxReadAllRows)
	}
	out := make([]flex.Value, 0, r.rows)
	for i := range r.headers {
		values, err := r.DecodeBlock(i)
		if err != nil {
			return nil, err
		}
		out = append(out, values...)
	}
	return out, nil
}

// Scan streams values [skip, skip+limit) of the column to fn in windows of
// at most window values. A limit of 0 means no limit. Blocks entirely before
// skip are stepped over without being read. The slice passed to fn is
// reused between calls.
func (r *Reader) Scan(skip, limit uint64, window int, fn func([]flex.Value) error) error {
	if window <= 0 {
		window = 1024
	}
	buf := make([]flex.Value, window)
	remaining := limit
	for i, h := range r.headers {
		if limit > 0 && remaining == 0 {
			return nil
		}
		if skip >= h.Info.NumElem {
			skip -= h.Info.NumElem
			continue
		}

		s, err := r.StreamBlock(i)
		if err != nil {
			return err
		}
		if skip > 0 {
			if _, err := s.Skip(int(skip)); err != nil {
				return fmt.Errorf("skip in block %d: %w", i, err)
			}
			skip = 0
		}
		for {
			w := buf
			if limit > 0 && remaining < uint64(len(w)) {
				w = w[:remaining]
			}
			if len(w) == 0 {
				break
			}
			n, err := s.Read(w)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("read block %d: %w", i, err)
			}
			if err := fn(w[:n]); err != nil {
				return err
			}
			if limit > 0 {
				remaining -= uint64(n)
			}
		}
	}
	return nil
}

// Close unmaps the file.
func (r *Reader) Close() error {
	if r.release == nil {
		return nil
	}
	err := r.release()
	r.release = nil
	r.data = nil
	return err
}
