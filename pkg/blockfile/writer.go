package blockfile

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eunmann/typedblock/internal/logctx"
	"github.com/eunmann/typedblock/pkg/fileutil"
	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/logging"
	"github.com/eunmann/typedblock/pkg/membudget"
	"github.com/eunmann/typedblock/pkg/sysmem"
	"github.com/eunmann/typedblock/pkg/typedblock"
)

// DefaultBlockRows is the number of values per block when Options leaves
// BlockRows unset.
const DefaultBlockRows = 65536

// bytesPerValue estimates the memory one value costs while its block is
// being encoded.
const bytesPerValue = 64

// Options configures a Writer.
type Options struct {
	// BlockRows is the number of values per block written by WriteColumn
	// (default DefaultBlockRows).
	BlockRows int
	// Compression is applied to each encoded block (default LZ4).
	Compression Compression
	// Concurrency bounds how many blocks WriteColumn encodes at once
	// (default derived from system memory and GOMAXPROCS).
	Concurrency int
	// BufferSize is the file write buffer size (default 1 MiB).
	BufferSize int
	// Memory, when set, is reserved for each block while it is encoded.
	Memory *membudget.Budget
}

func (o Options) withDefaults() Options {
	if o.BlockRows <= 0 {
		o.BlockRows = DefaultBlockRows
	}
	if o.Concurrency <= 0 {
		o.Concurrency = sysmem.Workers(uint64(o.BlockRows) * bytesPerValue)
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 1 << 20
	}
	return o
}

// WriteStats summarizes what a Writer has written so far.
type WriteStats struct {
	Blocks int
	Rows   uint64
	// RawBytes is the total encoded size before compression.
	RawBytes uint64
	// StoredBytes is the total size of stored block bytes.
	StoredBytes uint64
}

// Writer appends typed blocks to a new block file. It is not safe for
// concurrent use; WriteColumn parallelizes internally.
type Writer struct {
	file    *os.File
	bw      *bufio.Writer
	path    string
	opts    Options
	offset  uint64
	offsets []uint64
	stats   WriteStats
	start   time.Time
	closed  bool
	log     zerolog.Logger
}

// Create starts a block file at path and writes the file header. Blocks
// go to a temporary file that Close moves into place.
func Create(ctx context.Context, path string, opts Options) (*Writer, error) {
	opts = opts.withDefaults()
	if opts.BlockRows > typedblock.MaxBlockValues {
		return nil, fmt.Errorf("%w: %d rows per block, limit %d", ErrTooManyRows, opts.BlockRows, typedblock.MaxBlockValues)
	}
	f, err := fileutil.CreateTmp(path)
	if err != nil {
		return nil, fmt.Errorf("create block file: %w", err)
	}

	w := &Writer{
		file:  f,
		bw:    bufio.NewWriterSize(f, opts.BufferSize),
		path:  path,
		opts:  opts,
		start: time.Now(),
		log:   logctx.FromContext(ctx).With().Str("path", path).Logger(),
	}
	var header [fileHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], Version)
	if err := w.write(header[:]); err != nil {
		fileutil.Discard(f)
		return nil, fmt.Errorf("write header: %w", err)
	}
	return w, nil
}

// Options returns the writer's options with defaults applied.
func (w *Writer) Options() Options {
	return w.opts
}

// Stats returns totals for the blocks written so far.
func (w *Writer) Stats() WriteStats {
	return w.stats
}

func (w *Writer) write(p []byte) error {
	n, err := w.bw.Write(p)
	w.offset += uint64(n)
	return err
}

// sealedBlock is a block ready to append: encoded, compressed, checksummed.
type sealedBlock struct {
	header BlockHeader
	stored []byte
}

func seal(info typedblock.BlockInfo, data []byte, c Compression) (sealedBlock, error) {
	stored, flag, err := compress(c, data)
	if err != nil {
		return sealedBlock{}, err
	}
	info.Flags = info.Flags&^(typedblock.FlagLZ4Compression|typedblock.FlagZstdCompression) | flag
	return sealedBlock{
		header: BlockHeader{
			Info:       info,
			StoredSize: uint64(len(stored)),
			Checksum:   xxhash.Sum64(stored),
		},
		stored: stored,
	}, nil
}

func encodeAndSeal(values []flex.Value, c Compression) (sealedBlock, error) {
	data, info, err := typedblock.Encode(values)
	if err != nil {
		return sealedBlock{}, err
	}
	return seal(info, data, c)
}

func (w *Writer) append(b sealedBlock) error {
	if w.closed {
		return ErrClosed
	}
	w.offsets = append(w.offsets, w.offset)

	var hdr [blockHeaderSize]byte
	b.header.put(hdr[:])
	if err := w.write(hdr[:]); err != nil {
		return fmt.Errorf("write block header: %w", err)
	}
	if err := w.write(b.stored); err != nil {
		return fmt.Errorf("write block: %w", err)
	}

	w.stats.Blocks++
	w.stats.Rows += b.header.Info.NumElem
	w.stats.RawBytes += b.header.Info.BlockSize
	w.stats.StoredBytes += b.header.StoredSize
	return nil
}

// WriteBlock appends a block produced by typedblock.Encode.
func (w *Writer) WriteBlock(info typedblock.BlockInfo, data []byte) error {
	if uint64(len(data)) != info.BlockSize {
		return fmt.Errorf("write block: %d bytes, info says %d", len(data), info.BlockSize)
	}
	if info.NumElem > typedblock.MaxBlockValues {
		return fmt.Errorf("write block: %w: %d values", ErrTooManyRows, info.NumElem)
	}
	b, err := seal(info, data, w.opts.Compression)
	if err != nil {
		return fmt.Errorf("compress block %d: %w", w.stats.Blocks, err)
	}
	return w.append(b)
}

// WriteValues encodes values as one block and appends it.
func (w *Writer) WriteValues(values []flex.Value) error {
	if len(values) > typedblock.MaxBlockValues {
		return fmt.Errorf("write block: %w: %d values", ErrTooManyRows, len(values))
	}
	b, err := encodeAndSeal(values, w.opts.Compression)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", w.stats.Blocks, err)
	}
	return w.append(b)
}

// WriteColumn splits values into blocks of BlockRows and appends them in
// order. Up to Concurrency blocks are encoded at once; each round is
// appended before the next starts, so at most Concurrency encoded blocks
// are held in memory.
func (w *Writer) WriteColumn(ctx context.Context, values []flex.Value) error {
	rows := w.opts.BlockRows
	for start := 0; start < len(values); {
		n := min(w.opts.Concurrency, (len(values)-start+rows-1)/rows)
		sealed := make([]sealedBlock, n)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.opts.Concurrency)
		for i := range n {
			lo := start + i*rows
			hi := min(lo+rows, len(values))
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if w.opts.Memory != nil {
					est := min(uint64(hi-lo)*bytesPerValue, w.opts.Memory.Total())
					if err := w.opts.Memory.Reserve(gctx, est); err != nil {
						return fmt.Errorf("reserve memory for rows %d-%d: %w", lo, hi, err)
					}
					defer w.opts.Memory.Release(est)
				}
				b, err := encodeAndSeal(values[lo:hi], w.opts.Compression)
				if err != nil {
					return fmt.Errorf("encode rows %d-%d: %w", lo, hi, err)
				}
				sealed[i] = b
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := w.appendRound(sealed); err != nil {
			return err
		}

		start = min(start+n*rows, len(values))
	}
	return nil
}

// appendRound appends one round of encoded blocks in order.
func (w *Writer) appendRound(sealed []sealedBlock) error {
	start := time.Now()
	var raw, stored uint64
	for _, b := range sealed {
		if err := w.append(b); err != nil {
			return err
		}
		raw += b.header.Info.BlockSize
		stored += b.header.StoredSize
	}
	logging.BlocksWritten(w.log, "write", time.Since(start)).
		Int("blocks", len(sealed)).
		Bytes("raw_bytes", raw).
		Bytes("stored_bytes", stored).
		LogDebug("blocks written")
	return nil
}

// Close writes the block index and trailer and moves the file to its path.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	indexOffset := w.offset
	buf := make([]byte, 8*len(w.offsets)+trailerSize)
	for i, off := range w.offsets {
		binary.LittleEndian.PutUint64(buf[8*i:], off)
	}
	trailer := buf[8*len(w.offsets):]
	binary.LittleEndian.PutUint64(trailer[0:8], indexOffset)
	binary.LittleEndian.PutUint64(trailer[8:16], uint64(len(w.offsets)))
	binary.LittleEndian.PutUint32(trailer[16:20], Magic)

	if err := w.write(buf); err != nil {
		fileutil.Discard(w.file)
		return fmt.Errorf("write index: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		fileutil.Discard(w.file)
		return fmt.Errorf("flush block file: %w", err)
	}
	if err := fileutil.Commit(w.file, w.path); err != nil {
		return fmt.Errorf("commit block file: %w", err)
	}

	logging.FileCreated(w.log, "write", time.Since(w.start)).
		Int("blocks", w.stats.Blocks).
		Count("rows", w.stats.Rows).
		Bytes("raw_bytes", w.stats.RawBytes).
		Bytes("stored_bytes", w.stats.StoredBytes).
		Ratio("ratio", w.stats.RawBytes, w.stats.StoredBytes).
		Str("compression", w.opts.Compression.String()).
		LogDebug("block file written")
	return nil
}

// Abort discards a partially written file. After Close it removes the
// finished file instead.
func (w *Writer) Abort() error {
	if !w.closed {
		w.closed = true
		return fileutil.Discard(w.file)
	}
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove block file: %w", err)
	}
	return nil
}
