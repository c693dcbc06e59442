package blockfile

import "errors"

var (
	// ErrMagicMismatch indicates the file does not start or end with the
	// block file magic.
	ErrMagicMismatch = errors.New("magic number mismatch")
	// ErrVersionMismatch indicates an unsupported format version.
	ErrVersionMismatch = errors.New("unsupported format version")
	// ErrChecksumMismatch indicates stored block bytes that do not match
	// their recorded checksum.
	ErrChecksumMismatch = errors.New("block checksum mismatch")
	// ErrBlockIndex indicates a block index or block header that points
	// outside the file, or a block number out of range.
	ErrBlockIndex = errors.New("invalid block index")
	// ErrTruncated indicates a file too short to hold a header and trailer.
	ErrTruncated = errors.New("block file truncated")
	// ErrCompression indicates a stored block that fails to decompress to
	// its recorded size.
	ErrCompression = errors.New("block decompression failed")
	// ErrTooManyRows indicates a block or column larger than the reader
	// accepts.
	ErrTooManyRows = errors.New("too many rows")
	// ErrClosed indicates a write to a closed Writer.
	ErrClosed = errors.New("block file writer closed")
)
