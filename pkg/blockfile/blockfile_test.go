package blockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/eunmann/typedblock/pkg/fileutil"
	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/membudget"
	"github.com/eunmann/typedblock/pkg/typedblock"
)

func testColumn(n int) []flex.Value {
	values := make([]flex.Value, n)
	for i := range values {
		switch {
		case i%17 == 0:
		case i < n/2:
			values[i] = flex.Str(fmt.Sprintf("category-%d", i%9))
		default:
			values[i] = flex.Str(fmt.Sprintf("row-%06d", i))
		}
	}
	return values
}

func writeFile(t *testing.T, values []flex.Value, opts Options) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "col.tblk")
	w, err := Create(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.WriteColumn(context.Background(), values); err != nil {
		t.Fatalf("WriteColumn failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func assertColumn(t *testing.T, got, want []flex.Value) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("value %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRoundTripCompressions(t *testing.T) {
	values := testColumn(5000)
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			path := writeFile(t, values, Options{BlockRows: 700, Compression: c, Concurrency: 3})
			r, err := Open(path)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer r.Close()

			if r.NumBlocks() != 8 {
				t.Errorf("NumBlocks = %d, want 8", r.NumBlocks())
			}
			if r.NumRows() != uint64(len(values)) {
				t.Errorf("NumRows = %d, want %d", r.NumRows(), len(values))
			}
			got, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			assertColumn(t, got, values)

			compressed := 0
			for i := range r.NumBlocks() {
				h, err := r.Header(i)
				if err != nil {
					t.Fatalf("Header(%d) failed: %v", i, err)
				}
				if h.Compressed() {
					compressed++
				}
			}
			if c == CompressionNone && compressed != 0 {
				t.Errorf("%d blocks compressed with compression off", compressed)
			}
			if c != CompressionNone && compressed == 0 {
				t.Error("no block compressed")
			}
		})
	}
}

func TestIncompressibleBlockStoredRaw(t *testing.T) {
	stored, flag, err := compress(CompressionLZ4, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if flag != 0 || len(stored) != 8 {
		t.Errorf("tiny block: flag %d, %d bytes, want raw", flag, len(stored))
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i % 7)
	}
	for _, c := range []Compression{CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			stored, flag, err := compress(c, data)
			if err != nil {
				t.Fatalf("compress failed: %v", err)
			}
			if flag == 0 {
				t.Fatal("repetitive data not compressed")
			}
			out, err := decompress(flag|typedblock.FlagIsFlexible, stored, uint64(len(data)))
			if err != nil {
				t.Fatalf("decompress failed: %v", err)
			}
			if string(out) != string(data) {
				t.Error("decompressed bytes differ")
			}
			if _, err := decompress(flag, stored, uint64(len(data)+1)); !errors.Is(err, ErrCompression) {
				t.Errorf("wrong size = %v, want ErrCompression", err)
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionLZ4, false},
		{"LZ4", CompressionLZ4, false},
		{"none", CompressionNone, false},
		{"zstd", CompressionZstd, false},
		{"gzip", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr || (!tt.wantErr && got != tt.want) {
			t.Errorf("ParseCompression(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestChecksumMismatch(t *testing.T) {
	path := writeFile(t, testColumn(300), Options{Compression: CompressionNone})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	// first stored byte of block 0
	data[fileHeaderSize+blockHeaderSize] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	if _, err := r.DecodeBlock(0); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("DecodeBlock = %v, want ErrChecksumMismatch", err)
	}
}

func TestOpenRejectsDamagedFiles(t *testing.T) {
	path := writeFile(t, testColumn(1000), Options{BlockRows: 300})
	good, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"empty", func([]byte) []byte { return nil }, ErrTruncated},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrMagicMismatch},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }, ErrVersionMismatch},
		{"bad trailer magic", func(b []byte) []byte { b[len(b)-1] = 0; return b }, ErrMagicMismatch},
		{"cut short", func(b []byte) []byte {
			return append(b[:len(b)-trailerSize-3:len(b)-trailerSize-3], b[len(b)-trailerSize:]...)
		}, ErrBlockIndex},
		{"block too large", func(b []byte) []byte {
			b[fileHeaderSize+4+7] = 0x7f
			return b
		}, ErrTooManyRows},
		{"bad block offset", func(b []byte) []byte {
			idx := len(b) - trailerSize - 8*4
			b[idx] ^= 1
			return b
		}, ErrBlockIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			damaged := filepath.Join(t.TempDir(), "damaged.tblk")
			buf := tt.mutate(append([]byte(nil), good...))
			if err := os.WriteFile(damaged, buf, 0o644); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			r, err := Open(damaged)
			if err == nil {
				r.Close()
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Open = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestScan(t *testing.T) {
	values := testColumn(2500)
	path := writeFile(t, values, Options{BlockRows: 400})
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	tests := []struct {
		skip, limit uint64
		window      int
	}{
		{0, 0, 100},
		{0, 10, 3},
		{399, 2, 5},
		{1000, 0, 64},
		{2499, 10, 7},
		{2500, 0, 7},
		{5000, 1, 7},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("skip%d-limit%d", tt.skip, tt.limit), func(t *testing.T) {
			var got []flex.Value
			err := r.Scan(tt.skip, tt.limit, tt.window, func(vs []flex.Value) error {
				if len(vs) > tt.window {
					t.Errorf("window of %d values", len(vs))
				}
				got = append(got, vs...)
				return nil
			})
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			lo := min(int(tt.skip), len(values))
			hi := len(values)
			if tt.limit > 0 {
				hi = min(lo+int(tt.limit), hi)
			}
			assertColumn(t, got, values[lo:hi])
		})
	}
}

func TestWriteBlockAndValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.tblk")
	w, err := Create(context.Background(), path, Options{Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	first := []flex.Value{flex.Int(1), flex.Int(2), flex.Missing()}
	data, info, err := typedblock.Encode(first)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := w.WriteBlock(info, data); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}
	second := []flex.Value{flex.Vec([]float64{1, 2}), flex.Str("mixed")}
	if err := w.WriteValues(second); err != nil {
		t.Fatalf("WriteValues failed: %v", err)
	}
	bad := []flex.Value{flex.ND(&flex.Array{Shape: []int{2}, Stride: []int{1}})}
	if err := w.WriteValues(bad); !errors.Is(err, typedblock.ErrInvalidArrayState) {
		t.Errorf("WriteValues(bad) = %v, want ErrInvalidArrayState", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.WriteValues(first); !errors.Is(err, ErrClosed) {
		t.Errorf("write after Close = %v, want ErrClosed", err)
	}
	if s := w.Stats(); s.Blocks != 2 || s.Rows != 5 {
		t.Errorf("Stats = %+v", s)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	assertColumn(t, got, append(first, second...))

	s, err := r.StreamBlock(1)
	if err != nil {
		t.Fatalf("StreamBlock failed: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("stream Len = %d", s.Len())
	}
	if _, err := r.Header(2); !errors.Is(err, ErrBlockIndex) {
		t.Errorf("Header(2) = %v, want ErrBlockIndex", err)
	}
}

func TestEmptyColumn(t *testing.T) {
	path := writeFile(t, nil, Options{})
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	if r.NumBlocks() != 0 || r.NumRows() != 0 {
		t.Errorf("NumBlocks, NumRows = %d, %d", r.NumBlocks(), r.NumRows())
	}
}

func TestAbortRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.tblk")
	w, err := Create(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.WriteValues(testColumn(10)); err != nil {
		t.Fatalf("WriteValues failed: %v", err)
	}
	if fileutil.Exists(path) {
		t.Error("final path exists before Close")
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if fileutil.Exists(path) || fileutil.Exists(fileutil.TmpPath(path)) {
		t.Error("files left after Abort")
	}
}

func TestWriteColumnCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canceled.tblk")
	w, err := Create(context.Background(), path, Options{BlockRows: 10})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer w.Abort()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.WriteColumn(ctx, testColumn(100)); !errors.Is(err, context.Canceled) {
		t.Errorf("WriteColumn = %v, want context.Canceled", err)
	}
}

func TestWriteColumnWithMemoryBudget(t *testing.T) {
	values := testColumn(3000)
	// room for one block at a time
	budget := membudget.New(500*bytesPerValue, membudget.BudgetSourceCLI)
	path := writeFile(t, values, Options{BlockRows: 500, Concurrency: 4, Memory: budget})
	if budget.InUse() != 0 {
		t.Errorf("InUse after write = %d, want 0", budget.InUse())
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	assertColumn(t, got, values)
}

func TestBlockRowLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.tblk")
	if _, err := Create(context.Background(), path, Options{BlockRows: typedblock.MaxBlockValues + 1}); !errors.Is(err, ErrTooManyRows) {
		t.Fatalf("Create error = %v, want ErrTooManyRows", err)
	}
	if fileutil.Exists(fileutil.TmpPath(path)) {
		t.Error("rejected Create left a temporary file")
	}

	w, err := Create(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer w.Abort()
	info := typedblock.BlockInfo{
		Flags:     typedblock.FlagIsFlexible | typedblock.FlagEncodingExtension,
		NumElem:   typedblock.MaxBlockValues + 1,
		BlockSize: 2,
	}
	if err := w.WriteBlock(info, []byte{1, flex.Undefined.WireCode()}); !errors.Is(err, ErrTooManyRows) {
		t.Errorf("WriteBlock error = %v, want ErrTooManyRows", err)
	}
	if w.Stats().Blocks != 0 {
		t.Errorf("Blocks = %d after rejected writes", w.Stats().Blocks)
	}
}

func TestReadAllRowLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.tblk")
	w, err := Create(context.Background(), path, Options{Compression: CompressionNone})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	info := typedblock.BlockInfo{
		Flags:     typedblock.FlagIsFlexible | typedblock.FlagEncodingExtension,
		NumElem:   typedblock.MaxBlockValues,
		BlockSize: 2,
	}
	for range MaxReadAllRows/typedblock.MaxBlockValues + 1 {
		if err := w.WriteBlock(info, []byte{1, flex.Undefined.WireCode()}); err != nil {
			t.Fatalf("WriteBlock failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	if _, err := r.ReadAll(); !errors.Is(err, ErrTooManyRows) {
		t.Errorf("ReadAll error = %v, want ErrTooManyRows", err)
	}
	var seen uint64
	err = r.Scan(uint64(MaxReadAllRows), 10, 4, func(vs []flex.Value) error {
		seen += uint64(len(vs))
		return nil
	})
	if err != nil || seen != 10 {
		t.Errorf("Scan past the limit = %d values, %v", seen, err)
	}
}
