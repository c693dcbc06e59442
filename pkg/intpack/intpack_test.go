package intpack

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/eunmann/typedblock/pkg/wire"
)

func roundTrip(t *testing.T, batch []uint64) []byte {
	t.Helper()
	w := wire.NewWriter(0)
	Pack(w, batch)
	r := wire.NewReader(w.Bytes())
	got := make([]uint64, len(batch))
	if err := Unpack(r, got); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if !slices.Equal(got, batch) {
		t.Fatalf("Unpack = %v, want %v", got, batch)
	}
	if r.Remaining() != 0 {
		t.Fatalf("%d bytes left after Unpack", r.Remaining())
	}
	return w.Bytes()
}

func seq(n int, f func(i int) uint64) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestPackModes(t *testing.T) {
	tests := []struct {
		name     string
		batch    []uint64
		wantMode byte
		wantLen  int
	}{
		// header + base, no body
		{"constant", seq(128, func(int) uint64 { return 9 }), modeFOR, 2},
		{"single", []uint64{300}, modeFOR, 3},
		// deltas of 1 need one bit each
		{"ascending", seq(128, func(i int) uint64 { return uint64(i) + 1000 }), modeDelta, 1 + 2 + 16},
		// one FOR bit per value beats two zig-zag bits
		{"oscillating", seq(9, func(i int) uint64 { return uint64(100 + i%2) }), modeFOR, 1 + 1 + 2},
		{"descending", seq(128, func(i int) uint64 { return uint64(1000000 - 3*i) }), modeZigZag, 1 + 3 + 64},
		{"small spread", []uint64{7, 3, 5, 4}, modeZigZag, 1 + 1 + 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := roundTrip(t, tt.batch)
			if mode := data[0] & 0x3; mode != tt.wantMode {
				t.Errorf("mode = %d, want %d", mode, tt.wantMode)
			}
			if len(data) != tt.wantLen {
				t.Errorf("packed length = %d, want %d", len(data), tt.wantLen)
			}
		})
	}
}

func TestPackExtremes(t *testing.T) {
	batches := [][]uint64{
		{0, math.MaxUint64},
		{math.MaxUint64, 0, math.MaxUint64},
		{math.MaxUint64, math.MaxUint64 - 1},
		seq(128, func(i int) uint64 { return uint64(int64(-i)) }),
		seq(128, func(i int) uint64 { return uint64(i) << 40 }),
	}
	for _, b := range batches {
		roundTrip(t, b)
	}
}

func TestPackRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for range 500 {
		n := rng.IntN(BatchSize) + 1
		bits := rng.IntN(65)
		batch := seq(n, func(int) uint64 {
			if bits == 64 {
				return rng.Uint64()
			}
			return rng.Uint64N(1<<bits + 1)
		})
		roundTrip(t, batch)
	}
}

func TestSkip(t *testing.T) {
	w := wire.NewWriter(0)
	first := seq(128, func(i int) uint64 { return uint64(i * i) })
	second := seq(50, func(i int) uint64 { return uint64(7 * i) })
	Pack(w, first)
	Pack(w, second)

	r := wire.NewReader(w.Bytes())
	if err := Skip(r, len(first)); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	got := make([]uint64, len(second))
	if err := Unpack(r, got); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if !slices.Equal(got, second) {
		t.Errorf("second batch = %v, want %v", got, second)
	}
}

func TestUnpackErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, wire.ErrTruncated},
		{"bad mode", []byte{0x03, 0}, ErrBadHeader},
		{"high bits", []byte{0x20, 0}, ErrBadHeader},
		{"short body", []byte{0x00 | 4<<2, 0, 1}, wire.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Unpack(wire.NewReader(tt.data), make([]uint64, 4))
			if !errors.Is(err, tt.want) {
				t.Errorf("Unpack = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPackOversizedBatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Pack accepted an oversized batch")
		}
	}()
	Pack(wire.NewWriter(0), make([]uint64, BatchSize+1))
}
