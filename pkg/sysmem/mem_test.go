package sysmem

import (
	"runtime"
	"testing"
)

func TestTotal(t *testing.T) {
	result := Total()
	if result.TotalBytes == 0 {
		t.Fatal("Total() returned 0 bytes")
	}
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "openbsd", "netbsd", "dragonfly":
		if !result.Reliable {
			t.Logf("memory detection not reliable on %s", runtime.GOOS)
		}
	default:
		if result.Reliable || result.TotalBytes != DefaultMemoryBytes {
			t.Errorf("Total() = %+v, want the default on %s", result, runtime.GOOS)
		}
	}
	if TotalBytes() != result.TotalBytes {
		t.Errorf("TotalBytes() = %d, want %d", TotalBytes(), result.TotalBytes)
	}
}

func TestWorkers(t *testing.T) {
	const gib = 1 << 30
	tests := []struct {
		name    string
		total   uint64
		perTask uint64
		procs   int
		want    int
	}{
		{"cpu bound", 64 * gib, 1 << 20, 8, 8},
		{"memory bound", 4 * gib, gib / 2, 16, 2},
		{"never zero", gib, 8 * gib, 4, 1},
		{"no estimate", gib, 0, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := workers(tt.total, tt.perTask, tt.procs); got != tt.want {
				t.Errorf("workers() = %d, want %d", got, tt.want)
			}
		})
	}
	if Workers(1) < 1 {
		t.Error("Workers returned less than one")
	}
}
