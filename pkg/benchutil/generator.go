// Package benchutil provides synthetic columns for benchmarks and tests.
package benchutil

import (
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/eunmann/typedblock/pkg/flex"
)

// SkipIfNoLongBench skips the benchmark if TYPEDBLOCK_LONG_BENCH is not set.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv("TYPEDBLOCK_LONG_BENCH") == "" {
		b.Skip("set TYPEDBLOCK_LONG_BENCH=1 to run scaling benchmark")
	}
}

// Generator generates synthetic columns.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator. A zero seed uses BenchmarkSeed.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = BenchmarkSeed
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Column returns n values of the named shape. Unknown shapes fall back to
// object_keys.
func (g *Generator) Column(shape string, n int) []flex.Value {
	values := make([]flex.Value, n)
	switch shape {
	case "sorted_ints":
		v := int64(1_600_000_000)
		for i := range values {
			v += int64(g.rng.Intn(60))
			values[i] = flex.Int(v)
		}
	case "object_sizes":
		for i := range values {
			values[i] = flex.Int(int64(g.objectSize()))
		}
	case "prices":
		for i := range values {
			values[i] = flex.Flt(float64(g.rng.Intn(100_000)))
		}
	case "measurements":
		for i := range values {
			values[i] = flex.Flt(g.rng.NormFloat64() * 1000)
		}
	case "categories":
		for i := range values {
			values[i] = flex.Str(g.category())
		}
	case "sparse":
		for i := range values {
			if g.rng.Intn(10) == 0 {
				values[i] = flex.Int(g.rng.Int63n(1000))
			}
		}
	case "embeddings":
		for i := range values {
			vec := make([]float64, 8)
			for j := range vec {
				vec[j] = g.rng.Float64()
			}
			values[i] = flex.Vec(vec)
		}
	case "mixed":
		for i := range values {
			switch g.rng.Intn(4) {
			case 0:
				values[i] = flex.Int(g.rng.Int63n(1 << 20))
			case 1:
				values[i] = flex.Str(g.category())
			case 2:
				values[i] = flex.Flt(g.rng.Float64())
			}
		}
	default:
		for i := range values {
			values[i] = flex.Str(g.objectKey())
		}
	}
	return values
}

func (g *Generator) category() string {
	categories := []string{"logs", "data", "exports", "backups", "raw", "processed", "archive", "tmp"}
	return categories[g.rng.Intn(len(categories))]
}

func (g *Generator) objectKey() string {
	prefixes := []string{"data", "logs", "backups", "exports", "uploads"}
	extensions := []string{".json", ".csv", ".parquet", ".txt", ".gz"}
	return fmt.Sprintf("%s/%d/%02d/%02d/user%05d/file_%08x%s",
		prefixes[g.rng.Intn(len(prefixes))],
		2022+g.rng.Intn(3),
		1+g.rng.Intn(12),
		1+g.rng.Intn(28),
		g.rng.Intn(1000),
		g.rng.Uint32(),
		extensions[g.rng.Intn(len(extensions))],
	)
}

// objectSize draws a log-normal-ish size: mostly small, some very large.
func (g *Generator) objectSize() uint64 {
	switch g.rng.Intn(10) {
	case 0:
		return uint64(g.rng.Intn(1024))
	case 1, 2, 3:
		return uint64(1024 + g.rng.Intn(1024*1024))
	case 4, 5, 6, 7:
		return uint64(1024*1024 + g.rng.Intn(100*1024*1024))
	case 8:
		return uint64(100*1024*1024 + g.rng.Intn(900*1024*1024))
	default:
		return uint64(1024*1024*1024 + g.rng.Int63n(4*1024*1024*1024))
	}
}
