package benchutil

// Shared constants for benchmarks across packages.

// BenchmarkSeed is the default seed for reproducible benchmark data generation.
const BenchmarkSeed = 42

// BenchmarkSizes are the column lengths for quick runs.
var BenchmarkSizes = []int{1000, 65536}

// ScalingSizes are larger column lengths, used with
// TYPEDBLOCK_LONG_BENCH=1.
var ScalingSizes = []int{65536, 262144, 1048576}

// Shapes are the standard column shapes for benchmarking. Each exercises a
// different payload path:
//   - sorted_ints: delta-packed integers
//   - object_sizes: wide, skewed integers
//   - prices: floats that promote to integers
//   - measurements: floats that stay in the legacy layout
//   - categories: dictionary-encoded strings
//   - object_keys: directly encoded strings
//   - sparse: mostly missing integers
//   - embeddings: fixed-length vectors
//   - mixed: heterogeneous values
var Shapes = []string{
	"sorted_ints",
	"object_sizes",
	"prices",
	"measurements",
	"categories",
	"object_keys",
	"sparse",
	"embeddings",
	"mixed",
}
