// Package sysmem detects total system memory and sizes worker pools from it.
package sysmem

import "runtime"

// DefaultMemoryBytes is assumed when the platform cannot report its memory.
const DefaultMemoryBytes uint64 = 4 * 1024 * 1024 * 1024

// Result is a memory reading.
type Result struct {
	TotalBytes uint64
	// Reliable is false when TotalBytes is DefaultMemoryBytes.
	Reliable bool
}

// Total returns the total system memory, falling back to
// DefaultMemoryBytes.
func Total() Result {
	bytes, ok := totalSystemMemory()
	if !ok || bytes == 0 {
		return Result{TotalBytes: DefaultMemoryBytes}
	}
	return Result{TotalBytes: bytes, Reliable: true}
}

// TotalBytes returns Total().TotalBytes.
func TotalBytes() uint64 {
	return Total().TotalBytes
}

// budgetFraction is the share of system memory workers may hold at once.
const budgetFraction = 4

// Workers returns how many tasks of perTask bytes each may run at once:
// at most GOMAXPROCS, at most a quarter of memory, at least one.
func Workers(perTask uint64) int {
	return workers(TotalBytes(), perTask, runtime.GOMAXPROCS(0))
}

func workers(total, perTask uint64, procs int) int {
	n := procs
	if perTask > 0 {
		if byMem := total / budgetFraction / perTask; byMem < uint64(n) {
			n = int(byMem)
		}
	}
	return max(n, 1)
}
