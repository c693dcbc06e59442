// Package membudget bounds the memory held by blocks that are being
// encoded, shared by every writer in the process.
//
// Callers reserve an estimate before building a block and release it once
// the block has been written.
package membudget

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/eunmann/typedblock/pkg/sysmem"
)

// EnvVar names the environment variable consulted when no budget flag is
// given.
const EnvVar = "TYPEDBLOCK_MEM_BUDGET"

// BudgetSource indicates how the memory budget was determined.
type BudgetSource string

const (
	// BudgetSourceAuto indicates the budget is half of detected RAM.
	BudgetSourceAuto BudgetSource = "auto-50pct"
	// BudgetSourceDefault indicates RAM could not be detected.
	BudgetSourceDefault BudgetSource = "default"
	// BudgetSourceCLI indicates the budget was set via CLI flag.
	BudgetSourceCLI BudgetSource = "cli"
	// BudgetSourceEnv indicates the budget was set via EnvVar.
	BudgetSourceEnv BudgetSource = "env"
)

// Budget is a pool of bytes that callers reserve before allocating.
//
// Budget is safe for concurrent use.
type Budget struct {
	total  uint64
	source BudgetSource

	mu    sync.Mutex
	inUse uint64
	// released is closed and replaced on every Release to wake waiters.
	released chan struct{}
}

// New creates a budget of total bytes.
func New(total uint64, source BudgetSource) *Budget {
	return &Budget{total: total, source: source, released: make(chan struct{})}
}

// NewFromSystemRAM creates a budget of half the system memory.
func NewFromSystemRAM() *Budget {
	mem := sysmem.Total()
	if !mem.Reliable {
		return New(mem.TotalBytes/2, BudgetSourceDefault)
	}
	return New(mem.TotalBytes/2, BudgetSourceAuto)
}

// Resolve picks the budget from a flag value, then EnvVar, then system
// RAM.
func Resolve(flagValue string) (*Budget, error) {
	if flagValue != "" {
		n, err := ParseHumanSize(flagValue)
		if err != nil {
			return nil, fmt.Errorf("invalid --mem-budget: %w", err)
		}
		return New(n, BudgetSourceCLI), nil
	}
	if env := os.Getenv(EnvVar); env != "" {
		n, err := ParseHumanSize(env)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvVar, err)
		}
		return New(n, BudgetSourceEnv), nil
	}
	return NewFromSystemRAM(), nil
}

// Total returns the total budget in bytes.
func (b *Budget) Total() uint64 {
	return b.total
}

// Source returns how the budget was determined.
func (b *Budget) Source() BudgetSource {
	return b.source
}

// InUse returns the currently reserved bytes.
func (b *Budget) InUse() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse
}

// Available returns total minus reserved bytes.
func (b *Budget) Available() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total - b.inUse
}

// TryReserve reserves n bytes if they are available now.
func (b *Budget) TryReserve(n uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tryReserveLocked(n)
}

func (b *Budget) tryReserveLocked(n uint64) bool {
	if n > b.total-b.inUse {
		return false
	}
	b.inUse += n
	return true
}

// Reserve blocks until n bytes are reserved or ctx is done. A request
// larger than the whole budget fails immediately.
func (b *Budget) Reserve(ctx context.Context, n uint64) error {
	if n > b.total {
		return fmt.Errorf("reservation of %d bytes exceeds total budget of %d bytes", n, b.total)
	}
	for {
		b.mu.Lock()
		if b.tryReserveLocked(n) {
			b.mu.Unlock()
			return nil
		}
		wake := b.released
		b.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release returns n bytes to the pool.
func (b *Budget) Release(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inUse -= min(n, b.inUse)
	close(b.released)
	b.released = make(chan struct{})
}

// Stats is a snapshot of a budget.
type Stats struct {
	TotalBytes     uint64
	InUseBytes     uint64
	AvailableBytes uint64
	Source         BudgetSource
	UsagePercent   float64
}

// Stats returns current budget statistics.
func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{
		TotalBytes:     b.total,
		InUseBytes:     b.inUse,
		AvailableBytes: b.total - b.inUse,
		Source:         b.source,
	}
	if b.total > 0 {
		s.UsagePercent = float64(b.inUse) / float64(b.total) * 100
	}
	return s
}

// ParseHumanSize parses a human-readable size string (e.g., "4GiB", "512MB").
// Supported suffixes: B, KB, KiB, K, MB, MiB, M, GB, GiB, G, TB, TiB, T.
func ParseHumanSize(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty size string")
	}

	numEnd := 0
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		numEnd = i + 1
	}
	numStr, suffix := s[:numEnd], s[numEnd:]

	var num float64
	if _, err := fmt.Sscanf(numStr, "%f", &num); err != nil {
		return 0, fmt.Errorf("invalid number: %q", numStr)
	}

	var multiplier float64
	switch suffix {
	case "", "B":
		multiplier = 1
	case "KB":
		multiplier = 1e3
	case "KiB", "K":
		multiplier = 1 << 10
	case "MB":
		multiplier = 1e6
	case "MiB", "M":
		multiplier = 1 << 20
	case "GB":
		multiplier = 1e9
	case "GiB", "G":
		multiplier = 1 << 30
	case "TB":
		multiplier = 1e12
	case "TiB", "T":
		multiplier = 1 << 40
	default:
		return 0, fmt.Errorf("unknown size suffix: %s", suffix)
	}
	return uint64(num * multiplier), nil
}
