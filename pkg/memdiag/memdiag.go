// Package memdiag logs heap usage while long commands run.
//
// Enable periodic logging with TYPEDBLOCK_MEM_DEBUG=1 and a pprof server
// with TYPEDBLOCK_MEM_PPROF=1 (listens on PprofAddr).
package memdiag

import (
	"errors"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/eunmann/typedblock/pkg/humanfmt"
	"github.com/eunmann/typedblock/pkg/membudget"
)

// PprofAddr is the listen address of the pprof server.
const PprofAddr = "localhost:6060"

// Config holds configuration for memory diagnostics.
type Config struct {
	// Enabled controls whether memory diagnostics are active.
	Enabled bool
	// PprofEnabled controls whether the pprof server is started.
	PprofEnabled bool
	// LogInterval is the interval for periodic memory logging.
	LogInterval time.Duration
}

// ConfigFromEnv returns the configuration selected by the environment.
func ConfigFromEnv() Config {
	return Config{
		Enabled:      os.Getenv("TYPEDBLOCK_MEM_DEBUG") == "1",
		PprofEnabled: os.Getenv("TYPEDBLOCK_MEM_PPROF") == "1",
		LogInterval:  5 * time.Second,
	}
}

// Stats holds memory statistics from runtime.
type Stats struct {
	HeapAlloc  uint64
	HeapSys    uint64
	HeapInuse  uint64
	StackInuse uint64
	Sys        uint64
	NumGC      uint32
	// GCCPUFraction is the fraction of CPU used by GC.
	GCCPUFraction float64
}

// Read reads current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:     m.HeapAlloc,
		HeapSys:       m.HeapSys,
		HeapInuse:     m.HeapInuse,
		StackInuse:    m.StackInuse,
		Sys:           m.Sys,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
	}
}

// Tracker logs memory usage periodically and records the peak heap.
type Tracker struct {
	config  Config
	log     zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool

	mu       sync.Mutex
	phase    string
	peakHeap uint64
}

// NewTracker creates a tracker that logs to log.
func NewTracker(config Config, log zerolog.Logger) *Tracker {
	if config.LogInterval <= 0 {
		config.LogInterval = 5 * time.Second
	}
	return &Tracker{
		config: config,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		phase:  "init",
	}
}

// Enabled reports whether the tracker logs anything.
func (t *Tracker) Enabled() bool {
	return t.config.Enabled
}

// Start begins periodic memory logging if enabled.
func (t *Tracker) Start() {
	if !t.config.Enabled || !t.started.CompareAndSwap(false, true) {
		return
	}
	t.log.Info().Dur("interval", t.config.LogInterval).Msg("memory diagnostics enabled")

	if t.config.PprofEnabled {
		go func() {
			t.log.Info().Str("addr", PprofAddr).Msg("starting pprof server")
			if err := http.ListenAndServe(PprofAddr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}
	go t.logLoop()
}

// Stop stops periodic logging and logs a final sample.
func (t *Tracker) Stop() {
	if !t.started.Load() {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

// SetPhase sets the phase reported by later samples.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.LogNow("phase_change")
}

// sample reads current stats and updates the peak.
func (t *Tracker) sample() (Stats, string, uint64) {
	stats := Read()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peakHeap = max(t.peakHeap, stats.HeapAlloc)
	return stats, t.phase, t.peakHeap
}

// LogNow logs current memory stats immediately.
func (t *Tracker) LogNow(reason string) {
	if !t.config.Enabled {
		return
	}
	stats, phase, peak := t.sample()
	t.log.Debug().
		Str("reason", reason).
		Str("phase", phase).
		Str("heap_alloc", humanfmt.BytesUint64(stats.HeapAlloc)).
		Str("heap_inuse", humanfmt.BytesUint64(stats.HeapInuse)).
		Str("stack_inuse", humanfmt.BytesUint64(stats.StackInuse)).
		Str("sys_total", humanfmt.BytesUint64(stats.Sys)).
		Str("peak_heap", humanfmt.BytesUint64(peak)).
		Uint32("num_gc", stats.NumGC).
		Float64("gc_cpu_pct", stats.GCCPUFraction*100).
		Msg("memory stats")
}

// LogWithBudget logs memory stats next to the reservations held in budget,
// warning when the heap far exceeds them.
func (t *Tracker) LogWithBudget(reason string, budget *membudget.Budget) {
	if !t.config.Enabled || budget == nil {
		return
	}
	stats, phase, peak := t.sample()
	bs := budget.Stats()

	var ratio float64
	if bs.InUseBytes > 0 {
		ratio = float64(stats.HeapAlloc) / float64(bs.InUseBytes)
	}
	t.log.Debug().
		Str("reason", reason).
		Str("phase", phase).
		Str("heap_alloc", humanfmt.BytesUint64(stats.HeapAlloc)).
		Str("budget_inuse", humanfmt.BytesUint64(bs.InUseBytes)).
		Str("budget_total", humanfmt.BytesUint64(bs.TotalBytes)).
		Float64("heap_vs_budget_ratio", ratio).
		Str("peak_heap", humanfmt.BytesUint64(peak)).
		Msg("memory stats with budget")

	if stats.HeapAlloc > bs.TotalBytes {
		t.log.Warn().
			Str("heap_alloc", humanfmt.BytesUint64(stats.HeapAlloc)).
			Str("budget_total", humanfmt.BytesUint64(bs.TotalBytes)).
			Msg("heap exceeds memory budget")
	}
}

// PeakHeap returns the peak heap allocation seen.
func (t *Tracker) PeakHeap() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

func (t *Tracker) logLoop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.config.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.LogNow("shutdown")
			return
		case <-ticker.C:
			t.LogNow("periodic")
		}
	}
}
