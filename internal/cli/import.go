package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/eunmann/typedblock/internal/logctx"
	"github.com/eunmann/typedblock/pkg/blockfile"
	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/logging"
	"github.com/eunmann/typedblock/pkg/membudget"
	"github.com/eunmann/typedblock/pkg/memdiag"
	"github.com/eunmann/typedblock/pkg/parquetcol"
)

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	column := fs.String("column", "", "dot-separated parquet column path")
	out := fs.String("out", "", "output block file")
	blockRows := fs.Int("block-rows", blockfile.DefaultBlockRows, "values per block")
	compression := fs.String("compression", "lz4", "block compression: none, lz4 or zstd")
	concurrency := fs.Int("concurrency", 0, "blocks encoded at once (default from memory and CPUs)")
	memBudget := fs.String("mem-budget", "", "memory budget for encoding, e.g. 2GiB (default $"+membudget.EnvVar+" or half of RAM)")
	memDiag := fs.Bool("mem-diag", false, "log heap usage periodically (also TYPEDBLOCK_MEM_DEBUG=1)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *column == "" {
		return errors.New("import: --column is required")
	}
	if *out == "" {
		return errors.New("import: --out is required")
	}
	input, err := oneArg(fs, "parquet file")
	if err != nil {
		return err
	}
	comp, err := blockfile.ParseCompression(*compression)
	if err != nil {
		return fmt.Errorf("import: --compression: %w", err)
	}
	budget, err := membudget.Resolve(*memBudget)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	log := logctx.FromContext(ctx)
	log.Debug().
		Str("input", input).
		Str("column", *column).
		Uint64("mem_budget", budget.Total()).
		Str("mem_budget_source", string(budget.Source())).
		Msg("starting import")
	start := time.Now()

	diagCfg := memdiag.ConfigFromEnv()
	diagCfg.Enabled = diagCfg.Enabled || *memDiag
	tracker := memdiag.NewTracker(diagCfg, log)
	tracker.Start()
	defer tracker.Stop()

	r, err := parquetcol.OpenFile(input, *column)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer r.Close()

	w, err := blockfile.Create(ctx, *out, blockfile.Options{
		BlockRows:   *blockRows,
		Compression: comp,
		Concurrency: *concurrency,
		Memory:      budget,
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	// whole rounds of blocks, so only the last block can be short
	opts := w.Options()
	batch := opts.BlockRows * opts.Concurrency
	tracker.SetPhase("encode")
	err = r.Scan(ctx, batch, func(values []flex.Value) error {
		if err := w.WriteColumn(ctx, values); err != nil {
			return err
		}
		tracker.LogWithBudget("batch_written", budget)
		return nil
	})
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			log.Warn().Err(abortErr).Msg("failed to remove partial block file")
		}
		return fmt.Errorf("import %s: %w", input, err)
	}

	stats := w.Stats()
	logging.PhaseComplete(log, "import", time.Since(start)).
		Str("out", *out).
		Int("blocks", stats.Blocks).
		Count("rows", stats.Rows).
		Bytes("raw_bytes", stats.RawBytes).
		Bytes("stored_bytes", stats.StoredBytes).
		Ratio("ratio", stats.RawBytes, stats.StoredBytes).
		Throughput(stats.RawBytes).
		Log("import complete")
	return nil
}
