package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/eunmann/typedblock/pkg/blockfile"
	"github.com/eunmann/typedblock/pkg/flex"
)

func runCat(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("cat", flag.ContinueOnError)
	skip := fs.Uint64("skip", 0, "values to skip before printing")
	limit := fs.Uint64("limit", 0, "maximum values to print (0 for all)")
	window := fs.Int("window", 1024, "values decoded per read")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "block file")
	if err != nil {
		return err
	}
	if *window <= 0 {
		return fmt.Errorf("cat: --window must be positive, got %d", *window)
	}

	r, err := blockfile.Open(path)
	if err != nil {
		return fmt.Errorf("cat: %w", err)
	}
	defer r.Close()

	bw := bufio.NewWriter(stdout)
	err = r.Scan(*skip, *limit, *window, func(values []flex.Value) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, v := range values {
			if _, err := fmt.Fprintln(bw, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cat %s: %w", path, err)
	}
	return bw.Flush()
}
