// Package cli implements the typedblock command-line interface.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/typedblock/internal/logctx"
	"github.com/eunmann/typedblock/pkg/logging"
)

const usage = `usage: typedblock [--debug] [--human] <command> [options]
commands: import, cat, stats, push, pull`

// Run executes the CLI with the given arguments, writing command output to
// stdout.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("typedblock", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-readable console logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New(usage)
	}
	logging.Init(*debug, *human)

	cmd, cmdArgs := rest[0], rest[1:]
	ctx = logctx.WithLogger(ctx, logging.WithPhase(cmd))

	switch cmd {
	case "import":
		return runImport(ctx, cmdArgs)
	case "cat":
		return runCat(ctx, cmdArgs, stdout)
	case "stats":
		return runStats(cmdArgs, stdout)
	case "push":
		return runPush(ctx, cmdArgs)
	case "pull":
		return runPull(ctx, cmdArgs)
	default:
		return fmt.Errorf("unknown command: %s\n%s", cmd, usage)
	}
}

// oneArg returns the single positional argument of a subcommand.
func oneArg(fs *flag.FlagSet, what string) (string, error) {
	switch fs.NArg() {
	case 1:
		return fs.Arg(0), nil
	case 0:
		return "", fmt.Errorf("%s: %s is required", fs.Name(), what)
	}
	return "", fmt.Errorf("%s: expected one %s, got %d arguments", fs.Name(), what, fs.NArg())
}
