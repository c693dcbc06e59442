package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/eunmann/typedblock/internal/logctx"
	"github.com/eunmann/typedblock/pkg/blockfile"
	"github.com/eunmann/typedblock/pkg/s3store"
)

// Object metadata keys set on push.
const (
	metaRows   = "typedblock-rows"
	metaBlocks = "typedblock-blocks"
)

func transferFlags(name string) (*flag.FlagSet, *int64, *int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	def := s3store.DefaultTransferConfig()
	partSize := fs.Int64("part-size", def.PartSize, "multipart transfer part size in bytes")
	concurrency := fs.Int("concurrency", def.Concurrency, "parts transferred at once")
	return fs, partSize, concurrency
}

func twoArgs(fs *flag.FlagSet, first, second string) (string, string, error) {
	if fs.NArg() != 2 {
		return "", "", fmt.Errorf("%s: expected %s and %s, got %d arguments", fs.Name(), first, second, fs.NArg())
	}
	return fs.Arg(0), fs.Arg(1), nil
}

func runPush(ctx context.Context, args []string) error {
	fs, partSize, concurrency := transferFlags("push")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, uri, err := twoArgs(fs, "FILE.tblk", "s3://bucket/key")
	if err != nil {
		return err
	}
	loc, err := s3store.ParseURI(uri)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	// only valid block files are pushed
	r, err := blockfile.Open(path)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	meta := map[string]string{
		metaRows:   strconv.FormatUint(r.NumRows(), 10),
		metaBlocks: strconv.Itoa(r.NumBlocks()),
	}
	if err := r.Close(); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	client, err := s3store.NewClient(ctx, s3store.TransferConfig{PartSize: *partSize, Concurrency: *concurrency})
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if _, err := client.Upload(ctx, path, loc, meta); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func runPull(ctx context.Context, args []string) error {
	fs, partSize, concurrency := transferFlags("pull")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uri, path, err := twoArgs(fs, "s3://bucket/key", "FILE.tblk")
	if err != nil {
		return err
	}
	loc, err := s3store.ParseURI(uri)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	client, err := s3store.NewClient(ctx, s3store.TransferConfig{PartSize: *partSize, Concurrency: *concurrency})
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if _, err := client.Download(ctx, loc, path); err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	r, err := blockfile.Open(path)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("pull: downloaded object is not a block file: %w", err)
	}
	defer r.Close()
	log := logctx.FromContext(ctx)
	log.Info().
		Str("path", path).
		Int("blocks", r.NumBlocks()).
		Uint64("rows", r.NumRows()).
		Msg("block file verified")
	return nil
}
