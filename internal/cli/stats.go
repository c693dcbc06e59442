package cli

import (
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/eunmann/typedblock/pkg/blockfile"
	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/humanfmt"
	"github.com/eunmann/typedblock/pkg/typedblock"
)

func runStats(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "block file")
	if err != nil {
		return err
	}

	r, err := blockfile.Open(path)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	defer r.Close()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tROWS\tTYPE\tFLAGS\tRAW\tSTORED\tRATIO\tCENSUS")
	var raw, stored uint64
	for i := range r.NumBlocks() {
		h, err := r.Header(i)
		if err != nil {
			return err
		}
		values, err := r.DecodeBlock(i)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i,
			h.Info.NumElem,
			blockType(h.Info, values),
			flagNames(h.Info.Flags),
			humanfmt.BytesUint64(h.Info.BlockSize),
			humanfmt.BytesUint64(h.StoredSize),
			humanfmt.Ratio(h.Info.BlockSize, h.StoredSize),
			census(values),
		)
		raw += h.Info.BlockSize
		stored += h.StoredSize
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout, "%d blocks, %s rows, %s raw, %s stored (%s), file %s\n",
		r.NumBlocks(),
		humanfmt.CountUint64(r.NumRows()),
		humanfmt.BytesUint64(raw),
		humanfmt.BytesUint64(stored),
		humanfmt.Ratio(raw, stored),
		humanfmt.Bytes(r.Size()),
	)
	return err
}

// blockType names the block's single non-missing type, or "mixed".
func blockType(info typedblock.BlockInfo, values []flex.Value) string {
	if info.MultipleType() {
		return "mixed"
	}
	for _, v := range values {
		if !v.IsMissing() {
			return v.Tag().String()
		}
	}
	return flex.Undefined.String()
}

func flagNames(flags uint32) string {
	names := []struct {
		bit  uint32
		name string
	}{
		{typedblock.FlagLZ4Compression, "lz4"},
		{typedblock.FlagIsFlexible, "flexible"},
		{typedblock.FlagMultipleType, "multi"},
		{typedblock.FlagEncodingExtension, "ext"},
		{typedblock.FlagZstdCompression, "zstd"},
	}
	var out []string
	for _, n := range names {
		if flags&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}

// census counts values per type, e.g. "integer:990 undefined:10".
func census(values []flex.Value) string {
	counts := make(map[flex.Tag]int)
	for _, v := range values {
		counts[v.Tag()]++
	}
	tags := make([]flex.Tag, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf("%s:%d", t, counts[t])
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
