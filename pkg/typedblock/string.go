package typedblock

import (
	"fmt"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/wire"
)

// MaxDictionarySize is the largest number of distinct strings a column may
// hold and still be dictionary encoded. Changing it changes the on-disk
// format.
const MaxDictionarySize = 64

// buildDictionary returns the distinct strings in first-seen order and one
// index per non-Undefined value.
func buildDictionary(values []flex.Value) ([]string, []uint64, error) {
	index := make(map[string]uint64, MaxDictionarySize)
	var dict []string
	ids := make([]uint64, 0, len(values))
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		id, ok := index[v.Str()]
		if !ok {
			if len(dict) == MaxDictionarySize {
				return nil, nil, errDictionaryOverflow
			}
			id = uint64(len(dict))
			index[v.Str()] = id
			dict = append(dict, v.Str())
		}
		ids = append(ids, id)
	}
	return dict, ids, nil
}

func encodeStrings(w *wire.Writer, values []flex.Value) {
	dict, ids, err := buildDictionary(values)
	if err == nil {
		w.PutBool(true)
		w.PutUvarint(uint64(len(dict)))
		for _, s := range dict {
			w.PutUvarint(uint64(len(s)))
			w.PutString(s)
		}
		encodeUints(w, ids)
		return
	}

	// Too many distinct values: lengths first, then the raw bytes.
	w.PutBool(false)
	lens := make([]uint64, 0, len(values))
	for _, v := range values {
		if !v.IsMissing() {
			lens = append(lens, uint64(len(v.Str())))
		}
	}
	encodeUints(w, lens)
	for _, v := range values {
		if !v.IsMissing() {
			w.PutString(v.Str())
		}
	}
}

// readDictionary reads the dictionary table that follows a true flag.
func readDictionary(r *wire.Reader) ([]string, error) {
	count, err := r.ReadUvarint()
	if err != nil {
		return nil, fmt.Errorf("read dictionary size: %w", err)
	}
	if count > MaxDictionarySize {
		return nil, fmt.Errorf("%w: dictionary of %d entries", ErrCorrupt, count)
	}
	dict := make([]string, count)
	for i := range dict {
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, fmt.Errorf("read dictionary entry %d: %w", i, err)
		}
		if n > uint64(r.Remaining()) {
			return nil, fmt.Errorf("read dictionary entry %d of %d bytes: %w", i, n, ErrTruncated)
		}
		p, _ := r.Next(int(n))
		dict[i] = string(p)
	}
	return dict, nil
}

func lookup(dict []string, id uint64) (string, error) {
	if id >= uint64(len(dict)) {
		return "", fmt.Errorf("%w: dictionary index %d of %d", ErrCorrupt, id, len(dict))
	}
	return dict[id], nil
}

// readStringLengths reads the length table of a direct-encoded column and
// checks the strings fit in the rest of the block.
func readStringLengths(r *wire.Reader, n int) ([]uint64, error) {
	lens, err := readUints(r, n)
	if err != nil {
		return nil, fmt.Errorf("decode string lengths: %w", err)
	}
	var total uint64
	for _, l := range lens {
		total += l
		if l > uint64(r.Remaining()) || total > uint64(r.Remaining()) {
			return nil, fmt.Errorf("string bytes past end of block: %w", ErrTruncated)
		}
	}
	return lens, nil
}

func decodeStrings(r *wire.Reader, out []flex.Value, numMissing int) error {
	n := len(out) - numMissing
	useDict, err := r.ReadBool()
	if err != nil {
		return fmt.Errorf("read dictionary flag: %w", err)
	}

	strs := make([]string, n)
	if useDict {
		dict, err := readDictionary(r)
		if err != nil {
			return err
		}
		ids, err := readUints(r, n)
		if err != nil {
			return fmt.Errorf("decode dictionary indices: %w", err)
		}
		for i, id := range ids {
			if strs[i], err = lookup(dict, id); err != nil {
				return err
			}
		}
	} else {
		lens, err := readStringLengths(r, n)
		if err != nil {
			return err
		}
		for i, l := range lens {
			p, _ := r.Next(int(l))
			strs[i] = string(p)
		}
	}
	scatter(out, n, func(i int) flex.Value { return flex.Str(strs[i]) })
	return nil
}
