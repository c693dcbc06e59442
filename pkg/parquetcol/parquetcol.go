// Package parquetcol reads one column of a Parquet file as flexible values,
// ready to be written as typed blocks.
//
// Physical types map as follows: BOOLEAN, INT32 and INT64 become integers,
// FLOAT and DOUBLE become floats, and byte arrays become strings. DATE,
// TIMESTAMP and INT96 columns become datetimes in UTC. Nulls become missing
// values. A repeated numeric column becomes one vector per row, with null
// elements as NaN; any other repeated column becomes one list per row.
package parquetcol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/eunmann/typedblock/internal/logctx"
	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/logging"
)

// ErrColumnNotFound indicates the requested column is not a leaf of the
// file's schema.
var ErrColumnNotFound = errors.New("parquet column not found")

// rowBatch is the number of rows read from a row group at a time.
const rowBatch = 1024

// julianUnixEpoch is the Julian day number of 1970-01-01.
const julianUnixEpoch = 2440588

// Reader reads a single leaf column of a Parquet file.
type Reader struct {
	file     *parquet.File
	closer   io.Closer
	name     string
	leaf     parquet.LeafColumn
	repeated bool
	// elemLevel is the definition level at which a list element exists,
	// possibly as null.
	elemLevel int
	convert   func(parquet.Value) flex.Value
}

// Open opens the column named by a dot-separated path in the Parquet data
// held by r.
func Open(r io.ReaderAt, size int64, column string) (*Reader, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	leaf, ok := file.Schema().Lookup(strings.Split(column, ".")...)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrColumnNotFound, column, strings.Join(Columns(file.Schema()), ", "))
	}
	return &Reader{
		file:      file,
		name:      column,
		leaf:      leaf,
		repeated:  leaf.MaxRepetitionLevel > 0,
		elemLevel: elementLevel(leaf),
		convert:   converter(leaf.Node.Type()),
	}, nil
}

// OpenFile opens column in the Parquet file at path. Close releases the
// file.
func OpenFile(path, column string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	r, err := Open(f, info.Size(), column)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// Columns lists the dot-separated paths of every leaf column in schema.
func Columns(schema *parquet.Schema) []string {
	paths := schema.Columns()
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = strings.Join(p, ".")
	}
	return names
}

// NumRows returns the number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.file.NumRows()
}

// Scan reads the column in row order and calls fn with batches of at most
// batch values. The slice passed to fn is reused between calls.
func (r *Reader) Scan(ctx context.Context, batch int, fn func([]flex.Value) error) error {
	if batch <= 0 {
		batch = rowBatch
	}
	log := logctx.FromContext(ctx).With().Str("column", r.name).Logger()
	start := time.Now()

	out := make([]flex.Value, 0, batch)
	rows := make([]parquet.Row, rowBatch)
	var total uint64
	for g, rg := range r.file.RowGroups() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.scanRowGroup(rg, rows, func(v flex.Value) error {
			out = append(out, v)
			if len(out) < batch {
				return nil
			}
			err := fn(out)
			out = out[:0]
			return err
		})
		total += n
		if err != nil {
			return fmt.Errorf("row group %d: %w", g, err)
		}
		log.Debug().Int("row_group", g).Uint64("rows", n).Msg("row group read")
	}
	if len(out) > 0 {
		if err := fn(out); err != nil {
			return err
		}
	}

	logging.PhaseComplete(log, "parquet_read", time.Since(start)).
		Int("row_groups", len(r.file.RowGroups())).
		Count("rows", total).
		Str("type", r.leaf.Node.Type().String()).
		LogDebug("parquet column read")
	return nil
}

func (r *Reader) scanRowGroup(rg parquet.RowGroup, buf []parquet.Row, emit func(flex.Value) error) (uint64, error) {
	rows := rg.Rows()
	defer rows.Close()

	var total uint64
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			if err := emit(r.rowValue(row)); err != nil {
				return total, err
			}
		}
		total += uint64(n)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			return total, nil
		}
	}
}

// rowValue extracts the column's value from one row.
func (r *Reader) rowValue(row parquet.Row) flex.Value {
	if !r.repeated {
		for _, v := range row {
			if v.Column() == r.leaf.ColumnIndex {
				return r.convert(v)
			}
		}
		return flex.Missing()
	}

	var elems []flex.Value
	for _, v := range row {
		if v.Column() != r.leaf.ColumnIndex {
			continue
		}
		// a null above the element level marks an empty list
		if v.IsNull() && int(v.DefinitionLevel()) < r.elemLevel {
			continue
		}
		elems = append(elems, r.convert(v))
	}
	if isNumeric(r.leaf.Node.Type().Kind()) {
		vec := make([]float64, len(elems))
		for i, e := range elems {
			switch e.Tag() {
			case flex.Integer:
				vec[i] = float64(e.Int())
			case flex.Float:
				vec[i] = e.Float()
			default:
				vec[i] = math.NaN()
			}
		}
		return flex.Vec(vec)
	}
	return flex.ListOf(elems...)
}

// ReadColumn reads a whole column into memory.
func ReadColumn(ctx context.Context, r *Reader) ([]flex.Value, error) {
	values := make([]flex.Value, 0, r.NumRows())
	err := r.Scan(ctx, rowBatch, func(batch []flex.Value) error {
		values = append(values, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Close closes the underlying file if OpenFile opened it.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

func elementLevel(leaf parquet.LeafColumn) int {
	if leaf.Node.Optional() {
		return leaf.MaxDefinitionLevel - 1
	}
	return leaf.MaxDefinitionLevel
}

func isNumeric(k parquet.Kind) bool {
	switch k {
	case parquet.Int32, parquet.Int64, parquet.Float, parquet.Double:
		return true
	}
	return false
}

// converter picks the value conversion for a leaf type.
func converter(t parquet.Type) func(parquet.Value) flex.Value {
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.Date != nil:
			return func(v parquet.Value) flex.Value {
				if v.IsNull() {
					return flex.Missing()
				}
				return flex.Time(flex.Timestamp{Seconds: int64(v.Int32()) * 86400})
			}
		case lt.Timestamp != nil:
			toTime := timestampFunc(lt.Timestamp.Unit)
			return func(v parquet.Value) flex.Value {
				if v.IsNull() {
					return flex.Missing()
				}
				return flex.Time(flex.TimestampOf(toTime(v.Int64()).UTC()))
			}
		}
	}
	return convertPhysical
}

func timestampFunc(u format.TimeUnit) func(int64) time.Time {
	switch {
	case u.Millis != nil:
		return time.UnixMilli
	case u.Nanos != nil:
		return func(n int64) time.Time { return time.Unix(0, n) }
	}
	return time.UnixMicro
}

func convertPhysical(v parquet.Value) flex.Value {
	if v.IsNull() {
		return flex.Missing()
	}
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return flex.Int(1)
		}
		return flex.Int(0)
	case parquet.Int32:
		return flex.Int(int64(v.Int32()))
	case parquet.Int64:
		return flex.Int(v.Int64())
	case parquet.Int96:
		i := v.Int96()
		nanos := int64(uint64(i[1])<<32 | uint64(i[0]))
		secs := (int64(i[2]) - julianUnixEpoch) * 86400
		return flex.Time(flex.TimestampOf(time.Unix(secs, nanos).UTC()))
	case parquet.Float:
		return flex.Flt(float64(v.Float()))
	case parquet.Double:
		return flex.Flt(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return flex.Str(string(v.ByteArray()))
	}
	return flex.Missing()
}
