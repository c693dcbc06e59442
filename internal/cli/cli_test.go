package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type importRecord struct {
	ID    int64   `parquet:"id"`
	Name  *string `parquet:"name"`
	Score float64 `parquet:"score"`
}

func runCapture(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func writeParquet(t *testing.T, n int) string {
	t.Helper()
	rows := make([]importRecord, n)
	for i := range rows {
		rows[i] = importRecord{ID: int64(i * 3), Score: float64(i) / 4}
		if i%5 != 0 {
			name := fmt.Sprintf("name-%d", i%3)
			rows[i].Name = &name
		}
	}
	path := filepath.Join(t.TempDir(), "input.parquet")
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.tblk")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no args", nil, "usage"},
		{"only globals", []string{"--debug"}, "usage"},
		{"unknown command", []string{"unknown"}, "unknown command"},
		{"import no column", []string{"import", "--out", "x.tblk", "in.parquet"}, "--column"},
		{"import no out", []string{"import", "--column", "id", "in.parquet"}, "--out"},
		{"import no input", []string{"import", "--column", "id", "--out", "x.tblk"}, "parquet file is required"},
		{"import bad compression", []string{"import", "--column", "id", "--out", "x.tblk", "--compression", "gzip", "in.parquet"}, "--compression"},
		{"import bad budget", []string{"import", "--column", "id", "--out", "x.tblk", "--mem-budget", "lots", "in.parquet"}, "--mem-budget"},
		{"cat no file", []string{"cat"}, "block file is required"},
		{"cat two files", []string{"cat", "a", "b"}, "expected one block file"},
		{"cat bad window", []string{"cat", "--window", "0", missing}, "--window"},
		{"cat missing file", []string{"cat", missing}, "missing.tblk"},
		{"stats missing file", []string{"stats", missing}, "missing.tblk"},
		{"push one arg", []string{"push", "x.tblk"}, "expected FILE.tblk and s3://bucket/key"},
		{"push bad uri", []string{"push", "x.tblk", "bucket/key"}, "invalid S3 URI"},
		{"pull bad uri", []string{"pull", "http://b/k", "x.tblk"}, "invalid S3 URI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCapture(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestImportCatStats(t *testing.T) {
	input := writeParquet(t, 250)
	out := filepath.Join(t.TempDir(), "name.tblk")

	if _, err := runCapture(t, "import", "--column", "name", "--out", out, "--block-rows", "100", "--compression", "zstd", input); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	got, err := runCapture(t, "cat", "--skip", "98", "--limit", "4", "--window", "3", out)
	if err != nil {
		t.Fatalf("cat failed: %v", err)
	}
	if want := "name-2\nname-0\nNone\nname-2\n"; got != want {
		t.Errorf("cat output = %q, want %q", got, want)
	}

	stats, err := runCapture(t, "stats", out)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	for _, want := range []string{"BLOCK", "string", "undefined:20", "3 blocks", "250 rows"} {
		if !strings.Contains(stats, want) {
			t.Errorf("stats output missing %q:\n%s", want, stats)
		}
	}
}

func TestImportUnknownColumnRemovesOutput(t *testing.T) {
	input := writeParquet(t, 10)
	out := filepath.Join(t.TempDir(), "bad.tblk")
	_, err := runCapture(t, "import", "--column", "nope", "--out", out, input)
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("import = %v, want unknown column error", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output exists after failed import: %v", err)
	}
}

func TestImportIntegersRoundTrip(t *testing.T) {
	input := writeParquet(t, 1000)
	out := filepath.Join(t.TempDir(), "id.tblk")
	if _, err := runCapture(t, "import", "--column", "id", "--out", out, "--block-rows", "300", "--concurrency", "2", "--mem-diag", input); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	got, err := runCapture(t, "cat", out)
	if err != nil {
		t.Fatalf("cat failed: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 1000 {
		t.Fatalf("cat printed %d lines, want 1000", len(lines))
	}
	for i, line := range lines {
		if want := fmt.Sprint(i * 3); line != want {
			t.Fatalf("line %d = %q, want %q", i, line, want)
		}
	}
}
