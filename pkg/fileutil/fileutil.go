// Package fileutil writes files with tmp+mv semantics, so a path holds
// either nothing or a complete file.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TmpSuffix is appended to the final path while a file is being written.
const TmpSuffix = ".tmp"

// Exists returns true if the file exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsNonEmpty returns true if the file exists and has non-zero size.
func IsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// TmpPath returns the temporary path used while writing outPath.
func TmpPath(outPath string) string {
	return outPath + TmpSuffix
}

// CreateTmp creates (or truncates) the temporary file for outPath,
// creating its directory if needed.
func CreateTmp(outPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(TmpPath(outPath))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// Commit syncs and closes f, a file from CreateTmp, and atomically moves
// it to outPath. On failure the temporary file is removed.
func Commit(f *os.File, outPath string) error {
	tmpPath := f.Name()
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

// Discard closes and removes f, a file from CreateTmp.
func Discard(f *os.File) error {
	f.Close()
	if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}
