//go:build !unix

package blockfile

import (
	"fmt"
	"os"
)

func mapFile(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read block file: %w", err)
	}
	return data, func() error { return nil }, nil
}
