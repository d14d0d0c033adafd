package utils

import (
	"errors"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("file not found")

// SearchUpward looks for a file named name in dir and its ancestors,
// and returns the nearest one.
//
// When no directories up to the root have it, it returns ErrNotFound.
func SearchUpward(dir string, name string) (string, error) {
	for {
		candidate := filepath.Join(dir, name)
		if stat, err := os.Stat(candidate); err == nil && !stat.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}
