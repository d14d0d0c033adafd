package io

import (
	"os"
	"path/filepath"
)

// CreateAll creates (or truncates) a file with its parent directories.
//
// args:
//   - name: filepath to be created.
//   - fmod: os.FileMode for file.
//   - dmod: os.FileMode for directories.
//
// `dmod` effects only directories newly created.
func CreateAll(name string, fmod os.FileMode, dmod os.FileMode) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(name), dmod); err != nil {
		return nil, err
	}
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fmod)
}

// Touch creates an empty file if it is missing. Existing content is kept.
func Touch(name string) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, os.FileMode(0644))
	if err != nil {
		return err
	}
	return f.Close()
}

// TempBeside creates a temporary file in the directory of name,
// to be renamed into name when it is completed.
func TempBeside(name string) (*os.File, error) {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
		return nil, err
	}
	return os.CreateTemp(dir, "."+filepath.Base(name)+".*")
}
