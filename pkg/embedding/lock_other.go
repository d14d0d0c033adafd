//go:build !unix

package embedding

import (
	"context"
	"errors"
	"os"

	"github.com/vsdock/vsdock/pkg/utils/retry"
)

// lock claims path by creating it exclusively, polling while it exists.
func lock(ctx context.Context, path string, backoff retry.Backoff) (func(), error) {
	claim := func() (*os.File, error) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.FileMode(0644))
		if errors.Is(err, os.ErrExist) {
			return nil, retry.ErrRetry
		}
		return f, err
	}

	f, err := claim()
	if errors.Is(err, retry.ErrRetry) {
		f, err = retry.Blocking(ctx, backoff, claim)
	}
	if err != nil {
		return nil, err
	}

	return func() {
		f.Close()
		os.Remove(path)
	}, nil
}
