//go:build unix

package embedding

import (
	"context"
	"errors"
	"os"

	"github.com/vsdock/vsdock/pkg/utils/retry"
	"golang.org/x/sys/unix"
)

// lock takes an exclusive flock on path, polling while it is held by others.
//
// The lock file is left in place; removing it would let two processes hold
// locks on different inodes.
func lock(ctx context.Context, path string, backoff retry.Backoff) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, os.FileMode(0644))
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())

	try := func() (struct{}, error) {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return struct{}{}, retry.ErrRetry
		}
		return struct{}{}, err
	}
	if _, err := try(); errors.Is(err, retry.ErrRetry) {
		_, err = retry.Blocking(ctx, backoff, try)
		if err != nil {
			f.Close()
			return nil, err
		}
	} else if err != nil {
		f.Close()
		return nil, err
	}

	return func() {
		unix.Flock(fd, unix.LOCK_UN)
		f.Close()
	}, nil
}
