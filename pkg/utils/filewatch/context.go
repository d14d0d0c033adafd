package filewatch

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// ErrChanged is the cause of contexts canceled by a change of a watched path.
type ErrChanged struct {
	Path string
	Op   fsnotify.Op
}

func (e *ErrChanged) Error() string {
	return fmt.Sprintf("%s is updated (%s)", e.Path, e.Op.String())
}

// UntilWritten returns a context that is canceled when content under one of paths changes:
// a file is created, written, removed or renamed.
//
// Changes of permissions alone are ignored.
//
// Paths can be directories; files directly in them are watched.
//
// # Returns
//
// - context.Context: canceled with *ErrChanged as its cause on a change.
//
// - func(): stops watching and cancels the context.
//
// - error: error caused when it fails to start watching paths.
// If error is not nil, both of the context and the cancel function are nil.
func UntilWritten(ctx context.Context, paths ...string) (context.Context, func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, nil, err
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				cancel(&ErrChanged{Path: event.Name, Op: event.Op})
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(err)
				return
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
