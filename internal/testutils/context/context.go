package context

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds tests which run without -timeout.
const DefaultTimeout = 30 * time.Second

// WithTest returns a context for a test which waits on files.
//
// It is canceled a second before the test deadline (or after DefaultTimeout
// when the test has no deadline), and when the test finishes.
func WithTest(ctx context.Context, t *testing.T) (context.Context, func()) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	if d, ok := t.Deadline(); ok {
		deadline = d.Add(-time.Second)
	}
	dctx, cancel := context.WithDeadline(ctx, deadline)
	t.Cleanup(cancel)
	return dctx, cancel
}
