package scheduler

import (
	"context"
	"fmt"
	"io"

	"github.com/vsdock/vsdock/pkg/jobspec"
)

// Local runs job scripts in place, blocking until each finishes.
//
// Chunks run one at a time; it does not share devices between chunks.
type Local struct {
	run    Runner
	stdout io.Writer
	stderr io.Writer
}

var _ Scheduler = &Local{}

func NewLocal(run Runner, stdout, stderr io.Writer) *Local {
	if run == nil {
		run = Exec
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Local{run: run, stdout: stdout, stderr: stderr}
}

func (*Local) Mode() jobspec.Mode {
	return jobspec.ModeLocal
}

func (l *Local) Launch(ctx context.Context, job Job) (string, error) {
	if err := l.run(ctx, l.stdout, l.stderr, Shell, job.Script); err != nil {
		return "", fmt.Errorf("%w: job #%d (%s): %w", ErrSubmission, job.Index, job.Script, err)
	}
	return "", nil
}
