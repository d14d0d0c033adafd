package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/vsdock/vsdock/pkg/jobspec"
)

var reSubmitted = regexp.MustCompile(`Submitted batch job (\d+)`)

// Slurm submits job scripts which call sbatch.
type Slurm struct {
	run    Runner
	stderr io.Writer
}

var _ Scheduler = &Slurm{}

func NewSlurm(run Runner, stderr io.Writer) *Slurm {
	if run == nil {
		run = Exec
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Slurm{run: run, stderr: stderr}
}

func (*Slurm) Mode() jobspec.Mode {
	return jobspec.ModeSlurm
}

// Launch runs the script, which submits the chunk with sbatch, and reads the job id from its output.
func (s *Slurm) Launch(ctx context.Context, job Job) (string, error) {
	stdout := new(bytes.Buffer)
	if err := s.run(ctx, stdout, s.stderr, Shell, job.Script); err != nil {
		return "", fmt.Errorf(
			"%w: job #%d (%s): %w: %s",
			ErrSubmission, job.Index, job.Script, err, strings.TrimSpace(stdout.String()),
		)
	}
	m := reSubmitted.FindStringSubmatch(stdout.String())
	if m == nil {
		return "", fmt.Errorf(
			"%w: job #%d (%s): no job id in sbatch output: %s",
			ErrSubmission, job.Index, job.Script, strings.TrimSpace(stdout.String()),
		)
	}
	return m[1], nil
}

var _ Tracker = &Slurm{}

// Active asks squeue whether the job is still queued, running or completing.
//
// Jobs forgotten by SLURM are not active.
func (s *Slurm) Active(ctx context.Context, jobID string) (bool, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	if err := s.run(ctx, stdout, stderr, "squeue", "--noheader", "--jobs", jobID, "--format", "%T"); err != nil {
		if strings.Contains(stderr.String(), "Invalid job id") {
			return false, nil
		}
		return false, fmt.Errorf("squeue: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()) != "", nil
}
