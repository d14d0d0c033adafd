package scheduler

import (
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/vsdock/vsdock/pkg/jobspec"
)

// ErrSubmission is returned when a scheduler does not accept a job.
var ErrSubmission = errors.New("submission failed")

// Job is a rendered chunk handed to a scheduler.
type Job struct {
	Index int

	// Script is the path of the rendered job script.
	Script string

	Spec jobspec.JobSpec
}

// Scheduler runs job scripts.
type Scheduler interface {
	// Mode tells the JobSpec mode this scheduler expects scripts rendered with.
	Mode() jobspec.Mode

	// Launch hands the job over.
	//
	// # Returns
	//
	// - string: id assigned by the scheduler. Empty when the job has run in place.
	//
	// - error: ErrSubmission when the scheduler refuses the job.
	Launch(ctx context.Context, job Job) (string, error)
}

// Tracker knows whether a job launched before is still pending or running.
type Tracker interface {
	Active(ctx context.Context, jobID string) (bool, error)
}

// Runner executes a command, blocking until it exits.
type Runner func(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error

// Exec runs a command as a child process.
func Exec(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Shell is the interpreter of job scripts.
const Shell = "bash"
