package embedding

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"github.com/vsdock/vsdock/pkg/scheduler/kube"
	"github.com/vsdock/vsdock/pkg/utils/retry"
	k8s "github.com/vsdock/vsdock/pkg/workloads/k8s"
	kubebatch "k8s.io/api/batch/v1"
)

// Container runs the embedding entrypoint in a container image.
//
// The command is `<runtime> run [--nv] [--bind <bind>] <image> <entrypoint...> <receptor>`.
type Container struct {
	Container  jobspec.Container
	Entrypoint []string

	Run    scheduler.Runner
	Stdout io.Writer
	Stderr io.Writer
}

var _ Embedder = &Container{}

func (c *Container) Args(receptor string) []string {
	args := []string{"run"}
	if c.Container.GPU {
		args = append(args, "--nv")
	}
	if c.Container.Bind != "" {
		args = append(args, "--bind", c.Container.Bind)
	}
	args = append(args, c.Container.Image)
	args = append(args, c.Entrypoint...)
	return append(args, receptor)
}

func (c *Container) Embed(ctx context.Context, receptor string) error {
	if c.Container.Runtime == "" {
		return fmt.Errorf("%w: container runtime is not configured", ErrEmbedding)
	}
	run := c.Run
	if run == nil {
		run = scheduler.Exec
	}
	stdout, stderr := c.Stdout, c.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return run(ctx, stdout, stderr, c.Container.Runtime, c.Args(receptor)...)
}

// Cluster is the part of the Kubernetes backend running embedding Jobs.
type Cluster interface {
	JobName(purpose string) string
	Run(ctx context.Context, name string, command []string, res jobspec.Resources, labels map[string]string) (*kubebatch.Job, error)
	Wait(ctx context.Context, name string, backoff retry.Backoff) (k8s.Job, error)
}

var _ Cluster = &kube.Kubernetes{}

// LabelPurpose tells what a Job created by vsdock is for.
const LabelPurpose = "vsdock.io/purpose"

// Kubernetes runs the embedding entrypoint as a Kubernetes Job and waits for it.
type Kubernetes struct {
	Cluster    Cluster
	Entrypoint []string
	Resources  jobspec.Resources

	// Backoff is waited between polls of the Job.
	Backoff retry.Backoff
}

var _ Embedder = &Kubernetes{}

func (k *Kubernetes) Embed(ctx context.Context, receptor string) error {
	name := k.Cluster.JobName("embedding-" + Stem(receptor))
	command := append(slices.Clone(k.Entrypoint), receptor)
	if _, err := k.Cluster.Run(ctx, name, command, k.Resources, map[string]string{
		LabelPurpose: "embedding",
	}); err != nil {
		return err
	}

	job, err := k.Cluster.Wait(ctx, name, k.Backoff)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	if job.Status() == k8s.Failed {
		if code, reason, ok := job.ExitCode(kube.ContainerName); ok {
			return fmt.Errorf("job %s failed: exit code %d (%s)", name, code, reason)
		}
		return fmt.Errorf("job %s failed", name)
	}
	return nil
}
