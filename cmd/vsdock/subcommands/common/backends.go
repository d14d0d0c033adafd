package common

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/vsdock/vsdock/pkg/configs"
	"github.com/vsdock/vsdock/pkg/director"
	"github.com/vsdock/vsdock/pkg/embedding"
	"github.com/vsdock/vsdock/pkg/image"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/prompt"
	"github.com/vsdock/vsdock/pkg/recovery"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"github.com/vsdock/vsdock/pkg/scheduler/kube"
	"github.com/vsdock/vsdock/pkg/utils/retry"
	k8s "github.com/vsdock/vsdock/pkg/workloads/k8s"
)

// Backends provides collaborators depending on where jobs run.
type Backends interface {
	Scheduler(mode jobspec.Mode) (scheduler.Scheduler, error)

	// Embedder computes receptor embeddings for jobs of the mode.
	Embedder(mode jobspec.Mode, gpu bool) (embedding.Embedder, error)

	// Preflight checks the container image used by jobs of the mode.
	Preflight(mode jobspec.Mode, confirm prompt.Confirmer) (director.Preflight, error)

	// LogFetcher reads logs of Kubernetes Jobs.
	LogFetcher() (recovery.LogFetcher, error)
}

type backends struct {
	config *configs.Config
	stdout io.Writer
	stderr io.Writer
	logger *log.Logger

	cluster *kube.Kubernetes
}

// NewBackends returns Backends built from the configuration.
//
// Outputs of commands run in place go to stdout and stderr.
// Kubernetes is connected on the first use.
func NewBackends(conf *configs.Config, stdout, stderr io.Writer, logger *log.Logger) Backends {
	return &backends{config: conf, stdout: stdout, stderr: stderr, logger: logger}
}

func (b *backends) kubernetes() (*kube.Kubernetes, error) {
	if b.cluster != nil {
		return b.cluster, nil
	}
	kc := b.config.Kubernetes
	clientset, err := k8s.ConnectToK8s(kc.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to kubernetes: %w", err)
	}
	cluster, err := kube.New(k8s.WrapK8sClient(clientset), kube.Config{
		Namespace:      kc.Namespace,
		Image:          kc.Image,
		VolumeClaim:    kc.VolumeClaim,
		MountPath:      kc.MountPath,
		GPUResource:    kc.GPUResource,
		ServiceAccount: kc.ServiceAccount,
	})
	if err != nil {
		return nil, err
	}
	b.cluster = cluster
	return cluster, nil
}

func (b *backends) Scheduler(mode jobspec.Mode) (scheduler.Scheduler, error) {
	switch mode {
	case jobspec.ModeSlurm:
		return scheduler.NewSlurm(scheduler.Exec, b.stderr), nil
	case jobspec.ModeLocal:
		return scheduler.NewLocal(scheduler.Exec, b.stdout, b.stderr), nil
	case jobspec.ModeKubernetes:
		cluster, err := b.kubernetes()
		if err != nil {
			return nil, err
		}
		return cluster, nil
	}
	return nil, fmt.Errorf("%w: unknown scheduler %q", jobspec.ErrInvalid, mode)
}

func (b *backends) Embedder(mode jobspec.Mode, gpu bool) (embedding.Embedder, error) {
	if mode == jobspec.ModeKubernetes {
		cluster, err := b.kubernetes()
		if err != nil {
			return nil, err
		}
		return &embedding.Kubernetes{
			Cluster:    cluster,
			Entrypoint: b.config.Embedding.Entrypoint,
			Resources:  jobspec.Resources{Cores: 1, Memory: director.DefaultMemory, GPU: gpu},
			Backoff:    retry.ExponentialBackoff(2*time.Second, 1.5),
		}, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return &embedding.Container{
		Container: jobspec.Container{
			Runtime: b.config.Container.Runtime,
			Image:   b.config.Container.Image,
			Bind:    wd,
			GPU:     gpu,
		},
		Entrypoint: b.config.Embedding.Entrypoint,
		Run:        scheduler.Exec,
		Stdout:     b.stderr,
		Stderr:     b.stderr,
	}, nil
}

func (b *backends) Preflight(mode jobspec.Mode, confirm prompt.Confirmer) (director.Preflight, error) {
	if mode == jobspec.ModeKubernetes {
		remote := &image.Remote{Image: b.config.Kubernetes.Image}
		return func(ctx context.Context) error {
			ref, err := remote.Ensure(ctx)
			if err != nil {
				return err
			}
			b.logger.Printf("image %s is found", ref.Name())
			return nil
		}, nil
	}

	local := &image.Local{
		Path:     b.config.Container.Image,
		URL:      b.config.Container.ImageURL,
		Progress: b.stderr,
		Logger:   b.logger,
	}
	return func(ctx context.Context) error {
		return local.Ensure(ctx, confirm)
	}, nil
}

func (b *backends) LogFetcher() (recovery.LogFetcher, error) {
	cluster, err := b.kubernetes()
	if err != nil {
		return nil, err
	}
	return cluster, nil
}
