package kube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"github.com/vsdock/vsdock/pkg/utils/retry"
	k8s "github.com/vsdock/vsdock/pkg/workloads/k8s"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ErrInvalidConfig is returned for a Config which cannot make Jobs.
var ErrInvalidConfig = errors.New("invalid kubernetes config")

const (
	// name of the container running job scripts.
	ContainerName = "docking"

	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelChunk     = "vsdock.io/chunk"
	managerName    = "vsdock"
)

type Config struct {
	Namespace string

	// Image runs job scripts. It should have bash and the docking executable.
	Image string

	// VolumeClaim is a PersistentVolumeClaim shared with the submitting host.
	VolumeClaim string

	// MountPath is where VolumeClaim is mounted, also the working directory.
	// Paths in job scripts should be valid under it.
	MountPath string

	// GPUResource is the extended resource name of GPUs.
	GPUResource string

	ServiceAccount string
}

func (c Config) Validate() error {
	if c.Namespace == "" || c.Image == "" || c.VolumeClaim == "" || c.MountPath == "" {
		return fmt.Errorf(
			"%w: namespace, image, volumeClaim and mountPath are required", ErrInvalidConfig,
		)
	}
	return nil
}

// Kubernetes runs job scripts as batch/v1 Jobs.
//
// Jobs are not retried by Kubernetes (backoffLimit = 0); retry is a separate relaunch.
type Kubernetes struct {
	client k8s.K8sClient
	config Config
	newID  func() string
}

var _ scheduler.Scheduler = &Kubernetes{}

type Option func(*Kubernetes) *Kubernetes

// WithIDGenerator replaces the generator of Job name suffixes.
func WithIDGenerator(gen func() string) Option {
	return func(k *Kubernetes) *Kubernetes {
		k.newID = gen
		return k
	}
}

func New(client k8s.K8sClient, config Config, options ...Option) (*Kubernetes, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.GPUResource == "" {
		config.GPUResource = "nvidia.com/gpu"
	}
	k := &Kubernetes{
		client: client,
		config: config,
		newID:  func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range options {
		k = opt(k)
	}
	return k, nil
}

func (*Kubernetes) Mode() jobspec.Mode {
	return jobspec.ModeKubernetes
}

var reNotInName = regexp.MustCompile(`[^a-z0-9-]+`)

// JobName makes a DNS-1123 compliant, unique name of a Job.
func (k *Kubernetes) JobName(purpose string) string {
	p := reNotInName.ReplaceAllString(strings.ToLower(purpose), "-")
	p = strings.Trim(p, "-")
	suffix := k.newID()
	if limit := 63 - len(managerName) - len(suffix) - 2; len(p) > limit {
		p = strings.Trim(p[:limit], "-")
	}
	return managerName + "-" + p + "-" + suffix
}

// Launch creates a Job running the job script from the shared volume.
func (k *Kubernetes) Launch(ctx context.Context, job scheduler.Job) (string, error) {
	name := k.JobName(strconv.Itoa(job.Index))
	res := job.Spec.Resources
	if res.Cores == 0 {
		res.Cores = 1
	}
	_, err := k.Run(ctx, name, []string{scheduler.Shell, job.Script}, res, map[string]string{
		LabelChunk: strconv.Itoa(job.Index),
	})
	if err != nil {
		return "", fmt.Errorf("%w: job #%d (%s): %w", scheduler.ErrSubmission, job.Index, job.Script, err)
	}
	return name, nil
}

// Run creates a Job named name, running command with resources requested.
func (k *Kubernetes) Run(
	ctx context.Context, name string, command []string, res jobspec.Resources, labels map[string]string,
) (*kubebatch.Job, error) {
	spec, err := k.build(name, command, res, labels)
	if err != nil {
		return nil, err
	}
	created, err := k.client.CreateJob(ctx, k.config.Namespace, spec)
	if err != nil {
		if kubeerr.IsAlreadyExists(err) {
			return nil, fmt.Errorf("job %s already exists: %w", name, err)
		}
		return nil, err
	}
	return created, nil
}

func (k *Kubernetes) build(
	name string, command []string, res jobspec.Resources, labels map[string]string,
) (*kubebatch.Job, error) {
	requests := kubecore.ResourceList{
		kubecore.ResourceCPU: *resource.NewQuantity(int64(res.Cores), resource.DecimalSI),
	}
	if res.Memory != "" {
		mem, err := ParseMemory(res.Memory)
		if err != nil {
			return nil, err
		}
		requests[kubecore.ResourceMemory] = mem
	}
	limits := kubecore.ResourceList{}
	if res.GPU {
		limits[kubecore.ResourceName(k.config.GPUResource)] = *resource.NewQuantity(1, resource.DecimalSI)
	}

	var deadline *int64
	if res.Time != "" {
		d, err := ParseWallTime(res.Time)
		if err != nil {
			return nil, err
		}
		sec := int64(d / time.Second)
		deadline = &sec
	}

	jobLabels := map[string]string{LabelManagedBy: managerName}
	for key, value := range labels {
		jobLabels[key] = value
	}

	backoffLimit := int32(0)
	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      name,
			Namespace: k.config.Namespace,
			Labels:    jobLabels,
		},
		Spec: kubebatch.JobSpec{
			BackoffLimit:          &backoffLimit,
			ActiveDeadlineSeconds: deadline,
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: jobLabels},
				Spec: kubecore.PodSpec{
					RestartPolicy:      kubecore.RestartPolicyNever,
					ServiceAccountName: k.config.ServiceAccount,
					Containers: []kubecore.Container{
						{
							Name:       ContainerName,
							Image:      k.config.Image,
							Command:    command,
							WorkingDir: k.config.MountPath,
							Resources: kubecore.ResourceRequirements{
								Requests: requests,
								Limits:   limits,
							},
							VolumeMounts: []kubecore.VolumeMount{
								{Name: "shared", MountPath: k.config.MountPath},
							},
						},
					},
					Volumes: []kubecore.Volume{
						{
							Name: "shared",
							VolumeSource: kubecore.VolumeSource{
								PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
									ClaimName: k.config.VolumeClaim,
								},
							},
						},
					},
				},
			},
		},
	}, nil
}

// Status takes a snapshot of the Job.
func (k *Kubernetes) Status(ctx context.Context, name string) (k8s.Job, error) {
	return k8s.GetJob(ctx, k.client, k.config.Namespace, name)
}

// Wait blocks until the Job finishes.
func (k *Kubernetes) Wait(ctx context.Context, name string, backoff retry.Backoff) (k8s.Job, error) {
	return retry.Blocking(ctx, backoff, func() (k8s.Job, error) {
		j, err := k.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		if !j.Status().Finished() {
			return j, retry.ErrRetry
		}
		return j, nil
	})
}

// FetchLog copies the log of a finished Job into w.
//
// It returns the status of the Job. When it has not finished, nothing is written.
func (k *Kubernetes) FetchLog(ctx context.Context, name string, w io.Writer) (k8s.JobStatus, error) {
	j, err := k.Status(ctx, name)
	if err != nil {
		return "", err
	}
	st := j.Status()
	if !st.Finished() {
		return st, nil
	}
	r, err := j.Log(ctx, ContainerName)
	if err != nil {
		return st, err
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return st, err
	}
	return st, nil
}

// ParseMemory reads memory sizes written for SLURM ("4G", "500M") or Kubernetes ("4Gi").
//
// SLURM units are binary: "4G" is 4Gi.
func ParseMemory(s string) (resource.Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return resource.Quantity{}, fmt.Errorf("%w: empty memory size", ErrInvalidConfig)
	}
	switch unit := s[len(s)-1]; unit {
	case 'K', 'M', 'G', 'T':
		if _, err := strconv.ParseFloat(s[:len(s)-1], 64); err != nil {
			return resource.Quantity{}, fmt.Errorf("%w: memory %q", ErrInvalidConfig, s)
		}
		s = s + "i"
	}
	if _, err := strconv.Atoi(s); err == nil {
		s = s + "Mi" // SLURM default unit
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return resource.Quantity{}, fmt.Errorf("%w: memory %q: %w", ErrInvalidConfig, s, err)
	}
	if q.Sign() <= 0 {
		return resource.Quantity{}, fmt.Errorf("%w: memory should be positive: %q", ErrInvalidConfig, s)
	}
	return q, nil
}

// ParseWallTime reads SLURM time limits:
// "minutes", "minutes:seconds", "hours:minutes:seconds", "days-hours",
// "days-hours:minutes" and "days-hours:minutes:seconds".
func ParseWallTime(s string) (time.Duration, error) {
	invalid := fmt.Errorf("%w: time limit %q", ErrInvalidConfig, s)

	days := 0
	rest := s
	if d, r, ok := strings.Cut(s, "-"); ok {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			return 0, invalid
		}
		days, rest = n, r
	}

	fields := strings.Split(rest, ":")
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return 0, invalid
		}
		nums[i] = n
	}

	var h, m, sec int
	switch {
	case days > 0 || strings.Contains(s, "-"):
		switch len(nums) {
		case 1:
			h = nums[0]
		case 2:
			h, m = nums[0], nums[1]
		case 3:
			h, m, sec = nums[0], nums[1], nums[2]
		default:
			return 0, invalid
		}
	default:
		switch len(nums) {
		case 1:
			m = nums[0]
		case 2:
			m, sec = nums[0], nums[1]
		case 3:
			h, m, sec = nums[0], nums[1], nums[2]
		default:
			return 0, invalid
		}
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second
	if d <= 0 {
		return 0, invalid
	}
	return d, nil
}

var _ scheduler.Tracker = &Kubernetes{}

// Active tells the Job is pending or running. Deleted Jobs are not active.
func (k *Kubernetes) Active(ctx context.Context, name string) (bool, error) {
	j, err := k.Status(ctx, name)
	if kubeerr.IsNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return !j.Status().Finished(), nil
}
