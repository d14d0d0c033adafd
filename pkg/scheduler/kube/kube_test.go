package kube_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/vsdock/vsdock/pkg/cmp"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"github.com/vsdock/vsdock/pkg/scheduler/kube"
	"github.com/vsdock/vsdock/pkg/utils/retry"
	k8s "github.com/vsdock/vsdock/pkg/workloads/k8s"
	"github.com/vsdock/vsdock/pkg/workloads/k8s/mock"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var config = kube.Config{
	Namespace:   "docking",
	Image:       "registry.example.com/diffdock:1.0",
	VolumeClaim: "shared-work",
	MountPath:   "/work",
}

func TestNew_RejectsIncompleteConfig(t *testing.T) {
	for name, c := range map[string]kube.Config{
		"namespace":   {Image: "i", VolumeClaim: "v", MountPath: "/w"},
		"image":       {Namespace: "n", VolumeClaim: "v", MountPath: "/w"},
		"volumeClaim": {Namespace: "n", Image: "i", MountPath: "/w"},
		"mountPath":   {Namespace: "n", Image: "i", VolumeClaim: "v"},
	} {
		t.Run("without "+name, func(t *testing.T) {
			_, err := kube.New(mock.NewMockClient(t), c)
			if !errors.Is(err, kube.ErrInvalidConfig) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestKubernetes_Launch(t *testing.T) {
	t.Run("it creates a job running the script on the shared volume", func(t *testing.T) {
		client := mock.NewMockClient(t)
		var created *kubebatch.Job
		client.Impl.CreateJob = func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
			if namespace != "docking" {
				t.Errorf("namespace: %s", namespace)
			}
			created = job
			return job, nil
		}

		testee, err := kube.New(client, config, kube.WithIDGenerator(func() string { return "0a1b2c3d" }))
		if err != nil {
			t.Fatal(err)
		}
		if testee.Mode() != jobspec.ModeKubernetes {
			t.Errorf("mode: %s", testee.Mode())
		}

		id, err := testee.Launch(context.Background(), scheduler.Job{
			Index:  2,
			Script: "VS_DD_run_2026_1_2/jobs/job_2.sh",
			Spec: jobspec.JobSpec{
				Resources: jobspec.Resources{Cores: 4, Memory: "4G", GPU: true, Time: "1-00:00:00"},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}
		if id != "vsdock-2-0a1b2c3d" {
			t.Errorf("job id: %s", id)
		}
		if created == nil {
			t.Fatal("job is not created")
		}

		if created.Name != id {
			t.Errorf("job name: %s", created.Name)
		}
		if created.Labels[kube.LabelChunk] != "2" || created.Labels[kube.LabelManagedBy] != "vsdock" {
			t.Errorf("labels: %+v", created.Labels)
		}
		if bl := created.Spec.BackoffLimit; bl == nil || *bl != 0 {
			t.Errorf("backoffLimit: %v", bl)
		}
		if d := created.Spec.ActiveDeadlineSeconds; d == nil || *d != 24*60*60 {
			t.Errorf("activeDeadlineSeconds: %v", d)
		}

		pod := created.Spec.Template.Spec
		if pod.RestartPolicy != kubecore.RestartPolicyNever {
			t.Errorf("restartPolicy: %s", pod.RestartPolicy)
		}
		if len(pod.Volumes) != 1 || pod.Volumes[0].PersistentVolumeClaim == nil ||
			pod.Volumes[0].PersistentVolumeClaim.ClaimName != "shared-work" {
			t.Errorf("volumes: %+v", pod.Volumes)
		}
		if len(pod.Containers) != 1 {
			t.Fatalf("containers: %+v", pod.Containers)
		}
		c := pod.Containers[0]
		if c.Name != kube.ContainerName || c.Image != config.Image || c.WorkingDir != "/work" {
			t.Errorf("container: %+v", c)
		}
		if !cmp.SliceEq(c.Command, []string{"bash", "VS_DD_run_2026_1_2/jobs/job_2.sh"}) {
			t.Errorf("command: %v", c.Command)
		}
		if len(c.VolumeMounts) != 1 || c.VolumeMounts[0].MountPath != "/work" {
			t.Errorf("volumeMounts: %+v", c.VolumeMounts)
		}
		if cpu := c.Resources.Requests[kubecore.ResourceCPU]; cpu.Value() != 4 {
			t.Errorf("cpu: %s", cpu.String())
		}
		if mem := c.Resources.Requests[kubecore.ResourceMemory]; mem.Cmp(resource.MustParse("4Gi")) != 0 {
			t.Errorf("memory: %s", mem.String())
		}
		if gpu := c.Resources.Limits["nvidia.com/gpu"]; gpu.Value() != 1 {
			t.Errorf("gpu: %s", gpu.String())
		}
	})

	t.Run("it does not request GPUs for CPU jobs", func(t *testing.T) {
		client := mock.NewMockClient(t)
		var created *kubebatch.Job
		client.Impl.CreateJob = func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
			created = job
			return job, nil
		}
		testee, err := kube.New(client, config)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := testee.Launch(context.Background(), scheduler.Job{
			Index: 1, Script: "jobs/job_1.sh",
		}); err != nil {
			t.Fatal(err)
		}
		c := created.Spec.Template.Spec.Containers[0]
		if len(c.Resources.Limits) != 0 {
			t.Errorf("limits: %+v", c.Resources.Limits)
		}
		if _, ok := c.Resources.Requests[kubecore.ResourceMemory]; ok {
			t.Errorf("memory is requested: %+v", c.Resources.Requests)
		}
		if cpu := c.Resources.Requests[kubecore.ResourceCPU]; cpu.Value() != 1 {
			t.Errorf("cpu: %s", cpu.String())
		}
		if created.Spec.ActiveDeadlineSeconds != nil {
			t.Errorf("deadline: %d", *created.Spec.ActiveDeadlineSeconds)
		}
	})

	t.Run("it fails with ErrSubmission when the cluster refuses", func(t *testing.T) {
		client := mock.NewMockClient(t)
		cause := errors.New("forbidden")
		client.Impl.CreateJob = func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
			return nil, cause
		}
		testee, err := kube.New(client, config)
		if err != nil {
			t.Fatal(err)
		}
		_, err = testee.Launch(context.Background(), scheduler.Job{Index: 1, Script: "jobs/job_1.sh"})
		if !errors.Is(err, scheduler.ErrSubmission) || !errors.Is(err, cause) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it fails before calling the cluster when memory is malformed", func(t *testing.T) {
		client := mock.NewMockClient(t)
		testee, err := kube.New(client, config)
		if err != nil {
			t.Fatal(err)
		}
		_, err = testee.Launch(context.Background(), scheduler.Job{
			Index: 1, Script: "jobs/job_1.sh",
			Spec: jobspec.JobSpec{Resources: jobspec.Resources{Memory: "lots"}},
		})
		if !errors.Is(err, scheduler.ErrSubmission) || !errors.Is(err, kube.ErrInvalidConfig) {
			t.Errorf("unexpected error: %v", err)
		}
		if client.Called.CreateJob != 0 {
			t.Errorf("CreateJob is called")
		}
	})
}

func TestKubernetes_JobName(t *testing.T) {
	testee, err := kube.New(mock.NewMockClient(t), config, kube.WithIDGenerator(func() string { return "abcd1234" }))
	if err != nil {
		t.Fatal(err)
	}

	if actual := testee.JobName("Embedding: 6W70.pdb"); actual != "vsdock-embedding-6w70-pdb-abcd1234" {
		t.Errorf("name: %s", actual)
	}
	if actual := testee.JobName(strings.Repeat("x", 100)); len(actual) > 63 {
		t.Errorf("too long name: %s (%d)", actual, len(actual))
	}
}

func finishedJob(name string, cond kubebatch.JobConditionType) *kubebatch.Job {
	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{Name: name, Namespace: "docking"},
		Status: kubebatch.JobStatus{
			Conditions: []kubebatch.JobCondition{
				{Type: cond, Status: kubecore.ConditionTrue},
			},
		},
	}
}

func TestKubernetes_Wait(t *testing.T) {
	client := mock.NewMockClient(t)
	polls := 0
	client.Impl.GetJob = func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
		polls += 1
		if polls < 3 {
			return &kubebatch.Job{ObjectMeta: kubeapimeta.ObjectMeta{Name: name}}, nil
		}
		return finishedJob(name, kubebatch.JobFailed), nil
	}
	client.Impl.FindPods = func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
		if ls[k8s.LabelJobName] != "vsdock-1-x" {
			t.Errorf("selector: %+v", ls)
		}
		return nil, nil
	}

	testee, err := kube.New(client, config)
	if err != nil {
		t.Fatal(err)
	}
	j, err := testee.Wait(context.Background(), "vsdock-1-x", retry.StaticBackoff(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if polls != 3 {
		t.Errorf("polls: %d", polls)
	}
	if j.Status() != k8s.Failed {
		t.Errorf("status: %s", j.Status())
	}
}

func TestKubernetes_FetchLog(t *testing.T) {
	pods := func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
		return []kubecore.Pod{
			{ObjectMeta: kubeapimeta.ObjectMeta{Name: "vsdock-1-x-pod", Namespace: "docking"}},
		}, nil
	}

	t.Run("it copies the log of a finished job", func(t *testing.T) {
		client := mock.NewMockClient(t)
		client.Impl.GetJob = func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
			return finishedJob(name, kubebatch.JobComplete), nil
		}
		client.Impl.FindPods = pods
		client.Impl.Log = func(ctx context.Context, namespace, pod, container string) (io.ReadCloser, error) {
			if pod != "vsdock-1-x-pod" || container != kube.ContainerName {
				t.Errorf("pod=%s, container=%s", pod, container)
			}
			return io.NopCloser(strings.NewReader("Calculations finished after 12.3 seconds\n")), nil
		}

		testee, err := kube.New(client, config)
		if err != nil {
			t.Fatal(err)
		}
		buf := new(strings.Builder)
		st, err := testee.FetchLog(context.Background(), "vsdock-1-x", buf)
		if err != nil {
			t.Fatal(err)
		}
		if st != k8s.Succeeded {
			t.Errorf("status: %s", st)
		}
		if buf.String() != "Calculations finished after 12.3 seconds\n" {
			t.Errorf("log: %q", buf.String())
		}
	})

	t.Run("it writes nothing while the job is running", func(t *testing.T) {
		client := mock.NewMockClient(t)
		client.Impl.GetJob = func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
			return &kubebatch.Job{ObjectMeta: kubeapimeta.ObjectMeta{Name: name}}, nil
		}
		client.Impl.FindPods = pods

		testee, err := kube.New(client, config)
		if err != nil {
			t.Fatal(err)
		}
		buf := new(strings.Builder)
		st, err := testee.FetchLog(context.Background(), "vsdock-1-x", buf)
		if err != nil {
			t.Fatal(err)
		}
		if st != k8s.Pending {
			t.Errorf("status: %s", st)
		}
		if buf.Len() != 0 || client.Called.Log != 0 {
			t.Errorf("log is read: %q", buf.String())
		}
	})
}

func TestParseMemory(t *testing.T) {
	for input, expected := range map[string]string{
		"4G":   "4Gi",
		"500M": "500Mi",
		"4Gi":  "4Gi",
		"2048": "2Gi",
		"1.5G": "1536Mi",
	} {
		t.Run(input, func(t *testing.T) {
			actual, err := kube.ParseMemory(input)
			if err != nil {
				t.Fatal(err)
			}
			if actual.Cmp(resource.MustParse(expected)) != 0 {
				t.Errorf("actual=%s, expected=%s", actual.String(), expected)
			}
		})
	}

	for _, input := range []string{"", "lots", "G", "M", "xG", "0G", "0", "-1G"} {
		t.Run("rejects "+input, func(t *testing.T) {
			if _, err := kube.ParseMemory(input); !errors.Is(err, kube.ErrInvalidConfig) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseWallTime(t *testing.T) {
	for input, expected := range map[string]time.Duration{
		"30":         30 * time.Minute,
		"30:15":      30*time.Minute + 15*time.Second,
		"2:00:00":    2 * time.Hour,
		"1-12":       36 * time.Hour,
		"1-00:30":    24*time.Hour + 30*time.Minute,
		"2-01:02:03": 49*time.Hour + 2*time.Minute + 3*time.Second,
	} {
		t.Run(input, func(t *testing.T) {
			actual, err := kube.ParseWallTime(input)
			if err != nil {
				t.Fatal(err)
			}
			if actual != expected {
				t.Errorf("actual=%s, expected=%s", actual, expected)
			}
		})
	}

	for _, input := range []string{"", "0", "a:b", "1:2:3:4", "x-1"} {
		t.Run("rejects "+input, func(t *testing.T) {
			if _, err := kube.ParseWallTime(input); !errors.Is(err, kube.ErrInvalidConfig) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestKubernetes_Active(t *testing.T) {
	theory := func(getJob func(name string) (*kubebatch.Job, error), expected bool) func(*testing.T) {
		return func(t *testing.T) {
			client := mock.NewMockClient(t)
			client.Impl.GetJob = func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
				return getJob(name)
			}
			client.Impl.FindPods = func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
				return nil, nil
			}
			testee, err := kube.New(client, config)
			if err != nil {
				t.Fatal(err)
			}
			actual, err := testee.Active(context.Background(), "vsdock-1-x")
			if err != nil {
				t.Fatal(err)
			}
			if actual != expected {
				t.Errorf("active: %v", actual)
			}
		}
	}

	t.Run("pending job", theory(func(name string) (*kubebatch.Job, error) {
		return &kubebatch.Job{ObjectMeta: kubeapimeta.ObjectMeta{Name: name}}, nil
	}, true))
	t.Run("failed job", theory(func(name string) (*kubebatch.Job, error) {
		return finishedJob(name, kubebatch.JobFailed), nil
	}, false))
	t.Run("deleted job", theory(func(name string) (*kubebatch.Job, error) {
		return nil, kubeerr.NewNotFound(schema.GroupResource{Group: "batch", Resource: "jobs"}, name)
	}, false))
}
