package k8s_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	k8s "github.com/vsdock/vsdock/pkg/workloads/k8s"
	"github.com/vsdock/vsdock/pkg/workloads/k8s/mock"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestLabelSelector(t *testing.T) {
	if q := (k8s.LabelSelector{}).QueryString(); q != "" {
		t.Errorf("empty selector: %q", q)
	}
	q := k8s.LabelSelector{"job-name": "a", "app": "vsdock"}.QueryString()
	if q != "app=vsdock,job-name=a" {
		t.Errorf("selector: %q", q)
	}
}

func TestGetJob(t *testing.T) {
	type When struct {
		Conditions []kubebatch.JobCondition
		Pods       []kubecore.PodPhase
	}

	theory := func(when When, then k8s.JobStatus) func(*testing.T) {
		return func(t *testing.T) {
			client := mock.NewMockClient(t)
			client.Impl.GetJob = func(ctx context.Context, namespace, name string) (*kubebatch.Job, error) {
				if namespace != "ns" || name != "vsdock-job" {
					t.Errorf("unexpected job: %s/%s", namespace, name)
				}
				return &kubebatch.Job{
					ObjectMeta: kubeapimeta.ObjectMeta{Namespace: namespace, Name: name},
					Status:     kubebatch.JobStatus{Conditions: when.Conditions},
				}, nil
			}
			client.Impl.FindPods = func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
				if ls[k8s.LabelJobName] != "vsdock-job" {
					t.Errorf("unexpected selector: %v", ls)
				}
				pods := []kubecore.Pod{}
				for _, phase := range when.Pods {
					pods = append(pods, kubecore.Pod{Status: kubecore.PodStatus{Phase: phase}})
				}
				return pods, nil
			}

			job, err := k8s.GetJob(context.Background(), client, "ns", "vsdock-job")
			if err != nil {
				t.Fatal(err)
			}
			if job.Name() != "vsdock-job" || job.Namespace() != "ns" {
				t.Errorf("job: %s/%s", job.Namespace(), job.Name())
			}
			if actual := job.Status(); actual != then {
				t.Errorf("status: actual=%s, expected=%s", actual, then)
			}
		}
	}

	t.Run("no pods started", theory(When{Pods: []kubecore.PodPhase{kubecore.PodPending}}, k8s.Pending))
	t.Run("a pod is running", theory(When{Pods: []kubecore.PodPhase{kubecore.PodRunning}}, k8s.Running))
	t.Run("complete", theory(
		When{
			Conditions: []kubebatch.JobCondition{{Type: kubebatch.JobComplete, Status: kubecore.ConditionTrue}},
			Pods:       []kubecore.PodPhase{kubecore.PodSucceeded},
		},
		k8s.Succeeded,
	))
	t.Run("failed", theory(
		When{
			Conditions: []kubebatch.JobCondition{{Type: kubebatch.JobFailed, Status: kubecore.ConditionTrue}},
			Pods:       []kubecore.PodPhase{kubecore.PodFailed},
		},
		k8s.Failed,
	))
	t.Run("conditions not true are ignored", theory(
		When{
			Conditions: []kubebatch.JobCondition{{Type: kubebatch.JobFailed, Status: kubecore.ConditionFalse}},
			Pods:       []kubecore.PodPhase{kubecore.PodRunning},
		},
		k8s.Running,
	))

	t.Run("it fails when the job is not found", func(t *testing.T) {
		client := mock.NewMockClient(t)
		expectedErr := errors.New("not found")
		client.Impl.GetJob = func(ctx context.Context, namespace, name string) (*kubebatch.Job, error) {
			return nil, expectedErr
		}
		if _, err := k8s.GetJob(context.Background(), client, "ns", "x"); !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestJob_Log(t *testing.T) {
	older := kubeapimeta.NewTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := kubeapimeta.NewTime(time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC))

	client := mock.NewMockClient(t)
	client.Impl.GetJob = func(ctx context.Context, namespace, name string) (*kubebatch.Job, error) {
		return &kubebatch.Job{ObjectMeta: kubeapimeta.ObjectMeta{Namespace: namespace, Name: name}}, nil
	}
	client.Impl.FindPods = func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
		return []kubecore.Pod{
			{ObjectMeta: kubeapimeta.ObjectMeta{Namespace: "ns", Name: "retried", CreationTimestamp: newer}},
			{ObjectMeta: kubeapimeta.ObjectMeta{Namespace: "ns", Name: "first", CreationTimestamp: older}},
		}, nil
	}
	client.Impl.Log = func(ctx context.Context, namespace, pod, container string) (io.ReadCloser, error) {
		if pod != "retried" || container != "docking" {
			t.Errorf("unexpected log target: %s/%s", pod, container)
		}
		return io.NopCloser(strings.NewReader("Calculations finished after 3m")), nil
	}

	job, err := k8s.GetJob(context.Background(), client, "ns", "j")
	if err != nil {
		t.Fatal(err)
	}
	r, err := job.Log(context.Background(), "docking")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	b, _ := io.ReadAll(r)
	if string(b) != "Calculations finished after 3m" {
		t.Errorf("log: %q", b)
	}
}

func TestJob_ExitCode(t *testing.T) {
	client := mock.NewMockClient(t)
	client.Impl.GetJob = func(ctx context.Context, namespace, name string) (*kubebatch.Job, error) {
		return &kubebatch.Job{}, nil
	}
	client.Impl.FindPods = func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
		return []kubecore.Pod{{Status: kubecore.PodStatus{ContainerStatuses: []kubecore.ContainerStatus{
			{Name: "docking", State: kubecore.ContainerState{Terminated: &kubecore.ContainerStateTerminated{ExitCode: 137, Reason: "OOMKilled"}}},
		}}}}, nil
	}

	job, err := k8s.GetJob(context.Background(), client, "ns", "j")
	if err != nil {
		t.Fatal(err)
	}
	if code, reason, ok := job.ExitCode("docking"); !ok || code != 137 || reason != "OOMKilled" {
		t.Errorf("exit code: (%d, %s, %v)", code, reason, ok)
	}
	if _, _, ok := job.ExitCode("other"); ok {
		t.Error("unknown container should not have exit code")
	}
}
