package mock

import (
	"context"
	"errors"
	"io"
	"testing"

	k8s "github.com/vsdock/vsdock/pkg/workloads/k8s"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
)

// MockClient fakes k8s.K8sClient.
//
// Set functions into Impl to fake behaviours. Methods without Impl fail the test.
type MockClient struct {
	t *testing.T

	Impl struct {
		GetJob    func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
		CreateJob func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
		DeleteJob func(ctx context.Context, namespace string, name string) error

		FindPods func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error)

		Log func(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error)
	}

	Called struct {
		GetJob    uint64
		CreateJob uint64
		DeleteJob uint64
		FindPods  uint64
		Log       uint64
	}
}

var _ k8s.K8sClient = &MockClient{}

func NewMockClient(t *testing.T) *MockClient {
	return &MockClient{t: t}
}

func (m *MockClient) notImplemented(name string) error {
	m.t.Helper()
	m.t.Errorf("[MOCK] %s is not implemented", name)
	return errors.New("[MOCK] not implemented")
}

func (m *MockClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	m.Called.GetJob += 1
	if m.Impl.GetJob == nil {
		return nil, m.notImplemented("GetJob")
	}
	return m.Impl.GetJob(ctx, namespace, name)
}

func (m *MockClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	m.Called.CreateJob += 1
	if m.Impl.CreateJob == nil {
		return nil, m.notImplemented("CreateJob")
	}
	return m.Impl.CreateJob(ctx, namespace, job)
}

func (m *MockClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteJob += 1
	if m.Impl.DeleteJob == nil {
		return m.notImplemented("DeleteJob")
	}
	return m.Impl.DeleteJob(ctx, namespace, name)
}

func (m *MockClient) FindPods(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
	m.Called.FindPods += 1
	if m.Impl.FindPods == nil {
		return nil, m.notImplemented("FindPods")
	}
	return m.Impl.FindPods(ctx, namespace, ls)
}

func (m *MockClient) Log(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error) {
	m.Called.Log += 1
	if m.Impl.Log == nil {
		return nil, m.notImplemented("Log")
	}
	return m.Impl.Log(ctx, namespace, pod, container)
}
