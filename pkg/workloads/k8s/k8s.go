package k8s

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// subset of k8s.Clientset
type K8sClient interface {
	GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
	CreateJob(ctx context.Context, namespace string, spec *kubebatch.Job) (*kubebatch.Job, error)
	DeleteJob(ctx context.Context, namespace string, name string) error

	FindPods(ctx context.Context, namespace string, labelSelector LabelSelector) ([]kubecore.Pod, error)

	Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error)
}

// A wrapper for the type k8s.Clientset; because it does not prefer method chain-style invocations of that type.
type k8sClient struct {
	client *k8s.Clientset
}

// type check: k8sClient implements K8sClient
var _ K8sClient = &k8sClient{}

func WrapK8sClient(c *k8s.Clientset) K8sClient {
	return &k8sClient{client: c}
}

func (k *k8sClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Create(ctx, job, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	foreground := kubeapimeta.DeletePropagationForeground
	zero := int64(0)
	return k.client.BatchV1().Jobs(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{
		GracePeriodSeconds: &zero,
		PropagationPolicy:  &foreground,
	})
}

func (k *k8sClient) FindPods(ctx context.Context, namespace string, labels LabelSelector) ([]kubecore.Pod, error) {
	resp, err := k.client.CoreV1().Pods(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: labels.QueryString(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error) {
	return k.client.
		CoreV1().
		Pods(namespace).
		GetLogs(podname, &kubecore.PodLogOptions{Container: container, Follow: true}).
		Stream(ctx)
}

// LabelSelector is an equality based label selector: all of label=value should match.
type LabelSelector map[string]string

// QueryString formats the selector for ListOptions.
func (ls LabelSelector) QueryString() string {
	keys := make([]string, 0, len(ls))
	for k := range ls {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		terms = append(terms, k+"="+ls[k])
	}
	return strings.Join(terms, ",")
}

// ConnectToK8s creates *k8s.Clientset.
//
// It searches kubeconfig from, in order of priority (most first):
//
// - kubeconfig, the argument
//
// - environmental variable `KUBECONFIG`
//
// - `~/.kube/config`
//
// When no files are found, it tries to use in-cluster config.
func ConnectToK8s(kubeconfig string) (*k8s.Clientset, error) {
	found := ""
	candidates := []string{kubeconfig, os.Getenv("KUBECONFIG")}
	if home := homedir.HomeDir(); home != "" {
		candidates = append(candidates, filepath.Join(home, ".kube", "config"))
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if s, err := os.Stat(c); err == nil && !s.IsDir() {
			found = c
			break
		}
	}

	var config *rest.Config
	var err error
	if found == "" {
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", found)
	}
	if err != nil {
		return nil, err
	}
	return k8s.NewForConfig(config)
}

type JobStatus string

const (
	// no pods have been started.
	Pending JobStatus = "Pending"

	// at least one pod has started, and the job has not completed.
	Running JobStatus = "Running"

	// the job is succeeded.
	Succeeded JobStatus = "Succeeded"

	// the job is failed.
	Failed JobStatus = "Failed"
)

// Finished tells the job will not progress anymore.
func (s JobStatus) Finished() bool {
	return s == Succeeded || s == Failed
}

// abstraction of k8s job.
type Job interface {
	// the name of the job
	Name() string

	// the namespace where the job is placed in
	Namespace() string

	// how does the job progress, at least
	//
	// This value is just a SNAPSHOT of the job when you get the instance.
	// To refresh, get a new instance with GetJob.
	Status() JobStatus

	// ExitCode returns the exit code of the container of the job.
	//
	// # Return
	//
	// - exitCode : the exit code of the container.
	//
	// - reason: the reason of the termination.
	//
	// - ok : true if the container has been stopped, false otherwise.
	ExitCode(container string) (uint8, string, bool)

	// Log gets log stream of the container of the job.
	Log(ctx context.Context, containerName string) (io.ReadCloser, error)
}

// LabelJobName is put on pods by the job controller.
const LabelJobName = "job-name"

// GetJob takes a snapshot of a job and its pods.
func GetJob(ctx context.Context, client K8sClient, namespace string, name string) (Job, error) {
	j, err := client.GetJob(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	pods, err := client.FindPods(ctx, namespace, LabelSelector{LabelJobName: name})
	if err != nil {
		return nil, err
	}
	return &job{job: j, pods: pods, client: client}, nil
}

type job struct {
	job    *kubebatch.Job
	pods   []kubecore.Pod
	client K8sClient
}

var _ Job = &job{}

func (j *job) Name() string {
	return j.job.Name
}

func (j *job) Namespace() string {
	return j.job.Namespace
}

func (j *job) Status() JobStatus {
	for _, sc := range j.job.Status.Conditions {
		if sc.Status != kubecore.ConditionTrue {
			continue
		}
		switch sc.Type {
		case kubebatch.JobComplete:
			return Succeeded
		case kubebatch.JobFailed:
			return Failed
		}
	}

	for _, p := range j.pods {
		// if at least one pod has been run, the job has been run.
		switch p.Status.Phase {
		case kubecore.PodRunning, kubecore.PodSucceeded, kubecore.PodFailed:
			return Running
		}
	}

	return Pending
}

// Log reads the log of the latest pod, the one most likely to have the final attempt.
func (j *job) Log(ctx context.Context, containerName string) (io.ReadCloser, error) {
	if len(j.pods) == 0 {
		return nil, errors.New("no pods")
	}
	latest := j.pods[0]
	for _, p := range j.pods[1:] {
		if latest.CreationTimestamp.Before(&p.CreationTimestamp) {
			latest = p
		}
	}
	return j.client.Log(ctx, latest.Namespace, latest.Name, containerName)
}

func (j *job) ExitCode(container string) (uint8, string, bool) {
	for _, p := range j.pods {
		for _, c := range p.Status.ContainerStatuses {
			if c.Name != container {
				continue
			}
			if term := c.State.Terminated; term != nil {
				return uint8(term.ExitCode), term.Reason, true
			}
			break
		}
	}
	return 0, "", false
}
