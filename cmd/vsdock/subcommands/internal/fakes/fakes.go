package fakes

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/common"
	"github.com/vsdock/vsdock/pkg/director"
	"github.com/vsdock/vsdock/pkg/embedding"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/layout"
	"github.com/vsdock/vsdock/pkg/manifest"
	"github.com/vsdock/vsdock/pkg/prompt"
	"github.com/vsdock/vsdock/pkg/recovery"
	"github.com/vsdock/vsdock/pkg/scheduler"
	k8s "github.com/vsdock/vsdock/pkg/workloads/k8s"
)

// Scheduler records launched jobs. Job ids are "1001", "1002", ... in order of launches.
type Scheduler struct {
	Mode_    jobspec.Mode
	Launched []scheduler.Job
	Err      error

	next int
}

var _ scheduler.Scheduler = &Scheduler{}

func (s *Scheduler) Mode() jobspec.Mode {
	return s.Mode_
}

func (s *Scheduler) Launch(ctx context.Context, job scheduler.Job) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.Launched = append(s.Launched, job)
	if s.Mode_ == jobspec.ModeLocal {
		return "", nil
	}
	s.next += 1
	return fmt.Sprintf("%d", 1000+s.next), nil
}

// Fetcher serves logs of Kubernetes Jobs from a map.
type Fetcher struct {
	Logs    map[string]string
	Fetched []string
}

var _ recovery.LogFetcher = &Fetcher{}

func (f *Fetcher) FetchLog(ctx context.Context, name string, w io.Writer) (k8s.JobStatus, error) {
	f.Fetched = append(f.Fetched, name)
	content, ok := f.Logs[name]
	if !ok {
		return k8s.Running, nil
	}
	if _, err := io.WriteString(w, content); err != nil {
		return "", err
	}
	return k8s.Succeeded, nil
}

// Backends hands out the same fakes for every mode, recording requested modes.
type Backends struct {
	Scheduler_ *Scheduler
	Embedder_  embedding.Embedder
	Fetcher    *Fetcher

	// PreflightErr is returned from the preflight check.
	PreflightErr error

	// Active, when not nil, makes the scheduler a tracker telling these job ids are active.
	Active map[string]bool

	Modes []jobspec.Mode
}

var _ common.Backends = &Backends{}

func (b *Backends) Scheduler(mode jobspec.Mode) (scheduler.Scheduler, error) {
	b.Modes = append(b.Modes, mode)
	b.Scheduler_.Mode_ = mode
	if b.Active != nil {
		return tracker{Scheduler: b.Scheduler_, active: b.Active}, nil
	}
	return b.Scheduler_, nil
}

type tracker struct {
	*Scheduler
	active map[string]bool
}

var _ scheduler.Tracker = tracker{}

func (t tracker) Active(ctx context.Context, jobID string) (bool, error) {
	return t.active[jobID], nil
}

func (b *Backends) Embedder(mode jobspec.Mode, gpu bool) (embedding.Embedder, error) {
	return b.Embedder_, nil
}

func (b *Backends) Preflight(mode jobspec.Mode, confirm prompt.Confirmer) (director.Preflight, error) {
	return func(context.Context) error { return b.PreflightErr }, nil
}

func (b *Backends) LogFetcher() (recovery.LogFetcher, error) {
	if b.Fetcher == nil {
		return nil, fmt.Errorf("no kubernetes")
	}
	return b.Fetcher, nil
}

// NewRun makes a run directory in a temporary directory, dispatching chunks of complex names with sched.
//
// The receptor "6w70.pdb" is placed in the run root.
func NewRun(t *testing.T, sched *Scheduler, chunks ...[]string) layout.Layout {
	t.Helper()
	l := layout.Open(filepath.Join(t.TempDir(), "VS_DD_screen_2026_1_2"))
	if err := l.Materialize(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(l.Root, "6w70.pdb"), []byte("ATOM"), os.FileMode(0644)); err != nil {
		t.Fatal(err)
	}

	items := make([][]manifest.WorkItem, len(chunks))
	for i, names := range chunks {
		for _, n := range names {
			items[i] = append(items[i], manifest.WorkItem{
				ComplexName: n, ReceptorPath: "6w70.pdb", LigandPath: "ligands/" + n + ".sdf",
			})
		}
	}
	base := jobspec.JobSpec{
		Name:      "DiffDockHPC",
		Container: jobspec.Container{Runtime: "singularity", Image: "singularity/DiffDockHPC.sif"},
		Resources: jobspec.Resources{Cores: 4, Memory: "4G"},
		Docking: jobspec.Docking{
			Entrypoint: []string{"python3", "-u", "inference.py"},
			OutputDir:  l.Molecules(),
			Samples:    1,
		},
	}
	if sched.Mode_ == jobspec.ModeKubernetes {
		base.Container = jobspec.Container{Image: "ghcr.io/vsdock/diffdock:latest"}
	}
	if _, err := director.Dispatch(
		context.Background(), sched, l, base, manifest.DefaultFormat, items, nil,
	); err != nil {
		t.Fatal(err)
	}
	sched.Launched = nil
	return l
}

// Finish writes the completion sentinel into the log of the i-th job.
func Finish(t *testing.T, l layout.Layout, i int, jobID string) {
	t.Helper()
	content := "Calculations finished after 12.3 seconds\n"
	if err := os.WriteFile(l.LogPath(i, jobID), []byte(content), os.FileMode(0644)); err != nil {
		t.Fatal(err)
	}
}

// Output places an output molecule of the complex in the run.
func Output(t *testing.T, l layout.Layout, complexName string) {
	t.Helper()
	name := filepath.Join(l.Molecules(), complexName+"_rank1.sdf")
	if err := os.WriteFile(name, []byte(complexName), os.FileMode(0644)); err != nil {
		t.Fatal(err)
	}
}
