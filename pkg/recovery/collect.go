package recovery

import (
	"context"
	"fmt"
	"io"
	"os"

	vio "github.com/vsdock/vsdock/pkg/io"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/layout"
	k8s "github.com/vsdock/vsdock/pkg/workloads/k8s"
	"go.uber.org/multierr"
)

// LogFetcher copies the log of a finished Kubernetes Job.
type LogFetcher interface {
	// FetchLog writes the log of the job into w, only when it has finished.
	FetchLog(ctx context.Context, name string, w io.Writer) (k8s.JobStatus, error)
}

// Collect fills empty log placeholders of Kubernetes jobs in l with logs of finished Jobs.
//
// Logs of jobs still running are left empty. It returns indices of jobs whose logs are collected.
func (e *Engine) Collect(ctx context.Context, l layout.Layout, fetcher LogFetcher) ([]int, error) {
	lg := e.logger()
	entries, err := os.ReadDir(l.Logs())
	if err != nil {
		return nil, err
	}

	collected := []int{}
	var errs error
	for _, ent := range entries {
		i, id, ok := layout.LogIndex(ent.Name())
		if !ok || id == "" || ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if info.Size() != 0 {
			continue
		}
		spec, err := jobspec.LoadOrParse(l.SpecPath(i), l.ScriptPath(i))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job #%d: %w", i, err))
			continue
		}
		if spec.Mode != jobspec.ModeKubernetes {
			continue
		}

		done, err := fetch(ctx, fetcher, id, l.LogPath(i, id))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job #%d (%s): %w", i, id, err))
			continue
		}
		if done {
			lg.Printf("collected the log of job #%d (%s)", i, id)
			collected = append(collected, i)
		}
	}
	return collected, errs
}

// fetch writes the log of a finished job into dest, replacing it only when completed.
func fetch(ctx context.Context, fetcher LogFetcher, name string, dest string) (bool, error) {
	f, err := vio.TempBeside(dest)
	if err != nil {
		return false, err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	st, err := fetcher.FetchLog(ctx, name, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false, err
	}
	if !st.Finished() {
		return false, nil
	}
	return true, os.Rename(tmp, dest)
}

// CollectRun collects logs of the run at root, and of its redo pass if there is.
//
// It returns the number of logs collected.
func (e *Engine) CollectRun(ctx context.Context, root string, fetcher LogFetcher) (int, error) {
	l, err := OpenRun(root)
	if err != nil {
		return 0, err
	}
	layouts := []layout.Layout{l}
	if _, err := os.Stat(l.Redo().Root); err == nil {
		layouts = append(layouts, l.Redo())
	}

	collected := 0
	var errs error
	for _, target := range layouts {
		c, err := e.Collect(ctx, target, fetcher)
		collected += len(c)
		errs = multierr.Append(errs, err)
	}
	return collected, errs
}
