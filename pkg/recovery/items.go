package recovery

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vsdock/vsdock/pkg/director"
	"github.com/vsdock/vsdock/pkg/layout"
	"github.com/vsdock/vsdock/pkg/manifest"
	"github.com/vsdock/vsdock/pkg/partition"
)

// ItemsRelaunch is the result of RelaunchItems.
type ItemsRelaunch struct {
	Outcome ItemOutcome

	// Redo is the layout of the redo pass. Zero when nothing has been relaunched.
	Redo layout.Layout

	Jobs []director.Submitted
}

// AskJobs asks the number of jobs to relaunch failed items with.
//
// A non-numeric or non-positive answer is ErrNotLaunched.
func (e *Engine) AskJobs(ctx context.Context, failed int) (int, error) {
	if e.Asker == nil {
		return 0, fmt.Errorf("%w: the number of jobs is not given", ErrNotLaunched)
	}
	answer, err := e.Asker.Ask(ctx, fmt.Sprintf(
		"With how many jobs would you like to relaunch the %d failed items?", failed,
	))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q is not a number of jobs", ErrNotLaunched, answer)
	}
	return n, nil
}

// RelaunchItems resubmits work items of the run at root which have no outputs.
//
// The failed items are partitioned into jobs chunks (asked when jobs is 0) and
// launched in the redo layout of the run, with parameters of the first job of the run.
// Outputs go to the molecules directory of the run itself.
//
// When every item has succeeded, nothing is written.
func (e *Engine) RelaunchItems(ctx context.Context, root string, jobs int) (ItemsRelaunch, error) {
	lg := e.logger()
	l, err := OpenRun(root)
	if err != nil {
		return ItemsRelaunch{}, err
	}

	outcome, err := ClassifyItems(os.DirFS(l.Root), e.Config.Run.OutputExtension, e.Config.Run.Prefix)
	if err != nil {
		return ItemsRelaunch{}, err
	}
	result := ItemsRelaunch{Outcome: outcome}
	lg.Printf(
		"Failed to process %d items, %d did process successfully",
		len(outcome.Failed), len(outcome.Succeeded),
	)
	if len(outcome.Unknown) != 0 {
		lg.Printf("%d outputs are not in manifests: %s", len(outcome.Unknown), strings.Join(outcome.Unknown, ", "))
	}
	if len(outcome.Failed) == 0 {
		return result, nil
	}

	jobsOfRun, err := ClassifyJobs(os.DirFS(l.Root), e.Config.Run.Sentinel)
	if err != nil {
		return result, err
	}
	base, err := representative(l, jobsOfRun.Scripts)
	if err != nil {
		return result, err
	}
	sched, err := e.Schedulers(base.Mode)
	if err != nil {
		return result, err
	}

	receptor, err := Receptor(l.Root)
	if err != nil {
		return result, err
	}
	failed := outcome.Failed
	if receptor != "" {
		failed = make([]manifest.WorkItem, len(outcome.Failed))
		for i, it := range outcome.Failed {
			it.ReceptorPath = receptor
			failed[i] = it
		}
	}

	if jobs == 0 {
		if jobs, err = e.AskJobs(ctx, len(failed)); err != nil {
			return result, err
		}
	}
	parts, err := partition.Split(failed, jobs)
	if err != nil {
		return result, err
	}

	redo := l.Redo()
	if err := layout.Prepare(ctx, redo, e.Confirmer); err != nil {
		return result, err
	}
	result.Redo = redo

	if note := parts.Notice(); note != "" {
		lg.Print(note)
	}
	lg.Printf("launching %d jobs for %d items", parts.Len(), len(failed))
	format := manifest.Format{Delimiter: e.Config.Run.Delimiter, Columns: manifest.WithComplexName}
	submitted, err := director.Dispatch(ctx, sched, redo, base, format, parts.Chunks, lg)
	result.Jobs = submitted
	return result, err
}
