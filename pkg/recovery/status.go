package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/layout"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"github.com/vsdock/vsdock/pkg/utils/filewatch"
)

// ErrJobsLost is returned by Wait when every unfinished job has left the scheduler.
var ErrJobsLost = errors.New("jobs have ended without finishing")

// Report is the state of a run.
type Report struct {
	Layout layout.Layout

	Jobs JobOutcome

	// Redo is the state of the redo pass. Nil if there has been no redo pass.
	Redo *JobOutcome

	Items ItemOutcome
}

// Completed tells every job script, including redo jobs, has finished.
func (r Report) Completed() bool {
	return r.Jobs.Completed() && (r.Redo == nil || r.Redo.Completed())
}

func ints(is []int) string {
	s := make([]string, len(is))
	for i, n := range is {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ", ")
}

func (r Report) Write(w io.Writer) error {
	lines := []string{
		"run: " + r.Layout.Root,
		fmt.Sprintf("jobs: %d finished, %d unfinished", len(r.Jobs.Finished), len(r.Jobs.Unfinished)),
	}
	if len(r.Jobs.Unfinished) != 0 {
		lines = append(lines, "  unfinished: "+ints(r.Jobs.Unfinished))
	}
	if r.Redo != nil {
		lines = append(lines, fmt.Sprintf(
			"redo jobs: %d finished, %d unfinished", len(r.Redo.Finished), len(r.Redo.Unfinished),
		))
		if len(r.Redo.Unfinished) != 0 {
			lines = append(lines, "  unfinished: "+ints(r.Redo.Unfinished))
		}
	}
	lines = append(lines, fmt.Sprintf(
		"items: %d succeeded, %d failed", len(r.Items.Succeeded), len(r.Items.Failed),
	))
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// Status reads the state of the run at root. It writes nothing.
func (e *Engine) Status(root string) (Report, error) {
	l, err := OpenRun(root)
	if err != nil {
		return Report{}, err
	}
	fsys := os.DirFS(l.Root)

	jobs, err := ClassifyJobs(fsys, e.Config.Run.Sentinel)
	if err != nil {
		return Report{}, err
	}
	items, err := ClassifyItems(fsys, e.Config.Run.OutputExtension, e.Config.Run.Prefix)
	if err != nil {
		return Report{}, err
	}
	report := Report{Layout: l, Jobs: jobs, Items: items}

	redo := l.Redo()
	if _, err := os.Stat(redo.Root); err == nil {
		sub, err := fs.Sub(fsys, layout.RedoDir)
		if err != nil {
			return Report{}, err
		}
		r, err := ClassifyJobs(sub, e.Config.Run.Sentinel)
		if err != nil {
			return Report{}, err
		}
		report.Redo = &r
	} else if !errors.Is(err, os.ErrNotExist) {
		return Report{}, err
	}
	return report, nil
}

// Wait blocks until every job of the run at root has finished, or ctx is done.
//
// The run is checked again when a log changes, or every interval.
// Before each check, refresh is called if it is not nil; it may bring logs from elsewhere.
// Every report is passed to progress.
//
// When the scheduler can track jobs and none of the unfinished jobs is active anymore,
// Wait returns the last report with ErrJobsLost.
// Jobs which are not tracked (no job id, or the scheduler cannot tell) are waited for.
func (e *Engine) Wait(
	ctx context.Context,
	root string,
	interval time.Duration,
	refresh func(context.Context) error,
	progress func(Report),
) (Report, error) {
	// jobs which had left the scheduler at the previous check.
	var ended, redoEnded []int
	for {
		if refresh != nil {
			if err := refresh(ctx); err != nil {
				return Report{}, err
			}
		}
		report, err := e.Status(root)
		if err != nil {
			return report, err
		}
		if progress != nil {
			progress(report)
		}
		if report.Completed() {
			return report, nil
		}

		lost := remaining(ended, report.Jobs.Unfinished)
		allLost := len(lost) == len(report.Jobs.Unfinished)
		var redoLost []int
		if report.Redo != nil {
			redoLost = remaining(redoEnded, report.Redo.Unfinished)
			allLost = allLost && len(redoLost) == len(report.Redo.Unfinished)
		}
		if allLost {
			return report, lostError(lost, redoLost)
		}

		ended = e.ended(ctx, report.Layout, report.Jobs)
		redoEnded = nil
		if report.Redo != nil {
			redoEnded = e.ended(ctx, report.Layout.Redo(), *report.Redo)
		}

		watched := []string{report.Layout.Logs()}
		if report.Redo != nil {
			watched = append(watched, report.Layout.Redo().Logs())
		}
		wctx, cancel, err := filewatch.UntilWritten(ctx, watched...)
		if err != nil {
			return report, err
		}
		select {
		case <-wctx.Done():
		case <-time.After(interval):
		}
		cancel()
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}
}

// ended lists unfinished jobs in l which have ids and none of them is active.
func (e *Engine) ended(ctx context.Context, l layout.Layout, outcome JobOutcome) []int {
	lg := e.logger()
	ended := []int{}
	for _, i := range outcome.Unfinished {
		ids := outcome.JobIDs[i]
		if len(ids) == 0 {
			continue
		}
		spec, err := jobspec.LoadOrParse(l.SpecPath(i), l.ScriptPath(i))
		if err != nil {
			lg.Printf("job #%d cannot be tracked: %s", i, err)
			continue
		}
		sched, err := e.Schedulers(spec.Mode)
		if err != nil {
			lg.Printf("job #%d cannot be tracked: %s", i, err)
			continue
		}
		if _, ok := sched.(scheduler.Tracker); !ok {
			continue
		}
		active, err := e.active(ctx, sched, ids)
		if err != nil {
			lg.Printf("job #%d cannot be tracked: %s", i, err)
			continue
		}
		if active == "" {
			ended = append(ended, i)
		}
	}
	return ended
}

// remaining returns items of ended which are still in unfinished.
func remaining(ended, unfinished []int) []int {
	rest := []int{}
	for _, i := range ended {
		if slices.Contains(unfinished, i) {
			rest = append(rest, i)
		}
	}
	return rest
}

func lostError(lost, redoLost []int) error {
	which := []string{}
	if len(lost) != 0 {
		which = append(which, "jobs "+ints(lost))
	}
	if len(redoLost) != 0 {
		which = append(which, "redo jobs "+ints(redoLost))
	}
	return fmt.Errorf("%w: %s", ErrJobsLost, strings.Join(which, ", "))
}
