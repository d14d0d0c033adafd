package recovery

import (
	"context"
	"fmt"
	"os"

	"github.com/vsdock/vsdock/pkg/director"
	vio "github.com/vsdock/vsdock/pkg/io"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/layout"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"go.uber.org/multierr"
)

// JobsRelaunch is the result of RelaunchJobs.
type JobsRelaunch struct {
	Outcome JobOutcome

	// Active are indices of unfinished jobs left alone because the scheduler still has them.
	Active []int

	Jobs []director.Submitted
}

// RelaunchJobs re-executes job scripts of l which have not completed, as they are.
//
// Each script is handed to the scheduler of the mode it has been rendered for.
// Jobs the scheduler reports as pending or running are not relaunched.
//
// Failures of relaunching are collected; one failure does not stop the others.
// When every job has completed, nothing is written.
func (e *Engine) RelaunchJobs(ctx context.Context, l layout.Layout) (JobsRelaunch, error) {
	lg := e.logger()

	outcome, err := ClassifyJobs(os.DirFS(l.Root), e.Config.Run.Sentinel)
	if err != nil {
		return JobsRelaunch{}, err
	}
	result := JobsRelaunch{Outcome: outcome, Active: []int{}, Jobs: []director.Submitted{}}
	if len(outcome.Scripts) == 0 {
		return result, fmt.Errorf("%w: no job scripts in %s", jobspec.ErrInvalid, l.Jobs())
	}
	if outcome.Completed() {
		lg.Printf("All the %d jobs have successfully finished", len(outcome.Finished))
		return result, nil
	}

	var errs error
	for _, i := range outcome.Unfinished {
		script := l.ScriptPath(i)
		spec, err := jobspec.LoadOrParse(l.SpecPath(i), script)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job #%d: %w", i, err))
			continue
		}
		sched, err := e.Schedulers(spec.Mode)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job #%d: %w", i, err))
			continue
		}

		if active, err := e.active(ctx, sched, outcome.JobIDs[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job #%d: %w", i, err))
			continue
		} else if active != "" {
			lg.Printf("job #%d is still active as %s; not relaunched", i, active)
			result.Active = append(result.Active, i)
			continue
		}

		lg.Printf("Relaunching %s", script)
		id, err := sched.Launch(ctx, scheduler.Job{Index: i, Script: script, Spec: spec})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		logpath := director.LogOf(l, sched.Mode(), i, id)
		if err := vio.Touch(logpath); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job #%d: %w", i, err))
		}
		result.Jobs = append(result.Jobs, director.Submitted{
			Index: i, Manifest: spec.Docking.Manifest, Script: script, JobID: id, Log: logpath,
		})
	}
	return result, errs
}

// active returns the id of a job which the scheduler still has, or "".
func (e *Engine) active(ctx context.Context, sched scheduler.Scheduler, ids []string) (string, error) {
	tracker, ok := sched.(scheduler.Tracker)
	if !ok {
		return "", nil
	}
	for _, id := range ids {
		active, err := tracker.Active(ctx, id)
		if err != nil {
			return "", err
		}
		if active {
			return id, nil
		}
	}
	return "", nil
}
