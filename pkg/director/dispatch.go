package director

import (
	"context"
	"fmt"
	"log"

	vio "github.com/vsdock/vsdock/pkg/io"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/layout"
	"github.com/vsdock/vsdock/pkg/manifest"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"github.com/vsdock/vsdock/pkg/utils/logger"
)

// Submitted is a chunk handed to a scheduler.
type Submitted struct {
	Index    int
	Manifest string
	Script   string

	// JobID is the id assigned by the scheduler. Empty when the chunk has run in place.
	JobID string

	// Log is where the log of the chunk is (or will be) written.
	Log string
}

// LogOf returns where the log of the chunk submitted as jobID is placed.
func LogOf(l layout.Layout, mode jobspec.Mode, index int, jobID string) string {
	if mode == jobspec.ModeLocal {
		return l.LogPath(index, "")
	}
	return l.LogPath(index, jobID)
}

// logTarget is the log path written into the spec of a chunk.
func logTarget(l layout.Layout, mode jobspec.Mode, index int) string {
	switch mode {
	case jobspec.ModeSlurm:
		return l.SlurmLogPattern(index)
	case jobspec.ModeLocal:
		return l.LogPath(index, "")
	default:
		return ""
	}
}

// Dispatch writes manifests, job specs and scripts of chunks into l, and launches them in order.
//
// Chunk indices are 1-origin, in the order of chunks.
// A log placeholder is created for each launched chunk.
//
// It stops at the first chunk failing; chunks launched so far are returned with the error.
func Dispatch(
	ctx context.Context,
	sched scheduler.Scheduler,
	l layout.Layout,
	base jobspec.JobSpec,
	format manifest.Format,
	chunks [][]manifest.WorkItem,
	lg *log.Logger,
) ([]Submitted, error) {
	lg = logger.Or(lg)
	mode := sched.Mode()
	base.Mode = mode

	submitted := make([]Submitted, 0, len(chunks))
	for n, chunk := range chunks {
		index := n + 1
		mpath := l.ManifestPath(index)
		if err := manifest.WriteFile(mpath, format, chunk); err != nil {
			return submitted, fmt.Errorf("chunk #%d: %w", index, err)
		}

		spec := base.ForChunk(index, mpath, logTarget(l, mode, index))
		if err := jobspec.Save(l.SpecPath(index), spec); err != nil {
			return submitted, fmt.Errorf("chunk #%d: %w", index, err)
		}
		script := l.ScriptPath(index)
		if err := jobspec.WriteScript(script, spec); err != nil {
			return submitted, fmt.Errorf("chunk #%d: %w", index, err)
		}

		if mode == jobspec.ModeLocal {
			lg.Printf("running job #%d/%d (%d items)", index, len(chunks), len(chunk))
		}
		id, err := sched.Launch(ctx, scheduler.Job{Index: index, Script: script, Spec: spec})
		if err != nil {
			return submitted, err
		}

		logpath := LogOf(l, mode, index, id)
		if err := vio.Touch(logpath); err != nil {
			return submitted, fmt.Errorf("chunk #%d: %w", index, err)
		}
		submitted = append(submitted, Submitted{
			Index: index, Manifest: mpath, Script: script, JobID: id, Log: logpath,
		})
		if id != "" {
			lg.Printf("job #%d is submitted as %s (%d items)", index, id, len(chunk))
		}
	}
	return submitted, nil
}
