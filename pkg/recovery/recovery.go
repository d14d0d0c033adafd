// Package recovery inspects a finished run and resubmits what has not completed.
//
// Nothing about a run is stored besides its directory: every procedure here
// reconstructs the state of the run from its files.
package recovery

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"

	"github.com/vsdock/vsdock/pkg/configs"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/layout"
	"github.com/vsdock/vsdock/pkg/prompt"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"github.com/vsdock/vsdock/pkg/utils/logger"
)

// ErrNotLaunched is returned when the user has not given a valid number of jobs to relaunch with.
var ErrNotLaunched = errors.New("not launching any jobs")

// Schedulers provides the scheduler for jobs rendered in a mode.
type Schedulers func(mode jobspec.Mode) (scheduler.Scheduler, error)

// Engine runs recovery procedures.
type Engine struct {
	Config     *configs.Config
	Schedulers Schedulers

	// Confirmer decides whether an existing redo directory is removed.
	Confirmer prompt.Confirmer

	// Asker is asked the number of jobs when it is not given.
	Asker prompt.Asker

	Logger *log.Logger
}

func (e *Engine) logger() *log.Logger {
	return logger.Or(e.Logger)
}

// OpenRun refers the run at root, checking it looks like a run.
func OpenRun(root string) (layout.Layout, error) {
	s, err := os.Stat(root)
	if err != nil {
		return layout.Layout{}, err
	}
	if !s.IsDir() {
		return layout.Layout{}, fmt.Errorf("%s is not a directory", root)
	}
	return layout.Open(root), nil
}

// representative returns the JobSpec of the job with the smallest index in l.
func representative(l layout.Layout, scripts map[int]string) (jobspec.JobSpec, error) {
	if len(scripts) == 0 {
		return jobspec.JobSpec{}, fmt.Errorf("%w: no job scripts in %s", jobspec.ErrInvalid, l.Jobs())
	}
	indices := make([]int, 0, len(scripts))
	for i := range scripts {
		indices = append(indices, i)
	}
	first := slices.Min(indices)
	return jobspec.LoadOrParse(l.SpecPath(first), l.ScriptPath(first))
}

// Receptor finds the receptor copied into the run root: the first ".pdb" file by name.
//
// It returns "" when there is none, as in runs from a manifest.
func Receptor(root string) (string, error) {
	found, err := filepath.Glob(filepath.Join(root, "*.pdb"))
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", nil
	}
	slices.Sort(found)
	return found[0], nil
}
