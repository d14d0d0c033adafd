package layout

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/vsdock/vsdock/pkg/prompt"
)

// ErrAborted is returned when the user declines to overwrite an existing run.
var ErrAborted = errors.New("aborted")

const (
	MoleculesDir = "molecules"
	ManifestsDir = "csvs"
	JobsDir      = "jobs"
	LogsDir      = "jobs_out"
	RedoDir      = "redo"

	jobPrefix     = "job"
	redoJobPrefix = "redo_job"
)

// Layout locates every artifact of one submission pass.
//
// A Layout is a value; nothing is created until Materialize.
type Layout struct {
	Root string

	redo bool
}

// Plan computes the layout of a new run.
//
// The root is placed beside the requested path, named
// "<prefix>_<name>_<year>_<month>_<day>" (month and day are not zero-padded).
// When prefix is empty, it is "<name>_<year>_<month>_<day>".
func Plan(requested string, prefix string, now time.Time) Layout {
	requested = filepath.Clean(requested)
	dir, name := filepath.Split(requested)

	base := fmt.Sprintf("%s_%d_%d_%d", name, now.Year(), int(now.Month()), now.Day())
	if prefix != "" {
		base = prefix + "_" + base
	}
	return Layout{Root: filepath.Join(dir, base)}
}

// Open refers an existing run at root.
func Open(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

// Redo returns the layout of a redo pass nested in this run.
func (l Layout) Redo() Layout {
	return Layout{Root: filepath.Join(l.Root, RedoDir), redo: true}
}

// IsRedo tells this is a layout made by Redo.
func (l Layout) IsRedo() bool {
	return l.redo
}

func (l Layout) prefix() string {
	if l.redo {
		return redoJobPrefix
	}
	return jobPrefix
}

func (l Layout) Molecules() string {
	return filepath.Join(l.Root, MoleculesDir)
}

func (l Layout) Manifests() string {
	return filepath.Join(l.Root, ManifestsDir)
}

func (l Layout) Jobs() string {
	return filepath.Join(l.Root, JobsDir)
}

func (l Layout) Logs() string {
	return filepath.Join(l.Root, LogsDir)
}

// Dirs lists directories which Materialize creates.
//
// Redo layouts have no molecules directory; their outputs go to the original run.
func (l Layout) Dirs() []string {
	dirs := []string{l.Manifests(), l.Logs(), l.Jobs()}
	if !l.redo {
		dirs = append([]string{l.Molecules()}, dirs...)
	}
	return dirs
}

// ManifestPath is the path of the manifest of the i-th chunk (1-origin).
func (l Layout) ManifestPath(i int) string {
	return filepath.Join(l.Manifests(), fmt.Sprintf("job_csv_%d.csv", i))
}

// ScriptPath is the path of the job script of the i-th chunk.
func (l Layout) ScriptPath(i int) string {
	return filepath.Join(l.Jobs(), fmt.Sprintf("%s_%d.sh", l.prefix(), i))
}

// SpecPath is the path of the persisted JobSpec of the i-th chunk.
func (l Layout) SpecPath(i int) string {
	return filepath.Join(l.Jobs(), fmt.Sprintf("%s_%d.yaml", l.prefix(), i))
}

// LogPath is the path of the log of the i-th chunk submitted as jobID.
//
// An empty jobID means the chunk has run without a scheduler.
func (l Layout) LogPath(i int, jobID string) string {
	if jobID == "" {
		return filepath.Join(l.Logs(), fmt.Sprintf("%s_%d.out", l.prefix(), i))
	}
	return filepath.Join(l.Logs(), fmt.Sprintf("%s_%d_%s.out", l.prefix(), i, jobID))
}

// SlurmLogPattern is the log path of the i-th chunk with SLURM's job id placeholder.
func (l Layout) SlurmLogPattern(i int) string {
	return l.LogPath(i, "%j")
}

// Stat is an existence check, like os.Stat.
type Stat func(name string) (fs.FileInfo, error)

// Collides tells whether the root already exists.
func (l Layout) Collides(stat Stat) (bool, error) {
	if stat == nil {
		stat = os.Stat
	}
	_, err := stat(l.Root)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Materialize creates the root and its subdirectories.
func (l Layout) Materialize() error {
	for _, d := range l.Dirs() {
		if err := os.MkdirAll(d, os.FileMode(0755)); err != nil {
			return err
		}
	}
	return nil
}

// Prepare materializes l.
//
// When the root exists already, confirm decides whether it is removed first.
// If it is declined, Prepare returns ErrAborted and changes nothing.
func Prepare(ctx context.Context, l Layout, confirm prompt.Confirmer) error {
	exists, err := l.Collides(os.Stat)
	if err != nil {
		return err
	}
	if exists {
		ok, err := confirm.Confirm(
			ctx,
			fmt.Sprintf("Directory %s already exists. Remove it and continue?", l.Root),
		)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s already exists", ErrAborted, l.Root)
		}
		if err := os.RemoveAll(l.Root); err != nil {
			return err
		}
	}
	return l.Materialize()
}

var (
	reScript   = regexp.MustCompile(`^(?:redo_)?job_(\d+)\.sh$`)
	reLog      = regexp.MustCompile(`^(?:redo_)?job_(\d+)(?:_(.+))?\.out$`)
	reManifest = regexp.MustCompile(`^job_csv_(\d+)\.csv$`)
)

// ScriptIndex extracts the chunk index from a job script name, like "job_3.sh" or "redo_job_3.sh".
func ScriptIndex(name string) (int, bool) {
	m := reScript.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	i, err := strconv.Atoi(m[1])
	return i, err == nil
}

// LogIndex extracts the chunk index and the job id from a log name,
// like "job_3_12345.out", "job_1.out" or "redo_job_2_678.out".
func LogIndex(name string) (index int, jobID string, ok bool) {
	m := reLog.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, "", false
	}
	i, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return i, m[2], true
}

// ManifestIndex extracts the chunk index from a manifest name like "job_csv_3.csv".
func ManifestIndex(name string) (int, bool) {
	m := reManifest.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	i, err := strconv.Atoi(m[1])
	return i, err == nil
}
