package recovery

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/vsdock/vsdock/pkg/layout"
	"github.com/vsdock/vsdock/pkg/manifest"
)

// ErrNoManifests is returned when a directory has no manifests to recover from.
var ErrNoManifests = errors.New("no manifests found")

// ItemOutcome classifies work items of a run by outputs found.
type ItemOutcome struct {
	// Items of all manifests, in order of chunks. Items sharing a complex name appear once.
	Items []manifest.WorkItem

	// Succeeded are complex names having outputs, sorted.
	Succeeded []string

	// Failed are items having no outputs, in order of Items.
	Failed []manifest.WorkItem

	// Unknown are complex names of outputs not found in manifests, sorted.
	Unknown []string
}

// OutputName derives the complex name from an output file name.
//
// Outputs may be named like "<prefix>_<complex name>_rank1.sdf";
// the name is taken after the last "<prefix>_" and before "_rank".
func OutputName(filename string, prefix string) string {
	base := path.Base(filename)
	base = strings.TrimSuffix(base, path.Ext(base))
	if prefix != "" {
		if i := strings.LastIndex(base, prefix+"_"); 0 <= i {
			base = base[i+len(prefix)+1:]
		}
	}
	name, _, _ := strings.Cut(base, "_rank")
	return name
}

// manifests lists manifest files in dir of fsys, by chunk index.
func manifests(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	type indexed struct {
		index int
		path  string
	}
	found := []indexed{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if i, ok := layout.ManifestIndex(e.Name()); ok {
			found = append(found, indexed{index: i, path: path.Join(dir, e.Name())})
		}
	}
	slices.SortFunc(found, func(a, b indexed) int { return a.index - b.index })

	ret := make([]string, len(found))
	for i, f := range found {
		ret[i] = f.path
	}
	return ret, nil
}

// outputs collects complex names of outputs in dir and its direct subdirectories.
//
// Subdirectories are where outputs go when they are separated per receptor.
func outputs(fsys fs.FS, dir string, ext string, prefix string) (map[string]struct{}, error) {
	names := map[string]struct{}{}
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := fs.ReadDir(fsys, dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		} else if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				if depth == 0 {
					if err := walk(path.Join(dir, e.Name()), depth+1); err != nil {
						return err
					}
				}
				continue
			}
			if !strings.EqualFold(path.Ext(e.Name()), ext) {
				continue
			}
			names[OutputName(e.Name(), prefix)] = struct{}{}
		}
		return nil
	}
	if err := walk(dir, 0); err != nil {
		return nil, err
	}
	return names, nil
}

// ClassifyItems finds which work items of a run have produced outputs.
//
// fsys should be rooted at the run root. Manifests are read from "csvs",
// outputs with the extension ext are searched in "molecules".
//
// It returns ErrNoManifests when the run has no manifests.
func ClassifyItems(fsys fs.FS, ext string, prefix string) (ItemOutcome, error) {
	paths, err := manifests(fsys, layout.ManifestsDir)
	if err != nil {
		return ItemOutcome{}, err
	}
	if len(paths) == 0 {
		return ItemOutcome{}, fmt.Errorf("%w: %s", ErrNoManifests, layout.ManifestsDir)
	}

	items := []manifest.WorkItem{}
	index := map[string]int{}
	for _, p := range paths {
		f, err := fsys.Open(p)
		if err != nil {
			return ItemOutcome{}, err
		}
		m, err := manifest.Read(f)
		f.Close()
		if err != nil {
			return ItemOutcome{}, fmt.Errorf("%s: %w", p, err)
		}
		for _, it := range m.Items {
			if i, ok := index[it.ComplexName]; ok {
				items[i] = it
				continue
			}
			index[it.ComplexName] = len(items)
			items = append(items, it)
		}
	}

	found, err := outputs(fsys, layout.MoleculesDir, ext, prefix)
	if err != nil {
		return ItemOutcome{}, err
	}

	outcome := ItemOutcome{
		Items:     items,
		Succeeded: []string{},
		Failed:    []manifest.WorkItem{},
		Unknown:   []string{},
	}
	for _, it := range items {
		if _, ok := found[it.ComplexName]; ok {
			outcome.Succeeded = append(outcome.Succeeded, it.ComplexName)
		} else {
			outcome.Failed = append(outcome.Failed, it)
		}
	}
	for name := range found {
		if _, ok := index[name]; !ok {
			outcome.Unknown = append(outcome.Unknown, name)
		}
	}
	slices.Sort(outcome.Succeeded)
	slices.Sort(outcome.Unknown)
	return outcome, nil
}

// JobOutcome classifies jobs of a layout by their logs.
type JobOutcome struct {
	// Scripts maps chunk indices to job script paths.
	Scripts map[int]string

	// JobIDs maps chunk indices to ids of jobs which have logs, in name order.
	JobIDs map[int][]string

	// Finished are indices of jobs having a log with the sentinel, sorted.
	Finished []int

	// Unfinished are indices of job scripts not finished, sorted.
	Unfinished []int
}

// Completed tells every job script has finished.
func (o JobOutcome) Completed() bool {
	return len(o.Unfinished) == 0
}

// ClassifyJobs finds which job scripts have completed.
//
// fsys should be rooted at the layout root: scripts are in "jobs", logs are in "jobs_out".
// A job has completed when any of its logs contains the sentinel.
func ClassifyJobs(fsys fs.FS, sentinel string) (JobOutcome, error) {
	outcome := JobOutcome{
		Scripts:    map[int]string{},
		JobIDs:     map[int][]string{},
		Finished:   []int{},
		Unfinished: []int{},
	}

	scripts, err := fs.ReadDir(fsys, layout.JobsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return outcome, err
	}
	for _, e := range scripts {
		if e.IsDir() {
			continue
		}
		if i, ok := layout.ScriptIndex(e.Name()); ok {
			outcome.Scripts[i] = path.Join(layout.JobsDir, e.Name())
		}
	}

	finished := map[int]struct{}{}
	logs, err := fs.ReadDir(fsys, layout.LogsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return outcome, err
	}
	for _, e := range logs {
		if e.IsDir() {
			continue
		}
		i, id, ok := layout.LogIndex(e.Name())
		if !ok {
			continue
		}
		if id != "" {
			outcome.JobIDs[i] = append(outcome.JobIDs[i], id)
		}
		if _, ok := finished[i]; ok {
			continue
		}
		done, err := logContains(fsys, path.Join(layout.LogsDir, e.Name()), sentinel)
		if err != nil {
			return outcome, err
		}
		if done {
			finished[i] = struct{}{}
		}
	}

	for i := range finished {
		outcome.Finished = append(outcome.Finished, i)
	}
	for i := range outcome.Scripts {
		if _, ok := finished[i]; !ok {
			outcome.Unfinished = append(outcome.Unfinished, i)
		}
	}
	slices.Sort(outcome.Finished)
	slices.Sort(outcome.Unfinished)
	return outcome, nil
}

// logContains searches the sentinel in a file, without reading it whole.
func logContains(fsys fs.FS, name string, sentinel string) (bool, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return false, err
	}
	defer f.Close()
	return streamContains(f, []byte(sentinel))
}

func streamContains(r io.Reader, needle []byte) (bool, error) {
	if len(needle) == 0 {
		return true, nil
	}
	buf := make([]byte, 0, 64*1024+len(needle))
	chunk := make([]byte, 64*1024)
	for {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if bytes.Contains(buf, needle) {
			return true, nil
		}
		// keep the tail, which may be the head of the needle.
		if keep := len(needle) - 1; len(buf) > keep {
			buf = append(buf[:0], buf[len(buf)-keep:]...)
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		} else if err != nil {
			return false, err
		}
	}
}
