// Package director runs one submission pass: it resolves work items, prepares the run
// directory, makes sure the receptor embedding exists, partitions the work and launches
// one job per chunk.
package director

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/vsdock/vsdock/pkg/configs"
	"github.com/vsdock/vsdock/pkg/embedding"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/layout"
	"github.com/vsdock/vsdock/pkg/manifest"
	"github.com/vsdock/vsdock/pkg/partition"
	"github.com/vsdock/vsdock/pkg/prompt"
	"github.com/vsdock/vsdock/pkg/scheduler"
	"github.com/vsdock/vsdock/pkg/utils/logger"
)

// ErrInvalidInput is returned when inputs of a run are missing or inconsistent.
var ErrInvalidInput = errors.New("invalid input")

const (
	DefaultMemory = "4G"

	// default cores per job
	DefaultCoresGPU = 1
	DefaultCoresCPU = 4
)

// Request is what a submission pass docks, and how.
//
// Either Manifest (bulk mode) or Receptor and Ligands (single-receptor mode) should be given.
// When Manifest is given, Receptor and Ligands are ignored.
type Request struct {
	// Output is the requested run path.
	// The run root is placed beside it, named after it and the date.
	Output string

	Receptor string
	Ligands  string
	Manifest string

	// Jobs is the requested number of chunks.
	Jobs int

	GPU bool

	// Cores per job. 0 means the default for GPU or CPU jobs.
	Cores  int
	Memory string
	Time   string
	Queue  string

	Samples             int
	RemoveHs            bool
	KeepLocalStructures bool
	KeepCache           bool

	// InferenceConfig overrides the configured inference configuration file.
	InferenceConfig string
}

// Result tells what has been submitted.
type Result struct {
	Layout layout.Layout

	// Requested is the number of chunks requested.
	Requested int

	// Reduced is true when there were fewer items than requested chunks.
	Reduced bool

	Items int
	Jobs  []Submitted
}

// Preflight checks something needed by every job before any work begins.
type Preflight func(ctx context.Context) error

// Director performs submission passes.
type Director struct {
	Config    *configs.Config
	Scheduler scheduler.Scheduler

	Embeddings *embedding.Cache
	Embedder   embedding.Embedder

	// Confirmer decides whether an existing run directory is removed.
	Confirmer prompt.Confirmer

	// Preflight checks the container image. Optional.
	Preflight Preflight

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *log.Logger
}

type resolved struct {
	items    []manifest.WorkItem
	format   manifest.Format
	receptor string // single-receptor mode only
	bulk     bool
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

func isFile(path string) bool {
	s, err := os.Stat(path)
	return err == nil && s.Mode().IsRegular()
}

func isDir(path string) bool {
	s, err := os.Stat(path)
	return err == nil && s.IsDir()
}

// Ligands lists ligand files directly in dir, sorted by name.
//
// Extensions are compared case-insensitively.
func Ligands(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	found := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !slices.Contains(extensions, ext) {
			continue
		}
		found = append(found, filepath.Join(dir, e.Name()))
	}
	slices.Sort(found)
	return found, nil
}

func (d *Director) resolve(req Request, root string) (resolved, error) {
	lg := logger.Or(d.Logger)

	if req.Manifest != "" {
		if req.Receptor != "" || req.Ligands != "" {
			lg.Printf("a manifest is given; receptor and ligand directory are ignored")
		}
		if !isFile(req.Manifest) {
			return resolved{}, invalid("manifest %s does not exist or is not a file", req.Manifest)
		}
		m, err := manifest.ReadFile(req.Manifest)
		if err != nil {
			return resolved{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if len(m.Items) == 0 {
			return resolved{}, invalid("manifest %s has no work items", req.Manifest)
		}
		return resolved{items: m.Items, format: m.Format, bulk: true}, nil
	}

	if req.Receptor == "" || !isFile(req.Receptor) {
		return resolved{}, invalid("receptor %q does not exist or is not a file", req.Receptor)
	}
	if req.Ligands == "" || !isDir(req.Ligands) {
		return resolved{}, invalid("ligand directory %q does not exist or is not a directory", req.Ligands)
	}
	ligands, err := Ligands(req.Ligands, d.Config.Run.LigandExtensions)
	if err != nil {
		return resolved{}, err
	}
	if len(ligands) == 0 {
		return resolved{}, invalid(
			"no ligands (%s) are found in %s",
			strings.Join(d.Config.Run.LigandExtensions, ", "), req.Ligands,
		)
	}

	// items refer the receptor copied into the run.
	receptor := filepath.Join(root, filepath.Base(req.Receptor))
	items := make([]manifest.WorkItem, len(ligands))
	for i, l := range ligands {
		items[i] = manifest.NewWorkItem(receptor, l)
	}
	return resolved{
		items:    items,
		format:   manifest.Format{Delimiter: d.Config.Run.Delimiter, Columns: manifest.WithComplexName},
		receptor: receptor,
	}, nil
}

// Base is the JobSpec shared by every chunk of a run.
func (d *Director) Base(req Request, l layout.Layout) jobspec.JobSpec {
	conf := d.Config
	mode := d.Scheduler.Mode()

	cores := req.Cores
	if cores == 0 {
		cores = DefaultCoresCPU
		if req.GPU {
			cores = DefaultCoresGPU
		}
	}
	memory := req.Memory
	if memory == "" {
		memory = DefaultMemory
	}
	inference := req.InferenceConfig
	if inference == "" {
		inference = conf.Docking.Config
	}

	container := jobspec.Container{
		Runtime: conf.Container.Runtime,
		Image:   conf.Container.Image,
		Bind:    "$PWD",
		GPU:     req.GPU,
	}
	if mode == jobspec.ModeKubernetes {
		container = jobspec.Container{Image: conf.Kubernetes.Image}
	}

	return jobspec.JobSpec{
		Mode:      mode,
		Name:      conf.Run.JobName,
		Container: container,
		Resources: jobspec.Resources{
			Cores:  cores,
			Memory: memory,
			GPU:    req.GPU,
			Time:   req.Time,
			Queue:  req.Queue,
		},
		Docking: jobspec.Docking{
			Entrypoint:          slices.Clone(conf.Docking.Entrypoint),
			OutputDir:           l.Molecules(),
			Samples:             req.Samples,
			InferenceConfig:     inference,
			RemoveHs:            req.RemoveHs,
			KeepLocalStructures: req.KeepLocalStructures,
			KeepCache:           req.KeepCache,
		},
	}
}

// Submit performs one submission pass.
//
// Nothing is written when inputs are invalid.
// When the run directory exists and the Confirmer declines to remove it,
// Submit returns layout.ErrAborted.
//
// With the local scheduler, the number of chunks is always 1 and Submit blocks until the chunk finishes.
// Other schedulers only accept jobs; Submit does not wait for them.
func (d *Director) Submit(ctx context.Context, req Request) (Result, error) {
	lg := logger.Or(d.Logger)
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	mode := d.Scheduler.Mode()

	if req.Output == "" {
		return Result{}, invalid("output path is required")
	}
	if req.Samples == 0 {
		req.Samples = 1
	}
	if req.Samples < 0 {
		return Result{}, invalid("samples per complex should be positive: %d", req.Samples)
	}
	if req.Cores < 0 {
		return Result{}, invalid("cores should be positive: %d", req.Cores)
	}
	if mode == jobspec.ModeLocal && req.Jobs != 1 {
		lg.Printf("running without a scheduler: the number of jobs is 1 (requested: %d)", req.Jobs)
		req.Jobs = 1
	}

	l := layout.Plan(req.Output, d.Config.Run.Prefix, now())
	in, err := d.resolve(req, l.Root)
	if err != nil {
		return Result{}, err
	}

	inference := req.InferenceConfig
	if inference == "" {
		inference = d.Config.Docking.Config
	}
	if !isFile(inference) {
		return Result{}, invalid("inference config %s does not exist", inference)
	}

	parts, err := partition.Split(in.items, req.Jobs)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	base := d.Base(req, l)
	if err := base.ForChunk(1, l.ManifestPath(1), logTarget(l, mode, 1)).Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !in.bulk && (d.Embeddings == nil || d.Embedder == nil) {
		return Result{}, invalid("no embedder is configured for single-receptor mode")
	}

	if d.Preflight != nil {
		if err := d.Preflight(ctx); err != nil {
			return Result{}, err
		}
	}

	if err := layout.Prepare(ctx, l, d.Confirmer); err != nil {
		return Result{}, err
	}
	result := Result{Layout: l, Requested: parts.Requested, Reduced: parts.Reduced, Items: len(in.items)}

	if in.bulk {
		receptors := manifest.Manifest{Items: in.items}.Receptors()
		if len(receptors) > 1 {
			for _, r := range receptors {
				dir := filepath.Join(l.Molecules(), manifest.ComplexNameOf(r))
				if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
					return result, err
				}
			}
			base.Docking.SeparateDirs = true
			lg.Printf("%d receptors are found: outputs are separated per receptor", len(receptors))
		}
	} else {
		if err := copyFile(req.Receptor, in.receptor); err != nil {
			return result, err
		}
		emb, err := d.Embeddings.Ensure(ctx, in.receptor, d.Embedder)
		if err != nil {
			return result, err
		}
		base.Docking.EmbeddingPath = emb
	}

	if note := parts.Notice(); note != "" {
		lg.Print(note)
	}
	if mode != jobspec.ModeLocal {
		lg.Printf("launching %d jobs for %d items", parts.Len(), len(in.items))
	}

	jobs, err := Dispatch(ctx, d.Scheduler, l, base, in.format, parts.Chunks, lg)
	result.Jobs = jobs
	if err != nil {
		return result, err
	}

	if mode == jobspec.ModeLocal {
		lg.Printf("finished %d jobs in %s", len(jobs), l.Root)
	} else {
		lg.Printf("submitted %d jobs in %s", len(jobs), l.Root)
	}
	return result, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0644))
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
