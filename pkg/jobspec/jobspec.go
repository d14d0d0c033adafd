package jobspec

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalid is returned when a JobSpec cannot be rendered or has not been parsed.
var ErrInvalid = errors.New("invalid job spec")

// Mode is how a job is executed.
type Mode string

const (
	// submitted to SLURM with sbatch.
	ModeSlurm Mode = "slurm"

	// executed in place, one after another.
	ModeLocal Mode = "local"

	// executed as a Kubernetes Job.
	ModeKubernetes Mode = "kubernetes"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeSlurm, ModeLocal, ModeKubernetes:
		return true
	}
	return false
}

// ParseMode converts a name of a mode. Empty string means ModeSlurm.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeSlurm, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown scheduler %q (slurm, local or kubernetes)", ErrInvalid, s)
	}
	return m, nil
}

// Flags of the docking executable.
const (
	FlagManifest            = "--protein_ligand_csv"
	FlagSamples             = "--samples_per_complex"
	FlagOutputDir           = "--out_dir"
	FlagInferenceConfig     = "--config"
	FlagEmbedding           = "--esm_embeddings_path"
	FlagCores               = "-c"
	FlagRemoveHs            = "--remove_output_hs"
	FlagKeepLocalStructures = "--keep_local_structures"
	FlagKeepCache           = "--keep_cache"
	FlagSeparateDirs        = "--seperate_dirs"
)

// Container is how the docking executable is wrapped in a container.
//
// Empty Runtime means the command runs in the image as is (Kubernetes).
type Container struct {
	Runtime string `yaml:"runtime,omitempty"`
	Image   string `yaml:"image"`
	Bind    string `yaml:"bind,omitempty"`
	GPU     bool   `yaml:"gpu,omitempty"`
}

// Resources requested from a scheduler.
type Resources struct {
	Cores  int    `yaml:"cores"`
	Memory string `yaml:"memory,omitempty"`
	GPU    bool   `yaml:"gpu,omitempty"`
	Time   string `yaml:"time,omitempty"`
	Queue  string `yaml:"queue,omitempty"`
}

// Docking is the invocation of the docking executable for one chunk.
type Docking struct {
	Entrypoint      []string `yaml:"entrypoint"`
	Manifest        string   `yaml:"manifest"`
	OutputDir       string   `yaml:"outputDir"`
	Samples         int      `yaml:"samples"`
	InferenceConfig string   `yaml:"inferenceConfig,omitempty"`
	EmbeddingPath   string   `yaml:"embeddingPath,omitempty"`

	RemoveHs            bool `yaml:"removeHs,omitempty"`
	KeepLocalStructures bool `yaml:"keepLocalStructures,omitempty"`
	KeepCache           bool `yaml:"keepCache,omitempty"`
	SeparateDirs        bool `yaml:"separateDirs,omitempty"`

	// flags not known here, passed through as they are.
	Extra []string `yaml:"extra,omitempty"`
}

// JobSpec is one schedulable chunk.
type JobSpec struct {
	Index int    `yaml:"index"`
	Mode  Mode   `yaml:"mode"`
	Name  string `yaml:"name"`

	// Log is where the scheduler (or tee) writes the log.
	//
	// For ModeSlurm it may contain "%j". It is empty for ModeKubernetes.
	Log string `yaml:"log,omitempty"`

	Container Container `yaml:"container"`
	Resources Resources `yaml:"resources"`
	Docking   Docking   `yaml:"docking"`
}

// Validate checks the spec can be rendered.
func (s JobSpec) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalid, s.Mode)
	}
	if s.Index < 1 {
		return fmt.Errorf("%w: index should be positive: %d", ErrInvalid, s.Index)
	}
	if len(s.Docking.Entrypoint) == 0 {
		return fmt.Errorf("%w: docking entrypoint is empty", ErrInvalid)
	}
	if s.Docking.Manifest == "" || s.Docking.OutputDir == "" {
		return fmt.Errorf("%w: manifest and output directory are required", ErrInvalid)
	}
	if s.Docking.Samples < 1 {
		return fmt.Errorf("%w: samples per complex should be positive: %d", ErrInvalid, s.Docking.Samples)
	}
	if s.Resources.Cores < 1 {
		return fmt.Errorf("%w: cores should be positive: %d", ErrInvalid, s.Resources.Cores)
	}
	if s.Container.Runtime != "" && s.Container.Image == "" {
		return fmt.Errorf("%w: container image is required for %s", ErrInvalid, s.Container.Runtime)
	}
	if s.Mode != ModeKubernetes && s.Log == "" {
		return fmt.Errorf("%w: log path is required for %s", ErrInvalid, s.Mode)
	}
	return nil
}

// ForChunk derives a spec running another manifest with the same parameters.
func (s JobSpec) ForChunk(index int, manifest string, log string) JobSpec {
	c := s
	c.Index = index
	c.Log = log
	c.Docking.Manifest = manifest
	c.Docking.Entrypoint = slices.Clone(s.Docking.Entrypoint)
	c.Docking.Extra = slices.Clone(s.Docking.Extra)
	return c
}
