// Package configs loads the deployment configuration, vsdock.yaml.
//
// Every field has a default, so the file is optional.
package configs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/manifest"
	"github.com/vsdock/vsdock/pkg/utils"
	kos "github.com/vsdock/vsdock/pkg/utils/os"
	kpath "github.com/vsdock/vsdock/pkg/utils/path"
	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid is returned for a configuration with misconfigured values.
var ErrConfigInvalid = errors.New("invalid configuration")

// FileName is the name of the configuration file searched from the working directory upward.
const FileName = "vsdock.yaml"

// environment variables overriding the configuration file.
const (
	EnvScheduler      = "VSDOCK_SCHEDULER"
	EnvImage          = "VSDOCK_IMAGE"
	EnvEmbeddingCache = "VSDOCK_EMBEDDING_CACHE"
)

const DefaultImageURL = "https://drive.usercontent.google.com/download?id=1TsbuhNWA74AHfIbKV5uh2lmEnD99VlCD&confirm=t"

type Config struct {
	Run        RunConfig
	Container  ContainerConfig
	Docking    DockingConfig
	Embedding  EmbeddingConfig
	Scheduler  jobspec.Mode
	Kubernetes KubernetesConfig
}

type RunConfig struct {
	// Prefix of run directory names.
	Prefix string

	// Delimiter of manifests written.
	Delimiter rune

	// LigandExtensions are extensions of ligand files in a ligand directory.
	LigandExtensions []string

	// Sentinel is written into a log only when a chunk has completed.
	Sentinel string

	// OutputExtension is the extension of docked molecules.
	OutputExtension string

	// JobName is the name of jobs on the scheduler.
	JobName string
}

type ContainerConfig struct {
	Runtime  string
	Image    string
	ImageURL string
}

type DockingConfig struct {
	Entrypoint []string

	// Config is the inference configuration file passed to the docking executable.
	Config string
}

type EmbeddingConfig struct {
	CacheDir   string
	Entrypoint []string
}

type KubernetesConfig struct {
	Kubeconfig     string
	Namespace      string
	Image          string
	VolumeClaim    string
	MountPath      string
	GPUResource    string
	ServiceAccount string
}

// ConfigMarshall is the content of vsdock.yaml.
//
// To get a Config, use Seal.
type ConfigMarshall struct {
	Run        RunConfigMarshall        `yaml:"run,omitempty"`
	Container  ContainerConfigMarshall  `yaml:"container,omitempty"`
	Docking    DockingConfigMarshall    `yaml:"docking,omitempty"`
	Embedding  EmbeddingConfigMarshall  `yaml:"embedding,omitempty"`
	Scheduler  SchedulerConfigMarshall  `yaml:"scheduler,omitempty"`
	Kubernetes KubernetesConfigMarshall `yaml:"kubernetes,omitempty"`
}

type RunConfigMarshall struct {
	Prefix           string   `yaml:"prefix,omitempty"`
	Delimiter        string   `yaml:"delimiter,omitempty"`
	LigandExtensions []string `yaml:"ligandExtensions,omitempty"`
	Sentinel         string   `yaml:"sentinel,omitempty"`
	OutputExtension  string   `yaml:"outputExtension,omitempty"`
	JobName          string   `yaml:"jobName,omitempty"`
}

type ContainerConfigMarshall struct {
	Runtime  string `yaml:"runtime,omitempty"`
	Image    string `yaml:"image,omitempty"`
	ImageURL string `yaml:"imageURL,omitempty"`
}

type DockingConfigMarshall struct {
	Entrypoint string `yaml:"entrypoint,omitempty"`
	Config     string `yaml:"config,omitempty"`
}

type EmbeddingConfigMarshall struct {
	CacheDir   string `yaml:"cacheDir,omitempty"`
	Entrypoint string `yaml:"entrypoint,omitempty"`
}

type SchedulerConfigMarshall struct {
	Backend string `yaml:"backend,omitempty"`
}

type KubernetesConfigMarshall struct {
	Kubeconfig     string `yaml:"kubeconfig,omitempty"`
	Namespace      string `yaml:"namespace,omitempty"`
	Image          string `yaml:"image,omitempty"`
	VolumeClaim    string `yaml:"volumeClaim,omitempty"`
	MountPath      string `yaml:"mountPath,omitempty"`
	GPUResource    string `yaml:"gpuResource,omitempty"`
	ServiceAccount string `yaml:"serviceAccount,omitempty"`
}

func or(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func words(path string, value string) ([]string, error) {
	w, err := shellwords.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, path, err)
	}
	if len(w) == 0 {
		return nil, fmt.Errorf("%w: %s: empty command", ErrConfigInvalid, path)
	}
	return w, nil
}

// Seal fills defaults in, validates values and returns the Config.
//
// Errors are ErrConfigInvalid naming the key at fault.
func (m ConfigMarshall) Seal() (*Config, error) {
	delimiter, err := manifest.ParseDelimiter(or(m.Run.Delimiter, ";"))
	if err != nil {
		return nil, fmt.Errorf("%w: run.delimiter: %w", ErrConfigInvalid, err)
	}

	exts := m.Run.LigandExtensions
	if len(exts) == 0 {
		exts = []string{".sdf", ".mol2"}
	}
	ligandExts := make([]string, len(exts))
	for i, e := range exts {
		if e == "" {
			return nil, fmt.Errorf("%w: run.ligandExtensions[%d]: empty", ErrConfigInvalid, i)
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		ligandExts[i] = strings.ToLower(e)
	}

	outExt := or(m.Run.OutputExtension, ".sdf")
	if !strings.HasPrefix(outExt, ".") {
		outExt = "." + outExt
	}

	prefix := or(m.Run.Prefix, "VS_DD")
	if strings.ContainsRune(prefix, os.PathSeparator) {
		return nil, fmt.Errorf("%w: run.prefix: should not contain path separators: %s", ErrConfigInvalid, prefix)
	}

	docking, err := words("docking.entrypoint", or(m.Docking.Entrypoint, "python3 -u inference.py"))
	if err != nil {
		return nil, err
	}
	embedding, err := words("embedding.entrypoint", or(m.Embedding.Entrypoint, "python -u proteinEmbedding.py"))
	if err != nil {
		return nil, err
	}

	kubeconfig := m.Kubernetes.Kubeconfig
	if kubeconfig != "" {
		if kubeconfig, err = kpath.Resolve(kubeconfig); err != nil {
			return nil, fmt.Errorf("%w: kubernetes.kubeconfig: %w", ErrConfigInvalid, err)
		}
	}

	backend, err := jobspec.ParseMode(m.Scheduler.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduler.backend: %w", ErrConfigInvalid, err)
	}

	conf := &Config{
		Run: RunConfig{
			Prefix:           prefix,
			Delimiter:        delimiter,
			LigandExtensions: ligandExts,
			Sentinel:         or(m.Run.Sentinel, "Calculations finished after "),
			OutputExtension:  outExt,
			JobName:          or(m.Run.JobName, "DiffDockHPC"),
		},
		Container: ContainerConfig{
			Runtime:  or(m.Container.Runtime, "singularity"),
			Image:    or(m.Container.Image, "singularity/DiffDockHPC.sif"),
			ImageURL: or(m.Container.ImageURL, DefaultImageURL),
		},
		Docking: DockingConfig{
			Entrypoint: docking,
			Config:     or(m.Docking.Config, "default_inference_args.yaml"),
		},
		Embedding: EmbeddingConfig{
			CacheDir:   or(m.Embedding.CacheDir, "data/protein_embeddings"),
			Entrypoint: embedding,
		},
		Scheduler: backend,
		Kubernetes: KubernetesConfig{
			Kubeconfig:     kubeconfig,
			Namespace:      or(m.Kubernetes.Namespace, "default"),
			Image:          m.Kubernetes.Image,
			VolumeClaim:    m.Kubernetes.VolumeClaim,
			MountPath:      m.Kubernetes.MountPath,
			GPUResource:    or(m.Kubernetes.GPUResource, "nvidia.com/gpu"),
			ServiceAccount: m.Kubernetes.ServiceAccount,
		},
	}

	if conf.Scheduler == jobspec.ModeKubernetes {
		k := conf.Kubernetes
		for key, value := range map[string]string{
			"kubernetes.image":       k.Image,
			"kubernetes.volumeClaim": k.VolumeClaim,
			"kubernetes.mountPath":   k.MountPath,
		} {
			if value == "" {
				return nil, fmt.Errorf("%w: %s: required for the kubernetes scheduler", ErrConfigInvalid, key)
			}
		}
	}

	return conf, nil
}

// Unmarshal parses content of vsdock.yaml. It does not apply environment variables.
func Unmarshal(content []byte) (*ConfigMarshall, error) {
	out := ConfigMarshall{}
	if err := yaml.Unmarshal(content, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return &out, nil
}

// WithEnv overrides values by environment variables.
func (m ConfigMarshall) WithEnv() ConfigMarshall {
	m.Scheduler.Backend = kos.GetEnvOr(EnvScheduler, m.Scheduler.Backend)
	m.Container.Image = kos.GetEnvOr(EnvImage, m.Container.Image)
	m.Embedding.CacheDir = kos.GetEnvOr(EnvEmbeddingCache, m.Embedding.CacheDir)
	return m
}

// Find searches vsdock.yaml from dir upward. It returns "" when not found.
func Find(dir string) string {
	found, err := utils.SearchUpward(dir, FileName)
	if err != nil {
		return ""
	}
	return found
}

// Load reads the configuration file at path, applies environment variables and seals it.
//
// When path is empty, it is searched from the working directory upward.
// If nothing is found, defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		path = Find(wd)
	}

	m := &ConfigMarshall{}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if m, err = Unmarshal(content); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return m.WithEnv().Seal()
}
