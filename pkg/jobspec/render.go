package jobspec

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
)

const Shebang = "#!/usr/bin/env bash"

// "$PWD" and alike are left for the shell to expand.
var reEnvRef = regexp.MustCompile(`^\$\{?[A-Za-z_][A-Za-z0-9_]*\}?$`)

func quote(word string) string {
	if reEnvRef.MatchString(word) {
		return word
	}
	return shellescape.Quote(word)
}

func quoteCommand(words []string) string {
	q := make([]string, len(words))
	for i, w := range words {
		q[i] = quote(w)
	}
	return strings.Join(q, " ")
}

// DockingArgs returns the arguments of the docking executable, entrypoint first.
func (s JobSpec) DockingArgs() []string {
	d := s.Docking
	args := append([]string{}, d.Entrypoint...)
	args = append(
		args,
		FlagManifest, d.Manifest,
		FlagSamples, strconv.Itoa(d.Samples),
		FlagOutputDir, d.OutputDir,
	)
	if d.InferenceConfig != "" {
		args = append(args, FlagInferenceConfig, d.InferenceConfig)
	}
	if d.EmbeddingPath != "" {
		args = append(args, FlagEmbedding, d.EmbeddingPath)
	}
	args = append(args, FlagCores, strconv.Itoa(s.Resources.Cores))
	if d.RemoveHs {
		args = append(args, FlagRemoveHs)
	}
	if d.KeepLocalStructures {
		args = append(args, FlagKeepLocalStructures)
	}
	if d.KeepCache {
		args = append(args, FlagKeepCache)
	}
	if d.SeparateDirs {
		args = append(args, FlagSeparateDirs)
	}
	return append(args, d.Extra...)
}

// Command returns the words of the docking command, wrapped with the container runtime if any.
func (s JobSpec) Command() []string {
	c := s.Container
	if c.Runtime == "" {
		return s.DockingArgs()
	}
	words := []string{c.Runtime, "run"}
	if c.GPU {
		words = append(words, "--nv")
	}
	if c.Bind != "" {
		words = append(words, "--bind", c.Bind)
	}
	words = append(words, c.Image)
	return append(words, s.DockingArgs()...)
}

// SlurmArgs returns the words of the sbatch invocation.
func (s JobSpec) SlurmArgs() []string {
	r := s.Resources
	words := []string{"sbatch", "--wrap=" + quoteCommand(s.Command())}
	if r.Memory != "" {
		words = append(words, "--mem", r.Memory)
	}
	words = append(words, "--output="+s.Log)
	if r.GPU {
		words = append(words, "--gres=gpu:1")
	}
	if s.Name != "" {
		words = append(words, "--job-name="+s.Name)
	}
	words = append(words, "-c", strconv.Itoa(r.Cores))
	if r.Time != "" {
		words = append(words, "--time", r.Time)
	}
	if r.Queue != "" {
		words = append(words, "-p", r.Queue)
	}
	return words
}

// Render returns the command line of the job for its mode.
//
// - ModeSlurm: sbatch wrapping the command, logging to Log.
//
// - ModeLocal: the command, its output copied to Log with tee.
//
// - ModeKubernetes: the command as is. Logs are kept by the cluster.
func (s JobSpec) Render() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	switch s.Mode {
	case ModeSlurm:
		return quoteCommand(s.SlurmArgs()), nil
	case ModeLocal:
		return quoteCommand(s.Command()) + " 2>&1 | tee " + quote(s.Log), nil
	default:
		return quoteCommand(s.Command()), nil
	}
}

// Script returns the content of an executable job script.
func (s JobSpec) Script() ([]byte, error) {
	line, err := s.Render()
	if err != nil {
		return nil, err
	}
	return []byte(Shebang + "\nset -o pipefail\n" + line + "\n"), nil
}
