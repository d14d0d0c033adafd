package jobspec

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
)

var reTee = regexp.MustCompile(`^(.*?)\s*2>&1\s*\|\s*tee\s+(.+)$`)

// ParseScript reconstructs a JobSpec from the text of a job script.
//
// It understands scripts rendered by Script and by earlier tools which wrote
// `sbatch --wrap="..."` lines by hand. Index is left zero; the caller knows it from the file name.
func ParseScript(text string) (JobSpec, error) {
	line := ""
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") || strings.HasPrefix(l, "set ") {
			continue
		}
		line = l
		break
	}
	if line == "" {
		return JobSpec{}, fmt.Errorf("%w: no command in the script", ErrInvalid)
	}

	spec := JobSpec{}
	if m := reTee.FindStringSubmatch(line); m != nil {
		logWords, err := shellwords.Parse(m[2])
		if err != nil || len(logWords) != 1 {
			return JobSpec{}, fmt.Errorf("%w: cannot read log path: %s", ErrInvalid, m[2])
		}
		spec.Mode = ModeLocal
		spec.Log = logWords[0]
		line = m[1]
	}

	words, err := shellwords.Parse(line)
	if err != nil {
		return JobSpec{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(words) == 0 {
		return JobSpec{}, fmt.Errorf("%w: no command in the script", ErrInvalid)
	}

	if filepath.Base(words[0]) == "sbatch" {
		spec.Mode = ModeSlurm
		inner, err := parseSbatch(&spec, words[1:])
		if err != nil {
			return JobSpec{}, err
		}
		words, err = shellwords.Parse(inner)
		if err != nil {
			return JobSpec{}, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	} else if spec.Mode == "" {
		spec.Mode = ModeKubernetes
	}

	if err := parseCommand(&spec, words); err != nil {
		return JobSpec{}, err
	}
	return spec, nil
}

// parseSbatch reads sbatch options into spec and returns the wrapped command.
func parseSbatch(spec *JobSpec, words []string) (string, error) {
	inner := ""
	for i := 0; i < len(words); i++ {
		w := words[i]
		name, value, hasValue := strings.Cut(w, "=")
		takeValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(words) {
				return "", fmt.Errorf("%w: %s needs a value", ErrInvalid, name)
			}
			i += 1
			return words[i], nil
		}

		var err error
		switch name {
		case "--wrap":
			inner, err = takeValue()
		case "--mem":
			spec.Resources.Memory, err = takeValue()
		case "--output", "-o":
			spec.Log, err = takeValue()
		case "--job-name", "-J":
			spec.Name, err = takeValue()
		case "--time", "-t":
			spec.Resources.Time, err = takeValue()
		case "--partition", "-p":
			spec.Resources.Queue, err = takeValue()
		case "--gres":
			var v string
			v, err = takeValue()
			if strings.HasPrefix(v, "gpu") {
				spec.Resources.GPU = true
			}
		case "-c", "--cpus-per-task":
			var v string
			if v, err = takeValue(); err == nil {
				spec.Resources.Cores, err = strconv.Atoi(v)
			}
		default:
			return "", fmt.Errorf("%w: unknown sbatch option %s", ErrInvalid, w)
		}
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalid, name, err)
		}
	}
	if inner == "" {
		return "", fmt.Errorf("%w: sbatch without --wrap", ErrInvalid)
	}
	return inner, nil
}

// parseCommand reads the (containerized) docking command into spec.
func parseCommand(spec *JobSpec, words []string) error {
	if len(words) > 1 && words[1] == "run" {
		spec.Container.Runtime = words[0]
		rest := words[2:]
		for len(rest) > 0 && strings.HasPrefix(rest[0], "-") {
			switch rest[0] {
			case "--nv":
				spec.Container.GPU = true
				rest = rest[1:]
			case "--bind", "-B":
				if len(rest) < 2 {
					return fmt.Errorf("%w: --bind needs a value", ErrInvalid)
				}
				spec.Container.Bind = rest[1]
				rest = rest[2:]
			default:
				return fmt.Errorf("%w: unknown container option %s", ErrInvalid, rest[0])
			}
		}
		if len(rest) == 0 {
			return fmt.Errorf("%w: container image is missing", ErrInvalid)
		}
		spec.Container.Image = rest[0]
		words = rest[1:]
	}

	d := &spec.Docking
	i := 0
	for ; i < len(words) && words[i] != FlagManifest; i++ {
		d.Entrypoint = append(d.Entrypoint, words[i])
	}
	if i == len(words) {
		return fmt.Errorf("%w: %s is not found", ErrInvalid, FlagManifest)
	}

	for ; i < len(words); i++ {
		w := words[i]
		value := func() (string, error) {
			if i+1 >= len(words) {
				return "", fmt.Errorf("%w: %s needs a value", ErrInvalid, w)
			}
			i += 1
			return words[i], nil
		}
		var err error
		switch w {
		case FlagManifest:
			d.Manifest, err = value()
		case FlagOutputDir:
			d.OutputDir, err = value()
		case FlagInferenceConfig:
			d.InferenceConfig, err = value()
		case FlagEmbedding:
			d.EmbeddingPath, err = value()
		case FlagSamples:
			var v string
			if v, err = value(); err == nil {
				d.Samples, err = strconv.Atoi(v)
			}
		case FlagCores:
			var v string
			if v, err = value(); err == nil {
				spec.Resources.Cores, err = strconv.Atoi(v)
			}
		case FlagRemoveHs:
			d.RemoveHs = true
		case FlagKeepLocalStructures:
			d.KeepLocalStructures = true
		case FlagKeepCache:
			d.KeepCache = true
		case FlagSeparateDirs:
			d.SeparateDirs = true
		default:
			d.Extra = append(d.Extra, w)
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, w, err)
		}
	}
	return nil
}
