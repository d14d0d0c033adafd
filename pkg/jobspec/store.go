package jobspec

import (
	"fmt"
	"os"

	"github.com/hectane/go-acl"
	vio "github.com/vsdock/vsdock/pkg/io"
	"gopkg.in/yaml.v3"
)

// WriteScript renders s into an executable script file at path.
func WriteScript(path string, s JobSpec) error {
	content, err := s.Script()
	if err != nil {
		return err
	}
	f, err := vio.CreateAll(path, os.FileMode(0755), os.FileMode(0755))
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// umask may have dropped the executable bits.
	return acl.Chmod(path, os.FileMode(0755))
}

// Save persists s as YAML at path.
func Save(path string, s JobSpec) error {
	buf, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	f, err := vio.CreateAll(path, os.FileMode(0644), os.FileMode(0755))
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Close()
}

// Load reads a JobSpec persisted by Save.
func Load(path string) (JobSpec, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return JobSpec{}, err
	}
	s := JobSpec{}
	if err := yaml.Unmarshal(buf, &s); err != nil {
		return JobSpec{}, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	if !s.Mode.Valid() {
		return JobSpec{}, fmt.Errorf("%w: %s: unknown mode %q", ErrInvalid, path, s.Mode)
	}
	return s, nil
}

// LoadOrParse loads the persisted spec at specPath, or parses the script at scriptPath when it is missing.
func LoadOrParse(specPath, scriptPath string) (JobSpec, error) {
	s, err := Load(specPath)
	if err == nil {
		return s, nil
	}
	if !os.IsNotExist(err) {
		return JobSpec{}, err
	}
	text, err := os.ReadFile(scriptPath)
	if err != nil {
		return JobSpec{}, err
	}
	s, err = ParseScript(string(text))
	if err != nil {
		return JobSpec{}, fmt.Errorf("%s: %w", scriptPath, err)
	}
	return s, nil
}
