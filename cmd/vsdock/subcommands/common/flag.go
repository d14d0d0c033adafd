package common

import (
	"github.com/vsdock/vsdock/pkg/configs"
	kpath "github.com/vsdock/vsdock/pkg/utils/path"
)

type CommonFlags struct {
	ConfigFile string `flag:"config-file" metavar:"path/to/vsdock.yaml" help:"Deployment configuration. When not given, vsdock.yaml is searched from the working directory upward."`
}

// Flags detects default values of common flags, searching vsdock.yaml from the directory upward.
func Flags(from string) (CommonFlags, error) {
	abs, err := kpath.Resolve(from)
	if err != nil {
		return CommonFlags{}, err
	}
	return CommonFlags{ConfigFile: configs.Find(abs)}, nil
}
