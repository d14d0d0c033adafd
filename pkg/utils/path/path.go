package path

import (
	"os"
	"path/filepath"
	"strings"
)

const tilde = "~" + string(filepath.Separator)

// Resolve makes p absolute and clean. A leading "~/" is the home directory.
func Resolve(p string) (string, error) {
	if strings.HasPrefix(p, tilde) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[len(tilde):])
	}
	return filepath.Abs(p)
}
