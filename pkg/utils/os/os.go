package os

import "os"

// GetEnvOr returns the value of the environment variable name.
// When it is unset or empty, fallback is returned.
func GetEnvOr(name, fallback string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return fallback
}
