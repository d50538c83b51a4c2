// Package config loads finbot's typed configuration from viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands a leading ~ and $VAR references in path. Paths that
// are neither a URI nor empty are cleaned.
func ExpandPath(path string) string {
	if path == "" || strings.Contains(path, "://") {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}
