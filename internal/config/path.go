// Package config loads trades settings from viper and resolves the paths
// they name.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// appDir names the per-user data directory.
const appDir = "trades"

// ExpandPath expands a leading ~ and $VAR references in a path.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if rest, ok := strings.CutPrefix(p, "~"); ok && (rest == "" || rest[0] == '/') {
		if home, err := os.UserHomeDir(); err == nil {
			p = home + rest
		}
	}
	return os.ExpandEnv(p)
}

// DataPath places name in the user data directory, honoring XDG_DATA_HOME.
func DataPath(name string) string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appDir, name)
	}
	return filepath.Join("~", ".local", "share", appDir, name)
}
