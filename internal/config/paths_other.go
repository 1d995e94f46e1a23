//go:build !darwin

package config

import (
	"os"
	"path/filepath"
)

func dataHome() string   { return xdgDir("XDG_DATA_HOME", ".local", "share") }
func configHome() string { return xdgDir("XDG_CONFIG_HOME", ".config") }

// xdgDir resolves the vitalsync directory under an XDG base directory,
// falling back to the given path below $HOME.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return appDir
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, appDir)...)
}
