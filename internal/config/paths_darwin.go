//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

// Measurements, config.toml and the store all live under Application
// Support. Secrets go to the login Keychain instead.
func dataHome() string   { return appSupportDir() }
func configHome() string { return appSupportDir() }

func appSupportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return appDir
	}
	return filepath.Join(home, "Library", "Application Support", appDir)
}
