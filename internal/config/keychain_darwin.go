//go:build darwin

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

// errSecItemNotFound is the exit status of `security` when no item matches.
const errSecItemNotFound = 44

func keychainGet(service, account string) ([]byte, error) {
	out, err := exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == errSecItemNotFound {
			return nil, fmt.Errorf("keychain item %s/%s: %w", service, account, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("reading keychain item %s/%s: %w", service, account, err)
	}
	return out, nil
}

func keychainSet(service, account, value string) error {
	return exec.Command(
		"security", "add-generic-password",
		"-U",
		"-s", service,
		"-a", account,
		"-w", value,
	).Run()
}
