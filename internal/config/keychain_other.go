//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// secretsFilePath stands in for a keychain on platforms without one. It
// holds the management API token, the remote token and the master key.
func secretsFilePath() string {
	return filepath.Join(dataHome(), "secrets.json")
}

// secretsFile maps service to account to value.
type secretsFile map[string]map[string]string

func loadSecrets(p string) (secretsFile, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var secrets secretsFile
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (s secretsFile) save(p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}

func keychainGet(service, account string) ([]byte, error) {
	secrets, err := loadSecrets(secretsFilePath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("secrets file: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("keychain not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("secret %s/%s: %w", service, account, fs.ErrNotExist)
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	p := secretsFilePath()
	secrets, err := loadSecrets(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		secrets = secretsFile{}
	case err != nil:
		return err
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value
	return secrets.save(p)
}
