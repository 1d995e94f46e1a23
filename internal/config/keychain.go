package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

const (
	keychainService = "vitalsync"
	apiTokenAccount = "api_token"
)

// Keychain stores secrets in the platform secret store under the vitalsync
// service. It satisfies security.KeyStore.
type Keychain struct {
	service string
}

func NewKeychain() *Keychain {
	return &Keychain{service: keychainService}
}

// Get returns the secret for account. A missing entry yields an error
// wrapping fs.ErrNotExist.
func (k *Keychain) Get(account string) (string, error) {
	out, err := keychainGet(k.service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (k *Keychain) Set(account, value string) error {
	if err := keychainSet(k.service, account, value); err != nil {
		return fmt.Errorf("storing %s in keychain: %w", account, err)
	}
	return nil
}

type tokenStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// GetAPIToken returns the bearer token guarding the local management API,
// creating and storing one on first use.
func GetAPIToken(kc tokenStore) (string, error) {
	tok, err := kc.Get(apiTokenAccount)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := kc.Set(apiTokenAccount, tok); err != nil {
		return "", err
	}
	return tok, nil
}
