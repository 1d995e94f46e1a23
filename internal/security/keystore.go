package security

import (
	"context"
	"io/fs"
	"sync"
)

// MasterKeyAccount is the keychain account holding the base64 master key.
const MasterKeyAccount = "master_key"

// KeyStore persists secrets outside the database. Get must return an error
// wrapping fs.ErrNotExist when the account has no value.
type KeyStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// MemoryKeyStore is an in-process KeyStore.
type MemoryKeyStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{values: make(map[string]string)}
}

func (m *MemoryKeyStore) Get(account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[account]
	if !ok {
		return "", fs.ErrNotExist
	}
	return v, nil
}

func (m *MemoryKeyStore) Set(account, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[account] = value
	return nil
}

// Authenticator confirms the user is present, e.g. via a biometric prompt.
type Authenticator interface {
	Authenticate(ctx context.Context, reason string) (bool, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, reason string) (bool, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, reason string) (bool, error) {
	return f(ctx, reason)
}

// Unconditional accepts every request. It stands in for a biometric prompt
// when biometric auth is disabled and the caller is already trusted.
var Unconditional = AuthenticatorFunc(func(context.Context, string) (bool, error) { return true, nil })
