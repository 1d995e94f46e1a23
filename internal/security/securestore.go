package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/storage"
)

const (
	securePrefix   = "secure_"
	credentialsKey = "keychain:credentials"
)

// SecureStore encrypts value as JSON and stores it under key. With secure
// storage disabled the JSON is stored as is under the bare key.
func (l *Layer) SecureStore(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	if !l.Settings().SecureStorageEnabled {
		return l.store.PutSecureValue(ctx, key, raw)
	}
	sealed, err := l.Seal(raw)
	if err != nil {
		return fmt.Errorf("sealing %q: %w", key, err)
	}
	return l.store.PutSecureValue(ctx, securePrefix+key, sealed)
}

// SecureRetrieve decodes the value stored under key into out and reports
// whether it existed. Encrypted values require a valid session.
func (l *Layer) SecureRetrieve(ctx context.Context, key string, out any) (bool, error) {
	if !l.Settings().SecureStorageEnabled {
		return l.retrievePlain(ctx, key, out)
	}
	if !l.IsSessionValid() {
		return false, ErrSessionLocked
	}
	l.Touch()

	sealed, err := l.store.GetSecureValue(ctx, securePrefix+key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	raw, err := l.Open(sealed)
	if err != nil {
		return false, fmt.Errorf("opening %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

func (l *Layer) retrievePlain(ctx context.Context, key string, out any) (bool, error) {
	raw, err := l.store.GetSecureValue(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

// SecureDelete removes key in both its encrypted and plain form.
func (l *Layer) SecureDelete(ctx context.Context, key string) error {
	if err := l.store.DeleteSecureValue(ctx, securePrefix+key); err != nil {
		return err
	}
	return l.store.DeleteSecureValue(ctx, key)
}

// Credentials are the user's sign-in details for the remote service.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (l *Layer) SaveCredentials(ctx context.Context, username, password string) error {
	raw, err := json.Marshal(Credentials{Username: username, Password: password})
	if err != nil {
		return err
	}
	sealed, err := l.Seal(raw)
	if err != nil {
		return fmt.Errorf("sealing credentials: %w", err)
	}
	if err := l.store.PutSecureValue(ctx, credentialsKey, sealed); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return l.logEvent(ctx, EventCredentialsSaved, true, map[string]any{"username": username})
}

// GetCredentials returns nil when none are saved. It requires a valid session.
func (l *Layer) GetCredentials(ctx context.Context) (*Credentials, error) {
	if !l.IsSessionValid() {
		return nil, ErrSessionLocked
	}
	l.Touch()

	sealed, err := l.store.GetSecureValue(ctx, credentialsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := l.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("opening credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}
	return &c, nil
}

func (l *Layer) ClearCredentials(ctx context.Context) error {
	if err := l.store.DeleteSecureValue(ctx, credentialsKey); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	if err := l.logEvent(ctx, EventCredentialsCleared, true, nil); err != nil {
		l.logger.Error("failed to record credentials clear", zap.Error(err))
		return err
	}
	return nil
}
