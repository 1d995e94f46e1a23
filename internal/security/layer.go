// Package security owns the master key, envelope encryption, the unlock
// session and the security audit log.
package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/clock"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

var (
	ErrSessionLocked   = errors.New("secure session is locked")
	ErrKeyUnavailable  = errors.New("master key is not loaded")
	ErrNoAuthenticator = errors.New("no authenticator available")
	ErrAuthInProgress  = errors.New("authentication already in progress")
)

// Audit event types.
const (
	EventBiometricAuth      = "biometric_auth"
	EventSessionUnlocked    = "session_unlocked"
	EventSessionLocked      = "session_locked"
	EventCredentialsSaved   = "credentials_saved"
	EventCredentialsCleared = "credentials_cleared"
	EventMasterKeyCreated   = "master_key_created"
)

type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Settings struct {
	BiometricEnabled     bool          `json:"biometricEnabled"`
	EncryptionEnabled    bool          `json:"encryptionEnabled"`
	AutoLockTimeout      time.Duration `json:"autoLockTimeout"`
	RequireAuthOnResume  bool          `json:"requireAuthOnResume"`
	SecureStorageEnabled bool          `json:"secureStorageEnabled"`
}

func DefaultSettings() Settings {
	return Settings{
		EncryptionEnabled:    true,
		AutoLockTimeout:      5 * time.Minute,
		RequireAuthOnResume:  true,
		SecureStorageEnabled: true,
	}
}

// Store is the persistence the Layer needs. Implemented by storage.Store.
type Store interface {
	AppendSecurityLog(ctx context.Context, l storage.SecurityLog) error
	RecentSecurityLogs(ctx context.Context, limit int) ([]storage.SecurityLog, error)
	PutSecureValue(ctx context.Context, key string, value []byte) error
	GetSecureValue(ctx context.Context, key string) ([]byte, error)
	DeleteSecureValue(ctx context.Context, key string) error
}

type Deps struct {
	Store         Store
	KeyStore      KeyStore
	Authenticator Authenticator // nil when no biometric prompt exists
	Clock         clock.Clock
}

// Layer is the encryption layer. The master key never leaves its memguard
// enclave except for the duration of a single key derivation.
type Layer struct {
	store  Store
	keys   KeyStore
	auth   Authenticator
	clock  clock.Clock
	logger *zap.Logger

	mu           sync.Mutex
	settings     Settings
	state        State
	lastActivity time.Time
	masterKey    *memguard.Enclave
}

func New(deps Deps, settings Settings, logger *zap.Logger) *Layer {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.AutoLockTimeout <= 0 {
		settings.AutoLockTimeout = DefaultSettings().AutoLockTimeout
	}
	return &Layer{
		store:    deps.Store,
		keys:     deps.KeyStore,
		auth:     deps.Authenticator,
		clock:    deps.Clock,
		logger:   logger,
		settings: settings,
	}
}

// Init loads the master key from the key store, generating and persisting a
// new one on first run. A key store failure other than a missing entry is
// returned and leaves the layer without a key.
func (l *Layer) Init(ctx context.Context) error {
	if l.keys == nil {
		return fmt.Errorf("initializing security: %w", ErrKeyUnavailable)
	}

	var raw []byte
	encoded, err := l.keys.Get(MasterKeyAccount)
	switch {
	case err == nil:
		if raw, err = base64.StdEncoding.DecodeString(encoded); err != nil {
			return fmt.Errorf("decoding master key: %w", err)
		}
		if len(raw) != KeySize {
			return fmt.Errorf("master key has %d bytes, want %d", len(raw), KeySize)
		}
	case errors.Is(err, fs.ErrNotExist):
		raw = make([]byte, KeySize)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generating master key: %w", err)
		}
		if err := l.keys.Set(MasterKeyAccount, base64.StdEncoding.EncodeToString(raw)); err != nil {
			memguard.WipeBytes(raw)
			return fmt.Errorf("storing master key: %w", err)
		}
		l.logger.Info("generated master key")
		if err := l.logEvent(ctx, EventMasterKeyCreated, true, nil); err != nil {
			l.logger.Warn("failed to record master key creation", zap.Error(err))
		}
	default:
		return fmt.Errorf("loading master key: %w", err)
	}

	// NewEnclave wipes raw.
	enclave := memguard.NewEnclave(raw)

	l.mu.Lock()
	l.masterKey = enclave
	l.mu.Unlock()
	return nil
}

// HasMasterKey reports whether Init loaded a key.
func (l *Layer) HasMasterKey() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.masterKey != nil
}

func (l *Layer) withMasterKey(fn func(key []byte) error) error {
	l.mu.Lock()
	enclave := l.masterKey
	l.mu.Unlock()
	if enclave == nil {
		return ErrKeyUnavailable
	}
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening master key: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Encrypt seals plaintext under a key derived from the master key.
func (l *Layer) Encrypt(plaintext []byte) (Envelope, error) {
	var env Envelope
	err := l.withMasterKey(func(key []byte) error {
		var err error
		env, err = seal(key, plaintext)
		return err
	})
	return env, err
}

// Decrypt verifies and opens env. Tampered or foreign envelopes fail with
// vital.ErrIntegrity.
func (l *Layer) Decrypt(env Envelope) ([]byte, error) {
	var out []byte
	err := l.withMasterKey(func(key []byte) error {
		var err error
		out, err = open(key, env)
		return err
	})
	return out, err
}

// Seal encrypts p into a JSON envelope. It returns p unchanged when
// encryption is disabled.
func (l *Layer) Seal(p []byte) ([]byte, error) {
	if !l.Settings().EncryptionEnabled {
		return p, nil
	}
	env, err := l.Encrypt(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Open reverses Seal.
func (l *Layer) Open(sealed []byte) ([]byte, error) {
	if !l.Settings().EncryptionEnabled {
		return sealed, nil
	}
	var env Envelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %v: %w", err, vital.ErrIntegrity)
	}
	return l.Decrypt(env)
}

func (l *Layer) Settings() Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings
}

func (l *Layer) SetSettings(s Settings) {
	if s.AutoLockTimeout <= 0 {
		s.AutoLockTimeout = DefaultSettings().AutoLockTimeout
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = s
}

// State returns the session state without applying the auto-lock timeout.
// State reports the effective session state. An unlocked session past the
// auto-lock timeout reads as Locked.
func (l *Layer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Unlocked && !l.activeLocked() {
		return Locked
	}
	return l.state
}

// Authenticate runs the configured authenticator and unlocks the session on
// success. Every attempt is written to the audit log.
func (l *Layer) Authenticate(ctx context.Context, reason string) (bool, error) {
	l.mu.Lock()
	if l.state == Unlocking {
		l.mu.Unlock()
		return false, ErrAuthInProgress
	}
	l.state = Unlocking
	l.mu.Unlock()

	ok, authErr := false, ErrNoAuthenticator
	if l.auth != nil {
		ok, authErr = l.auth.Authenticate(ctx, reason)
	}
	success := ok && authErr == nil

	l.mu.Lock()
	if success {
		l.state = Unlocked
		l.lastActivity = l.clock.Now()
	} else {
		l.state = Locked
	}
	l.mu.Unlock()

	details := map[string]any{"reason": reason}
	if authErr != nil {
		details["error"] = authErr.Error()
	}
	if err := l.logEvent(ctx, EventBiometricAuth, success, details); err != nil {
		return success, fmt.Errorf("recording auth attempt: %w", err)
	}

	if !success {
		authAttempts.WithLabelValues("failure").Inc()
		l.logger.Warn("authentication failed", zap.String("reason", reason), zap.NamedError("cause", authErr))
		if authErr != nil {
			return false, fmt.Errorf("authenticating: %w", authErr)
		}
		return false, nil
	}

	authAttempts.WithLabelValues("success").Inc()
	sessionUnlocked.Set(1)
	l.logger.Info("session unlocked")
	if err := l.logEvent(ctx, EventSessionUnlocked, true, nil); err != nil {
		return true, fmt.Errorf("recording unlock: %w", err)
	}
	return true, nil
}

// IsSessionValid reports whether the session is unlocked and active within
// the auto-lock timeout. It changes no state.
func (l *Layer) IsSessionValid() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == Unlocked && l.activeLocked()
}

// activeLocked reports whether the last activity is within the auto-lock
// timeout. l.mu must be held.
func (l *Layer) activeLocked() bool {
	return l.clock.Now().Sub(l.lastActivity) < l.settings.AutoLockTimeout
}

// LockIfIdle locks an unlocked session that has been idle past the
// auto-lock timeout and records the lock. It reports whether it locked.
func (l *Layer) LockIfIdle(ctx context.Context) (bool, error) {
	l.mu.Lock()
	if l.state != Unlocked || l.activeLocked() {
		l.mu.Unlock()
		return false, nil
	}
	l.state = Locked
	l.mu.Unlock()
	return true, l.onLocked(ctx, "timeout")
}

// Touch refreshes the activity stamp of a valid session. An idle session
// stays expired.
func (l *Layer) Touch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Unlocked && l.activeLocked() {
		l.lastActivity = l.clock.Now()
	}
}

func (l *Layer) Lock(ctx context.Context) error {
	l.mu.Lock()
	l.state = Locked
	l.mu.Unlock()
	return l.onLocked(ctx, "manual")
}

// Resume handles the app returning to the foreground. It locks the session
// when re-authentication on resume is required and reports whether the
// session is now locked.
func (l *Layer) Resume(ctx context.Context) (bool, error) {
	l.mu.Lock()
	requireAuth := l.settings.RequireAuthOnResume
	wasUnlocked := l.state == Unlocked
	if requireAuth && wasUnlocked {
		l.state = Locked
	}
	l.mu.Unlock()

	if requireAuth && wasUnlocked {
		return true, l.onLocked(ctx, "resume")
	}
	return !l.IsSessionValid(), nil
}

func (l *Layer) onLocked(ctx context.Context, reason string) error {
	sessionUnlocked.Set(0)
	l.logger.Info("session locked", zap.String("reason", reason))
	err := l.logEvent(ctx, EventSessionLocked, true, map[string]any{"reason": reason})
	if err != nil {
		l.logger.Error("failed to record session lock", zap.Error(err))
	}
	return err
}

func (l *Layer) logEvent(ctx context.Context, event string, success bool, details map[string]any) error {
	if l.store == nil {
		return nil
	}
	if details == nil {
		details = map[string]any{}
	}
	details["success"] = success
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return l.store.AppendSecurityLog(ctx, storage.SecurityLog{
		EventType: event,
		Timestamp: l.clock.Now(),
		Details:   string(raw),
		Success:   success,
	})
}
