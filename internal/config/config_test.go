package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockKeychain is a test double for the platform keychain.
type mockKeychain struct {
	values map[string]string
	err    error
}

func (m *mockKeychain) Get(account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[account]
	if !ok {
		return "", fmt.Errorf("%s: %w", account, fs.ErrNotExist)
	}
	return v, nil
}

func (m *mockKeychain) Set(account, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[account] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	b := newFileBackend(path)
	require.NoError(t, b.load())
	return b
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(writeTempConfig(t, `# empty`), &mockKeychain{})
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "merge", cfg.Sync.ConflictStrategy)
	assert.Equal(t, time.Hour, cfg.Sync.Interval())
	assert.Equal(t, 30*time.Second, cfg.Sync.Budget())
	assert.Equal(t, 50<<20, cfg.Cache.MaxSizeBytes)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.DefaultTTL())
	assert.Equal(t, time.Hour, cfg.Cache.CleanupInterval())
	assert.Equal(t, 5.0, cfg.Cache.ReplayPerSecond)
	assert.True(t, cfg.Security.EncryptionEnabled)
	assert.False(t, cfg.Security.BiometricEnabled)
	assert.Equal(t, 5*time.Minute, cfg.Security.AutoLockTimeout())
	assert.True(t, cfg.Security.RequireAuthOnResume)
	assert.True(t, cfg.Security.SecureStorageEnabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
	assert.NotEmpty(t, cfg.Storage.DataDir)
	assert.Empty(t, cfg.Remote.APIToken)
}

func TestTOMLParsing(t *testing.T) {
	b := writeTempConfig(t, `
[server]
port = 5100

[storage]
data_dir = "/tmp/vitalsync-test"

[remote]
base_url = "https://vitals.example.com/api"

[sync]
conflict_strategy = "manual"
interval_ms = 60000

[cache]
max_size_bytes = 1048576
replay_per_second = 2.5

[security]
encryption_enabled = false
biometric_enabled = true

[log]
level = "debug"
json = true
`)
	cfg, err := loadWith(b, &mockKeychain{})
	require.NoError(t, err)

	assert.Equal(t, 5100, cfg.Server.Port)
	assert.Equal(t, "/tmp/vitalsync-test", cfg.Storage.DataDir)
	assert.Equal(t, "https://vitals.example.com/api", cfg.Remote.BaseURL)
	assert.Equal(t, "manual", cfg.Sync.ConflictStrategy)
	assert.Equal(t, time.Minute, cfg.Sync.Interval())
	assert.Equal(t, 1<<20, cfg.Cache.MaxSizeBytes)
	assert.Equal(t, 2.5, cfg.Cache.ReplayPerSecond)
	assert.False(t, cfg.Security.EncryptionEnabled)
	assert.True(t, cfg.Security.BiometricEnabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestSecretsAreNotReadFromFile(t *testing.T) {
	b := writeTempConfig(t, `
[remote]
api_token = "from-file"
`)
	cfg, err := loadWith(b, &mockKeychain{})
	require.NoError(t, err)
	assert.Empty(t, cfg.Remote.APIToken)
}

func TestEnvOverride(t *testing.T) {
	b := writeTempConfig(t, `
[sync]
conflict_strategy = "manual"
`)
	t.Setenv("VITALSYNC_SYNC_CONFLICT_STRATEGY", "remote_wins")
	t.Setenv("VITALSYNC_SERVER_PORT", "4200")
	t.Setenv("VITALSYNC_SECURITY_ENCRYPTION_ENABLED", "false")
	t.Setenv("VITALSYNC_REMOTE_API_TOKEN", "env-token")

	cfg, err := loadWith(b, &mockKeychain{values: map[string]string{remoteTokenAccount: "keychain-token"}})
	require.NoError(t, err)
	assert.Equal(t, "remote_wins", cfg.Sync.ConflictStrategy)
	assert.Equal(t, 4200, cfg.Server.Port)
	assert.False(t, cfg.Security.EncryptionEnabled)
	assert.Equal(t, "env-token", cfg.Remote.APIToken)
}

func TestUnparsableEnvKeepsDefault(t *testing.T) {
	t.Setenv("VITALSYNC_SERVER_PORT", "many")
	t.Setenv("VITALSYNC_LOG_JSON", "sometimes")

	cfg, err := loadWith(writeTempConfig(t, ``), &mockKeychain{})
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.False(t, cfg.Log.JSON)
}

func TestKeychainFallback(t *testing.T) {
	kc := &mockKeychain{values: map[string]string{remoteTokenAccount: "keychain-secret"}}
	cfg, err := loadWith(writeTempConfig(t, ``), kc)
	require.NoError(t, err)
	assert.Equal(t, "keychain-secret", cfg.Remote.APIToken)
}

func TestKeychainErrorIsNotFatal(t *testing.T) {
	cfg, err := loadWith(writeTempConfig(t, ``), &mockKeychain{err: errors.New("locked")})
	require.NoError(t, err)
	assert.Empty(t, cfg.Remote.APIToken)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown strategy", func(c *Config) { c.Sync.ConflictStrategy = "newest" }, "sync.conflict_strategy"},
		{"zero interval", func(c *Config) { c.Sync.IntervalMS = 0 }, "sync.interval_ms"},
		{"negative budget", func(c *Config) { c.Sync.BackgroundBudgetMS = -1 }, "sync.background_budget_ms"},
		{"zero ttl", func(c *Config) { c.Cache.DefaultTTLMS = 0 }, "cache.default_ttl_ms"},
		{"zero replay rate", func(c *Config) { c.Cache.ReplayPerSecond = 0 }, "cache.replay_per_second"},
		{"no data dir", func(c *Config) { c.Storage.DataDir = "" }, "storage.data_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, defaults().Validate())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	b := writeTempConfig(t, `
[sync]
interval_ms = -5
`)
	_, err := loadWith(b, &mockKeychain{})
	assert.ErrorContains(t, err, "sync.interval_ms")
}

func TestSetKeyRoundTrip(t *testing.T) {
	b := writeTempConfig(t, ``)
	kc := &mockKeychain{}

	require.NoError(t, setKeyWith(b, kc, "sync.interval_ms", "120000"))
	require.NoError(t, setKeyWith(b, kc, "security.biometric_enabled", "true"))
	require.NoError(t, setKeyWith(b, kc, "cache.replay_per_second", "0.5"))
	require.NoError(t, setKeyWith(b, kc, "remote.base_url", "https://vitals.example.com"))
	require.NoError(t, setKeyWith(b, kc, "remote.api_token", "s3cret"))

	assert.Error(t, setKeyWith(b, kc, "sync.interval_ms", "soon"))
	assert.Error(t, setKeyWith(b, kc, "security.biometric_enabled", "maybe"))
	assert.ErrorContains(t, setKeyWith(b, kc, "sync.nope", "1"), "unknown config key")

	reloaded := newFileBackend(b.path)
	require.NoError(t, reloaded.load())
	cfg, err := loadWith(reloaded, kc)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval())
	assert.True(t, cfg.Security.BiometricEnabled)
	assert.Equal(t, 0.5, cfg.Cache.ReplayPerSecond)
	assert.Equal(t, "https://vitals.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, "s3cret", cfg.Remote.APIToken)

	raw, err := os.ReadFile(b.path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")
	assert.Contains(t, string(raw), "[sync]")
}

func TestFileBackendDelete(t *testing.T) {
	b := writeTempConfig(t, `
[log]
level = "warn"
`)
	require.NoError(t, b.Delete("log.level"))
	require.NoError(t, b.Delete("missing.key"))
	_, ok, err := b.GetString("log.level")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileBackendBadInt(t *testing.T) {
	b := writeTempConfig(t, `
[server]
port = 41.5
`)
	_, err := loadWith(b, &mockKeychain{})
	assert.ErrorContains(t, err, "server.port")
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Remote.APIToken = "s3cret"

	byKey := make(map[string]KeyInfo)
	for _, k := range ShowAll(cfg) {
		byKey[k.Key] = k
	}
	assert.Equal(t, "(set)", byKey["remote.api_token"].Value)
	assert.Equal(t, "VITALSYNC_REMOTE_API_TOKEN", byKey["remote.api_token"].EnvVar)
	assert.Equal(t, "4100", byKey["server.port"].Value)
	assert.Len(t, ValidKeys(), len(specs))
}

func TestGetAPIToken(t *testing.T) {
	kc := &mockKeychain{}
	tok, err := GetAPIToken(kc)
	require.NoError(t, err)
	assert.Len(t, tok, 64)

	again, err := GetAPIToken(kc)
	require.NoError(t, err)
	assert.Equal(t, tok, again)

	_, err = GetAPIToken(&mockKeychain{err: errors.New("keychain locked")})
	assert.ErrorContains(t, err, "keychain locked")
}
