package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/vitalsync/internal/syncer"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Cache    CacheConfig
	Security SecurityConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type RemoteConfig struct {
	BaseURL  string
	APIToken string
}

type SyncConfig struct {
	ConflictStrategy   string
	IntervalMS         int
	BackgroundBudgetMS int
}

func (c SyncConfig) Interval() time.Duration { return ms(c.IntervalMS) }
func (c SyncConfig) Budget() time.Duration   { return ms(c.BackgroundBudgetMS) }

type CacheConfig struct {
	MaxSizeBytes      int
	DefaultTTLMS      int
	CleanupIntervalMS int
	ReplayPerSecond   float64
	MaxReplayRetries  int
}

func (c CacheConfig) DefaultTTL() time.Duration      { return ms(c.DefaultTTLMS) }
func (c CacheConfig) CleanupInterval() time.Duration { return ms(c.CleanupIntervalMS) }

type SecurityConfig struct {
	EncryptionEnabled    bool
	BiometricEnabled     bool
	AutoLockTimeoutMS    int
	RequireAuthOnResume  bool
	SecureStorageEnabled bool
}

func (c SecurityConfig) AutoLockTimeout() time.Duration { return ms(c.AutoLockTimeoutMS) }

type LogConfig struct {
	Level string
	JSON  bool
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Defaults returns the built-in configuration, before any backend,
// environment or keychain values are applied.
func Defaults() Config { return defaults() }

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Sync: SyncConfig{
			ConflictStrategy:   string(syncer.DefaultStrategy),
			IntervalMS:         int(time.Hour / time.Millisecond),
			BackgroundBudgetMS: 30_000,
		},
		Cache: CacheConfig{
			MaxSizeBytes:      50 << 20,
			DefaultTTLMS:      int(7 * 24 * time.Hour / time.Millisecond),
			CleanupIntervalMS: int(time.Hour / time.Millisecond),
			ReplayPerSecond:   5,
			MaxReplayRetries:  5,
		},
		Security: SecurityConfig{
			EncryptionEnabled:    true,
			AutoLockTimeoutMS:    int(5 * time.Minute / time.Millisecond),
			RequireAuthOnResume:  true,
			SecureStorageEnabled: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables and the platform secret store.
//
// The backend is config.toml: under ~/Library/Application Support/vitalsync
// on macOS, where secrets live in the login Keychain, and under
// $XDG_CONFIG_HOME/vitalsync elsewhere, where secrets live in
// $XDG_DATA_HOME/vitalsync/secrets.json.
//
// Environment variables (VITALSYNC_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// keychain abstracts secret lookup for testing.
type keychain interface {
	Get(account string) (string, error)
}

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Remote.APIToken == "" {
		if tok, err := kc.Get(remoteTokenAccount); err == nil && tok != "" {
			cfg.Remote.APIToken = tok
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot run with.
func (c Config) Validate() error {
	var errs []error
	if _, err := syncer.ParseStrategy(c.Sync.ConflictStrategy); err != nil {
		errs = append(errs, fmt.Errorf("sync.conflict_strategy: %w", err))
	}
	positive := []struct {
		key string
		val int
	}{
		{"server.port", c.Server.Port},
		{"sync.interval_ms", c.Sync.IntervalMS},
		{"sync.background_budget_ms", c.Sync.BackgroundBudgetMS},
		{"cache.max_size_bytes", c.Cache.MaxSizeBytes},
		{"cache.default_ttl_ms", c.Cache.DefaultTTLMS},
		{"cache.cleanup_interval_ms", c.Cache.CleanupIntervalMS},
		{"cache.max_replay_retries", c.Cache.MaxReplayRetries},
		{"security.auto_lock_timeout_ms", c.Security.AutoLockTimeoutMS},
	}
	for _, p := range positive {
		if p.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.key, p.val))
		}
	}
	if c.Cache.ReplayPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("cache.replay_per_second must be positive, got %v", c.Cache.ReplayPerSecond))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
