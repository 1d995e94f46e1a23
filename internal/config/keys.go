package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

// remoteTokenAccount is the keychain account for remote.api_token.
const remoteTokenAccount = "remote_api_token"

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "VITALSYNC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VITALSYNC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "remote.base_url", typ: kString, env: "VITALSYNC_REMOTE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.BaseURL },
	},
	{
		key: "remote.api_token", typ: kString, env: "VITALSYNC_REMOTE_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Remote.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.APIToken },
	},
	{
		key: "sync.conflict_strategy", typ: kString, env: "VITALSYNC_SYNC_CONFLICT_STRATEGY",
		apply:   func(cfg *Config, v any) { cfg.Sync.ConflictStrategy = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.ConflictStrategy },
	},
	{
		key: "sync.interval_ms", typ: kInt, env: "VITALSYNC_SYNC_INTERVAL_MS",
		apply:   func(cfg *Config, v any) { cfg.Sync.IntervalMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.IntervalMS },
	},
	{
		key: "sync.background_budget_ms", typ: kInt, env: "VITALSYNC_SYNC_BACKGROUND_BUDGET_MS",
		apply:   func(cfg *Config, v any) { cfg.Sync.BackgroundBudgetMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.BackgroundBudgetMS },
	},
	{
		key: "cache.max_size_bytes", typ: kInt, env: "VITALSYNC_CACHE_MAX_SIZE_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Cache.MaxSizeBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.MaxSizeBytes },
	},
	{
		key: "cache.default_ttl_ms", typ: kInt, env: "VITALSYNC_CACHE_DEFAULT_TTL_MS",
		apply:   func(cfg *Config, v any) { cfg.Cache.DefaultTTLMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.DefaultTTLMS },
	},
	{
		key: "cache.cleanup_interval_ms", typ: kInt, env: "VITALSYNC_CACHE_CLEANUP_INTERVAL_MS",
		apply:   func(cfg *Config, v any) { cfg.Cache.CleanupIntervalMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.CleanupIntervalMS },
	},
	{
		key: "cache.replay_per_second", typ: kFloat, env: "VITALSYNC_CACHE_REPLAY_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Cache.ReplayPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Cache.ReplayPerSecond },
	},
	{
		key: "cache.max_replay_retries", typ: kInt, env: "VITALSYNC_CACHE_MAX_REPLAY_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Cache.MaxReplayRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.MaxReplayRetries },
	},
	{
		key: "security.encryption_enabled", typ: kBool, env: "VITALSYNC_SECURITY_ENCRYPTION_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Security.EncryptionEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Security.EncryptionEnabled },
	},
	{
		key: "security.biometric_enabled", typ: kBool, env: "VITALSYNC_SECURITY_BIOMETRIC_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Security.BiometricEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Security.BiometricEnabled },
	},
	{
		key: "security.auto_lock_timeout_ms", typ: kInt, env: "VITALSYNC_SECURITY_AUTO_LOCK_TIMEOUT_MS",
		apply:   func(cfg *Config, v any) { cfg.Security.AutoLockTimeoutMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Security.AutoLockTimeoutMS },
	},
	{
		key: "security.require_auth_on_resume", typ: kBool, env: "VITALSYNC_SECURITY_REQUIRE_AUTH_ON_RESUME",
		apply:   func(cfg *Config, v any) { cfg.Security.RequireAuthOnResume = v.(bool) },
		extract: func(cfg Config) any { return cfg.Security.RequireAuthOnResume },
	},
	{
		key: "security.secure_storage_enabled", typ: kBool, env: "VITALSYNC_SECURITY_SECURE_STORAGE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Security.SecureStorageEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Security.SecureStorageEnabled },
	},
	{
		key: "log.level", typ: kString, env: "VITALSYNC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.json", typ: kBool, env: "VITALSYNC_LOG_JSON",
		apply:   func(cfg *Config, v any) { cfg.Log.JSON = v.(bool) },
		extract: func(cfg Config) any { return cfg.Log.JSON },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}
