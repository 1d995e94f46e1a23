// Package app builds the vitalsync components from configuration and runs
// their background loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/vitalsync/internal/cache"
	"github.com/kalambet/vitalsync/internal/clock"
	"github.com/kalambet/vitalsync/internal/config"
	"github.com/kalambet/vitalsync/internal/netstate"
	"github.com/kalambet/vitalsync/internal/remote"
	"github.com/kalambet/vitalsync/internal/security"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/syncer"
)

// sessionCheckInterval is how often an idle unlocked session is checked
// against the auto-lock timeout.
const sessionCheckInterval = 15 * time.Second

type Options struct {
	KeyStore      security.KeyStore      // defaults to the platform keychain
	Authenticator security.Authenticator // overrides the default unlock policy
	Remote        *remote.Client         // defaults to a client for remote.base_url
	Clock         clock.Clock
	ProbeInterval time.Duration
}

// App owns every long-lived component of a running vitalsync instance.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     *storage.Store
	Cache     *cache.Manager
	Queue     *cache.Queue
	Security  *security.Layer
	Remote    *remote.Client
	Network   *netstate.Monitor
	Engine    *syncer.Engine
	Scheduler *syncer.Scheduler

	probeInterval time.Duration
	replayCh      <-chan bool
	unsubscribe   []func()
}

// New opens the store and wires the components. The caller must Close the
// returned App.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.KeyStore == nil {
		opts.KeyStore = config.NewKeychain()
	}

	strategy, err := syncer.ParseStrategy(cfg.Sync.ConflictStrategy)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &App{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		probeInterval: opts.ProbeInterval,
	}
	if err := a.wire(ctx, strategy, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, strategy syncer.Strategy, opts Options) error {
	cfg := a.Config

	auth := opts.Authenticator
	if auth == nil && !cfg.Security.BiometricEnabled {
		// Without a biometric prompt, holding the API token is the credential.
		auth = security.Unconditional
	}
	a.Security = security.New(security.Deps{
		Store:         a.Store,
		KeyStore:      opts.KeyStore,
		Authenticator: auth,
		Clock:         opts.Clock,
	}, security.Settings{
		BiometricEnabled:     cfg.Security.BiometricEnabled,
		EncryptionEnabled:    cfg.Security.EncryptionEnabled,
		AutoLockTimeout:      cfg.Security.AutoLockTimeout(),
		RequireAuthOnResume:  cfg.Security.RequireAuthOnResume,
		SecureStorageEnabled: cfg.Security.SecureStorageEnabled,
	}, a.Logger.Named("security"))
	if err := a.Security.Init(ctx); err != nil {
		return fmt.Errorf("initializing encryption: %w", err)
	}

	a.Cache = cache.NewManager(a.Store, cache.Options{
		MaxSizeBytes: int64(cfg.Cache.MaxSizeBytes),
		DefaultTTL:   cfg.Cache.DefaultTTL(),
		Codec:        a.Security,
		Clock:        opts.Clock,
	}, a.Logger.Named("cache"))
	a.Queue = cache.NewQueue(a.Store, cache.QueueOptions{
		ReplayPerSecond: cfg.Cache.ReplayPerSecond,
		Codec:           a.Security,
		Clock:           opts.Clock,
	}, a.Logger.Named("offline"))

	a.Remote = opts.Remote
	if a.Remote == nil {
		a.Remote = remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIToken)
	}
	a.Network = netstate.NewMonitor(a.remoteConfigured(), a.Logger.Named("netstate"))

	engine, err := syncer.New(syncer.Deps{
		Store:   a.Store,
		Remote:  a.Remote,
		Network: a.Network,
		Clock:   opts.Clock,
	}, syncer.Options{DefaultStrategy: strategy}, a.Logger.Named("sync"))
	if err != nil {
		return fmt.Errorf("creating sync engine: %w", err)
	}
	a.Engine = engine

	reconnect, unsubSync := a.Network.Subscribe()
	replay, unsubReplay := a.Network.Subscribe()
	a.unsubscribe = append(a.unsubscribe, unsubSync, unsubReplay)
	a.replayCh = replay

	a.Scheduler = syncer.NewScheduler(engine, syncer.SchedulerOptions{
		Interval:  cfg.Sync.Interval(),
		Budget:    cfg.Sync.Budget(),
		Reconnect: reconnect,
	}, a.Logger.Named("scheduler"))
	return nil
}

// remoteConfigured reports whether a remote service is set up. Without one
// the app stays offline and never probes.
func (a *App) remoteConfigured() bool {
	return a.Remote.BaseURL() != ""
}

// Replayer returns the target for offline replay, or nil when no remote
// service is configured.
func (a *App) Replayer() cache.Replayer {
	if !a.remoteConfigured() {
		return nil
	}
	return a.Remote
}

// Run starts the background loops and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.Cache.StartCleanup(ctx, a.Config.Cache.CleanupInterval())

	if a.remoteConfigured() {
		g.Go(func() error {
			a.Network.Run(ctx, a.Remote, a.probeInterval)
			return nil
		})
		g.Go(func() error {
			a.Queue.ReplayOnReconnect(ctx, a.replayCh, a.Remote)
			return nil
		})
	} else {
		a.Logger.Info("no remote service configured; running offline")
	}

	g.Go(func() error {
		a.Scheduler.Run(ctx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(a.Config.Cache.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.pruneQueue(ctx)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := a.Security.LockIfIdle(ctx); err != nil {
					a.Logger.Warn("failed to lock idle session", zap.Error(err))
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pruneQueue gives up on requests that exhausted their retries and drops
// finished ones.
func (a *App) pruneQueue(ctx context.Context) {
	failed, removed, err := a.Queue.Prune(ctx, a.Config.Cache.MaxReplayRetries)
	if err != nil {
		a.Logger.Warn("pruning offline queue", zap.Error(err))
		return
	}
	if failed > 0 || removed > 0 {
		a.Logger.Info("pruned offline queue", zap.Int64("failed", failed), zap.Int64("removed", removed))
	}
}

// Close stops subscriptions, closes the store and wipes key material.
func (a *App) Close() error {
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.unsubscribe = nil
	err := a.Store.Close()
	memguard.Purge()
	return err
}
