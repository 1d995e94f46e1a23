package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/vital"
)

const (
	DefaultInterval = time.Hour
	DefaultBudget   = 30 * time.Second
)

type SchedulerOptions struct {
	Interval time.Duration
	Budget   time.Duration
	// MinGap suppresses reconnect and re-enable triggers this soon after a
	// completed cycle while nothing is waiting for upload. Defaults to Interval.
	MinGap time.Duration
	// Reconnect delivers reachability transitions; a true value triggers a cycle.
	Reconnect <-chan bool
}

// Scheduler funnels periodic, reconnect and manual triggers into budgeted
// sync cycles on a single goroutine. Interval and reconnect triggers only run
// while auto sync is enabled.
type Scheduler struct {
	engine    *Engine
	interval  time.Duration
	budget    time.Duration
	minGap    time.Duration
	reconnect <-chan bool
	trigger   chan struct{}
	resumed   chan struct{}
	logger    *zap.Logger
}

func NewScheduler(engine *Engine, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.MinGap <= 0 {
		opts.MinGap = opts.Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		engine:    engine,
		interval:  opts.Interval,
		budget:    opts.Budget,
		minGap:    opts.MinGap,
		reconnect: opts.Reconnect,
		trigger:   make(chan struct{}, 1),
		resumed:   make(chan struct{}, 1),
		logger:    logger,
	}
}

// Trigger requests a cycle without waiting for it. Requests made while one
// is already queued are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// AutoSyncEnabled reports the persisted auto sync switch.
func (s *Scheduler) AutoSyncEnabled(ctx context.Context) (bool, error) {
	return s.engine.AutoSyncEnabled(ctx)
}

// SetAutoSync persists the auto sync switch. Turning it on also checks
// whether a cycle is due right away.
func (s *Scheduler) SetAutoSync(ctx context.Context, enabled bool) error {
	if err := s.engine.SetAutoSync(ctx, enabled); err != nil {
		return err
	}
	if enabled {
		select {
		case s.resumed <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	reconnect := s.reconnect
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAutomatic(ctx, "interval", false)
		case <-s.trigger:
			s.runOnce(ctx, "manual")
		case <-s.resumed:
			s.runAutomatic(ctx, "enabled", true)
		case online, ok := <-reconnect:
			if !ok {
				reconnect = nil
				continue
			}
			if online {
				s.runAutomatic(ctx, "reconnect", true)
			}
		}
	}
}

// runAutomatic runs a cycle for a trigger the user did not ask for. With
// skipRecent it also gives way to a cycle that completed within minGap.
func (s *Scheduler) runAutomatic(ctx context.Context, reason string, skipRecent bool) {
	on, err := s.engine.AutoSyncEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to read auto sync setting", zap.String("trigger", reason), zap.Error(err))
		return
	}
	if !on {
		syncSkipped.WithLabelValues("disabled").Inc()
		s.logger.Debug("auto sync disabled", zap.String("trigger", reason))
		return
	}
	if skipRecent {
		recent, err := s.engine.syncedWithin(ctx, s.minGap)
		if err != nil {
			s.logger.Error("failed to read sync status", zap.String("trigger", reason), zap.Error(err))
			return
		}
		if recent {
			syncSkipped.WithLabelValues("recent").Inc()
			s.logger.Debug("sync skipped, last cycle is recent", zap.String("trigger", reason))
			return
		}
	}
	s.runOnce(ctx, reason)
}

func (s *Scheduler) runOnce(ctx context.Context, reason string) {
	res, err := s.engine.PerformSyncWithBudget(ctx, s.budget)
	switch {
	case err == nil:
		if cerr := res.Err(); cerr != nil {
			s.logger.Info("sync left conflicts for review", zap.String("trigger", reason), zap.Error(cerr))
		}
	case errors.Is(err, vital.ErrNetwork), errors.Is(err, context.Canceled):
		s.logger.Debug("scheduled sync skipped", zap.String("trigger", reason), zap.Error(err))
	default:
		s.logger.Error("failed to run scheduled sync", zap.String("trigger", reason), zap.Error(err))
	}
}
