package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

// StatusSettingKey holds the JSON-encoded status of the last cycle.
const StatusSettingKey = "sync_status"

type Status struct {
	LastSyncTime   *time.Time `json:"lastSyncTime,omitempty"`
	PendingChanges int        `json:"pendingChanges"`
	SyncInProgress bool       `json:"syncInProgress"`
	LastError      string     `json:"lastError,omitempty"`
	State          State      `json:"state"`
}

// Status reports the persisted outcome of the last cycle together with the
// current number of unsynced records.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	if err := e.loadStatus(ctx); err != nil {
		return Status{}, err
	}
	n, err := e.store.CountUnsynced(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("counting unsynced vitals: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.status
	st.PendingChanges = n
	st.SyncInProgress = st.State == StateSyncing
	return st, nil
}

func (e *Engine) loadStatus(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}

	raw, err := e.store.GetSetting(ctx, StatusSettingKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading sync status: %w", err)
	default:
		var st Status
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			e.logger.Warn("discarding unreadable sync status", zap.Error(err))
			break
		}
		// A cycle cannot survive a restart.
		if st.State == StateSyncing {
			st.State = StateIdle
		}
		e.status = st
	}
	e.loaded = true
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = s
}

func (e *Engine) lastSyncTime() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.LastSyncTime
}

// finish records the cycle outcome and persists it. The last sync time is the
// cycle start so remote changes made while the cycle ran are fetched again.
func (e *Engine) finish(ctx context.Context, start time.Time, res Result, cycleErr error) error {
	e.mu.Lock()
	if cycleErr != nil {
		e.status.State = StateFailed
		e.status.LastError = cycleErr.Error()
	} else {
		e.status.State = StateCompleted
		e.status.LastSyncTime = &start
		e.status.LastError = ""
	}
	snapshot := e.status
	e.mu.Unlock()

	syncDuration.Observe(res.Duration.Seconds())
	switch {
	case cycleErr == nil:
		syncCycles.WithLabelValues("completed").Inc()
		e.logger.Info("sync cycle completed",
			zap.Int("uploaded", res.Uploaded),
			zap.Int("failed", res.Failed),
			zap.Int("applied", res.Applied),
			zap.Int("deleted", res.Deleted),
			zap.Int("conflicts", res.Conflicts.Detected),
			zap.Int("pending_conflicts", res.Conflicts.Pending),
			zap.Duration("took", res.Duration),
		)
	case errors.Is(cycleErr, vital.ErrNetwork):
		syncCycles.WithLabelValues("offline").Inc()
		e.logger.Warn("sync cycle deferred", zap.Error(cycleErr))
	default:
		syncCycles.WithLabelValues("failed").Inc()
		e.logger.Error("sync cycle failed", zap.Error(cycleErr))
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Join(cycleErr, fmt.Errorf("encoding sync status: %w", err))
	}
	if err := e.store.SetSetting(context.WithoutCancel(ctx), StatusSettingKey, string(raw)); err != nil {
		e.logger.Error("failed to persist sync status", zap.Error(err))
		if cycleErr == nil {
			return fmt.Errorf("persisting sync status: %w", err)
		}
	}
	return cycleErr
}
