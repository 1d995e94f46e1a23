// Package syncer reconciles the local record store with the remote vitals
// service: it uploads pending edits, downloads remote changes and resolves
// conflicts between the two.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/vitalsync/internal/clock"
	"github.com/kalambet/vitalsync/internal/remote"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

// Store is the subset of storage.Store the engine needs.
type Store interface {
	UnsyncedVitals(ctx context.Context) ([]vital.Record, error)
	CountUnsynced(ctx context.Context) (int, error)
	MarkVitalsSynced(ctx context.Context, records []vital.Record, at time.Time) (int, error)
	ApplyRemoteValue(ctx context.Context, id int64, value float64, secondary *float64, updatedAt, syncedAt time.Time) error
	RequeueVital(ctx context.Context, id int64) error
	VitalExists(ctx context.Context, typ vital.Type, date vital.Date) (bool, error)
	InsertRemoteVital(ctx context.Context, r vital.Record) (int64, error)
	DeleteSyncedVitals(ctx context.Context, typ vital.Type, date vital.Date) (int64, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	SavePendingConflict(ctx context.Context, c storage.PendingConflict) error
	GetPendingConflict(ctx context.Context, id string) (storage.PendingConflict, error)
	ListPendingConflicts(ctx context.Context) ([]storage.PendingConflict, error)
	ConflictedLocalIDs(ctx context.Context) (map[int64]bool, error)
	DeletePendingConflict(ctx context.Context, id string) error

	ListPendingDeletes(ctx context.Context) ([]storage.PendingDelete, error)
	RemovePendingDeletes(ctx context.Context, ids []int64) error
}

// Remote is the remote vitals API. remote.Client satisfies it.
type Remote interface {
	GetVitals(ctx context.Context, since time.Time, includeDeleted bool) ([]remote.RemoteVital, error)
	UploadVitalsBatch(ctx context.Context, vitals []remote.UploadVital) (remote.BatchResult, error)
	DeleteVitals(ctx context.Context, deletes []remote.RemoteDelete) error
}

// Network reports reachability. netstate.Monitor satisfies it.
type Network interface {
	Online() bool
}

type Deps struct {
	Store  Store
	Remote Remote
	// Network is optional; nil means always online.
	Network Network
	Clock   clock.Clock
}

type Options struct {
	// DefaultStrategy applies until a strategy is persisted. Empty means Merge.
	DefaultStrategy Strategy
}

// ConflictSummary counts conflicts seen in one cycle. Pending includes
// conflicts held over from earlier cycles.
type ConflictSummary struct {
	Detected int `json:"detected"`
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
}

// Result describes one sync cycle.
type Result struct {
	Uploaded   int             `json:"uploaded"`
	Failed     int             `json:"failed"`
	Applied    int             `json:"applied"`
	Deleted    int             `json:"deleted"`
	Propagated int             `json:"propagated"`
	Conflicts  ConflictSummary `json:"conflicts"`
	Duration   time.Duration   `json:"duration"`
	TimedOut   bool            `json:"timedOut"`
}

// Err reports conflicts that are waiting for a manual decision.
func (r Result) Err() error {
	if r.Conflicts.Pending > 0 {
		return fmt.Errorf("%d conflicts awaiting review: %w", r.Conflicts.Pending, vital.ErrConflictUnresolved)
	}
	return nil
}

// Engine runs sync cycles. A single cycle is in flight at any time.
type Engine struct {
	store           Store
	remote          Remote
	network         Network
	clock           clock.Clock
	logger          *zap.Logger
	defaultStrategy Strategy

	group singleflight.Group
	// runMu serializes cycles with conflict resolution.
	runMu sync.Mutex

	mu     sync.Mutex
	status Status
	loaded bool
}

// New creates an Engine. Store and Remote are required.
func New(deps Deps, opts Options, logger *zap.Logger) (*Engine, error) {
	if deps.Store == nil || deps.Remote == nil {
		return nil, fmt.Errorf("sync engine requires a store and a remote: %w", vital.ErrNotInitialized)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := opts.DefaultStrategy
	if def == "" {
		def = DefaultStrategy
	}
	if _, err := ParseStrategy(string(def)); err != nil {
		return nil, err
	}
	return &Engine{
		store:           deps.Store,
		remote:          deps.Remote,
		network:         deps.Network,
		clock:           deps.Clock,
		logger:          logger,
		defaultStrategy: def,
		status:          Status{State: StateIdle},
	}, nil
}

// PerformSync runs one sync cycle. Concurrent callers share the in-flight
// cycle and its result.
func (e *Engine) PerformSync(ctx context.Context) (Result, error) {
	v, err, shared := e.group.Do("sync", func() (any, error) {
		return e.run(ctx)
	})
	if shared {
		e.logger.Debug("joined in-flight sync cycle")
	}
	res, _ := v.(Result)
	return res, err
}

// PerformSyncWithBudget runs a cycle to completion and flags it TimedOut if
// it took longer than budget.
func (e *Engine) PerformSyncWithBudget(ctx context.Context, budget time.Duration) (Result, error) {
	res, err := e.PerformSync(ctx)
	if budget > 0 && res.Duration > budget {
		res.TimedOut = true
		e.logger.Warn("sync cycle overran its budget",
			zap.Duration("budget", budget),
			zap.Duration("took", res.Duration),
		)
	}
	return res, err
}

func (e *Engine) run(ctx context.Context) (Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if err := e.loadStatus(ctx); err != nil {
		return Result{}, err
	}
	start := e.clock.Now()
	e.setState(StateSyncing)

	res, err := e.cycle(ctx, start)
	res.Duration = e.clock.Now().Sub(start)
	return res, e.finish(ctx, start, res, err)
}

func (e *Engine) cycle(ctx context.Context, start time.Time) (Result, error) {
	var res Result
	if e.network != nil && !e.network.Online() {
		return res, fmt.Errorf("sync skipped, remote unreachable: %w", vital.ErrNetwork)
	}

	strategy, err := e.Strategy(ctx)
	if err != nil {
		return res, err
	}

	locals, err := e.store.UnsyncedVitals(ctx)
	if err != nil {
		return res, fmt.Errorf("loading unsynced vitals: %w", err)
	}

	since := time.Unix(0, 0).UTC()
	if last := e.lastSyncTime(); last != nil {
		since = *last
	}
	fetched, err := e.remote.GetVitals(ctx, since, true)
	if err != nil {
		return res, err
	}
	remotes := e.parseRemote(fetched)

	conflicts, matched := detectConflicts(locals, remotes)
	res.Conflicts.Detected = len(conflicts)
	if len(conflicts) > 0 {
		syncConflicts.WithLabelValues(string(strategy)).Add(float64(len(conflicts)))
	}

	held, err := e.store.ConflictedLocalIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("loading held conflicts: %w", err)
	}
	skip, err := e.resolve(ctx, strategy, conflicts, held, start, &res)
	if err != nil {
		return res, err
	}
	res.Conflicts.Pending = len(held)

	n, err := e.pushDeletes(ctx)
	if err != nil {
		return res, err
	}
	res.Propagated = n

	var upload []vital.Record
	for _, r := range locals {
		if !skip[r.ID] && !held[r.ID] {
			upload = append(upload, r)
		}
	}
	if err := e.upload(ctx, upload, start, &res); err != nil {
		return res, err
	}

	if err := e.applyRemote(ctx, remotes, matched, localKeys(locals), start, &res); err != nil {
		return res, err
	}
	return res, nil
}

// resolve applies strategy to each conflict. It returns the local ids that
// must not be uploaded because the remote side won, and adds manually held
// ids to held.
func (e *Engine) resolve(ctx context.Context, strategy Strategy, conflicts []conflict, held map[int64]bool, now time.Time, res *Result) (map[int64]bool, error) {
	skip := make(map[int64]bool)
	for _, c := range conflicts {
		if held[c.local.ID] {
			continue
		}
		switch {
		case strategy == Manual:
			if err := e.store.SavePendingConflict(ctx, c.pending(now)); err != nil {
				return nil, fmt.Errorf("saving conflict for vital %d: %w", c.local.ID, err)
			}
			held[c.local.ID] = true
			e.logger.Info("conflict held for review",
				zap.Int64("local_id", c.local.ID),
				zap.String("remote_id", c.remote.ID),
				zap.String("type", c.local.Type.Wire()),
				zap.String("date", c.local.RecordedDate.String()),
			)
		case remoteWins(strategy, c):
			updated := c.remote.UpdatedAt
			if updated.IsZero() {
				updated = now
			}
			if err := e.store.ApplyRemoteValue(ctx, c.local.ID, c.remote.Value, c.remote.Value2, updated, now); err != nil {
				return nil, fmt.Errorf("applying remote value to vital %d: %w", c.local.ID, err)
			}
			skip[c.local.ID] = true
			res.Conflicts.Resolved++
			res.Applied++
			syncApplied.Inc()
		default:
			res.Conflicts.Resolved++
		}
	}
	return skip, nil
}

// remoteWins reports whether the remote side of c wins under strategy. Merge
// keeps the newer side and gives ties to the remote.
func remoteWins(strategy Strategy, c conflict) bool {
	switch strategy {
	case RemoteWins:
		return true
	case LocalWins:
		return false
	default:
		return !c.local.UpdatedAt.After(c.remote.UpdatedAt)
	}
}

func (e *Engine) pushDeletes(ctx context.Context) (int, error) {
	tombstones, err := e.store.ListPendingDeletes(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading pending deletes: %w", err)
	}
	if len(tombstones) == 0 {
		return 0, nil
	}
	deletes := make([]remote.RemoteDelete, 0, len(tombstones))
	ids := make([]int64, 0, len(tombstones))
	for _, t := range tombstones {
		deletes = append(deletes, remote.RemoteDelete{
			Type:         t.Type.Wire(),
			RecordedDate: t.RecordedDate.String(),
			Source:       t.Source,
			LocalID:      strconv.FormatInt(t.LocalID, 10),
		})
		ids = append(ids, t.ID)
	}
	if err := e.remote.DeleteVitals(ctx, deletes); err != nil {
		return 0, err
	}
	if err := e.store.RemovePendingDeletes(ctx, ids); err != nil {
		return 0, fmt.Errorf("clearing pushed deletes: %w", err)
	}
	return len(ids), nil
}

func (e *Engine) upload(ctx context.Context, records []vital.Record, now time.Time, res *Result) error {
	if len(records) == 0 {
		return nil
	}
	batch := make([]remote.UploadVital, 0, len(records))
	byID := make(map[string]vital.Record, len(records))
	for _, r := range records {
		u := remote.NewUploadVital(r)
		batch = append(batch, u)
		byID[u.LocalID] = r
	}

	br, err := e.remote.UploadVitalsBatch(ctx, batch)
	if err != nil {
		return err
	}

	var accepted []vital.Record
	for _, id := range br.ProcessedIDs {
		if r, ok := byID[id]; ok {
			accepted = append(accepted, r)
			delete(byID, id)
		}
	}
	syncedAt := br.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = now
	}
	marked, err := e.store.MarkVitalsSynced(ctx, accepted, syncedAt)
	if err != nil {
		return fmt.Errorf("marking uploaded vitals synced: %w", err)
	}
	if marked < len(accepted) {
		e.logger.Debug("vitals edited during upload stay pending",
			zap.Int("accepted", len(accepted)),
			zap.Int("marked", marked),
		)
	}
	res.Uploaded = marked
	res.Failed = len(records) - len(accepted)
	syncUploaded.Add(float64(marked))
	if res.Failed > 0 {
		e.logger.Warn("remote rejected part of the upload batch",
			zap.Int("failed", res.Failed),
			zap.Strings("failed_ids", br.FailedIDs),
		)
	}
	return nil
}

func (e *Engine) applyRemote(ctx context.Context, remotes []remoteEntry, matched map[string]bool, unsynced map[recordKey]bool, now time.Time, res *Result) error {
	for _, re := range remotes {
		if matched[re.ID] {
			continue
		}
		key := recordKey{re.typ, re.date}

		if re.Deleted {
			if unsynced[key] {
				e.logger.Debug("remote deletion superseded by local edit",
					zap.String("type", re.typ.Wire()),
					zap.String("date", re.date.String()),
				)
				continue
			}
			n, err := e.store.DeleteSyncedVitals(ctx, re.typ, re.date)
			if err != nil {
				return fmt.Errorf("applying remote deletion of %s on %s: %w", re.typ, re.date, err)
			}
			res.Deleted += int(n)
			continue
		}

		exists, err := e.store.VitalExists(ctx, re.typ, re.date)
		if err != nil {
			return fmt.Errorf("checking local %s on %s: %w", re.typ, re.date, err)
		}
		if exists {
			continue
		}
		if _, err := e.store.InsertRemoteVital(ctx, re.record(now)); err != nil {
			if errors.Is(err, vital.ErrConstraintViolation) {
				e.logger.Warn("skipping remote vital already present locally",
					zap.String("remote_id", re.ID),
					zap.Error(err),
				)
				continue
			}
			return fmt.Errorf("inserting remote vital %s: %w", re.ID, err)
		}
		res.Applied++
		syncApplied.Inc()
	}
	return nil
}

// parseRemote drops records whose type or date cannot be understood.
func (e *Engine) parseRemote(list []remote.RemoteVital) []remoteEntry {
	out := make([]remoteEntry, 0, len(list))
	for _, rv := range list {
		typ, err := rv.VitalType()
		if err != nil {
			e.logger.Warn("ignoring remote vital", zap.String("remote_id", rv.ID), zap.Error(err))
			continue
		}
		date, err := rv.Date()
		if err != nil {
			e.logger.Warn("ignoring remote vital", zap.String("remote_id", rv.ID), zap.Error(err))
			continue
		}
		out = append(out, remoteEntry{RemoteVital: rv, typ: typ, date: date})
	}
	return out
}

// Strategy returns the persisted conflict strategy, or the default.
func (e *Engine) Strategy(ctx context.Context) (Strategy, error) {
	raw, err := e.store.GetSetting(ctx, StrategySettingKey)
	if errors.Is(err, storage.ErrNotFound) {
		return e.defaultStrategy, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading conflict strategy: %w", err)
	}
	s, err := ParseStrategy(raw)
	if err != nil {
		e.logger.Warn("ignoring stored conflict strategy", zap.Error(err))
		return e.defaultStrategy, nil
	}
	return s, nil
}

func (e *Engine) SetStrategy(ctx context.Context, s Strategy) error {
	parsed, err := ParseStrategy(string(s))
	if err != nil {
		return err
	}
	if err := e.store.SetSetting(ctx, StrategySettingKey, string(parsed)); err != nil {
		return fmt.Errorf("saving conflict strategy: %w", err)
	}
	e.logger.Info("conflict strategy changed", zap.String("strategy", string(parsed)))
	return nil
}
