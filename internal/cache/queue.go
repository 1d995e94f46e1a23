package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kalambet/vitalsync/internal/clock"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

const DefaultReplayPerSecond = 5

// QueueStore is the persistence the Queue needs. Implemented by storage.Store.
type QueueStore interface {
	EnqueueOfflineRequest(ctx context.Context, r storage.OfflineRequest) error
	PendingOfflineRequests(ctx context.Context, limit int) ([]storage.OfflineRequest, error)
	ListOfflineRequests(ctx context.Context, status string, limit int) ([]storage.OfflineRequest, error)
	CompleteOfflineRequest(ctx context.Context, id string) error
	FailOfflineRequest(ctx context.Context, id string, errMsg string) (int, error)
	FailExhaustedOfflineRequests(ctx context.Context, maxRetries int) (int64, error)
	DeleteFinishedOfflineRequests(ctx context.Context) (int64, error)
}

// Request is an API call made while offline, kept for later replay.
type Request struct {
	ID         string            `json:"id"`
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Priority   Priority          `json:"priority"`
	RetryCount int               `json:"retryCount"`
	CreatedAt  time.Time         `json:"createdAt"`
	Status     string            `json:"status"`
	LastError  string            `json:"lastError,omitempty"`
}

// Replayer performs a queued request against the remote service.
type Replayer interface {
	Replay(ctx context.Context, r Request) error
}

// ReplayerFunc adapts a function to Replayer.
type ReplayerFunc func(ctx context.Context, r Request) error

func (f ReplayerFunc) Replay(ctx context.Context, r Request) error { return f(ctx, r) }

// DrainResult reports one pass over the queue.
type DrainResult struct {
	Replayed int  `json:"replayed"`
	Failed   int  `json:"failed"`
	Stopped  bool `json:"stopped"` // a network failure ended the pass early
}

type QueueOptions struct {
	ReplayPerSecond float64
	Codec           Codec
	Clock           clock.Clock
}

type Queue struct {
	store   QueueStore
	codec   Codec
	clock   clock.Clock
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewQueue(store QueueStore, opts QueueOptions, logger *zap.Logger) *Queue {
	if opts.ReplayPerSecond <= 0 {
		opts.ReplayPerSecond = DefaultReplayPerSecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		store:   store,
		codec:   opts.Codec,
		clock:   opts.Clock,
		limiter: rate.NewLimiter(rate.Limit(opts.ReplayPerSecond), 1),
		logger:  logger,
	}
}

// Enqueue stores r for later replay and returns its id.
func (q *Queue) Enqueue(ctx context.Context, r Request) (string, error) {
	if r.Method == "" || r.URL == "" {
		return "", errors.New("offline request needs a method and url")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = q.clock.Now()
	}

	var headers []byte
	if len(r.Headers) > 0 {
		raw, err := json.Marshal(r.Headers)
		if err != nil {
			return "", fmt.Errorf("encoding headers: %w", err)
		}
		if q.codec != nil {
			if raw, err = q.codec.Seal(raw); err != nil {
				return "", fmt.Errorf("sealing headers: %w", err)
			}
		}
		headers = raw
	}

	err := q.store.EnqueueOfflineRequest(ctx, storage.OfflineRequest{
		ID:        r.ID,
		Method:    r.Method,
		URL:       r.URL,
		Data:      r.Body,
		Headers:   headers,
		CreatedAt: r.CreatedAt,
		Priority:  r.Priority.rank(),
	})
	if err != nil {
		return "", fmt.Errorf("enqueueing offline request: %w", err)
	}
	q.logger.Debug("queued offline request",
		zap.String("id", r.ID),
		zap.String("method", r.Method),
		zap.String("url", r.URL),
	)
	return r.ID, nil
}

// Pending returns pending requests, highest priority first, then oldest first.
func (q *Queue) Pending(ctx context.Context) ([]Request, error) {
	return q.List(ctx, storage.OfflinePending, 0)
}

// List returns requests with the given status. An empty status lists all.
func (q *Queue) List(ctx context.Context, status string, limit int) ([]Request, error) {
	rows, err := q.store.ListOfflineRequests(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Request, 0, len(rows))
	for _, row := range rows {
		r, err := q.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (q *Queue) decode(row storage.OfflineRequest) (Request, error) {
	r := Request{
		ID:         row.ID,
		Method:     row.Method,
		URL:        row.URL,
		Priority:   priorityFromRank(row.Priority),
		RetryCount: row.RetryCount,
		CreatedAt:  row.CreatedAt,
		Status:     row.Status,
		LastError:  row.LastError,
	}
	if len(row.Data) > 0 {
		r.Body = json.RawMessage(row.Data)
	}
	if len(row.Headers) > 0 {
		raw := row.Headers
		if q.codec != nil {
			var err error
			if raw, err = q.codec.Open(raw); err != nil {
				return Request{}, fmt.Errorf("opening headers of %s: %w", row.ID, err)
			}
		}
		if err := json.Unmarshal(raw, &r.Headers); err != nil {
			return Request{}, fmt.Errorf("decoding headers of %s: %w", row.ID, err)
		}
	}
	return r, nil
}

// Drain replays pending requests one at a time in queue order. A failed
// request stays pending with its retry count bumped. A network failure ends
// the pass, since the remaining requests would fail the same way.
func (q *Queue) Drain(ctx context.Context, rp Replayer) (DrainResult, error) {
	var res DrainResult

	pending, err := q.Pending(ctx)
	if err != nil {
		return res, fmt.Errorf("listing offline requests: %w", err)
	}

	for _, r := range pending {
		if err := q.limiter.Wait(ctx); err != nil {
			return res, err
		}

		if err := rp.Replay(ctx, r); err != nil {
			res.Failed++
			offlineReplays.WithLabelValues("failed").Inc()
			retries, ferr := q.store.FailOfflineRequest(ctx, r.ID, err.Error())
			if ferr != nil {
				return res, fmt.Errorf("recording failure of %s: %w", r.ID, ferr)
			}
			q.logger.Warn("offline request replay failed",
				zap.String("id", r.ID),
				zap.Int("retries", retries),
				zap.Error(err),
			)
			if errors.Is(err, vital.ErrNetwork) {
				res.Stopped = true
				return res, nil
			}
			continue
		}

		if err := q.store.CompleteOfflineRequest(ctx, r.ID); err != nil {
			return res, fmt.Errorf("completing %s: %w", r.ID, err)
		}
		res.Replayed++
		offlineReplays.WithLabelValues("replayed").Inc()
	}

	if res.Replayed > 0 || res.Failed > 0 {
		q.logger.Info("drained offline queue",
			zap.Int("replayed", res.Replayed),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

// Prune moves pending requests with maxRetries or more failures to failed and
// deletes completed ones.
func (q *Queue) Prune(ctx context.Context, maxRetries int) (failed, removed int64, err error) {
	if maxRetries > 0 {
		if failed, err = q.store.FailExhaustedOfflineRequests(ctx, maxRetries); err != nil {
			return 0, 0, fmt.Errorf("failing exhausted requests: %w", err)
		}
	}
	if removed, err = q.store.DeleteFinishedOfflineRequests(ctx); err != nil {
		return failed, 0, fmt.Errorf("deleting finished requests: %w", err)
	}
	return failed, removed, nil
}

// ReplayOnReconnect drains the queue on every true received from online, which
// carries reachability transitions. It returns when ctx is cancelled or online
// is closed.
func (q *Queue) ReplayOnReconnect(ctx context.Context, online <-chan bool, rp Replayer) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-online:
			if !ok {
				return
			}
			if !up {
				continue
			}
			if _, err := q.Drain(ctx, rp); err != nil && ctx.Err() == nil {
				q.logger.Error("failed to drain offline queue", zap.Error(err))
			}
		}
	}
}
