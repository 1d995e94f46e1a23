// Package cache keeps remote responses in a size-bounded SQLite table with
// LRU eviction and TTL expiry, and queues requests made while offline.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/clock"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

const (
	DefaultMaxSizeBytes    = 50 << 20
	DefaultTTL             = 7 * 24 * time.Hour
	DefaultCleanupInterval = time.Hour

	evictBatch = 10
)

// Store is the persistence the Manager needs. Implemented by storage.Store.
type Store interface {
	PutCacheEntry(ctx context.Context, e storage.CacheEntry) error
	GetCacheEntry(ctx context.Context, key string) (storage.CacheEntry, error)
	TouchCacheEntry(ctx context.Context, key string, at time.Time) error
	DeleteCacheEntry(ctx context.Context, key string) error
	DeleteCacheEntries(ctx context.Context, keys []string) (int64, error)
	ClearCache(ctx context.Context) error
	CacheSize(ctx context.Context) (int64, error)
	EvictionCandidates(ctx context.Context, priority, limit int) ([]storage.CacheVictim, error)
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)
	CacheStats(ctx context.Context) (storage.CacheStats, error)
}

// Codec seals payloads before they are written and opens them on read.
type Codec interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

type Options struct {
	MaxSizeBytes int64
	DefaultTTL   time.Duration
	Codec        Codec       // optional
	Clock        clock.Clock // optional
}

// Stats summarises the cache contents.
type Stats struct {
	TotalSize    int64      `json:"totalSize"`
	EntryCount   int64      `json:"entryCount"`
	OldestEntry  *time.Time `json:"oldestEntry,omitempty"`
	MostAccessed *Access    `json:"mostAccessed,omitempty"`
}

type Access struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Manager is a bounded key-value cache. Capacity is a soft limit: a write that
// cannot be fully accommodated after eviction is still stored.
type Manager struct {
	store      Store
	codec      Codec
	clock      clock.Clock
	logger     *zap.Logger
	maxSize    int64
	defaultTTL time.Duration

	// mu serialises size accounting with the writes that depend on it.
	mu sync.Mutex
}

func NewManager(store Store, opts Options, logger *zap.Logger) *Manager {
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:      store,
		codec:      opts.Codec,
		clock:      opts.Clock,
		logger:     logger,
		maxSize:    opts.MaxSizeBytes,
		defaultTTL: opts.DefaultTTL,
	}
}

type putOptions struct {
	ttl      time.Duration
	noExpiry bool
	priority Priority
}

type PutOption func(*putOptions)

// WithTTL overrides the default TTL. A TTL of zero or less stores an entry
// that is already expired.
func WithTTL(d time.Duration) PutOption {
	return func(o *putOptions) { o.ttl = d }
}

// WithNoExpiry stores an entry that is only removed by eviction or Remove.
func WithNoExpiry() PutOption {
	return func(o *putOptions) { o.noExpiry = true }
}

func WithPriority(p Priority) PutOption {
	return func(o *putOptions) { o.priority = p }
}

// Put stores payload under key, evicting low then medium priority entries if
// the write would exceed capacity.
func (m *Manager) Put(ctx context.Context, key string, payload []byte, opts ...PutOption) error {
	o := putOptions{ttl: m.defaultTTL, priority: Medium}
	for _, opt := range opts {
		opt(&o)
	}

	data := payload
	if m.codec != nil {
		sealed, err := m.codec.Seal(payload)
		if err != nil {
			return fmt.Errorf("sealing cache entry %q: %w", key, err)
		}
		data = sealed
	}
	size := int64(len(data))

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.CacheSize(ctx)
	if err != nil {
		return fmt.Errorf("reading cache size: %w", err)
	}
	// The old version of key is overwritten in place and never counts
	// against the new write.
	old, err := m.store.GetCacheEntry(ctx, key)
	switch {
	case err == nil:
		current -= old.Size
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("reading cache entry %q: %w", key, err)
	}

	if current+size > m.maxSize {
		freed, err := m.evict(ctx, key, current+size-m.maxSize)
		if err != nil {
			return fmt.Errorf("evicting cache entries: %w", err)
		}
		current -= freed
		if current+size > m.maxSize {
			cacheOverCapacity.Inc()
			m.logger.Warn("cache over capacity after eviction",
				zap.String("key", key),
				zap.Int64("size", size),
				zap.Int64("total", current+size),
				zap.Int64("max", m.maxSize),
				zap.Error(vital.ErrCapacityExceeded),
			)
		}
	}

	now := m.clock.Now()
	entry := storage.CacheEntry{
		Key:          key,
		Data:         data,
		CreatedAt:    now,
		Priority:     o.priority.rank(),
		Size:         size,
		LastAccessed: now,
	}
	if !o.noExpiry {
		exp := now.Add(o.ttl)
		if o.ttl <= 0 {
			exp = now
		}
		entry.ExpiresAt = &exp
	}

	if err := m.store.PutCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("storing cache entry %q: %w", key, err)
	}
	cacheSizeBytes.Set(float64(current + size))
	return nil
}

// evict removes whole batches of low, then medium priority entries until at
// least need bytes are freed or nothing evictable remains. The entry being
// replaced, keep, is never a victim.
func (m *Manager) evict(ctx context.Context, keep string, need int64) (int64, error) {
	var freed int64
	for _, tier := range []Priority{Low, Medium} {
		for freed < need {
			victims, err := m.store.EvictionCandidates(ctx, tier.rank(), evictBatch)
			if err != nil {
				return freed, err
			}
			keys := make([]string, 0, len(victims))
			for _, v := range victims {
				if v.Key != keep {
					keys = append(keys, v.Key)
				}
			}
			if len(keys) == 0 {
				break
			}
			n, err := m.store.DeleteCacheEntries(ctx, keys)
			if err != nil {
				return freed, err
			}
			freed += n
			cacheEvictions.WithLabelValues(tier.String()).Add(float64(len(keys)))
			m.logger.Debug("evicted cache entries",
				zap.String("priority", tier.String()),
				zap.Int("count", len(keys)),
				zap.Int64("freed", n),
			)
		}
		if freed >= need {
			break
		}
	}
	return freed, nil
}

// Get returns the payload for key. Missing and expired entries report false;
// expired entries are deleted on the way out.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.store.GetCacheEntry(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %q: %w", key, err)
	}

	now := m.clock.Now()
	if e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
		cacheLookups.WithLabelValues("expired").Inc()
		if err := m.store.DeleteCacheEntry(ctx, key); err != nil {
			m.logger.Warn("failed to purge expired cache entry", zap.String("key", key), zap.Error(err))
		} else {
			m.syncSizeGauge(ctx)
		}
		return nil, false, nil
	}

	if err := m.store.TouchCacheEntry(ctx, key, now); err != nil {
		return nil, false, fmt.Errorf("updating access for %q: %w", key, err)
	}

	data := e.Data
	if m.codec != nil {
		if data, err = m.codec.Open(e.Data); err != nil {
			return nil, false, fmt.Errorf("opening cache entry %q: %w", key, err)
		}
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return data, true, nil
}

func (m *Manager) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.DeleteCacheEntry(ctx, key); err != nil {
		return err
	}
	m.syncSizeGauge(ctx)
	return nil
}

func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.ClearCache(ctx); err != nil {
		return err
	}
	cacheSizeBytes.Set(0)
	return nil
}

func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	st, err := m.store.CacheStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	out := Stats{
		TotalSize:   st.TotalSize,
		EntryCount:  st.EntryCount,
		OldestEntry: st.OldestEntry,
	}
	if st.MostAccessedKey != "" {
		out.MostAccessed = &Access{Key: st.MostAccessedKey, Count: st.MostAccessedCount}
	}
	return out, nil
}

// Cleanup purges every expired entry regardless of priority.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.store.DeleteExpiredCacheEntries(ctx, m.clock.Now())
	if err != nil {
		return 0, err
	}
	cacheExpired.Add(float64(n))
	if n > 0 {
		m.syncSizeGauge(ctx)
	}
	return n, nil
}

// syncSizeGauge publishes the stored total after entries were removed.
func (m *Manager) syncSizeGauge(ctx context.Context) {
	total, err := m.store.CacheSize(ctx)
	if err != nil {
		m.logger.Warn("failed to read cache size", zap.Error(err))
		return
	}
	cacheSizeBytes.Set(float64(total))
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.Cleanup(ctx)
				if err != nil {
					m.logger.Error("failed to clean expired cache entries", zap.Error(err))
					continue
				}
				if n > 0 {
					m.logger.Info("cleaned expired cache entries", zap.Int64("removed", n))
				}
			}
		}
	}()
}
