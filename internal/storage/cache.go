package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PutCacheEntry inserts or replaces an entry. Access statistics start over.
func (s *Store) PutCacheEntry(ctx context.Context, e CacheEntry) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	var expires sql.NullInt64
	if e.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: millis(*e.ExpiresAt), Valid: true}
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries (key, data, created_at, expires_at, priority, size, last_accessed, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		e.Key, e.Data, millis(e.CreatedAt), expires, e.Priority, e.Size, millis(e.LastAccessed),
	)
	return err
}

// GetCacheEntry returns the entry for key, expired or not.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (CacheEntry, error) {
	db, err := s.conn()
	if err != nil {
		return CacheEntry{}, err
	}
	var (
		e                       CacheEntry
		createdAt, lastAccessed int64
		expires                 sql.NullInt64
	)
	err = db.QueryRowContext(ctx, `
		SELECT key, data, created_at, expires_at, priority, size, last_accessed, access_count
		FROM cache_entries WHERE key = ?`, key,
	).Scan(&e.Key, &e.Data, &createdAt, &expires, &e.Priority, &e.Size, &lastAccessed, &e.AccessCount)
	if err == sql.ErrNoRows {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, err
	}
	e.CreatedAt = fromMillis(createdAt)
	e.LastAccessed = fromMillis(lastAccessed)
	if expires.Valid {
		t := fromMillis(expires.Int64)
		e.ExpiresAt = &t
	}
	return e, nil
}

// TouchCacheEntry records a read of key at the given time.
func (s *Store) TouchCacheEntry(ctx context.Context, key string, at time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `UPDATE cache_entries SET last_accessed = ?, access_count = access_count + 1 WHERE key = ?`,
		millis(at), key)
	return err
}

func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// DeleteCacheEntries removes the given keys in one transaction and returns the bytes freed.
func (s *Store) DeleteCacheEntries(ctx context.Context, keys []string) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	in := "(?" + strings.Repeat(",?", len(keys)-1) + ")"

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning eviction transaction: %w", err)
	}
	defer tx.Rollback()

	var freed int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM cache_entries WHERE key IN `+in, args...).Scan(&freed); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE key IN `+in, args...); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing eviction: %w", err)
	}
	return freed, nil
}

func (s *Store) ClearCache(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return err
}

// CacheSize returns the sum of all entry sizes.
func (s *Store) CacheSize(ctx context.Context) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var total int64
	err = db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM cache_entries`).Scan(&total)
	return total, err
}

// EvictionCandidates lists up to limit entries of one priority tier, least
// recently accessed first, ties broken by lowest access count.
func (s *Store) EvictionCandidates(ctx context.Context, priority, limit int) ([]CacheVictim, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT key, size FROM cache_entries
		WHERE priority = ?
		ORDER BY last_accessed ASC, access_count ASC
		LIMIT ?`, priority, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CacheVictim
	for rows.Next() {
		var v CacheVictim
		if err := rows.Scan(&v.Key, &v.Size); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteExpiredCacheEntries purges entries whose expiry is at or before now.
func (s *Store) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, millis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CacheStats(ctx context.Context) (CacheStats, error) {
	db, err := s.conn()
	if err != nil {
		return CacheStats{}, err
	}
	var st CacheStats
	var oldest sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0), COUNT(*), MIN(created_at) FROM cache_entries`).
		Scan(&st.TotalSize, &st.EntryCount, &oldest); err != nil {
		return CacheStats{}, err
	}
	if oldest.Valid {
		t := fromMillis(oldest.Int64)
		st.OldestEntry = &t
	}

	err = db.QueryRowContext(ctx, `SELECT key, access_count FROM cache_entries ORDER BY access_count DESC, last_accessed DESC LIMIT 1`).
		Scan(&st.MostAccessedKey, &st.MostAccessedCount)
	if err != nil && err != sql.ErrNoRows {
		return CacheStats{}, err
	}
	return st, nil
}
