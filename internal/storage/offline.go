package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const offlineColumns = `id, method, url, data, headers, created_at, updated_at, retry_count, priority, status, last_error`

func scanOffline(row rowScanner) (OfflineRequest, error) {
	var (
		r                    OfflineRequest
		createdAt, updatedAt int64
		lastError            sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Method, &r.URL, &r.Data, &r.Headers, &createdAt, &updatedAt,
		&r.RetryCount, &r.Priority, &r.Status, &lastError); err != nil {
		return OfflineRequest{}, err
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	r.LastError = lastError.String
	return r, nil
}

// EnqueueOfflineRequest stores a request made while offline.
func (s *Store) EnqueueOfflineRequest(ctx context.Context, r OfflineRequest) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO offline_requests (id, method, url, data, headers, created_at, updated_at, retry_count, priority, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, 'pending')`,
		r.ID, r.Method, r.URL, r.Data, r.Headers, millis(r.CreatedAt), millis(r.CreatedAt), r.Priority,
	)
	return err
}

// PendingOfflineRequests returns pending requests in replay order:
// highest priority first, then oldest first.
func (s *Store) PendingOfflineRequests(ctx context.Context, limit int) ([]OfflineRequest, error) {
	return s.listOffline(ctx, OfflinePending, limit)
}

// ListOfflineRequests returns requests with the given status in replay order.
// An empty status lists all of them.
func (s *Store) ListOfflineRequests(ctx context.Context, status string, limit int) ([]OfflineRequest, error) {
	return s.listOffline(ctx, status, limit)
}

func (s *Store) listOffline(ctx context.Context, status string, limit int) ([]OfflineRequest, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+offlineColumns+` FROM offline_requests
		WHERE (? = '' OR status = ?)
		ORDER BY priority DESC, created_at ASC, rowid ASC
		LIMIT ?`, status, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OfflineRequest
	for rows.Next() {
		r, err := scanOffline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompleteOfflineRequest marks a replayed request done.
func (s *Store) CompleteOfflineRequest(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE offline_requests SET status = 'done', last_error = NULL, updated_at = ? WHERE id = ?`,
		millis(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailOfflineRequest increments the retry count and leaves the request pending.
// Returns the new retry count.
func (s *Store) FailOfflineRequest(ctx context.Context, id string, errMsg string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var retries int
	err = tx.QueryRowContext(ctx, `SELECT retry_count FROM offline_requests WHERE id = ?`, id).Scan(&retries)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	retries++

	if _, err := tx.ExecContext(ctx, `
		UPDATE offline_requests SET status = 'pending', retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?`, retries, errMsg, millis(time.Now()), id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return retries, nil
}

// FailExhaustedOfflineRequests moves pending requests with at least maxRetries
// failures to the failed state.
func (s *Store) FailExhaustedOfflineRequests(ctx context.Context, maxRetries int) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE offline_requests SET status = 'failed', updated_at = ?
		WHERE status = 'pending' AND retry_count >= ?`, millis(time.Now()), maxRetries)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteFinishedOfflineRequests removes done requests.
func (s *Store) DeleteFinishedOfflineRequests(ctx context.Context) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM offline_requests WHERE status = 'done'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
