package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendSecurityLog adds an audit entry. Entries are never updated.
func (s *Store) AppendSecurityLog(ctx context.Context, l SecurityLog) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	if l.Details == "" {
		l.Details = "{}"
	}
	_, err = db.ExecContext(ctx, `INSERT INTO security_logs (event_type, timestamp, details, success) VALUES (?, ?, ?, ?)`,
		l.EventType, formatTime(l.Timestamp), l.Details, l.Success)
	return err
}

// RecentSecurityLogs returns up to limit entries, newest first.
func (s *Store) RecentSecurityLogs(ctx context.Context, limit int) ([]SecurityLog, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, details, success
		FROM security_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SecurityLog
	for rows.Next() {
		var l SecurityLog
		var ts string
		if err := rows.Scan(&l.ID, &l.EventType, &ts, &l.Details, &l.Success); err != nil {
			return nil, err
		}
		if l.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp for security log %d: %w", l.ID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- Secure KV ---

func (s *Store) PutSecureValue(ctx context.Context, key string, value []byte) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO secure_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()))
	return err
}

func (s *Store) GetSecureValue(ctx context.Context, key string) ([]byte, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var value []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM secure_store WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *Store) DeleteSecureValue(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM secure_store WHERE key = ?`, key)
	return err
}
