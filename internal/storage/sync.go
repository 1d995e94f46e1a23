package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/vitalsync/internal/vital"
)

// --- Settings ---

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()),
	)
	return err
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", err
	}
	var value string
	err = db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// --- Pending conflicts ---

const conflictColumns = `id, local_id, remote_id, type, recorded_date, local_json, remote_json, created_at`

func scanConflict(row rowScanner) (PendingConflict, error) {
	var c PendingConflict
	var typ, date, createdAt string
	if err := row.Scan(&c.ID, &c.LocalID, &c.RemoteID, &typ, &date, &c.LocalJSON, &c.RemoteJSON, &createdAt); err != nil {
		return PendingConflict{}, err
	}
	t, err := vital.ParseType(typ)
	if err != nil {
		return PendingConflict{}, err
	}
	c.Type = t
	c.RecordedDate = vital.Date(date)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return PendingConflict{}, fmt.Errorf("parsing created_at for conflict %s: %w", c.ID, err)
	}
	return c, nil
}

// SavePendingConflict stores a conflict, replacing an earlier one with the same id.
func (s *Store) SavePendingConflict(ctx context.Context, c PendingConflict) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_conflicts (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LocalID, c.RemoteID, c.Type.Wire(), string(c.RecordedDate), c.LocalJSON, c.RemoteJSON, formatTime(c.CreatedAt),
	)
	return err
}

func (s *Store) GetPendingConflict(ctx context.Context, id string) (PendingConflict, error) {
	db, err := s.conn()
	if err != nil {
		return PendingConflict{}, err
	}
	c, err := scanConflict(db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM pending_conflicts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return PendingConflict{}, ErrNotFound
	}
	return c, err
}

func (s *Store) ListPendingConflicts(ctx context.Context) ([]PendingConflict, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT `+conflictColumns+` FROM pending_conflicts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConflictedLocalIDs returns the local record ids that have a conflict awaiting review.
func (s *Store) ConflictedLocalIDs(ctx context.Context) (map[int64]bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT local_id FROM pending_conflicts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *Store) DeletePendingConflict(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM pending_conflicts WHERE id = ?`, id)
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

// --- Tombstones ---

func (s *Store) ListPendingDeletes(ctx context.Context) ([]PendingDelete, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, local_id, type, recorded_date, source, deleted_at
		FROM pending_deletes ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingDelete
	for rows.Next() {
		var d PendingDelete
		var typ, date, deletedAt string
		if err := rows.Scan(&d.ID, &d.LocalID, &typ, &date, &d.Source, &deletedAt); err != nil {
			return nil, err
		}
		if d.Type, err = vital.ParseType(typ); err != nil {
			return nil, err
		}
		d.RecordedDate = vital.Date(date)
		if d.DeletedAt, err = parseTime(deletedAt); err != nil {
			return nil, fmt.Errorf("parsing deleted_at for tombstone %d: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RemovePendingDeletes drops tombstones once the remote acknowledged them.
func (s *Store) RemovePendingDeletes(ctx context.Context, ids []int64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.Repeat(",?", len(ids)-1)
	_, err = db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE id IN (?`+placeholders+`)`, args...)
	return err
}
