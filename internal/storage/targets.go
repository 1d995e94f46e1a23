package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kalambet/vitalsync/internal/vital"
)

// UpsertTarget inserts or replaces the target for its type.
func (s *Store) UpsertTarget(ctx context.Context, t vital.Target) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %d", vital.ErrUnknownType, int(t.Type))
	}
	if t.Unit == "" {
		t.Unit = t.Type.Unit()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO targets (type, value, unit, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(type) DO UPDATE SET value = excluded.value, unit = excluded.unit, updated_at = excluded.updated_at`,
		t.Type.Wire(), t.Value, t.Unit, formatTime(time.Now()),
	)
	return err
}

// GetTarget returns the target for typ, or ErrNotFound.
func (s *Store) GetTarget(ctx context.Context, typ vital.Type) (vital.Target, error) {
	db, err := s.conn()
	if err != nil {
		return vital.Target{}, err
	}
	t := vital.Target{Type: typ}
	err = db.QueryRowContext(ctx, `SELECT value, unit FROM targets WHERE type = ?`, typ.Wire()).Scan(&t.Value, &t.Unit)
	if err == sql.ErrNoRows {
		return vital.Target{}, ErrNotFound
	}
	return t, err
}

func (s *Store) ListTargets(ctx context.Context) ([]vital.Target, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT type, value, unit FROM targets ORDER BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vital.Target
	for rows.Next() {
		var typ string
		var t vital.Target
		if err := rows.Scan(&typ, &t.Value, &t.Unit); err != nil {
			return nil, err
		}
		if t.Type, err = vital.ParseType(typ); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SeedDefaultTargets inserts the default targets without overwriting user values.
func (s *Store) SeedDefaultTargets(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := seedTargetsTx(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func seedTargetsTx(ctx context.Context, tx *sql.Tx) error {
	now := formatTime(time.Now())
	for _, t := range vital.DefaultTargets() {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO targets (type, value, unit, updated_at) VALUES (?, ?, ?, ?)`,
			t.Type.Wire(), t.Value, t.Unit, now); err != nil {
			return fmt.Errorf("seeding target %s: %w", t.Type, err)
		}
	}
	return nil
}
