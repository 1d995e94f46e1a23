package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/vitalsync/internal/vital"
)

const vitalColumns = `id, type, value, value2, unit, recorded_date, source, created_at, updated_at, sync_status, synced_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVital(row rowScanner) (vital.Record, error) {
	var (
		r                    vital.Record
		typ, date, status    string
		createdAt, updatedAt string
		value2               sql.NullFloat64
		syncedAt             sql.NullString
	)
	if err := row.Scan(&r.ID, &typ, &r.Value, &value2, &r.Unit, &date, &r.Source, &createdAt, &updatedAt, &status, &syncedAt); err != nil {
		return vital.Record{}, err
	}

	t, err := vital.ParseType(typ)
	if err != nil {
		return vital.Record{}, fmt.Errorf("vital %d: %w", r.ID, err)
	}
	r.Type = t
	r.RecordedDate = vital.Date(date)
	r.SecondaryValue = floatPtr(value2)
	r.SyncStatus = vital.SyncStatus(status)

	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return vital.Record{}, fmt.Errorf("parsing created_at for vital %d: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return vital.Record{}, fmt.Errorf("parsing updated_at for vital %d: %w", r.ID, err)
	}
	if r.SyncedAt, err = parseNullTime(syncedAt); err != nil {
		return vital.Record{}, fmt.Errorf("parsing synced_at for vital %d: %w", r.ID, err)
	}
	return r, nil
}

func normalizeRecord(r vital.Record, now time.Time) (vital.Record, error) {
	if !r.Type.Valid() {
		return r, fmt.Errorf("%w: %d", vital.ErrUnknownType, int(r.Type))
	}
	if _, err := vital.ParseDate(string(r.RecordedDate)); err != nil {
		return r, err
	}
	if r.Unit == "" {
		r.Unit = r.Type.Unit()
	}
	if r.Source == "" {
		r.Source = vital.DefaultSource
	}
	if r.SyncStatus == "" {
		r.SyncStatus = vital.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	return r, nil
}

func insertVitalTx(ctx context.Context, tx *sql.Tx, r vital.Record) (int64, error) {
	var syncedAt sql.NullString
	if r.SyncedAt != nil {
		syncedAt = sql.NullString{String: formatTime(*r.SyncedAt), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO vital_data (type, value, value2, unit, recorded_date, source, created_at, updated_at, sync_status, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Type.Wire(), r.Value, nullFloat(r.SecondaryValue), r.Unit, string(r.RecordedDate), r.Source,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt), string(r.SyncStatus), syncedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s on %s from %s already recorded", vital.ErrConstraintViolation, r.Type, r.RecordedDate, r.Source)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// InsertVital stores a new record and returns its id. Missing unit, source,
// status and timestamps are filled with defaults.
func (s *Store) InsertVital(ctx context.Context, r vital.Record) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	r, err = normalizeRecord(r, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertVitalTx(ctx, tx, r)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing insert: %w", err)
	}
	return id, nil
}

// GetVital returns a single record by id.
func (s *Store) GetVital(ctx context.Context, id int64) (vital.Record, error) {
	db, err := s.conn()
	if err != nil {
		return vital.Record{}, err
	}
	r, err := scanVital(db.QueryRowContext(ctx, `SELECT `+vitalColumns+` FROM vital_data WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return vital.Record{}, ErrNotFound
	}
	return r, err
}

// SelectVitals runs the standard vital column list followed by clause, e.g.
// "WHERE sync_status = ? ORDER BY id". It is the escape hatch for callers that
// need selections the typed queries do not cover.
func (s *Store) SelectVitals(ctx context.Context, clause string, args ...any) ([]vital.Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT `+vitalColumns+` FROM vital_data `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vital.Record
	for rows.Next() {
		r, err := scanVital(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryVitals returns records of one type, newest recorded date first.
func (s *Store) QueryVitals(ctx context.Context, typ vital.Type, rng *DateRange) ([]vital.Record, error) {
	where := []string{"type = ?"}
	args := []any{typ.Wire()}
	if rng != nil {
		if rng.From != "" {
			where = append(where, "recorded_date >= ?")
			args = append(args, string(rng.From))
		}
		if rng.To != "" {
			where = append(where, "recorded_date <= ?")
			args = append(args, string(rng.To))
		}
	}
	return s.SelectVitals(ctx, "WHERE "+strings.Join(where, " AND ")+" ORDER BY recorded_date DESC, id DESC", args...)
}

// AllVitals returns every record, newest recorded date first.
func (s *Store) AllVitals(ctx context.Context) ([]vital.Record, error) {
	return s.SelectVitals(ctx, "ORDER BY recorded_date DESC, id DESC")
}

// UnsyncedVitals returns records the remote has not acknowledged yet.
func (s *Store) UnsyncedVitals(ctx context.Context) ([]vital.Record, error) {
	return s.SelectVitals(ctx, "WHERE sync_status IN (?, ?) ORDER BY id ASC",
		string(vital.StatusPending), string(vital.StatusModified))
}

// CountUnsynced returns the number of pending and modified records.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vital_data WHERE sync_status IN (?, ?)`,
		string(vital.StatusPending), string(vital.StatusModified)).Scan(&n)
	return n, err
}

// UpdateVital replaces a record's values. A synced record becomes modified.
func (s *Store) UpdateVital(ctx context.Context, id int64, value float64, secondary *float64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE vital_data
		SET value = ?, value2 = ?, updated_at = ?,
		    sync_status = CASE WHEN sync_status = 'synced' THEN 'modified' ELSE sync_status END
		WHERE id = ?`,
		value, nullFloat(secondary), formatTime(time.Now()), id,
	)
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

// DeleteVital removes a record. If the remote has ever seen it, a tombstone is
// queued in the same transaction so the deletion is pushed on the next sync.
func (s *Store) DeleteVital(ctx context.Context, id int64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	var typ, date, source string
	var syncedAt sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT type, recorded_date, source, synced_at FROM vital_data WHERE id = ?`, id).
		Scan(&typ, &date, &source, &syncedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if syncedAt.Valid {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_deletes (local_id, type, recorded_date, source, deleted_at)
			VALUES (?, ?, ?, ?, ?)`,
			id, typ, date, source, formatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("queueing tombstone: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vital_data WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkVitalsSynced flags the given records as synced, skipping any whose
// updated_at changed since they were read. Returns the number of rows marked.
func (s *Store) MarkVitalsSynced(ctx context.Context, records []vital.Record, at time.Time) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning mark-synced transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE vital_data SET sync_status = 'synced', synced_at = ?
		WHERE id = ? AND updated_at = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	marked := 0
	stamp := formatTime(at)
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, stamp, r.ID, formatTime(r.UpdatedAt))
		if err != nil {
			return 0, fmt.Errorf("marking vital %d synced: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		marked += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing mark-synced: %w", err)
	}
	return marked, nil
}

// ApplyRemoteValue overwrites a local record with the remote version and marks it synced.
func (s *Store) ApplyRemoteValue(ctx context.Context, id int64, value float64, secondary *float64, updatedAt, syncedAt time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE vital_data
		SET value = ?, value2 = ?, updated_at = ?, sync_status = 'synced', synced_at = ?
		WHERE id = ?`,
		value, nullFloat(secondary), formatTime(updatedAt), formatTime(syncedAt), id,
	)
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

// RequeueVital marks a record modified with a fresh updated_at so it wins the next upload.
func (s *Store) RequeueVital(ctx context.Context, id int64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE vital_data SET sync_status = 'modified', updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
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

// VitalExists reports whether any record exists for the type and date, regardless of source.
func (s *Store) VitalExists(ctx context.Context, typ vital.Type, date vital.Date) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vital_data WHERE type = ? AND recorded_date = ?`,
		typ.Wire(), string(date)).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertRemoteVital inserts a record downloaded from the remote as synced.
// It never merges: if the type and date are already present it fails with
// vital.ErrConstraintViolation.
func (s *Store) InsertRemoteVital(ctx context.Context, r vital.Record) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	r.SyncStatus = vital.StatusSynced
	if r.SyncedAt == nil {
		r.SyncedAt = &now
	}
	r, err = normalizeRecord(r, now)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning remote insert transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM vital_data WHERE type = ? AND recorded_date = ?`,
		r.Type.Wire(), string(r.RecordedDate)).Scan(&n); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, fmt.Errorf("%w: %s on %s already present locally", vital.ErrConstraintViolation, r.Type, r.RecordedDate)
	}

	id, err := insertVitalTx(ctx, tx, r)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing remote insert: %w", err)
	}
	return id, nil
}

// DeleteSyncedVitals removes synced records for a type and date. Unsynced
// local edits are kept. Used to apply remote deletions.
func (s *Store) DeleteSyncedVitals(ctx context.Context, typ vital.Type, date vital.Date) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM vital_data WHERE type = ? AND recorded_date = ? AND sync_status = 'synced'`,
		typ.Wire(), string(date))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearAllData removes all vitals and sync bookkeeping and restores default targets.
func (s *Store) ClearAllData(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning clear transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"vital_data", "pending_conflicts", "pending_deletes", "targets"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if err := seedTargetsTx(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
