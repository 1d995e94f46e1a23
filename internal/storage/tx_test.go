package storage

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/vitalsync/internal/vital"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestInsertVital_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vital_data").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := s.InsertVital(ctx, vital.Record{Type: vital.Steps, Value: 8000, RecordedDate: "2025-07-08"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteVital_RollsBackTombstoneWhenDeleteFails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT type, recorded_date, source, synced_at FROM vital_data").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"type", "recorded_date", "source", "synced_at"}).
			AddRow("steps", "2025-07-08", "manual", "2025-07-08T10:00:00Z"))
	mock.ExpectExec("INSERT INTO pending_deletes").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM vital_data").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err := s.DeleteVital(ctx, 5)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearAllData_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM vital_data").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM pending_conflicts").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.ClearAllData(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clearing pending_conflicts")
	assert.NoError(t, mock.ExpectationsWereMet())
}
