package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/vitalsync/internal/vital"
)

func insertSteps(t *testing.T, s *Store, date string, value float64) int64 {
	t.Helper()
	id, err := s.InsertVital(ctx, vital.Record{Type: vital.Steps, Value: value, RecordedDate: vital.Date(date)})
	require.NoError(t, err)
	return id
}

func TestInsertVital_Defaults(t *testing.T) {
	s := openTestStore(t)

	id := insertSteps(t, s, "2025-07-08", 8500)
	got, err := s.GetVital(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, vital.Steps, got.Type)
	assert.Equal(t, 8500.0, got.Value)
	assert.Equal(t, "歩", got.Unit)
	assert.Equal(t, vital.DefaultSource, got.Source)
	assert.Equal(t, vital.StatusPending, got.SyncStatus)
	assert.Nil(t, got.SyncedAt)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestInsertVital_BloodPressureSecondary(t *testing.T) {
	s := openTestStore(t)

	id, err := s.InsertVital(ctx, vital.Record{
		Type: vital.BloodPressure, Value: 120, SecondaryValue: vital.Float(80), RecordedDate: "2025-07-08",
	})
	require.NoError(t, err)

	got, err := s.GetVital(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.SecondaryValue)
	assert.Equal(t, 80.0, *got.SecondaryValue)
	assert.Equal(t, "mmHg", got.Unit)
}

func TestInsertVital_DuplicateIsConstraintViolation(t *testing.T) {
	s := openTestStore(t)

	insertSteps(t, s, "2025-07-08", 8500)
	_, err := s.InsertVital(ctx, vital.Record{Type: vital.Steps, Value: 9000, RecordedDate: "2025-07-08"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, vital.ErrConstraintViolation), "got %v", err)

	// A different source for the same day is a distinct record.
	_, err = s.InsertVital(ctx, vital.Record{Type: vital.Steps, Value: 9000, RecordedDate: "2025-07-08", Source: "healthconnect"})
	require.NoError(t, err)
}

func TestInsertVital_Invalid(t *testing.T) {
	s := openTestStore(t)

	_, err := s.InsertVital(ctx, vital.Record{Type: vital.Type(99), Value: 1, RecordedDate: "2025-07-08"})
	assert.ErrorIs(t, err, vital.ErrUnknownType)

	_, err = s.InsertVital(ctx, vital.Record{Type: vital.Steps, Value: 1, RecordedDate: "July 8"})
	assert.Error(t, err)
}

func TestQueryVitals_OrderAndRange(t *testing.T) {
	s := openTestStore(t)

	insertSteps(t, s, "2025-07-06", 6000)
	insertSteps(t, s, "2025-07-08", 8000)
	insertSteps(t, s, "2025-07-07", 7000)
	_, err := s.InsertVital(ctx, vital.Record{Type: vital.Weight, Value: 64.2, RecordedDate: "2025-07-08"})
	require.NoError(t, err)

	all, err := s.QueryVitals(ctx, vital.Steps, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, vital.Date("2025-07-08"), all[0].RecordedDate)
	assert.Equal(t, vital.Date("2025-07-07"), all[1].RecordedDate)
	assert.Equal(t, vital.Date("2025-07-06"), all[2].RecordedDate)

	ranged, err := s.QueryVitals(ctx, vital.Steps, &DateRange{From: "2025-07-07"})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	ranged, err = s.QueryVitals(ctx, vital.Steps, &DateRange{From: "2025-07-06", To: "2025-07-06"})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, 6000.0, ranged[0].Value)
}

func TestUpdateVital_SyncedBecomesModified(t *testing.T) {
	s := openTestStore(t)

	id := insertSteps(t, s, "2025-07-08", 8000)
	rec, err := s.GetVital(ctx, id)
	require.NoError(t, err)

	// Pending stays pending.
	require.NoError(t, s.UpdateVital(ctx, id, 8100, nil))
	rec, err = s.GetVital(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vital.StatusPending, rec.SyncStatus)

	n, err := s.MarkVitalsSynced(ctx, []vital.Record{rec}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.UpdateVital(ctx, id, 8200, nil))
	rec, err = s.GetVital(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vital.StatusModified, rec.SyncStatus)
	assert.Equal(t, 8200.0, rec.Value)

	assert.ErrorIs(t, s.UpdateVital(ctx, 999, 1, nil), ErrNotFound)
}

func TestMarkVitalsSynced_SkipsConcurrentEdit(t *testing.T) {
	s := openTestStore(t)

	id := insertSteps(t, s, "2025-07-08", 8000)
	stale, err := s.GetVital(ctx, id)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.UpdateVital(ctx, id, 9000, nil))

	n, err := s.MarkVitalsSynced(ctx, []vital.Record{stale}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rec, err := s.GetVital(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vital.StatusPending, rec.SyncStatus)
}

func TestDeleteVital_TombstoneOnlyForSynced(t *testing.T) {
	s := openTestStore(t)

	neverSynced := insertSteps(t, s, "2025-07-07", 7000)
	synced := insertSteps(t, s, "2025-07-08", 8000)
	rec, err := s.GetVital(ctx, synced)
	require.NoError(t, err)
	_, err = s.MarkVitalsSynced(ctx, []vital.Record{rec}, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.DeleteVital(ctx, neverSynced))
	require.NoError(t, s.DeleteVital(ctx, synced))
	assert.ErrorIs(t, s.DeleteVital(ctx, synced), ErrNotFound)

	tombstones, err := s.ListPendingDeletes(ctx)
	require.NoError(t, err)
	require.Len(t, tombstones, 1)
	assert.Equal(t, synced, tombstones[0].LocalID)
	assert.Equal(t, vital.Date("2025-07-08"), tombstones[0].RecordedDate)

	// Delete then query reflects the net effect.
	recs, err := s.QueryVitals(ctx, vital.Steps, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, s.RemovePendingDeletes(ctx, []int64{tombstones[0].ID}))
	tombstones, err = s.ListPendingDeletes(ctx)
	require.NoError(t, err)
	assert.Empty(t, tombstones)
}

func TestUnsyncedVitals(t *testing.T) {
	s := openTestStore(t)

	a := insertSteps(t, s, "2025-07-06", 6000)
	b := insertSteps(t, s, "2025-07-07", 7000)
	insertSteps(t, s, "2025-07-08", 8000)

	recA, _ := s.GetVital(ctx, a)
	recB, _ := s.GetVital(ctx, b)
	_, err := s.MarkVitalsSynced(ctx, []vital.Record{recA, recB}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.UpdateVital(ctx, b, 7100, nil))

	unsynced, err := s.UnsyncedVitals(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 2)
	assert.Equal(t, vital.StatusModified, unsynced[0].SyncStatus)
	assert.Equal(t, vital.StatusPending, unsynced[1].SyncStatus)

	n, err := s.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInsertRemoteVital_RejectsExistingTypeDate(t *testing.T) {
	s := openTestStore(t)

	insertSteps(t, s, "2025-07-08", 8000)

	_, err := s.InsertRemoteVital(ctx, vital.Record{Type: vital.Steps, Value: 9000, RecordedDate: "2025-07-08", Source: "healthkit"})
	assert.ErrorIs(t, err, vital.ErrConstraintViolation)

	id, err := s.InsertRemoteVital(ctx, vital.Record{Type: vital.Steps, Value: 9100, RecordedDate: "2025-07-09", Source: "healthkit"})
	require.NoError(t, err)
	rec, err := s.GetVital(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vital.StatusSynced, rec.SyncStatus)
	assert.NotNil(t, rec.SyncedAt)

	exists, err := s.VitalExists(ctx, vital.Steps, "2025-07-09")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestApplyRemoteValueAndDeleteSynced(t *testing.T) {
	s := openTestStore(t)

	id := insertSteps(t, s, "2025-07-08", 8500)
	remoteUpdated := time.Date(2025, 7, 8, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.ApplyRemoteValue(ctx, id, 9000, nil, remoteUpdated, time.Now()))

	rec, err := s.GetVital(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 9000.0, rec.Value)
	assert.Equal(t, vital.StatusSynced, rec.SyncStatus)
	assert.True(t, rec.UpdatedAt.Equal(remoteUpdated))

	n, err := s.DeleteSyncedVitals(ctx, vital.Steps, "2025-07-08")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTargets(t *testing.T) {
	s := openTestStore(t)

	tgt, err := s.GetTarget(ctx, vital.Steps)
	require.NoError(t, err)
	assert.Equal(t, 8000.0, tgt.Value)

	_, err = s.GetTarget(ctx, vital.Pulse)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertTarget(ctx, vital.Target{Type: vital.Steps, Value: 10000}))
	tgt, err = s.GetTarget(ctx, vital.Steps)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, tgt.Value)
	assert.Equal(t, "歩", tgt.Unit)

	all, err := s.ListTargets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	// Seeding again must not overwrite user values.
	require.NoError(t, s.SeedDefaultTargets(ctx))
	tgt, err = s.GetTarget(ctx, vital.Steps)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, tgt.Value)
}

func TestClearAllData(t *testing.T) {
	s := openTestStore(t)

	insertSteps(t, s, "2025-07-08", 8000)
	require.NoError(t, s.UpsertTarget(ctx, vital.Target{Type: vital.Steps, Value: 12000}))
	require.NoError(t, s.SavePendingConflict(ctx, PendingConflict{ID: "1_r1", LocalID: 1, RemoteID: "r1", Type: vital.Steps, RecordedDate: "2025-07-08", LocalJSON: "{}", RemoteJSON: "{}"}))

	require.NoError(t, s.ClearAllData(ctx))

	all, err := s.AllVitals(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	conflicts, err := s.ListPendingConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	tgt, err := s.GetTarget(ctx, vital.Steps)
	require.NoError(t, err)
	assert.Equal(t, 8000.0, tgt.Value)
}

func TestPendingConflicts(t *testing.T) {
	s := openTestStore(t)

	c := PendingConflict{
		ID: "7_r-9", LocalID: 7, RemoteID: "r-9", Type: vital.Steps, RecordedDate: "2025-07-08",
		LocalJSON: `{"value":8000}`, RemoteJSON: `{"value":8500}`,
	}
	require.NoError(t, s.SavePendingConflict(ctx, c))
	c.RemoteJSON = `{"value":8600}`
	require.NoError(t, s.SavePendingConflict(ctx, c))

	list, err := s.ListPendingConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, `{"value":8600}`, list[0].RemoteJSON)

	ids, err := s.ConflictedLocalIDs(ctx)
	require.NoError(t, err)
	assert.True(t, ids[7])

	got, err := s.GetPendingConflict(ctx, "7_r-9")
	require.NoError(t, err)
	assert.Equal(t, vital.Steps, got.Type)

	require.NoError(t, s.DeletePendingConflict(ctx, "7_r-9"))
	assert.ErrorIs(t, s.DeletePendingConflict(ctx, "7_r-9"), ErrNotFound)
}
