package syncer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/vitalsync/internal/clock"
	"github.com/kalambet/vitalsync/internal/remote"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

var ctx = context.Background()

var epoch = time.Date(2025, 7, 8, 9, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mu      sync.Mutex
	vitals  []remote.RemoteVital
	reject  map[string]bool
	sinces  []time.Time
	uploads [][]remote.UploadVital
	deletes [][]remote.RemoteDelete

	getErr    error
	uploadErr error
	onGet     func()
}

func (f *fakeRemote) GetVitals(_ context.Context, since time.Time, _ bool) ([]remote.RemoteVital, error) {
	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	hook := f.onGet
	out := append([]remote.RemoteVital(nil), f.vitals...)
	err := f.getErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, err
}

func (f *fakeRemote) UploadVitalsBatch(_ context.Context, batch []remote.UploadVital) (remote.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, batch)
	if f.uploadErr != nil {
		return remote.BatchResult{}, f.uploadErr
	}
	var res remote.BatchResult
	for _, u := range batch {
		if f.reject[u.LocalID] {
			res.FailedIDs = append(res.FailedIDs, u.LocalID)
			res.FailedCount++
			continue
		}
		res.ProcessedIDs = append(res.ProcessedIDs, u.LocalID)
		res.UploadedCount++
	}
	return res, nil
}

func (f *fakeRemote) DeleteVitals(_ context.Context, deletes []remote.RemoteDelete) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deletes)
	return nil
}

func (f *fakeRemote) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinces)
}

type fakeNet struct{ offline atomic.Bool }

func (n *fakeNet) Online() bool { return !n.offline.Load() }

type fixture struct {
	engine *Engine
	store  *storage.Store
	remote *fakeRemote
	clock  *clock.Fake
	net    *fakeNet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:  s,
		remote: &fakeRemote{},
		clock:  clock.NewFake(epoch),
		net:    &fakeNet{},
	}
	f.engine, err = New(Deps{Store: s, Remote: f.remote, Network: f.net, Clock: f.clock}, Options{}, nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) addLocal(t *testing.T, typ vital.Type, date string, value float64, updated time.Time) int64 {
	t.Helper()
	id, err := f.store.InsertVital(ctx, vital.Record{
		Type:         typ,
		Value:        value,
		RecordedDate: vital.Date(date),
		CreatedAt:    updated,
		UpdatedAt:    updated,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) addSynced(t *testing.T, typ vital.Type, date string, value float64) int64 {
	t.Helper()
	id := f.addLocal(t, typ, date, value, epoch.Add(-24*time.Hour))
	rec, err := f.store.GetVital(ctx, id)
	require.NoError(t, err)
	n, err := f.store.MarkVitalsSynced(ctx, []vital.Record{rec}, epoch.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return id
}

func (f *fixture) get(t *testing.T, id int64) vital.Record {
	t.Helper()
	rec, err := f.store.GetVital(ctx, id)
	require.NoError(t, err)
	return rec
}

func steps(id string, date string, value float64, updated time.Time) remote.RemoteVital {
	return remote.RemoteVital{
		ID:         id,
		Type:       "steps",
		Value:      value,
		MeasuredAt: date + "T00:00:00Z",
		Source:     "manual",
		UpdatedAt:  updated,
	}
}

func TestConflictResolution(t *testing.T) {
	tests := []struct {
		name         string
		strategy     Strategy
		remoteOffset time.Duration
		wantValue    float64
		wantUploaded int
	}{
		{"remote wins even when older", RemoteWins, -time.Hour, 8500, 0},
		{"local wins even when older", LocalWins, time.Hour, 8000, 1},
		{"merge keeps newer local", Merge, -time.Hour, 8000, 1},
		{"merge keeps newer remote", Merge, time.Hour, 8500, 0},
		{"merge tie goes to remote", Merge, 0, 8500, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.engine.SetStrategy(ctx, tt.strategy))

			id := f.addLocal(t, vital.Steps, "2025-07-08", 8000, epoch)
			f.remote.vitals = []remote.RemoteVital{steps("r1", "2025-07-08", 8500, epoch.Add(tt.remoteOffset))}

			res, err := f.engine.PerformSync(ctx)
			require.NoError(t, err)
			require.NoError(t, res.Err())
			assert.Equal(t, 1, res.Conflicts.Detected)
			assert.Equal(t, 1, res.Conflicts.Resolved)
			assert.Equal(t, tt.wantUploaded, res.Uploaded)

			rec := f.get(t, id)
			assert.Equal(t, tt.wantValue, rec.Value)
			assert.Equal(t, vital.StatusSynced, rec.SyncStatus)
		})
	}
}

func TestMergeAppliesNewerRemoteValue(t *testing.T) {
	f := newFixture(t)
	id := f.addLocal(t, vital.Steps, "2025-07-08", 8500, epoch)
	f.remote.vitals = []remote.RemoteVital{steps("r1", "2025-07-08", 9000, epoch.Add(time.Minute))}

	_, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)

	rec := f.get(t, id)
	assert.Equal(t, 9000.0, rec.Value)
	assert.Equal(t, vital.StatusSynced, rec.SyncStatus)
	assert.True(t, rec.UpdatedAt.Equal(epoch.Add(time.Minute)))
	assert.Empty(t, f.remote.uploads, "remote-won records are not uploaded")
}

func TestPartialBatchMarksOnlyProcessed(t *testing.T) {
	f := newFixture(t)
	ok := f.addLocal(t, vital.Steps, "2025-07-08", 8000, epoch)
	bad := f.addLocal(t, vital.Weight, "2025-07-08", 64.5, epoch)
	f.remote.reject = map[string]bool{strconv.FormatInt(bad, 10): true}

	res, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.Failed)

	assert.Equal(t, vital.StatusSynced, f.get(t, ok).SyncStatus)
	assert.Equal(t, vital.StatusPending, f.get(t, bad).SyncStatus)

	require.Len(t, f.remote.uploads, 1)
	assert.Len(t, f.remote.uploads[0], 2)
}

func TestRemoteInsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.remote.vitals = []remote.RemoteVital{{
		ID:         "r9",
		Type:       "weight",
		Value:      63.2,
		MeasuredAt: "2025-07-07T06:30:00+09:00",
		Source:     "healthkit",
		UpdatedAt:  epoch.Add(-time.Hour),
	}}

	res, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	recs, err := f.store.QueryVitals(ctx, vital.Weight, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, vital.Date("2025-07-07"), recs[0].RecordedDate)
	assert.Equal(t, 63.2, recs[0].Value)
	assert.Equal(t, "healthkit", recs[0].Source)
	assert.Equal(t, vital.StatusSynced, recs[0].SyncStatus)

	f.clock.Advance(time.Hour)
	res, err = f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)

	recs, err = f.store.QueryVitals(ctx, vital.Weight, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	require.Len(t, f.remote.sinces, 2)
	assert.Equal(t, time.Unix(0, 0).UTC(), f.remote.sinces[0])
	assert.True(t, f.remote.sinces[1].Equal(epoch), "second fetch starts at the first cycle's start")
}

func TestIgnoresUnknownRemoteType(t *testing.T) {
	f := newFixture(t)
	f.remote.vitals = []remote.RemoteVital{
		{ID: "x", Type: "glucose", Value: 5, MeasuredAt: "2025-07-08T00:00:00Z"},
		{ID: "y", Type: "steps", Value: 5, MeasuredAt: "yesterday"},
	}

	res, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
}

func TestRemoteDeletion(t *testing.T) {
	f := newFixture(t)
	synced := f.addSynced(t, vital.Steps, "2025-07-06", 7000)
	edited := f.addLocal(t, vital.Steps, "2025-07-05", 6000, epoch)

	gone := steps("r1", "2025-07-06", 7000, epoch)
	gone.Deleted = true
	stale := steps("r2", "2025-07-05", 6000, epoch.Add(-time.Hour))
	stale.Deleted = true
	f.remote.vitals = []remote.RemoteVital{gone, stale}

	res, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	_, err = f.store.GetVital(ctx, synced)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 6000.0, f.get(t, edited).Value, "unsynced edits survive remote deletion")
}

func TestTombstonesArePushed(t *testing.T) {
	f := newFixture(t)
	id := f.addSynced(t, vital.Temperature, "2025-07-01", 36.6)
	require.NoError(t, f.store.DeleteVital(ctx, id))

	res, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Propagated)

	require.Len(t, f.remote.deletes, 1)
	assert.Equal(t, []remote.RemoteDelete{{
		Type:         "temperature",
		RecordedDate: "2025-07-01",
		Source:       "manual",
		LocalID:      strconv.FormatInt(id, 10),
	}}, f.remote.deletes[0])

	left, err := f.store.ListPendingDeletes(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestManualConflictIsHeld(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetStrategy(ctx, Manual))

	id := f.addLocal(t, vital.Steps, "2025-07-08", 8000, epoch)
	other := f.addLocal(t, vital.Weight, "2025-07-08", 64, epoch)
	f.remote.vitals = []remote.RemoteVital{steps("r1", "2025-07-08", 8500, epoch.Add(time.Hour))}

	res, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts.Pending)
	assert.ErrorIs(t, res.Err(), vital.ErrConflictUnresolved)

	require.Len(t, f.remote.uploads, 1)
	require.Len(t, f.remote.uploads[0], 1)
	assert.Equal(t, strconv.FormatInt(other, 10), f.remote.uploads[0][0].LocalID)

	conflicts, err := f.engine.PendingConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, fmt.Sprintf("%d_r1", id), c.ID)
	assert.Equal(t, 8000.0, c.Local.Value)
	assert.Equal(t, 8500.0, c.Remote.Value)

	rec := f.get(t, id)
	assert.Equal(t, 8000.0, rec.Value)
	assert.Equal(t, vital.StatusPending, rec.SyncStatus)

	// Still held on the next cycle.
	f.remote.vitals = nil
	res, err = f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts.Pending)
	assert.Len(t, f.remote.uploads, 1)

	require.NoError(t, f.engine.ResolveConflict(ctx, c.ID, ChoiceRemote))
	rec = f.get(t, id)
	assert.Equal(t, 8500.0, rec.Value)
	assert.Equal(t, vital.StatusSynced, rec.SyncStatus)

	conflicts, err = f.engine.PendingConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	assert.ErrorIs(t, f.engine.ResolveConflict(ctx, c.ID, ChoiceRemote), storage.ErrNotFound)
}

func TestResolveConflictLocalRequeues(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetStrategy(ctx, Manual))
	id := f.addLocal(t, vital.Steps, "2025-07-08", 8000, epoch)
	f.remote.vitals = []remote.RemoteVital{steps("r1", "2025-07-08", 8500, epoch)}

	_, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)

	require.NoError(t, f.engine.ResolveConflict(ctx, fmt.Sprintf("%d_r1", id), ChoiceLocal))
	assert.Equal(t, vital.StatusModified, f.get(t, id).SyncStatus)

	f.remote.vitals = nil
	res, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 0, res.Conflicts.Pending)

	rec := f.get(t, id)
	assert.Equal(t, 8000.0, rec.Value)
	assert.Equal(t, vital.StatusSynced, rec.SyncStatus)
}

func TestResolveConflictRejectsUnknownChoice(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.engine.ResolveConflict(ctx, "1_r1", Choice("both")))
}

func TestOfflineRecordsError(t *testing.T) {
	f := newFixture(t)
	f.addLocal(t, vital.Steps, "2025-07-08", 8000, epoch)
	f.net.offline.Store(true)

	_, err := f.engine.PerformSync(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, vital.ErrNetwork)
	assert.Zero(t, f.remote.getCalls())

	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.NotEmpty(t, st.LastError)
	assert.Nil(t, st.LastSyncTime)
	assert.Equal(t, 1, st.PendingChanges)
}

func TestUploadFailureLeavesRecordsPending(t *testing.T) {
	f := newFixture(t)
	id := f.addLocal(t, vital.Steps, "2025-07-08", 8000, epoch)
	f.remote.uploadErr = fmt.Errorf("status 503: %w", vital.ErrNetwork)

	_, err := f.engine.PerformSync(ctx)
	require.ErrorIs(t, err, vital.ErrNetwork)
	assert.Equal(t, vital.StatusPending, f.get(t, id).SyncStatus)

	f.remote.uploadErr = nil
	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)

	_, err = f.engine.PerformSync(ctx)
	require.NoError(t, err)
	st, err = f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
	assert.Empty(t, st.LastError)
	assert.Equal(t, 0, st.PendingChanges)
}

func TestStatusSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)

	again, err := New(Deps{Store: f.store, Remote: f.remote, Clock: f.clock}, Options{}, nil)
	require.NoError(t, err)
	st, err := again.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.LastSyncTime)
	assert.True(t, st.LastSyncTime.Equal(epoch))
	assert.Equal(t, StateCompleted, st.State)
	assert.False(t, st.SyncInProgress)
}

func TestConcurrentCallersShareCycle(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.remote.onGet = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	var wg sync.WaitGroup
	results := make([]error, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i > 0 {
				<-entered
			}
			_, results[i] = f.engine.PerformSync(ctx)
		}(i)
	}

	<-entered
	require.Eventually(t, func() bool {
		st, err := f.engine.Status(ctx)
		return err == nil && st.SyncInProgress
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.remote.getCalls())
}

func TestBudgetOverrunIsFlagged(t *testing.T) {
	f := newFixture(t)
	f.remote.vitals = []remote.RemoteVital{steps("r1", "2025-07-08", 8000, epoch)}
	f.remote.onGet = func() { f.clock.Advance(2 * time.Minute) }

	res, err := f.engine.PerformSyncWithBudget(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 2*time.Minute, res.Duration)
	assert.Equal(t, 1, res.Applied, "an overrun cycle still completes")

	f.remote.onGet = nil
	res, err = f.engine.PerformSyncWithBudget(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
}

func TestStrategyPersistence(t *testing.T) {
	f := newFixture(t)

	s, err := f.engine.Strategy(ctx)
	require.NoError(t, err)
	assert.Equal(t, Merge, s)

	require.NoError(t, f.engine.SetStrategy(ctx, RemoteWins))
	raw, err := f.store.GetSetting(ctx, StrategySettingKey)
	require.NoError(t, err)
	assert.Equal(t, "remote_wins", raw)

	assert.Error(t, f.engine.SetStrategy(ctx, Strategy("newest")))

	require.NoError(t, f.store.SetSetting(ctx, StrategySettingKey, "garbage"))
	s, err = f.engine.Strategy(ctx)
	require.NoError(t, err)
	assert.Equal(t, Merge, s)
}

func TestNewRequiresStoreAndRemote(t *testing.T) {
	_, err := New(Deps{}, Options{}, nil)
	assert.ErrorIs(t, err, vital.ErrNotInitialized)

	_, err = New(Deps{Store: &storage.Store{}, Remote: &fakeRemote{}}, Options{DefaultStrategy: "newest"}, nil)
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	for _, in := range []string{"local_wins", "REMOTE_WINS", " merge ", "manual"} {
		_, err := ParseStrategy(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseStrategy("latest")
	assert.Error(t, err)

	c, err := ParseChoice("Remote")
	require.NoError(t, err)
	assert.Equal(t, ChoiceRemote, c)
}
