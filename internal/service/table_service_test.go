package service_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabledash/internal/chart"
	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
	"tabledash/internal/service"
	"tabledash/internal/storage"
	"tabledash/internal/tablesync"
)

var pets = domain.Handle{Store: "shelter", Collection: "pets"}

type fixture struct {
	drv     *dbclient.MemoryDriver
	journal *storage.SaveLogStore
	emitter *service.MockEmitter
	svc     *service.TableService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	drv := dbclient.NewMemoryDriver()
	drv.Seed(pets.Store, pets.Collection,
		domain.Record{{Name: "_id", Value: 1}, {Name: "age", Value: 3}, {Name: "animal", Value: "cat"}},
		domain.Record{{Name: "_id", Value: 2}, {Name: "age", Value: 5}, {Name: "animal", Value: "dog"}},
	)
	db, err := storage.New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{drv: drv, journal: storage.NewSaveLogStore(db), emitter: &service.MockEmitter{}}
	f.svc = service.NewTableService(drv, f.journal, f.emitter, time.Second)
	return f
}

func (f *fixture) openPets(t *testing.T) string {
	t.Helper()
	id := f.svc.OpenSession()
	_, err := f.svc.Dispatch(context.Background(), id, tablesync.Intent{
		Kind: tablesync.IntentSelectionChanged, Store: pets.Store, Collection: pets.Collection,
	})
	require.NoError(t, err)
	return id
}

type countingRecorder struct {
	mu       sync.Mutex
	statuses []domain.SaveStatus
	open     int
}

func (r *countingRecorder) SaveFinished(s domain.SaveStatus) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *countingRecorder) SessionsOpen(n int) {
	r.mu.Lock()
	r.open = n
	r.mu.Unlock()
}

// ─────────────────────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────────────────────

func TestTableService_SessionLifecycle(t *testing.T) {
	f := newFixture(t)
	rec := &countingRecorder{}
	f.svc.SetRecorder(rec)

	id := f.svc.OpenSession()
	assert.Equal(t, 1, rec.open)

	st, err := f.svc.State(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateUnselected, st.State)

	_, err = f.svc.Snapshot(id)
	assert.ErrorIs(t, err, domain.ErrRange)

	require.NoError(t, f.svc.CloseSession(id))
	assert.Equal(t, 0, rec.open)
	assert.ErrorIs(t, f.svc.CloseSession(id), domain.ErrNotFound)

	_, err = f.svc.Dispatch(context.Background(), id, tablesync.Intent{Kind: tablesync.IntentRefresh})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTableService_SelectEmitsEvents(t *testing.T) {
	f := newFixture(t)
	id := f.openPets(t)

	assert.Equal(t, []string{service.EventSelection, service.EventTableLoaded}, f.emitter.Names())

	snap, err := f.svc.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
}

// ─────────────────────────────────────────────────────────────
// Journaled saves
// ─────────────────────────────────────────────────────────────

func TestTableService_SaveIsJournaled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := &countingRecorder{}
	f.svc.SetRecorder(rec)
	id := f.openPets(t)

	_, err := f.svc.Dispatch(ctx, id, tablesync.Intent{Kind: tablesync.IntentAddRow})
	require.NoError(t, err)
	up, err := f.svc.Dispatch(ctx, id, tablesync.Intent{Kind: tablesync.IntentSave})
	require.NoError(t, err)
	assert.Equal(t, 3, up.Ack.Inserted)

	runs, err := f.svc.SaveHistory(pets.Store, pets.Collection, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.SaveSuccess, runs[0].Status)
	assert.Equal(t, id, runs[0].SessionID)
	assert.Equal(t, 2, runs[0].RowsDeleted)
	assert.Equal(t, 3, runs[0].RowsWritten)
	assert.Empty(t, runs[0].PendingJSON)

	assert.Contains(t, f.emitter.Names(), service.EventTableSaved)
	assert.Equal(t, []domain.SaveStatus{domain.SaveSuccess}, rec.statuses)
}

func TestTableService_PartialSaveKeepsPendingRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.openPets(t)

	f.drv.FailInsertAfter(1, domain.ErrValidation)
	up, err := f.svc.Dispatch(ctx, id, tablesync.Intent{Kind: tablesync.IntentSave})
	require.Error(t, err)
	assert.Nil(t, up.Ack)
	assert.Equal(t, 2, up.Snapshot.Len(), "unsaved table is kept")

	runs, err := f.svc.SaveHistory(pets.Store, pets.Collection, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.SavePartial, runs[0].Status)
	assert.Equal(t, 2, runs[0].RowsDeleted)
	assert.Equal(t, 1, runs[0].RowsWritten)

	var pending []map[string]any
	require.NoError(t, json.Unmarshal([]byte(runs[0].PendingJSON), &pending))
	assert.Len(t, pending, 2)
	assert.Equal(t, "dog", pending[1]["animal"])

	names := f.emitter.Names()
	assert.Equal(t, service.EventTableSaveFailed, names[len(names)-1])
}

func TestTableService_ConcurrentSaveOfSameCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// the journal parks the first save so a second one overlaps it
	blocker := &blockingJournal{release: make(chan struct{}), started: make(chan struct{})}
	svc := service.NewTableService(f.drv, blocker, f.emitter, time.Second)
	a := openOn(t, svc)
	b := openOn(t, svc)

	errc := make(chan error, 1)
	go func() {
		_, err := svc.Dispatch(ctx, a, tablesync.Intent{Kind: tablesync.IntentSave})
		errc <- err
	}()
	<-blocker.started

	_, err := svc.Dispatch(ctx, b, tablesync.Intent{Kind: tablesync.IntentSave})
	assert.ErrorIs(t, err, domain.ErrSaveInProgress)

	close(blocker.release)
	require.NoError(t, <-errc)

	_, err = svc.Dispatch(ctx, b, tablesync.Intent{Kind: tablesync.IntentSave})
	assert.NoError(t, err)
}

func TestTableService_SaveWritesTheJournaledCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.drv.Seed(pets.Store, "strays")

	blocker := &blockingJournal{release: make(chan struct{}), started: make(chan struct{})}
	svc := service.NewTableService(f.drv, blocker, f.emitter, time.Second)
	id := openOn(t, svc)
	_, err := svc.Dispatch(ctx, id, tablesync.Intent{Kind: tablesync.IntentAddRow})
	require.NoError(t, err)

	type result struct {
		up  *tablesync.Update
		err error
	}
	saved := make(chan result, 1)
	go func() {
		up, err := svc.Dispatch(ctx, id, tablesync.Intent{Kind: tablesync.IntentSave})
		saved <- result{up, err}
	}()
	<-blocker.started

	// a selection change while the save is under way waits for it
	switched := make(chan error, 1)
	go func() {
		_, err := svc.Dispatch(ctx, id, tablesync.Intent{
			Kind: tablesync.IntentSelectionChanged, Store: pets.Store, Collection: "strays",
		})
		switched <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(blocker.release)

	res := <-saved
	require.NoError(t, res.err)
	require.NoError(t, <-switched)

	require.NotNil(t, res.up.Ack)
	assert.Equal(t, pets, res.up.Ack.Handle)
	assert.Equal(t, []string{pets.String()}, blocker.runs)
	assert.Len(t, f.drv.Records(pets), 3)
	assert.Empty(t, f.drv.Records(domain.Handle{Store: pets.Store, Collection: "strays"}))
}

func openOn(t *testing.T, svc *service.TableService) string {
	t.Helper()
	id := svc.OpenSession()
	_, err := svc.Dispatch(context.Background(), id, tablesync.Intent{
		Kind: tablesync.IntentSelectionChanged, Store: pets.Store, Collection: pets.Collection,
	})
	require.NoError(t, err)
	return id
}

// blockingJournal parks the first StartRun until release is closed.
type blockingJournal struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	runs []string
}

func (j *blockingJournal) StartRun(run *domain.SaveRun) error {
	j.mu.Lock()
	j.runs = append(j.runs, run.Store+"/"+run.Collection)
	j.mu.Unlock()

	first := false
	j.once.Do(func() { first = true })
	if first {
		close(j.started)
		<-j.release
	}
	run.ID = "run"
	return nil
}

func (j *blockingJournal) FinishRun(*domain.SaveRun) error { return nil }

func (j *blockingJournal) ListRuns(domain.Handle, int) ([]domain.SaveRun, error) { return nil, nil }

// ─────────────────────────────────────────────────────────────
// Refresh, charts, browsing
// ─────────────────────────────────────────────────────────────

func TestTableService_RefreshAllSkipsDirtySessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	clean := f.openPets(t)
	dirty := f.openPets(t)
	f.svc.OpenSession() // nothing loaded, ignored

	_, err := f.svc.Dispatch(ctx, dirty, tablesync.Intent{Kind: tablesync.IntentDeleteRow, Row: 0})
	require.NoError(t, err)

	f.drv.Seed(pets.Store, pets.Collection, domain.Record{{Name: "age", Value: 9}, {Name: "animal", Value: "fox"}})

	res := f.svc.RefreshAll(ctx)
	assert.Equal(t, service.RefreshResult{Refreshed: 1, Skipped: 1}, res)

	snap, _ := f.svc.Snapshot(clean)
	assert.Equal(t, 3, snap.Len())
	snap, _ = f.svc.Snapshot(dirty)
	assert.Equal(t, 1, snap.Len())
}

func TestTableService_Histogram(t *testing.T) {
	f := newFixture(t)
	id := f.openPets(t)

	res, err := f.svc.Histogram(id, chart.DefaultSpecs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"cat", "dog"}, res.Series)

	_, err = f.svc.Histogram(id, chart.Spec{X: "weight"})
	assert.ErrorIs(t, err, domain.ErrRange)
}

func TestTableService_Browse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stores, err := f.svc.ListStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shelter"}, stores)

	h, err := f.svc.CreateCollection(ctx, "shelter", "adopters")
	require.NoError(t, err)
	assert.Equal(t, "shelter/adopters", h.String())

	colls, err := f.svc.ListCollections(ctx, "shelter")
	require.NoError(t, err)
	assert.Equal(t, []string{"adopters", "pets"}, colls)

	_, err = f.svc.CreateCollection(ctx, "nowhere", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.CreateCollection(ctx, "shelter", " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
