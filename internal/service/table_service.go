package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tabledash/internal/chart"
	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
	"tabledash/internal/tablesync"
)

// ─────────────────────────────────────────────────────────────
// Table Service: sessions, journaled saves, events
// ─────────────────────────────────────────────────────────────

// Recorder receives service-level measurements. metrics.Collector implements it.
type Recorder interface {
	SaveFinished(status domain.SaveStatus)
	SessionsOpen(n int)
}

type nopRecorder struct{}

func (nopRecorder) SaveFinished(domain.SaveStatus) {}
func (nopRecorder) SessionsOpen(int)               {}

// TableService owns every editing session against one record store.
type TableService struct {
	driver   dbclient.Driver
	locator  *tablesync.Locator
	loader   *tablesync.Loader
	saver    *tablesync.Saver
	journal  domain.SaveLog
	emitter  EventEmitter
	recorder Recorder
	saving   saveGuard
	timeout  time.Duration

	mu       sync.RWMutex
	sessions map[string]*tablesync.Session
}

// NewTableService creates a TableService. journal may be nil to skip save journaling.
func NewTableService(driver dbclient.Driver, journal domain.SaveLog, emitter EventEmitter, storeTimeout time.Duration) *TableService {
	if storeTimeout <= 0 {
		storeTimeout = tablesync.DefaultStoreTimeout
	}
	loc := tablesync.NewLocator(driver, storeTimeout)
	return &TableService{
		timeout:  storeTimeout,
		driver:   driver,
		locator:  loc,
		loader:   tablesync.NewLoader(driver, loc),
		saver:    tablesync.NewSaver(driver, loc),
		journal:  journal,
		emitter:  emitter,
		recorder: nopRecorder{},
		sessions: make(map[string]*tablesync.Session),
	}
}

// SetRecorder installs a measurement sink.
func (s *TableService) SetRecorder(r Recorder) {
	s.recorder = r
}

// ── Sessions ───────────────────────────────────────────────

// OpenSession starts an empty session and returns its ID.
func (s *TableService) OpenSession() string {
	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = tablesync.NewSession(s.locator, s.loader, s.saver)
	n := len(s.sessions)
	s.mu.Unlock()

	s.recorder.SessionsOpen(n)
	slog.Debug("session opened", "session", id)
	return id
}

// CloseSession drops a session and its unsaved edits.
func (s *TableService) CloseSession(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	s.recorder.SessionsOpen(n)
	return nil
}

func (s *TableService) session(id string) (*tablesync.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess, nil
}

// State returns the session's current view.
func (s *TableService) State(id string) (*tablesync.Update, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return sess.State(), nil
}

// Snapshot returns the loaded table of a session, or ErrRange when none is loaded.
func (s *TableService) Snapshot(id string) (*tablesync.Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	if snap == nil {
		return nil, fmt.Errorf("no table loaded: %w", domain.ErrRange)
	}
	return snap, nil
}

// Dispatch routes one intent to the session and records its side effects.
func (s *TableService) Dispatch(ctx context.Context, id string, in tablesync.Intent) (*tablesync.Update, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if in.Kind == tablesync.IntentSave {
		return s.save(ctx, id, sess)
	}

	up, err := sess.Dispatch(ctx, in)
	switch in.Kind {
	case tablesync.IntentSelectionChanged:
		s.emitter.Emit(ctx, EventSelection, map[string]any{
			"sessionId": id, "store": up.Selection.Store, "collection": up.Selection.Collection,
		})
		if err == nil && up.Snapshot != nil {
			s.emitLoaded(ctx, id, up)
		}
	case tablesync.IntentRefresh:
		if err == nil && up.Snapshot != nil {
			s.emitLoaded(ctx, id, up)
		}
	}
	return up, err
}

func (s *TableService) emitLoaded(ctx context.Context, id string, up *tablesync.Update) {
	s.emitter.Emit(ctx, EventTableLoaded, map[string]any{
		"sessionId":  id,
		"store":      up.Selection.Store,
		"collection": up.Selection.Collection,
		"rows":       up.Snapshot.Len(),
	})
}

// ── Save ───────────────────────────────────────────────────

func (s *TableService) save(ctx context.Context, id string, sess *tablesync.Session) (*tablesync.Update, error) {
	var (
		h       domain.Handle
		pending *tablesync.Snapshot
		run     *domain.SaveRun
	)
	up, err := sess.SaveWith(ctx, func(target domain.Handle, snap *tablesync.Snapshot) error {
		if holder, ok := s.saving.Acquire(target.String(), id); !ok {
			return fmt.Errorf("save %s (held by session %s): %w", target, holder, domain.ErrSaveInProgress)
		}
		h, pending = target, snap
		run = &domain.SaveRun{SessionID: id, Store: h.Store, Collection: h.Collection, StartedAt: time.Now()}
		s.startRun(run)
		return nil
	})
	if run == nil {
		return up, err
	}
	defer s.saving.Release(h.String())

	run.FinishedAt = time.Now()
	var partial *domain.PartialSaveError
	switch {
	case err == nil:
		run.Status = domain.SaveSuccess
		run.RowsDeleted, run.RowsWritten = up.Ack.Deleted, up.Ack.Inserted
	case errors.As(err, &partial):
		run.Status = domain.SavePartial
		run.RowsDeleted, run.RowsWritten = partial.Deleted, partial.Inserted
		run.Error = err.Error()
		if raw, jerr := json.Marshal(pending.Records()); jerr == nil {
			run.PendingJSON = string(raw)
		}
	default:
		run.Status = domain.SaveError
		run.Error = err.Error()
	}
	s.finishRun(run)
	s.recorder.SaveFinished(run.Status)

	if err != nil {
		slog.Error("save failed", "session", id, "collection", h.String(), "status", run.Status, "err", err)
		s.emitter.Emit(ctx, EventTableSaveFailed, map[string]any{
			"sessionId": id, "store": h.Store, "collection": h.Collection,
			"status": run.Status, "error": err.Error(),
		})
		return up, err
	}
	s.emitter.Emit(ctx, EventTableSaved, map[string]any{
		"sessionId": id, "store": h.Store, "collection": h.Collection,
		"deleted": up.Ack.Deleted, "inserted": up.Ack.Inserted,
	})
	return up, nil
}

// The journal is a record of saves, not part of them: a journal failure is logged and
// the save goes ahead.
func (s *TableService) startRun(run *domain.SaveRun) {
	if s.journal == nil {
		return
	}
	if err := s.journal.StartRun(run); err != nil {
		slog.Warn("save journal: start failed", "collection", run.Store+"/"+run.Collection, "err", err)
	}
}

func (s *TableService) finishRun(run *domain.SaveRun) {
	if s.journal == nil || run.ID == "" {
		return
	}
	if err := s.journal.FinishRun(run); err != nil {
		slog.Warn("save journal: finish failed", "run", run.ID, "err", err)
	}
}

// WaitSaves blocks until running saves finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *TableService) WaitSaves(ctx context.Context) {
	s.saving.WaitAll(ctx)
}

// SaveHistory lists the newest journal entries for a collection. A blank collection
// lists the whole store, a blank store everything.
func (s *TableService) SaveHistory(store, collection string, limit int) ([]domain.SaveRun, error) {
	if s.journal == nil {
		return []domain.SaveRun{}, nil
	}
	return s.journal.ListRuns(domain.Handle{Store: store, Collection: collection}, limit)
}

// ── Store browsing ─────────────────────────────────────────

// Ping checks that the record store answers.
func (s *TableService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.driver.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", errors.Join(domain.ErrConnection, err))
	}
	return nil
}

func (s *TableService) ListStores(ctx context.Context) ([]string, error) {
	return s.locator.ListStores(ctx)
}

func (s *TableService) ListCollections(ctx context.Context, store string) ([]string, error) {
	return s.locator.ListCollections(ctx, store)
}

// CreateCollection makes an empty collection in an existing store.
func (s *TableService) CreateCollection(ctx context.Context, store, collection string) (*domain.Handle, error) {
	h := s.locator.Resolve(store, collection)
	if h == nil {
		return nil, fmt.Errorf("store and collection are required: %w", domain.ErrValidation)
	}
	if _, err := s.locator.ListCollections(ctx, h.Store); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.driver.CreateCollection(ctx, *h); err != nil {
		return nil, err
	}
	slog.Info("collection created", "collection", h.String())
	return h, nil
}

// ── Charts ─────────────────────────────────────────────────

// Histogram computes a frequency chart from the session's current table.
func (s *TableService) Histogram(id string, spec chart.Spec) (*chart.Result, error) {
	snap, err := s.Snapshot(id)
	if err != nil {
		return nil, err
	}
	return chart.Histogram(snap, spec)
}

// ── Refresh ────────────────────────────────────────────────

// RefreshResult counts what RefreshAll did.
type RefreshResult struct {
	Refreshed int `json:"refreshed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RefreshAll reloads every session that has a table loaded. Sessions with unsaved
// edits are skipped so a scheduled reload never discards work.
func (s *TableService) RefreshAll(ctx context.Context) RefreshResult {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var res RefreshResult
	for _, id := range ids {
		sess, err := s.session(id)
		if err != nil {
			continue
		}
		up, refreshed, err := sess.RefreshIfClean(ctx)
		switch {
		case up == nil:
			continue
		case err != nil:
			slog.Warn("refresh failed", "session", id, "err", err)
			res.Failed++
			continue
		case !refreshed:
			slog.Info("refresh: skipping session with unsaved edits", "session", id)
			res.Skipped++
			continue
		}
		s.emitLoaded(ctx, id, up)
		res.Refreshed++
	}
	return res
}
