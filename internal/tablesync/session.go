package tablesync

import (
	"context"
	"fmt"
	"sync"

	"tabledash/internal/domain"
)

// IntentKind names a user action coming from the presentation layer.
type IntentKind string

const (
	IntentSelectionChanged IntentKind = "selection_changed"
	IntentRefresh          IntentKind = "refresh"
	IntentCellEdited       IntentKind = "cell_edited"
	IntentAddRow           IntentKind = "add_row_clicked"
	IntentDeleteRow        IntentKind = "delete_row_clicked"
	IntentSave             IntentKind = "save_clicked"
)

// Intent is one user action plus the arguments it needs.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	Store      string     `json:"store,omitempty"`      // selection_changed
	Collection string     `json:"collection,omitempty"` // selection_changed
	Row        int        `json:"row,omitempty"`        // cell_edited, delete_row_clicked
	Column     string     `json:"column,omitempty"`     // cell_edited
	Value      any        `json:"value,omitempty"`      // cell_edited
}

// Update is the session state after an intent was handled.
type Update struct {
	Intent    IntentKind            `json:"intent"`
	State     domain.SelectionState `json:"state"`
	Selection domain.Selection      `json:"selection"`
	Snapshot  *Snapshot             `json:"snapshot,omitempty"`
	Dirty     bool                  `json:"dirty"`
	Ack       *Ack                  `json:"ack,omitempty"`
}

// Session is one editor's view: a selection, the loaded snapshot and whether it has
// unsaved edits. Dispatch is the only way state changes.
type Session struct {
	mu       sync.Mutex
	selector *Selector
	loader   *Loader
	saver    *Saver
	dirty    bool
}

func NewSession(locator *Locator, loader *Loader, saver *Saver) *Session {
	return &Session{selector: NewSelector(locator), loader: loader, saver: saver}
}

// Dispatch applies one intent. On a failed load or save the previous snapshot is kept
// and the error is returned alongside the unchanged state.
func (s *Session) Dispatch(ctx context.Context, in Intent) (*Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ack *Ack
	var err error
	switch in.Kind {
	case IntentSelectionChanged:
		err = s.selectLocked(ctx, in.Store, in.Collection)
	case IntentRefresh:
		err = s.reloadLocked(ctx)
	case IntentCellEdited:
		err = s.mutateLocked(func(snap *Snapshot) (*Snapshot, error) {
			return SetCell(snap, in.Row, in.Column, in.Value)
		})
	case IntentAddRow:
		err = s.mutateLocked(func(snap *Snapshot) (*Snapshot, error) {
			return AppendRow(snap), nil
		})
	case IntentDeleteRow:
		err = s.mutateLocked(func(snap *Snapshot) (*Snapshot, error) {
			return DeleteRow(snap, in.Row)
		})
	case IntentSave:
		ack, err = s.saveLocked(ctx, nil)
	default:
		err = fmt.Errorf("unknown intent %q", in.Kind)
	}

	up := s.updateLocked(in.Kind)
	up.Ack = ack
	return up, err
}

// Snapshot returns the loaded table, or nil.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.Snapshot()
}

// Handle returns the selected collection, or nil.
func (s *Session) Handle() *domain.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.CurrentHandle()
}

// Dirty reports unsaved edits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// RefreshIfClean reloads the table unless it has unsaved edits. The dirty check and the
// reload happen under one lock, so an edit can never slip in between. It returns nil
// when no table is loaded.
func (s *Session) RefreshIfClean(ctx context.Context) (up *Update, refreshed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selector.Snapshot() == nil {
		return nil, false, nil
	}
	if s.dirty {
		return s.updateLocked(IntentRefresh), false, nil
	}
	err = s.reloadLocked(ctx)
	return s.updateLocked(IntentRefresh), err == nil, err
}

// SaveHook runs before a save with the collection and table that are about to be
// written. Returning an error cancels the save.
type SaveHook func(h domain.Handle, pending *Snapshot) error

// SaveWith saves like a save_clicked intent, calling before first. The handle and
// snapshot passed to before are the ones the save writes.
func (s *Session) SaveWith(ctx context.Context, before SaveHook) (*Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ack, err := s.saveLocked(ctx, before)
	up := s.updateLocked(IntentSave)
	up.Ack = ack
	return up, err
}

// State returns the current view without changing anything.
func (s *Session) State() *Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked("")
}

func (s *Session) selectLocked(ctx context.Context, store, collection string) error {
	if store != s.selector.Selection().Store {
		s.selector.SetStore(store)
	}
	s.selector.SetCollection(collection)
	s.dirty = false
	if s.selector.CurrentHandle() == nil {
		return nil
	}
	return s.reloadLocked(ctx)
}

func (s *Session) reloadLocked(ctx context.Context) error {
	h := s.selector.CurrentHandle()
	if h == nil {
		return nil
	}
	snap, err := s.loader.Load(ctx, *h)
	if err != nil {
		return err
	}
	s.selector.setSnapshot(snap)
	s.dirty = false
	return nil
}

func (s *Session) mutateLocked(fn func(*Snapshot) (*Snapshot, error)) error {
	snap := s.selector.Snapshot()
	if snap == nil {
		return fmt.Errorf("no table loaded: %w", domain.ErrRange)
	}
	next, err := fn(snap)
	if err != nil {
		return err
	}
	s.selector.setSnapshot(next)
	s.dirty = true
	return nil
}

func (s *Session) saveLocked(ctx context.Context, before SaveHook) (*Ack, error) {
	h := s.selector.CurrentHandle()
	snap := s.selector.Snapshot()
	if h == nil || snap == nil {
		return nil, fmt.Errorf("no table loaded: %w", domain.ErrRange)
	}
	if before != nil {
		if err := before(*h, snap); err != nil {
			return nil, err
		}
	}
	ack, err := s.saver.Save(ctx, *h, snap)
	if err != nil {
		return nil, err
	}
	s.dirty = false
	return &ack, nil
}

func (s *Session) updateLocked(kind IntentKind) *Update {
	return &Update{
		Intent:    kind,
		State:     s.selector.State(),
		Selection: s.selector.Selection(),
		Snapshot:  s.selector.Snapshot(),
		Dirty:     s.dirty,
	}
}
