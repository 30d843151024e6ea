package tablesync

import (
	"strings"

	"tabledash/internal/domain"
)

// Selector tracks the chosen store and collection and the snapshot loaded for them.
// Changing either name drops the snapshot.
type Selector struct {
	locator    *Locator
	store      string
	collection string
	snapshot   *Snapshot
}

func NewSelector(locator *Locator) *Selector {
	return &Selector{locator: locator}
}

// SetStore picks a store. The collection name only means something inside a store,
// so it is cleared as well.
func (s *Selector) SetStore(name string) {
	s.store = name
	s.collection = ""
	s.snapshot = nil
}

func (s *Selector) SetCollection(name string) {
	s.collection = name
	s.snapshot = nil
}

// Selection returns the names as chosen.
func (s *Selector) Selection() domain.Selection {
	return domain.Selection{Store: s.store, Collection: s.collection}
}

// CurrentHandle is nil until both names are set.
func (s *Selector) CurrentHandle() *domain.Handle {
	return s.locator.Resolve(s.store, s.collection)
}

func (s *Selector) Snapshot() *Snapshot {
	return s.snapshot
}

func (s *Selector) setSnapshot(snap *Snapshot) {
	s.snapshot = snap
}

func (s *Selector) State() domain.SelectionState {
	switch {
	case strings.TrimSpace(s.store) == "":
		return domain.StateUnselected
	case s.CurrentHandle() == nil:
		return domain.StateStoreChosen
	case s.snapshot == nil:
		return domain.StateCollectionChosen
	default:
		return domain.StateLoaded
	}
}
