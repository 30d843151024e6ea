package domain

import "strings"

// Handle is a resolved reference to one collection inside one store.
type Handle struct {
	Store      string `json:"store"`
	Collection string `json:"collection"`
}

func (h Handle) String() string {
	return h.Store + "/" + h.Collection
}

// Selection is what the user currently has picked. Either side may be blank.
type Selection struct {
	Store      string `json:"store"`
	Collection string `json:"collection"`
}

// Complete reports whether both names are set.
func (s Selection) Complete() bool {
	return strings.TrimSpace(s.Store) != "" && strings.TrimSpace(s.Collection) != ""
}

// SelectionState is the per-session position in the selection lifecycle.
type SelectionState string

const (
	StateUnselected       SelectionState = "unselected"
	StateStoreChosen      SelectionState = "store_chosen"
	StateCollectionChosen SelectionState = "collection_chosen"
	StateLoaded           SelectionState = "loaded"
)
