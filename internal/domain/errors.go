package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the table core matches exactly one of these via errors.Is.
var (
	ErrConnection     = errors.New("store unreachable")
	ErrNotFound       = errors.New("not found")
	ErrRange          = errors.New("out of range")
	ErrValidation     = errors.New("rejected by store")
	ErrSaveInProgress = errors.New("save already in progress")
)

// StoreError describes a failed call against the record store.
type StoreError struct {
	Op     string // "list_stores", "list_collections", "find_all", "replace_all", ...
	Handle Handle
	Kind   error // one of the Err* kinds above
	Err    error
}

func (e *StoreError) Error() string {
	target := e.Handle.String()
	if e.Handle.Collection == "" {
		target = e.Handle.Store
	}
	if target == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, target, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewStoreError builds a StoreError, leaving an already-classified error untouched.
func NewStoreError(op string, h Handle, kind, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	var pe *PartialSaveError
	if errors.As(err, &pe) {
		return err
	}
	return &StoreError{Op: op, Handle: h, Kind: kind, Err: err}
}

// PartialSaveError is returned when the delete half of a replace succeeded but the
// insert half did not. The collection now holds Inserted of Expected records.
type PartialSaveError struct {
	Handle   Handle
	Deleted  int
	Inserted int
	Expected int
	Err      error
}

func (e *PartialSaveError) Error() string {
	return fmt.Sprintf("partial save of %s: deleted %d, inserted %d of %d: %v",
		e.Handle, e.Deleted, e.Inserted, e.Expected, e.Err)
}

func (e *PartialSaveError) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind of err, or nil when err matches none.
func KindOf(err error) error {
	for _, k := range []error{ErrConnection, ErrNotFound, ErrRange, ErrValidation, ErrSaveInProgress} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName is a short stable label for the kind of err, used in metrics and API bodies.
func KindName(err error) string {
	var pe *PartialSaveError
	switch kind := KindOf(err); {
	case errors.As(err, &pe):
		return "partial_save"
	case kind == ErrConnection:
		return "connection"
	case kind == ErrNotFound:
		return "not_found"
	case kind == ErrRange:
		return "range"
	case kind == ErrValidation:
		return "validation"
	case kind == ErrSaveInProgress:
		return "save_in_progress"
	default:
		return "internal"
	}
}
