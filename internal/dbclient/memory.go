package dbclient

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"tabledash/internal/domain"
)

// MemoryDriver keeps stores in process. It backs the demo mode and tests, and can be
// told to fail so error paths can be exercised without a real server.
type MemoryDriver struct {
	mu          sync.Mutex
	stores      map[string]map[string][]domain.Record
	unreachable bool
	insertLimit int
	insertErr   error
	calls       map[string]int
}

// NewMemoryDriver returns an empty driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		stores:      make(map[string]map[string][]domain.Record),
		insertLimit: -1,
		calls:       make(map[string]int),
	}
}

// Seed creates store and collection if needed and appends records to it.
func (m *MemoryDriver) Seed(store, collection string, records ...domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	colls, ok := m.stores[store]
	if !ok {
		colls = make(map[string][]domain.Record)
		m.stores[store] = colls
	}
	colls[collection] = append(colls[collection], cloneRecords(records)...)
}

// SetUnreachable makes every call fail with a connection error while true.
func (m *MemoryDriver) SetUnreachable(down bool) {
	m.mu.Lock()
	m.unreachable = down
	m.mu.Unlock()
}

// FailInsertAfter makes the next ReplaceAll delete everything, insert n records and then
// fail with err. A negative n clears the fault.
func (m *MemoryDriver) FailInsertAfter(n int, err error) {
	m.mu.Lock()
	m.insertLimit = n
	m.insertErr = err
	m.mu.Unlock()
}

// Records returns a copy of what the collection currently holds.
func (m *MemoryDriver) Records(h domain.Handle) []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRecords(m.stores[h.Store][h.Collection])
}

// Calls reports how many times op was invoked.
func (m *MemoryDriver) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// enter counts the call and reports the unreachable fault. Caller holds m.mu.
func (m *MemoryDriver) enter(op string, h domain.Handle) error {
	m.calls[op]++
	if m.unreachable {
		return domain.NewStoreError(op, h, domain.ErrConnection, fmt.Errorf("memory store is down"))
	}
	return nil
}

func (m *MemoryDriver) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("ping", domain.Handle{})
}

func (m *MemoryDriver) ListStores(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_stores", domain.Handle{}); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemoryDriver) ListCollections(ctx context.Context, store string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := domain.Handle{Store: store}
	if err := m.enter("list_collections", h); err != nil {
		return nil, err
	}
	colls, ok := m.stores[store]
	if !ok {
		return nil, domain.NewStoreError("list_collections", h, domain.ErrNotFound,
			fmt.Errorf("store %q does not exist", store))
	}
	names := make([]string, 0, len(colls))
	for name := range colls {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemoryDriver) FindAll(ctx context.Context, h domain.Handle) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("find_all", h); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap("find_all", h, err)
	}
	return cloneRecords(m.stores[h.Store][h.Collection]), nil
}

func (m *MemoryDriver) ReplaceAll(ctx context.Context, h domain.Handle, records []domain.Record) (*ReplaceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("replace_all", h); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap("replace_all", h, err)
	}
	colls, ok := m.stores[h.Store]
	if !ok {
		colls = make(map[string][]domain.Record)
		m.stores[h.Store] = colls
	}
	deleted := len(colls[h.Collection])

	if m.insertLimit >= 0 {
		n := min(m.insertLimit, len(records))
		colls[h.Collection] = cloneRecords(records[:n])
		err := m.insertErr
		if err == nil {
			err = domain.ErrValidation
		}
		m.insertLimit, m.insertErr = -1, nil
		return nil, &domain.PartialSaveError{
			Handle:   h,
			Deleted:  deleted,
			Inserted: n,
			Expected: len(records),
			Err:      wrap("replace_all", h, fmt.Errorf("insert: %w", err)),
		}
	}

	colls[h.Collection] = cloneRecords(records)
	return &ReplaceResult{Deleted: deleted, Inserted: len(records)}, nil
}

func (m *MemoryDriver) CreateCollection(ctx context.Context, h domain.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create_collection", h); err != nil {
		return err
	}
	colls, ok := m.stores[h.Store]
	if !ok {
		colls = make(map[string][]domain.Record)
		m.stores[h.Store] = colls
	}
	if _, exists := colls[h.Collection]; exists {
		return domain.NewStoreError("create_collection", h, domain.ErrValidation,
			fmt.Errorf("collection already exists"))
	}
	colls[h.Collection] = nil
	return nil
}

func (m *MemoryDriver) Close() error { return nil }

func cloneRecords(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		out[i] = slices.Clone(r)
	}
	return out
}
