package tablesync

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
)

// DefaultStoreTimeout bounds every call that reaches the record store.
const DefaultStoreTimeout = 30 * time.Second

// Locator enumerates stores and collections and resolves selections to handles.
type Locator struct {
	driver  dbclient.Driver
	timeout time.Duration
}

// NewLocator returns a Locator. A zero timeout means DefaultStoreTimeout.
func NewLocator(driver dbclient.Driver, timeout time.Duration) *Locator {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Locator{driver: driver, timeout: timeout}
}

func (l *Locator) ListStores(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	stores, err := l.driver.ListStores(ctx)
	if err != nil {
		return nil, storeErr("list_stores", domain.Handle{}, err)
	}
	return stores, nil
}

func (l *Locator) ListCollections(ctx context.Context, store string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	colls, err := l.driver.ListCollections(ctx, store)
	if err != nil {
		return nil, storeErr("list_collections", domain.Handle{Store: store}, err)
	}
	return colls, nil
}

// Resolve returns nil while either name is blank; that is "nothing selected", not an error.
func (l *Locator) Resolve(store, collection string) *domain.Handle {
	store, collection = strings.TrimSpace(store), strings.TrimSpace(collection)
	if store == "" || collection == "" {
		return nil
	}
	return &domain.Handle{Store: store, Collection: collection}
}

// Check fails with ErrNotFound unless the collection is listed in its store.
func (l *Locator) Check(ctx context.Context, h domain.Handle) error {
	colls, err := l.ListCollections(ctx, h.Store)
	if err != nil {
		return err
	}
	if !slices.Contains(colls, h.Collection) {
		return domain.NewStoreError("check", h, domain.ErrNotFound,
			fmt.Errorf("collection %q does not exist", h.Collection))
	}
	return nil
}

// storeErr makes sure a store failure carries an error kind. Unclassified errors are
// treated as the store being unreachable.
func storeErr(op string, h domain.Handle, err error) error {
	if domain.KindOf(err) != nil {
		return err
	}
	return domain.NewStoreError(op, h, domain.ErrConnection, err)
}
