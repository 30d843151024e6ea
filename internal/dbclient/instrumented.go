package dbclient

import (
	"context"
	"time"

	"tabledash/internal/domain"
)

// StoreObserver receives the duration and outcome of every driver call.
type StoreObserver interface {
	ObserveStoreOp(op string, d time.Duration, err error)
}

// instrumented times every call of the wrapped Driver.
type instrumented struct {
	next Driver
	obs  StoreObserver
}

// Instrument wraps d so each call is reported to obs.
func Instrument(d Driver, obs StoreObserver) Driver {
	return &instrumented{next: d, obs: obs}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.obs.ObserveStoreOp(op, time.Since(start), err)
}

func (i *instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := i.next.Ping(ctx)
	i.observe("ping", start, err)
	return err
}

func (i *instrumented) ListStores(ctx context.Context) ([]string, error) {
	start := time.Now()
	stores, err := i.next.ListStores(ctx)
	i.observe("list_stores", start, err)
	return stores, err
}

func (i *instrumented) ListCollections(ctx context.Context, store string) ([]string, error) {
	start := time.Now()
	colls, err := i.next.ListCollections(ctx, store)
	i.observe("list_collections", start, err)
	return colls, err
}

func (i *instrumented) FindAll(ctx context.Context, h domain.Handle) ([]domain.Record, error) {
	start := time.Now()
	records, err := i.next.FindAll(ctx, h)
	i.observe("find_all", start, err)
	return records, err
}

func (i *instrumented) ReplaceAll(ctx context.Context, h domain.Handle, records []domain.Record) (*ReplaceResult, error) {
	start := time.Now()
	res, err := i.next.ReplaceAll(ctx, h, records)
	i.observe("replace_all", start, err)
	return res, err
}

func (i *instrumented) CreateCollection(ctx context.Context, h domain.Handle) error {
	start := time.Now()
	err := i.next.CreateCollection(ctx, h)
	i.observe("create_collection", start, err)
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
