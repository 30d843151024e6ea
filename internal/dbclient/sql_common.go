package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"tabledash/internal/domain"
)

// dialect captures what differs between the SQL engines that back a document table.
// A collection is a table of (seq, doc) rows; doc holds one record as Extended JSON.
type dialect interface {
	driverName() string
	listStoresQuery() string
	listCollections(store string) (query string, args []any)
	qualified(h domain.Handle) string
	createTable(h domain.Handle) string
	placeholder(n int) string
}

// sqlDocDriver is the shared Driver implementation for Postgres, MySQL and SQLite.
type sqlDocDriver struct {
	d   dialect
	db  *sql.DB
	log *slog.Logger
}

func newSQLDocDriver(d dialect, dsn string) (*sqlDocDriver, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driverName(), err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlDocDriver{d: d, db: db, log: slog.With("component", d.driverName())}, nil
}

func (c *sqlDocDriver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wrap("ping", domain.Handle{}, c.db.PingContext(ctx))
}

func (c *sqlDocDriver) ListStores(ctx context.Context) ([]string, error) {
	stores, err := c.queryNames(ctx, c.d.listStoresQuery())
	if err != nil {
		return nil, wrap("list_stores", domain.Handle{}, err)
	}
	slices.Sort(stores)
	return stores, nil
}

func (c *sqlDocDriver) ListCollections(ctx context.Context, store string) ([]string, error) {
	h := domain.Handle{Store: store}
	stores, err := c.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(stores, store) {
		return nil, domain.NewStoreError("list_collections", h, domain.ErrNotFound,
			fmt.Errorf("store %q does not exist", store))
	}

	query, args := c.d.listCollections(store)
	names, err := c.queryNames(ctx, query, args...)
	if err != nil {
		return nil, wrap("list_collections", h, err)
	}
	slices.Sort(names)
	return names, nil
}

// queryNames runs a query whose first column is a name.
func (c *sqlDocDriver) queryNames(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *sqlDocDriver) FindAll(ctx context.Context, h domain.Handle) ([]domain.Record, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT doc FROM "+c.d.qualified(h)+" ORDER BY seq")
	if err != nil {
		return nil, wrap("find_all", h, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, wrap("find_all", h, fmt.Errorf("scan: %w", err))
		}
		rec, err := decodeDoc(text)
		if err != nil {
			return nil, domain.NewStoreError("find_all", h, domain.ErrValidation, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("find_all", h, err)
	}

	c.log.Debug("find_all", "collection", h.String(), "docs", len(records))
	return records, nil
}

// ReplaceAll deletes and re-inserts inside one transaction, so it is all-or-nothing.
func (c *sqlDocDriver) ReplaceAll(ctx context.Context, h domain.Handle, records []domain.Record) (*ReplaceResult, error) {
	docs := make([]string, len(records))
	for i, rec := range records {
		text, err := encodeDoc(rec)
		if err != nil {
			return nil, domain.NewStoreError("replace_all", h, domain.ErrValidation, err)
		}
		docs[i] = text
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("replace_all", h, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM "+c.d.qualified(h))
	if err != nil {
		return nil, wrap("replace_all", h, fmt.Errorf("delete: %w", err))
	}
	deleted, _ := res.RowsAffected()

	if len(docs) > 0 {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (seq, doc) VALUES (%s, %s)",
			c.d.qualified(h), c.d.placeholder(1), c.d.placeholder(2)))
		if err != nil {
			return nil, wrap("replace_all", h, fmt.Errorf("prepare: %w", err))
		}
		defer stmt.Close()

		for i, doc := range docs {
			if _, err := stmt.ExecContext(ctx, i, doc); err != nil {
				return nil, wrap("replace_all", h, fmt.Errorf("insert row %d: %w", i, err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrap("replace_all", h, fmt.Errorf("commit: %w", err))
	}
	return &ReplaceResult{Deleted: int(deleted), Inserted: len(docs)}, nil
}

func (c *sqlDocDriver) CreateCollection(ctx context.Context, h domain.Handle) error {
	if _, err := c.db.ExecContext(ctx, c.d.createTable(h)); err != nil {
		return wrap("create_collection", h, err)
	}
	return nil
}

func (c *sqlDocDriver) Close() error {
	return c.db.Close()
}
