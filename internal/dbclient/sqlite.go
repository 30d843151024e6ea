package dbclient

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"tabledash/internal/domain"

	_ "modernc.org/sqlite"
)

// sqliteDialect maps stores to the schemas of one connection: "main" plus any attached files.
type sqliteDialect struct{}

func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) listStoresQuery() string {
	return `SELECT name FROM pragma_database_list WHERE name <> 'temp'`
}

// listCollections only reports document tables: those with both a seq and a doc column.
func (sqliteDialect) listCollections(store string) (string, []any) {
	return `SELECT m.name FROM ` + quoteIdent(store, `"`) + `.sqlite_master m
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		AND (SELECT COUNT(*) FROM pragma_table_info(m.name, ?) p
			WHERE p.name IN ('seq', 'doc')) = 2`, []any{store}
}

func (sqliteDialect) qualified(h domain.Handle) string {
	return quoteIdent(h.Store, `"`) + "." + quoteIdent(h.Collection, `"`)
}

func (d sqliteDialect) createTable(h domain.Handle) string {
	return "CREATE TABLE " + d.qualified(h) + " (seq INTEGER PRIMARY KEY, doc TEXT NOT NULL)"
}

func (sqliteDialect) placeholder(int) string { return "?" }

// newSQLiteDriver opens the file in conn.Host and attaches conn.Attach (schema name → file).
func newSQLiteDriver(conn *domain.StoreConnection) (*sqlDocDriver, error) {
	path := conn.Host
	if conn.URI != "" {
		path = conn.URI
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite: no database file configured")
	}

	c, err := newSQLDocDriver(sqliteDialect{}, path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// ATTACH is per connection, so the pool is pinned to a single one.
	c.db.SetMaxOpenConns(1)
	c.db.SetMaxIdleConns(1)
	c.db.SetConnMaxLifetime(0)

	for _, name := range slices.Sorted(maps.Keys(conn.Attach)) {
		file := conn.Attach[name]
		if _, err := c.db.ExecContext(context.Background(), "ATTACH DATABASE ? AS "+quoteIdent(name, `"`), file); err != nil {
			c.db.Close()
			return nil, fmt.Errorf("attach %s: %w", name, err)
		}
		slog.Info("sqlite: attached", "schema", name, "file", file)
	}
	return c, nil
}
