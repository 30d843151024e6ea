package dbclient

import (
	"fmt"
	"strings"

	"tabledash/internal/domain"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a Postgres connection string from a StoreConnection.
func buildPostgresDSN(conn *domain.StoreConnection) string {
	if conn.URI != "" {
		return conn.URI
	}
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		conn.Host, port, conn.Username, conn.Password, conn.Database, sslMode,
	)
}

// postgresDialect maps stores to schemas of the configured database.
type postgresDialect struct{}

func (postgresDialect) driverName() string { return "postgres" }

func (postgresDialect) listStoresQuery() string {
	return `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		AND schema_name NOT LIKE 'pg_temp_%' AND schema_name NOT LIKE 'pg_toast_temp_%'`
}

func (postgresDialect) listCollections(store string) (string, []any) {
	return `SELECT t.table_name FROM information_schema.tables t
		WHERE t.table_schema = $1 AND t.table_type = 'BASE TABLE'
		AND (SELECT COUNT(*) FROM information_schema.columns c
			WHERE c.table_schema = t.table_schema AND c.table_name = t.table_name
			AND c.column_name IN ('seq', 'doc')) = 2`, []any{store}
}

func (postgresDialect) qualified(h domain.Handle) string {
	return quoteIdent(h.Store, `"`) + "." + quoteIdent(h.Collection, `"`)
}

func (d postgresDialect) createTable(h domain.Handle) string {
	return "CREATE TABLE " + d.qualified(h) + " (seq BIGINT PRIMARY KEY, doc TEXT NOT NULL)"
}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// quoteIdent wraps name in q, doubling any embedded quote characters.
func quoteIdent(name, q string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}
