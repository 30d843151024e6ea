package dbclient

import (
	"fmt"

	"tabledash/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN from a StoreConnection.
// No default database is selected; stores are databases and tables are qualified.
func buildMySQLDSN(conn *domain.StoreConnection) string {
	if conn.URI != "" {
		return conn.URI
	}
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		conn.Username, conn.Password, conn.Host, port, conn.Database,
	)
	if conn.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

// mysqlDialect maps stores to MySQL databases.
type mysqlDialect struct{}

func (mysqlDialect) driverName() string { return "mysql" }

func (mysqlDialect) listStoresQuery() string {
	return `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')`
}

func (mysqlDialect) listCollections(store string) (string, []any) {
	return `SELECT t.table_name FROM information_schema.tables t
		WHERE t.table_schema = ? AND t.table_type = 'BASE TABLE'
		AND (SELECT COUNT(*) FROM information_schema.columns c
			WHERE c.table_schema = t.table_schema AND c.table_name = t.table_name
			AND c.column_name IN ('seq', 'doc')) = 2`, []any{store}
}

func (mysqlDialect) qualified(h domain.Handle) string {
	return quoteIdent(h.Store, "`") + "." + quoteIdent(h.Collection, "`")
}

func (d mysqlDialect) createTable(h domain.Handle) string {
	return "CREATE TABLE " + d.qualified(h) + " (seq BIGINT PRIMARY KEY, doc LONGTEXT NOT NULL)"
}

func (mysqlDialect) placeholder(int) string { return "?" }
