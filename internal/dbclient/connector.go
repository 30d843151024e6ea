package dbclient

import (
	"context"
	"fmt"

	"tabledash/internal/domain"
)

// ReplaceResult summarizes a delete-all/insert-all write.
type ReplaceResult struct {
	Deleted  int `json:"deleted"`
	Inserted int `json:"inserted"`
}

// Driver abstracts a document store holding named stores of named collections.
type Driver interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// ListStores returns the names of all user-visible stores.
	ListStores(ctx context.Context) ([]string, error)

	// ListCollections returns the collection names inside store.
	ListCollections(ctx context.Context, store string) ([]string, error)

	// FindAll returns every record of a collection in store order.
	FindAll(ctx context.Context, h domain.Handle) ([]domain.Record, error)

	// ReplaceAll overwrites the collection with records (delete all, then insert all).
	// When deletion succeeded but insertion did not, the error is a *domain.PartialSaveError.
	ReplaceAll(ctx context.Context, h domain.Handle, records []domain.Record) (*ReplaceResult, error)

	// CreateCollection makes an empty collection.
	CreateCollection(ctx context.Context, h domain.Handle) error

	// Close releases the connection.
	Close() error
}

// NewDriver opens a Driver for the given store connection.
func NewDriver(conn *domain.StoreConnection) (Driver, error) {
	switch conn.Driver {
	case domain.StoreDriverMongoDB:
		return newMongoDriver(conn)
	case domain.StoreDriverSQLite:
		return newSQLiteDriver(conn)
	case domain.StoreDriverMySQL:
		return newSQLDocDriver(mysqlDialect{}, buildMySQLDSN(conn))
	case domain.StoreDriverPostgres:
		return newSQLDocDriver(postgresDialect{}, buildPostgresDSN(conn))
	case domain.StoreDriverMemory:
		return NewMemoryDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
