package dbclient_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// SQLite document tables
// ─────────────────────────────────────────────────────────────

func openSQLite(t *testing.T, attach map[string]string) dbclient.Driver {
	t.Helper()
	drv, err := dbclient.NewDriver(&domain.StoreConnection{
		Driver: domain.StoreDriverSQLite,
		Host:   filepath.Join(t.TempDir(), "store.db"),
		Attach: attach,
	})
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	return drv
}

func TestSQLite_RoundTripKeepsKeyOrder(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t, nil)
	h := domain.Handle{Store: "main", Collection: "pets"}

	require.NoError(t, drv.CreateCollection(ctx, h))

	in := []domain.Record{
		{{Name: "name", Value: "Rex"}, {Name: "age", Value: int32(3)}, {Name: "animal", Value: "dog"}},
		{{Name: "zeta", Value: "last"}, {Name: "alpha", Value: true}},
	}
	res, err := drv.ReplaceAll(ctx, h, in)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 2, res.Inserted)

	out, err := drv.FindAll(ctx, h)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"name", "age", "animal"}, out[0].Names())
	assert.Equal(t, []string{"zeta", "alpha"}, out[1].Names())

	age, _ := out[0].Get("age")
	assert.EqualValues(t, 3, age)
	alpha, _ := out[1].Get("alpha")
	assert.Equal(t, true, alpha)
}

func TestSQLite_ReplaceAllOverwrites(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t, nil)
	h := domain.Handle{Store: "main", Collection: "pets"}
	require.NoError(t, drv.CreateCollection(ctx, h))

	_, err := drv.ReplaceAll(ctx, h, []domain.Record{
		{{Name: "a", Value: "1"}}, {{Name: "a", Value: "2"}}, {{Name: "a", Value: "3"}},
	})
	require.NoError(t, err)

	res, err := drv.ReplaceAll(ctx, h, []domain.Record{{{Name: "b", Value: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Deleted)
	assert.Equal(t, 1, res.Inserted)

	out, err := drv.FindAll(ctx, h)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.Record{{Name: "b", Value: "x"}}, out[0])

	res, err = drv.ReplaceAll(ctx, h, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	out, err = drv.FindAll(ctx, h)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSQLite_ListStoresAndCollections(t *testing.T) {
	ctx := context.Background()
	extra := filepath.Join(t.TempDir(), "shelter.db")
	drv := openSQLite(t, map[string]string{"shelter": extra})

	stores, err := drv.ListStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "shelter"}, stores)

	require.NoError(t, drv.CreateCollection(ctx, domain.Handle{Store: "shelter", Collection: "dogs"}))
	require.NoError(t, drv.CreateCollection(ctx, domain.Handle{Store: "shelter", Collection: "cats"}))

	colls, err := drv.ListCollections(ctx, "shelter")
	require.NoError(t, err)
	assert.Equal(t, []string{"cats", "dogs"}, colls)

	colls, err = drv.ListCollections(ctx, "main")
	require.NoError(t, err)
	assert.Empty(t, colls)
}

func TestSQLite_UnknownStoreIsNotFound(t *testing.T) {
	drv := openSQLite(t, nil)

	_, err := drv.ListCollections(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLite_CreateExistingCollectionFails(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t, nil)
	h := domain.Handle{Store: "main", Collection: "pets"}

	require.NoError(t, drv.CreateCollection(ctx, h))
	assert.Error(t, drv.CreateCollection(ctx, h))
}

// seedRawSQLite writes tables straight through database/sql, bypassing the document layout.
func seedRawSQLite(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

func TestSQLite_ListCollectionsSkipsNonDocumentTables(t *testing.T) {
	path := seedRawSQLite(t,
		`CREATE TABLE plain (name TEXT)`,
		`CREATE TABLE pets (seq INTEGER PRIMARY KEY, doc TEXT NOT NULL)`,
	)
	drv, err := dbclient.NewDriver(&domain.StoreConnection{Driver: domain.StoreDriverSQLite, Host: path})
	require.NoError(t, err)
	defer drv.Close()

	colls, err := drv.ListCollections(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"pets"}, colls)
}

func TestSQLite_UnreadableDataIsNotAConnectionError(t *testing.T) {
	path := seedRawSQLite(t,
		`CREATE TABLE plain (name TEXT)`,
		`INSERT INTO plain (name) VALUES ('Rex')`,
		`CREATE TABLE broken (seq INTEGER PRIMARY KEY, doc TEXT NOT NULL)`,
		`INSERT INTO broken (seq, doc) VALUES (0, 'not json')`,
	)
	drv, err := dbclient.NewDriver(&domain.StoreConnection{Driver: domain.StoreDriverSQLite, Host: path})
	require.NoError(t, err)
	defer drv.Close()
	ctx := context.Background()

	t.Run("bad document", func(t *testing.T) {
		_, err := drv.FindAll(ctx, domain.Handle{Store: "main", Collection: "broken"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.NotErrorIs(t, err, domain.ErrConnection)
	})

	t.Run("table without doc column", func(t *testing.T) {
		_, err := drv.FindAll(ctx, domain.Handle{Store: "main", Collection: "plain"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.NotErrorIs(t, err, domain.ErrConnection)
	})

	t.Run("missing table", func(t *testing.T) {
		_, err := drv.FindAll(ctx, domain.Handle{Store: "main", Collection: "ghost"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	// the driver is still usable afterwards
	_, err = drv.ListCollections(ctx, "main")
	assert.NoError(t, err)
}

func TestNewDriver_Unsupported(t *testing.T) {
	_, err := dbclient.NewDriver(&domain.StoreConnection{Driver: "cassandra"})
	assert.Error(t, err)
}
