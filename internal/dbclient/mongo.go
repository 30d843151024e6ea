package dbclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"tabledash/internal/domain"
)

// Databases every MongoDB deployment carries that are not user data.
var mongoSystemStores = []string{"admin", "config", "local"}

// mongoDriver implements Driver for MongoDB.
type mongoDriver struct {
	client *mongo.Client
	log    *slog.Logger
}

// buildMongoURI returns the connection string and a copy safe for logging.
func buildMongoURI(conn *domain.StoreConnection) (uri, logURI string) {
	password := conn.Password

	// A full connection string (mongodb:// or mongodb+srv://) is used as-is,
	// with the Atlas <password> placeholder filled in.
	if conn.URI != "" {
		uri = conn.URI
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
	} else {
		host := conn.Host
		if host == "" {
			host = "127.0.0.1"
		}
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		if conn.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d/", conn.Username, password, host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d/", host, port)
		}
	}

	logURI = uri
	if password != "" {
		logURI = strings.ReplaceAll(logURI, password, "***")
	}
	return uri, logURI
}

func newMongoDriver(conn *domain.StoreConnection) (*mongoDriver, error) {
	uri, logURI := buildMongoURI(conn)
	logger := slog.With("component", "mongo")
	logger.Info("connecting", "uri", logURI)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, wrap("connect", domain.Handle{}, err)
	}
	return &mongoDriver{client: client, log: logger}, nil
}

func (m *mongoDriver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wrap("ping", domain.Handle{}, m.client.Ping(ctx, nil))
}

func (m *mongoDriver) ListStores(ctx context.Context) ([]string, error) {
	names, err := m.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, wrap("list_stores", domain.Handle{}, err)
	}
	stores := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(mongoSystemStores, n) {
			stores = append(stores, n)
		}
	}
	slices.Sort(stores)
	return stores, nil
}

func (m *mongoDriver) ListCollections(ctx context.Context, store string) ([]string, error) {
	h := domain.Handle{Store: store}

	// MongoDB creates databases lazily, so an unknown name would list as empty
	// rather than fail. Check membership first.
	names, err := m.client.ListDatabaseNames(ctx, bson.D{{Key: "name", Value: store}})
	if err != nil {
		return nil, wrap("list_collections", h, err)
	}
	if len(names) == 0 {
		return nil, domain.NewStoreError("list_collections", h, domain.ErrNotFound,
			fmt.Errorf("database %q does not exist", store))
	}

	colls, err := m.client.Database(store).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, wrap("list_collections", h, err)
	}
	slices.Sort(colls)
	return colls, nil
}

func (m *mongoDriver) FindAll(ctx context.Context, h domain.Handle) ([]domain.Record, error) {
	cursor, err := m.client.Database(h.Store).Collection(h.Collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, wrap("find_all", h, err)
	}
	defer cursor.Close(ctx)

	var records []domain.Record
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, domain.NewStoreError("find_all", h, domain.ErrValidation, fmt.Errorf("decode: %w", err))
		}
		records = append(records, fromBSON(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, wrap("find_all", h, fmt.Errorf("cursor: %w", err))
	}

	m.log.Debug("find_all", "collection", h.String(), "docs", len(records))
	return records, nil
}

func (m *mongoDriver) ReplaceAll(ctx context.Context, h domain.Handle, records []domain.Record) (*ReplaceResult, error) {
	coll := m.client.Database(h.Store).Collection(h.Collection)

	del, err := coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return nil, wrap("replace_all", h, fmt.Errorf("delete: %w", err))
	}
	result := &ReplaceResult{Deleted: int(del.DeletedCount)}
	m.log.Debug("replace_all: deleted", "collection", h.String(), "count", result.Deleted)

	if len(records) == 0 {
		return result, nil
	}

	docs := make([]any, len(records))
	for i, rec := range records {
		docs[i] = toBSON(rec)
	}

	if _, err := coll.InsertMany(ctx, docs); err != nil {
		inserted := 0
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
			// Inserts are ordered: everything before the first failure landed.
			inserted = bwe.WriteErrors[0].Index
		}
		m.log.Error("replace_all: insert failed after delete",
			"collection", h.String(), "deleted", result.Deleted, "inserted", inserted, "err", err)
		return nil, &domain.PartialSaveError{
			Handle:   h,
			Deleted:  result.Deleted,
			Inserted: inserted,
			Expected: len(records),
			Err:      wrap("replace_all", h, fmt.Errorf("insert: %w", err)),
		}
	}
	result.Inserted = len(records)
	return result, nil
}

func (m *mongoDriver) CreateCollection(ctx context.Context, h domain.Handle) error {
	return wrap("create_collection", h, m.client.Database(h.Store).CreateCollection(ctx, h.Collection))
}

func (m *mongoDriver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
