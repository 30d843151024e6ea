package dbclient

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"tabledash/internal/domain"
)

func TestFromBSON_Nested(t *testing.T) {
	doc := bson.D{
		{Key: "name", Value: "Rex"},
		{Key: "owner", Value: bson.D{{Key: "first", Value: "Ann"}, {Key: "last", Value: "Lee"}}},
		{Key: "tags", Value: bson.A{"good", bson.D{{Key: "k", Value: int32(1)}}}},
	}

	rec := fromBSON(doc)
	assert.Equal(t, []string{"name", "owner", "tags"}, rec.Names())

	owner, _ := rec.Get("owner")
	assert.Equal(t, domain.Record{{Name: "first", Value: "Ann"}, {Name: "last", Value: "Lee"}}, owner)

	tags, _ := rec.Get("tags")
	require.IsType(t, []any{}, tags)
	assert.Equal(t, domain.Record{{Name: "k", Value: int32(1)}}, tags.([]any)[1])

	assert.Equal(t, doc, toBSON(rec))
}

func TestEncodeDecodeDoc(t *testing.T) {
	id := bson.NewObjectID()
	rec := domain.Record{
		{Name: "_id", Value: id},
		{Name: "b", Value: "two"},
		{Name: "a", Value: int64(1) << 40},
		{Name: "n", Value: nil},
	}

	text, err := encodeDoc(rec)
	require.NoError(t, err)

	back, err := decodeDoc(text)
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "b", "a", "n"}, back.Names())

	gotID, _ := back.Get("_id")
	assert.Equal(t, id, gotID)
	big, _ := back.Get("a")
	assert.Equal(t, int64(1)<<40, big)
}

func TestDecodeDoc_Invalid(t *testing.T) {
	_, err := decodeDoc("{not json")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"deadline", fmt.Errorf("find: %w", context.DeadlineExceeded), domain.ErrConnection},
		{"already classified", domain.NewStoreError("x", domain.Handle{}, domain.ErrNotFound, errors.New("gone")), domain.ErrNotFound},
		{"mongo write error", mongoWriteErr(11000), domain.ErrValidation},
		{"unknown", errors.New("boom"), domain.ErrConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestWrap_MatchesKind(t *testing.T) {
	h := domain.Handle{Store: "s", Collection: "c"}
	err := wrap("find_all", h, context.DeadlineExceeded)

	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "find_all s/c")
	assert.NoError(t, wrap("find_all", h, nil))
}

func mongoWriteErr(code int) error {
	return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Index: 0, Code: code, Message: "refused"}}}
}

func TestBuildMongoURI(t *testing.T) {
	uri, logURI := buildMongoURI(&domain.StoreConnection{})
	assert.Equal(t, "mongodb://127.0.0.1:27017/", uri)
	assert.Equal(t, uri, logURI)

	uri, logURI = buildMongoURI(&domain.StoreConnection{Host: "db", Port: 27018, Username: "app", Password: "s3cret"})
	assert.Equal(t, "mongodb://app:s3cret@db:27018/", uri)
	assert.NotContains(t, logURI, "s3cret")

	uri, _ = buildMongoURI(&domain.StoreConnection{URI: "mongodb+srv://app:<password>@cluster0.example.net/", Password: "pw"})
	assert.Equal(t, "mongodb+srv://app:pw@cluster0.example.net/", uri)
}
