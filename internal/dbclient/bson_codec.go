package dbclient

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"tabledash/internal/domain"
)

// fromBSON converts a decoded document into a Record, keeping field order.
func fromBSON(doc bson.D) domain.Record {
	rec := make(domain.Record, 0, len(doc))
	for _, elem := range doc {
		rec = append(rec, domain.Field{Name: elem.Key, Value: fromBSONValue(elem.Value)})
	}
	return rec
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		return fromBSON(t)
	case bson.M:
		d := make(bson.D, 0, len(t))
		for k, val := range t {
			d = append(d, bson.E{Key: k, Value: val})
		}
		return fromBSON(d)
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}
		return out
	default:
		return v
	}
}

// toBSON is the inverse of fromBSON.
func toBSON(rec domain.Record) bson.D {
	doc := make(bson.D, 0, len(rec))
	for _, f := range rec {
		doc = append(doc, bson.E{Key: f.Name, Value: toBSONValue(f.Value)})
	}
	return doc
}

func toBSONValue(v any) any {
	switch t := v.(type) {
	case domain.Record:
		return toBSON(t)
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = toBSONValue(e)
		}
		return out
	default:
		return v
	}
}

// encodeDoc serializes a record as relaxed Extended JSON. Unlike encoding/json this
// keeps key order and round-trips ObjectIDs, dates and int64s.
func encodeDoc(rec domain.Record) (string, error) {
	raw, err := bson.MarshalExtJSON(toBSON(rec), false, false)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

// decodeDoc parses relaxed or canonical Extended JSON into a record.
func decodeDoc(text string) (domain.Record, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(text), false, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fromBSON(doc), nil
}
