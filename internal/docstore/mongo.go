// Package docstore keeps per-user document collections in MongoDB.
//
// Collection paths alternate collection and document names, the way
// "users/<uid>/pdfs" names the pdfs collection under document <uid> of
// users. The last segment picks the Mongo collection; the rest is stored in
// each document's _parent field.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/emissionkeeper/internal/logging"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	idField     = "_id"
	parentField = "_parent"
)

var ErrInvalidPath = errors.New("invalid collection path")

// Connect dials uri and waits for the primary to answer.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

type MongoStore struct {
	db  *mongo.Database
	log logging.Logger
}

func NewMongoStore(db *mongo.Database, log logging.Logger) *MongoStore {
	if log == nil {
		log = logging.Nop()
	}
	return &MongoStore{db: db, log: log}
}

// WriteDocument creates or replaces document id in collectionPath. An empty
// id gets a fresh UUID. The id actually used is returned. The stored _id is
// prefixed with the parent path, so equal ids under different parents are
// distinct documents.
func (s *MongoStore) WriteDocument(ctx context.Context, collectionPath, id string, data map[string]any) (string, error) {
	coll, parent, err := splitPath(collectionPath)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	key := documentKey(parent, id)
	doc := bson.M{}
	for k, v := range data {
		doc[k] = v
	}
	doc[idField] = key
	doc[parentField] = parent

	_, err = s.db.Collection(coll).ReplaceOne(ctx,
		bson.M{idField: key, parentField: parent},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("write %s/%s: %w", collectionPath, id, err)
	}

	s.log.Debug(ctx, "document written", "collection", collectionPath, "id", id)
	return id, nil
}

// ListDocuments returns every document directly under collectionPath, in
// the order the server yields them.
func (s *MongoStore) ListDocuments(ctx context.Context, collectionPath string) ([]map[string]any, error) {
	coll, parent, err := splitPath(collectionPath)
	if err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(coll).Find(ctx, bson.M{parentField: parent})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionPath, err)
	}
	defer cursor.Close(ctx)

	out := make([]map[string]any, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collectionPath, err)
		}
		delete(raw, idField)
		delete(raw, parentField)
		out = append(out, normalizeMap(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionPath, err)
	}
	return out, nil
}

// documentKey is the Mongo _id of document id under parent.
func documentKey(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + "/" + id
}

func splitPath(collectionPath string) (collection, parent string, err error) {
	segments := strings.Split(strings.Trim(collectionPath, "/"), "/")
	if len(segments)%2 == 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, collectionPath)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, collectionPath)
		}
	}
	last := len(segments) - 1
	return segments[last], strings.Join(segments[:last], "/"), nil
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// normalize turns BSON-specific values into plain Go ones.
func normalize(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.M:
		return normalizeMap(t)
	case primitive.D:
		return normalizeMap(t.Map())
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}
