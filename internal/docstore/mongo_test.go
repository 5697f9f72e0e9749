package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path       string
		collection string
		parent     string
		wantErr    bool
	}{
		{path: "users", collection: "users"},
		{path: "users/u-1/pdfs", collection: "pdfs", parent: "users/u-1"},
		{path: "/users/u-1/pdfs/", collection: "pdfs", parent: "users/u-1"},
		{path: "users/u-1", wantErr: true},
		{path: "users//pdfs", wantErr: true},
		{path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c, p, err := splitPath(tt.path)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.collection, c)
			assert.Equal(t, tt.parent, p)
		})
	}
}

func TestWriteDocument(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("explicit id", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
		s := NewMongoStore(mt.DB, nil)

		id, err := s.WriteDocument(context.Background(), "users", "u-1", map[string]any{
			"displayName": "Alice", "email": "alice@x.com", "userId": "u-1",
		})
		require.NoError(mt, err)
		assert.Equal(mt, "u-1", id)

		cmd := mt.GetStartedEvent().Command
		assert.Equal(mt, "users", cmd.Lookup("update").StringValue())
		update := cmd.Lookup("updates", "0")
		assert.Equal(mt, "u-1", update.Document().Lookup("q", "_id").StringValue())
		assert.True(mt, update.Document().Lookup("upsert").Boolean())
		assert.Equal(mt, "", update.Document().Lookup("u", "_parent").StringValue())
		assert.Equal(mt, "alice@x.com", update.Document().Lookup("u", "email").StringValue())
	})

	mt.Run("generated id and parent", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		s := NewMongoStore(mt.DB, nil)

		id, err := s.WriteDocument(context.Background(), "users/u-1/pdfs", "", map[string]any{
			"url": "https://x/y.pdf", "createdAt": time.Now(), "userId": "u-1",
		})
		require.NoError(mt, err)
		assert.Len(mt, id, 36)

		cmd := mt.GetStartedEvent().Command
		assert.Equal(mt, "pdfs", cmd.Lookup("update").StringValue())
		u := cmd.Lookup("updates", "0", "u").Document()
		assert.Equal(mt, "users/u-1", u.Lookup("_parent").StringValue())
		assert.Equal(mt, "users/u-1/"+id, u.Lookup("_id").StringValue())
	})

	mt.Run("same id under different parents", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)
		s := NewMongoStore(mt.DB, nil)

		for _, parent := range []string{"users/a", "users/b"} {
			id, err := s.WriteDocument(context.Background(), parent+"/pdfs", "X", map[string]any{"url": parent})
			require.NoError(mt, err)
			assert.Equal(mt, "X", id)
		}

		events := mt.GetAllStartedEvents()
		require.Len(mt, events, 2)
		for i, parent := range []string{"users/a", "users/b"} {
			q := events[i].Command.Lookup("updates", "0", "q").Document()
			assert.Equal(mt, parent+"/X", q.Lookup("_id").StringValue())
			assert.Equal(mt, parent, q.Lookup("_parent").StringValue())
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		s := NewMongoStore(mt.DB, nil)

		_, err := s.WriteDocument(context.Background(), "users", "u-1", map[string]any{})
		require.ErrorContains(mt, err, "duplicate key")
	})

	mt.Run("bad path", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, nil)
		_, err := s.WriteDocument(context.Background(), "users/u-1", "", nil)
		require.ErrorIs(mt, err, ErrInvalidPath)
	})
}

func TestListDocuments(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	created := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	mt.Run("success", func(mt *mtest.T) {
		docs := []bson.D{
			{
				{Key: "_id", Value: "d-1"},
				{Key: "_parent", Value: "users/u-1"},
				{Key: "url", Value: "https://x/1.pdf"},
				{Key: "createdAt", Value: primitive.NewDateTimeFromTime(created)},
				{Key: "userId", Value: "u-1"},
			},
			{
				{Key: "_id", Value: "d-2"},
				{Key: "_parent", Value: "users/u-1"},
				{Key: "url", Value: "https://x/2.pdf"},
				{Key: "tags", Value: bson.A{"a", bson.D{{Key: "k", Value: "v"}}}},
			},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "emissionkeeper.pdfs", mtest.FirstBatch, docs...))
		s := NewMongoStore(mt.DB, nil)

		got, err := s.ListDocuments(context.Background(), "users/u-1/pdfs")
		require.NoError(mt, err)
		require.Len(mt, got, 2)

		assert.Equal(mt, map[string]any{"url": "https://x/1.pdf", "createdAt": created, "userId": "u-1"}, got[0])
		assert.Equal(mt, []any{"a", map[string]any{"k": "v"}}, got[1]["tags"])

		cmd := mt.GetStartedEvent().Command
		assert.Equal(mt, "pdfs", cmd.Lookup("find").StringValue())
		assert.Equal(mt, "users/u-1", cmd.Lookup("filter", "_parent").StringValue())
	})

	mt.Run("empty", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "emissionkeeper.pdfs", mtest.FirstBatch))
		s := NewMongoStore(mt.DB, nil)

		got, err := s.ListDocuments(context.Background(), "users/u-2/pdfs")
		require.NoError(mt, err)
		assert.NotNil(mt, got)
		assert.Empty(mt, got)
	})

	mt.Run("find error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}))
		s := NewMongoStore(mt.DB, nil)

		_, err := s.ListDocuments(context.Background(), "users/u-1/pdfs")
		require.ErrorContains(mt, err, "unauthorized")
	})
}

func TestNormalize(t *testing.T) {
	oid := primitive.NewObjectID()
	now := time.Now()

	assert.Equal(t, oid.Hex(), normalize(oid))
	assert.Equal(t, now.UTC(), normalize(now))
	assert.Equal(t, map[string]any{"a": int32(1)}, normalize(primitive.M{"a": int32(1)}))
	assert.Equal(t, "plain", normalize("plain"))
}

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "u-1", documentKey("", "u-1"))
	assert.Equal(t, "users/u-1/d-1", documentKey("users/u-1", "d-1"))
}
