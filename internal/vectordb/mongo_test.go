package vectordb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
)

// fakeCollection records calls and returns canned documents.
type fakeCollection struct {
	hits     []interface{}
	aggErr   error
	pipeline interface{}
	written  []mongo.WriteModel
	deleted  interface{}
	count    int64
}

func (f *fakeCollection) Aggregate(_ context.Context, pipeline interface{}, _ ...*options.AggregateOptions) (*mongo.Cursor, error) {
	f.pipeline = pipeline
	if f.aggErr != nil {
		return nil, f.aggErr
	}
	return mongo.NewCursorFromDocuments(f.hits, nil, nil)
}

func (f *fakeCollection) BulkWrite(_ context.Context, models []mongo.WriteModel, _ ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	f.written = append(f.written, models...)
	return &mongo.BulkWriteResult{UpsertedCount: int64(len(models))}, nil
}

func (f *fakeCollection) CountDocuments(context.Context, interface{}, ...*options.CountOptions) (int64, error) {
	return f.count, nil
}

func (f *fakeCollection) DeleteMany(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.deleted = filter
	return &mongo.DeleteResult{}, nil
}

func TestMongoStore_SearchBuildsPipeline(t *testing.T) {
	coll := &fakeCollection{hits: []interface{}{
		bson.D{
			{Key: "_id", Value: "a1"},
			{Key: "title", Value: "Hoofdpijn"},
			{Key: "url", Value: "https://www.thuisarts.nl/hoofdpijn"},
			{Key: "content", Value: "Paracetamol kan helpen."},
			{Key: "score", Value: 0.87},
		},
	}}
	store := newMongoStoreWithCollection(coll, MongoConfig{Index: "vector_index", NumCandidates: 150}, newMockEmbedder(8), zap.NewNop())

	results, err := store.Search(context.Background(), "hoofdpijn", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].Document.ID)
	assert.Equal(t, "Hoofdpijn", results[0].Document.Title)
	assert.InDelta(t, 0.87, results[0].Score, 0.0001)

	pipeline, ok := coll.pipeline.(mongo.Pipeline)
	require.True(t, ok)
	require.Len(t, pipeline, 2)
	assert.Equal(t, "$vectorSearch", pipeline[0][0].Key)

	stage := pipeline[0][0].Value.(bson.D).Map()
	assert.Equal(t, "vector_index", stage["index"])
	assert.Equal(t, "content_vector", stage["path"])
	assert.Equal(t, 150, stage["numCandidates"])
	assert.Equal(t, 10, stage["limit"])
	assert.Len(t, stage["queryVector"], 8)
}

func TestMongoStore_ErrorKinds(t *testing.T) {
	emb := newMockEmbedder(8)
	coll := &fakeCollection{aggErr: errors.New("index not found")}
	store := newMongoStoreWithCollection(coll, MongoConfig{}, emb, zap.NewNop())

	_, err := store.Search(context.Background(), "x", 5)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDatabase, apperr.KindOf(err))

	emb.err = errors.New("encoder down")
	_, err = store.Search(context.Background(), "x", 5)
	require.Error(t, err)
	assert.Equal(t, apperr.KindEncoder, apperr.KindOf(err))
}

func TestMongoStore_AddDocumentsUpserts(t *testing.T) {
	coll := &fakeCollection{}
	store := newMongoStoreWithCollection(coll, MongoConfig{}, newMockEmbedder(8), zap.NewNop())

	require.NoError(t, store.AddDocuments(context.Background(), sampleDocs()))
	require.Len(t, coll.written, 3)

	model, ok := coll.written[0].(*mongo.ReplaceOneModel)
	require.True(t, ok)
	assert.True(t, *model.Upsert)
	replacement := model.Replacement.(bson.D).Map()
	assert.Equal(t, "doc1", replacement["_id"])
	assert.Equal(t, "Hoofdpijn", replacement["title"])
	assert.Len(t, replacement["content_vector"], 8)
}

func TestMongoStore_DeleteAndCount(t *testing.T) {
	coll := &fakeCollection{count: 42}
	store := newMongoStoreWithCollection(coll, MongoConfig{}, newMockEmbedder(8), zap.NewNop())

	require.NoError(t, store.DeleteBySource(context.Background(), "thuisarts.json"))
	assert.Equal(t, bson.D{{Key: "source", Value: "thuisarts.json"}}, coll.deleted)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, store.Close(context.Background()))
}

func TestNewMongoStoreRequiresURI(t *testing.T) {
	_, err := NewMongoStore(context.Background(), MongoConfig{}, newMockEmbedder(8), zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}
