package vectordb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
	"github.com/ziadkadry99/econsult/internal/embeddings"
)

// MongoConfig locates the Atlas collection and its vector index.
type MongoConfig struct {
	URI           string
	Database      string
	Collection    string
	Index         string
	Path          string
	NumCandidates int
	AppName       string
}

// mongoCollection is the subset of *mongo.Collection the store uses.
type mongoCollection interface {
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// MongoStore implements VectorStore on MongoDB Atlas $vectorSearch. Query
// vectors come from the configured embedder; document vectors are stored in
// cfg.Path.
type MongoStore struct {
	client   *mongo.Client
	coll     mongoCollection
	cfg      MongoConfig
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewMongoStore connects to MongoDB with a pooled client and pings the
// primary before returning.
func NewMongoStore(ctx context.Context, cfg MongoConfig, embedder embeddings.Embedder, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, apperr.New(apperr.KindConfiguration, "MONGODB_URI is not configured")
	}
	cfg = withMongoDefaults(cfg)

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetServerSelectionTimeout(30 * time.Second).
		SetHeartbeatInterval(20 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "connecting to MongoDB", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperr.Wrap(apperr.KindDatabase, "pinging MongoDB", err)
	}
	logger.Info("MongoDB connection pool created",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)

	return &MongoStore{
		client:   client,
		coll:     client.Database(cfg.Database).Collection(cfg.Collection),
		cfg:      cfg,
		embedder: embedder,
		logger:   logger,
	}, nil
}

func newMongoStoreWithCollection(coll mongoCollection, cfg MongoConfig, embedder embeddings.Embedder, logger *zap.Logger) *MongoStore {
	return &MongoStore{coll: coll, cfg: withMongoDefaults(cfg), embedder: embedder, logger: logger}
}

func withMongoDefaults(cfg MongoConfig) MongoConfig {
	if cfg.Path == "" {
		cfg.Path = "content_vector"
	}
	if cfg.Index == "" {
		cfg.Index = "default"
	}
	if cfg.NumCandidates <= 0 {
		cfg.NumCandidates = 150
	}
	return cfg
}

func (s *MongoStore) Name() string { return "mongo" }

// mongoDocument is the stored shape of a Document.
type mongoDocument struct {
	ID       string            `bson:"_id"`
	Title    string            `bson:"title"`
	URL      string            `bson:"url"`
	Content  string            `bson:"content"`
	Source   string            `bson:"source,omitempty"`
	Metadata map[string]string `bson:"metadata,omitempty"`
}

// mongoHit is one $vectorSearch result after projection.
type mongoHit struct {
	ID      interface{} `bson:"_id"`
	Title   string      `bson:"title"`
	URL     string      `bson:"url"`
	Content string      `bson:"content"`
	Source  string      `bson:"source"`
	Score   float64     `bson:"score"`
}

// Search embeds query and runs a $vectorSearch aggregation.
func (s *MongoStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	vec, err := embeddings.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	cursor, err := s.coll.Aggregate(ctx, s.pipeline(vec, limit))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "vector search aggregation failed", err)
	}
	defer cursor.Close(context.Background())

	var hits []mongoHit
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "result processing failed", err)
	}

	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = SearchResult{
			Document: Document{
				ID:      formatID(h.ID),
				Title:   h.Title,
				URL:     h.URL,
				Content: h.Content,
				Source:  h.Source,
			},
			Score: float32(h.Score),
		}
	}
	s.logger.Debug("vector search completed", zap.Int("results", len(out)))
	return out, nil
}

func (s *MongoStore) pipeline(vector []float32, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.cfg.Index},
			{Key: "path", Value: s.cfg.Path},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: max(s.cfg.NumCandidates, limit)},
			{Key: "limit", Value: limit},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "title", Value: 1},
			{Key: "url", Value: 1},
			{Key: "content", Value: 1},
			{Key: "source", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

// AddDocuments embeds docs and upserts them by _id.
func (s *MongoStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := embeddings.EmbedDocuments(ctx, s.embedder, texts)
	if err != nil {
		return err
	}

	models := make([]mongo.WriteModel, len(docs))
	for i, d := range docs {
		body, err := bson.Marshal(mongoDocument{
			ID: d.ID, Title: d.Title, URL: d.URL, Content: d.Content,
			Source: d.Source, Metadata: d.Metadata,
		})
		if err != nil {
			return fmt.Errorf("encoding document %s: %w", d.ID, err)
		}
		var replacement bson.D
		if err := bson.Unmarshal(body, &replacement); err != nil {
			return fmt.Errorf("encoding document %s: %w", d.ID, err)
		}
		replacement = append(replacement, bson.E{Key: s.cfg.Path, Value: vecs[i]})

		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: d.ID}}).
			SetReplacement(replacement).
			SetUpsert(true)
	}

	if _, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "writing documents", err)
	}
	return nil
}

func (s *MongoStore) DeleteBySource(ctx context.Context, source string) error {
	if _, err := s.coll.DeleteMany(ctx, bson.D{{Key: "source", Value: source}}); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "deleting documents", err)
	}
	return nil
}

func (s *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindDatabase, "counting documents", err)
	}
	return int(n), nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func formatID(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}
