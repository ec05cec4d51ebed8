package vectordb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/econsult/internal/apperr"
	"github.com/ziadkadry99/econsult/internal/embeddings"
)

const (
	collectionName = "medical_documents"
	exportFile     = "chromem.gob.gz"

	metaTitle  = "title"
	metaURL    = "url"
	metaSource = "source"
)

// ChromemStore implements VectorStore in process using chromem-go, exported
// to a gzip'd gob file under dir.
type ChromemStore struct {
	dir       string
	db        *chromem.DB
	embedder  embeddings.Embedder
	embedFunc chromem.EmbeddingFunc

	mu         sync.RWMutex
	collection *chromem.Collection
	dirty      bool
}

// NewChromemStore creates a ChromemStore. When dir holds a previous export it
// is loaded; an empty dir keeps the store in memory only.
func NewChromemStore(embedder embeddings.Embedder, dir string) (*ChromemStore, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	s := &ChromemStore{dir: dir, db: db, embedder: embedder, embedFunc: ef}

	if dir != "" {
		if _, err := os.Stat(s.exportPath()); err == nil {
			if err := s.load(); err != nil {
				return nil, err
			}
			return s, nil
		}
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collection = col
	return s, nil
}

func (s *ChromemStore) Name() string { return "chromem" }

func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) error {
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

	chromDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: vecs[i],
			Metadata:  toMetadata(doc),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.AddDocuments(ctx, chromDocs, 1); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "adding documents", err)
	}
	s.dirty = true
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	col := s.collection
	s.mu.RUnlock()

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	limit = min(limit, count)

	vec, err := embeddings.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	results, err := col.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "chromem query", errors.Join(ctxErr, err))
		}
		return nil, apperr.Wrap(apperr.KindDatabase, "chromem query", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Document: fromMetadata(r.ID, r.Content, r.Metadata),
			Score:    r.Similarity,
		}
	}
	return out, nil
}

func (s *ChromemStore) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.Delete(ctx, map[string]string{metaSource: source}, nil); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "deleting documents", err)
	}
	s.dirty = true
	return nil
}

func (s *ChromemStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

// Persist exports the collection to dir. A store without dir is a no-op.
func (s *ChromemStore) Persist(context.Context) error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating vector store directory: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.ExportToFile(s.exportPath(), true, ""); err != nil {
		return fmt.Errorf("export to file: %w", err)
	}
	s.dirty = false
	return nil
}

// Close persists pending changes.
func (s *ChromemStore) Close(ctx context.Context) error {
	s.mu.RLock()
	dirty := s.dirty
	s.mu.RUnlock()
	if !dirty {
		return nil
	}
	return s.Persist(ctx)
}

func (s *ChromemStore) load() error {
	if err := s.db.ImportFromFile(s.exportPath(), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection reference after import.
	col := s.db.GetCollection(collectionName, s.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	s.collection = col
	return nil
}

func (s *ChromemStore) exportPath() string {
	return filepath.Join(s.dir, exportFile)
}

func toMetadata(d Document) map[string]string {
	md := make(map[string]string, len(d.Metadata)+3)
	for k, v := range d.Metadata {
		md[k] = v
	}
	md[metaTitle] = d.Title
	md[metaURL] = d.URL
	md[metaSource] = d.Source
	return md
}

func fromMetadata(id, content string, m map[string]string) Document {
	d := Document{
		ID:      id,
		Content: content,
		Title:   m[metaTitle],
		URL:     m[metaURL],
		Source:  m[metaSource],
	}
	extra := make(map[string]string)
	for k, v := range m {
		switch k {
		case metaTitle, metaURL, metaSource:
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		d.Metadata = extra
	}
	return d
}
