package embeddings

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/econsult/internal/apperr"
)

// Embedder turns text into vectors for the vector store. Documents and
// questions must go through the same model or the search is meaningless.
type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector length the index was built for. Zero means
	// unknown and skips the length check.
	Dimensions() int
	Name() string
}

// EmbedQuery embeds one question. Every failure is an apperr.KindEncoder
// error, which the API reports as 503.
func EmbedQuery(ctx context.Context, e Embedder, query string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEncoder, "query encoding failed", err).
			WithDetails(map[string]any{"embedder": e.Name()})
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, apperr.New(apperr.KindEncoder, "query encoding returned no vector")
	}
	if err := checkDimensions(e, vecs[0]); err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds texts for indexing, one vector per text.
func EmbedDocuments(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEncoder, "embedding documents", err).
			WithDetails(map[string]any{"embedder": e.Name(), "documents": len(texts)})
	}
	if len(vecs) != len(texts) {
		return nil, apperr.New(apperr.KindEncoder, fmt.Sprintf("embedder returned %d vectors for %d documents", len(vecs), len(texts)))
	}
	for _, v := range vecs {
		if err := checkDimensions(e, v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func checkDimensions(e Embedder, v []float32) error {
	if d := e.Dimensions(); d > 0 && len(v) != d {
		return apperr.New(apperr.KindEncoder,
			fmt.Sprintf("%s returned %d dimensions, expected %d", e.Name(), len(v), d))
	}
	return nil
}
