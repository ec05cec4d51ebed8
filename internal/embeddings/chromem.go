package embeddings

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc adapts e to chromem-go, which embeds one text per call.
// The store embeds ahead of time, so chromem only calls this for documents
// added without a vector.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return EmbedQuery(ctx, e, text)
	}
}
