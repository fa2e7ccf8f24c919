// Package retrieve ranks indexed passages against a question. It does
// no text generation.
package retrieve

import (
	"context"
	"fmt"

	"github.com/a-h/ragchat/embed"
	"github.com/a-h/ragchat/index"
)

func New(embedder embed.Embedder, idx index.Index) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    idx,
	}
}

type Retriever struct {
	embedder embed.Embedder
	index    index.Index
}

// Retrieve embeds the question and returns the topK most similar
// passages. topK is clamped to [1, count]. An empty index returns an
// empty result without error: it is the normal state before ingestion
// completes.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]index.Result, error) {
	count, err := r.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve: failed to count index entries: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	if topK < 1 {
		topK = 1
	}
	if topK > count {
		topK = count
	}
	embedding, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve: failed to embed question: %w", err)
	}
	results, err := r.index.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: search failed: %w", err)
	}
	return results, nil
}
