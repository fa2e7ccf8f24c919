// Package index defines the vector index contract shared by the
// on-disk file store and the rqlite/sqlite-vec store.
package index

import (
	"context"

	"github.com/a-h/ragchat/chunk"
)

// Entry is the unit stored by an index: a chunk and its embedding.
// Entries are only ever added or replaced wholesale, never mutated.
type Entry struct {
	Chunk     chunk.Chunk `json:"chunk"`
	Embedding []float32   `json:"embedding"`
}

// Result is a retrieved chunk with its similarity score, higher is
// more similar.
type Result struct {
	Chunk chunk.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

type Index interface {
	// Upsert adds entries, replacing any existing entry with the same
	// chunk ID, so re-ingesting an unchanged document is a no-op.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns up to topK entries ranked by descending
	// similarity to the query embedding. Ties are broken by a stable
	// store-specific order, so repeated queries against an unchanged
	// index are deterministic.
	Search(ctx context.Context, embedding []float32, topK int) ([]Result, error)

	Count(ctx context.Context) (int, error)

	// Reset clears all entries ahead of a full re-ingestion.
	Reset(ctx context.Context) error
}
