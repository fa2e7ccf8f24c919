// Package pipeline owns the index lifecycle and exposes the two
// top-level operations: ingestion (corpus to index) and answering
// (question to grounded answer).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/a-h/ragchat/chunk"
	"github.com/a-h/ragchat/embed"
	"github.com/a-h/ragchat/index"
	"github.com/a-h/ragchat/models"
	"github.com/a-h/ragchat/retrieve"
	"github.com/a-h/ragchat/synth"
)

type State int32

const (
	StateUninitialized State = iota
	StateIngesting
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIngesting:
		return "ingesting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	}
	return "unknown"
}

// ErrNotReady is returned when a question arrives before any index
// state exists, persisted or fresh.
var ErrNotReady = errors.New("pipeline: no index available yet")

const DefaultTopK = 3

type ChatQuery struct {
	Question string
	TopK     int
}

type Health struct {
	Status                     string
	DocumentCount              int
	GenerationBackendAvailable bool
}

// The answer returned when the question itself cannot be embedded.
// Retrieval failure at query scope degrades instead of crashing.
const retrievalFailedAnswer = "The question could not be matched against the indexed documents because the embedding backend is unavailable. Please try again."

func New(ctx context.Context, log *slog.Logger, splitter *chunk.Splitter, embedder embed.Embedder, idx index.Index, synthesizer *synth.Synthesizer, generatorAvailable func(ctx context.Context) bool) (*Coordinator, error) {
	c := &Coordinator{
		log:                log,
		splitter:           splitter,
		embedder:           embedder,
		index:              idx,
		retriever:          retrieve.New(embedder, idx),
		synthesizer:        synthesizer,
		generatorAvailable: generatorAvailable,
	}
	// A previously persisted index is last-good state: serve it.
	count, err := idx.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to count index entries: %w", err)
	}
	if count > 0 {
		c.state.Store(int32(StateReady))
	}
	return c, nil
}

type Coordinator struct {
	log                *slog.Logger
	splitter           *chunk.Splitter
	embedder           embed.Embedder
	index              index.Index
	retriever          *retrieve.Retriever
	synthesizer        *synth.Synthesizer
	generatorAvailable func(ctx context.Context) bool

	// ingestMu serializes ingestion so interleaved resets can never
	// produce a half-populated index.
	ingestMu sync.Mutex
	state    atomic.Int32
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

const embeddingBatchSize = 32

// Ingest chunks and embeds every document, then replaces the index
// contents. All embedding happens before the index is touched, so an
// embedding failure aborts the batch and leaves the previously
// persisted state intact. A failure transitions to the terminal
// degraded state.
func (c *Coordinator) Ingest(ctx context.Context, docs []models.Document) (err error) {
	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()

	c.state.Store(int32(StateIngesting))
	defer func() {
		if err != nil {
			c.state.Store(int32(StateDegraded))
			return
		}
		c.state.Store(int32(StateReady))
	}()

	var chunks []chunk.Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.splitter.Split(doc)...)
	}
	c.log.Info("ingesting corpus", slog.Int("documents", len(docs)), slog.Int("chunks", len(chunks)))

	entries := make([]index.Entry, 0, len(chunks))
	for start := 0; start < len(chunks); start += embeddingBatchSize {
		end := min(start+embeddingBatchSize, len(chunks))
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		embeddings, err := c.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("pipeline: ingestion aborted, failed to embed chunks %d-%d: %w", start, end, err)
		}
		for i, ch := range batch {
			entries = append(entries, index.Entry{Chunk: ch, Embedding: embeddings[i]})
		}
	}

	if err = c.index.Reset(ctx); err != nil {
		return fmt.Errorf("pipeline: failed to reset index: %w", err)
	}
	if err = c.index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("pipeline: failed to upsert entries: %w", err)
	}
	c.log.Info("ingestion complete", slog.Int("entries", len(entries)))
	return nil
}

// Answer retrieves the top-k passages for the question and synthesizes
// a grounded answer. Questions are served from the last-good index
// state even while a re-ingestion is running.
func (c *Coordinator) Answer(ctx context.Context, query ChatQuery) (synth.Answer, error) {
	if c.State() == StateUninitialized {
		return synth.Answer{}, ErrNotReady
	}
	topK := query.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	results, err := c.retriever.Retrieve(ctx, query.Question, topK)
	if err != nil {
		if errors.Is(err, embed.ErrUnavailable) {
			c.log.Error("retrieval degraded", slog.Any("error", err))
			return synth.Answer{Answer: retrievalFailedAnswer, Sources: []string{}}, nil
		}
		return synth.Answer{}, fmt.Errorf("pipeline: retrieval failed: %w", err)
	}
	return c.synthesizer.Synthesize(ctx, query.Question, results)
}

func (c *Coordinator) Count(ctx context.Context) (int, error) {
	return c.index.Count(ctx)
}

func (c *Coordinator) Health(ctx context.Context) Health {
	status := "healthy"
	if c.State() == StateDegraded {
		status = "degraded"
	}
	count, err := c.index.Count(ctx)
	if err != nil {
		c.log.Error("failed to count index entries", slog.Any("error", err))
		status = "degraded"
	}
	available := false
	if c.generatorAvailable != nil {
		available = c.generatorAvailable(ctx)
	}
	return Health{
		Status:                     status,
		DocumentCount:              count,
		GenerationBackendAvailable: available,
	}
}
