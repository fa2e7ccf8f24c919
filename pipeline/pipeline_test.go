package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a-h/ragchat/chunk"
	"github.com/a-h/ragchat/embed"
	"github.com/a-h/ragchat/index"
	"github.com/a-h/ragchat/index/file"
	"github.com/a-h/ragchat/models"
	"github.com/a-h/ragchat/synth"
	"github.com/google/go-cmp/cmp"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// hashEmbedder produces deterministic 2-dimensional vectors from text,
// so identical corpora produce identical indexes.
type hashEmbedder struct {
	failing bool
	calls   int
}

func (h *hashEmbedder) vector(text string) []float32 {
	var a, b float32
	for i, r := range text {
		if i%2 == 0 {
			a += float32(r % 17)
			continue
		}
		b += float32(r % 13)
	}
	return []float32{a + 1, b + 1}
}

func (h *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	h.calls++
	if h.failing {
		return nil, embed.ErrUnavailable
	}
	return h.vector(text), nil
}

func (h *hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	h.calls++
	if h.failing {
		return nil, embed.ErrUnavailable
	}
	vs := make([][]float32, len(texts))
	for i, text := range texts {
		vs[i] = h.vector(text)
	}
	return vs, nil
}

type fakeGenerator struct {
	response string
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, nil
}

type env struct {
	coordinator *Coordinator
	embedder    *hashEmbedder
	generator   *fakeGenerator
	index       index.Index
	path        string
}

func newEnv(t *testing.T, path string) *env {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "index.json")
	}
	idx, err := file.New(discard, path, 2)
	if err != nil {
		t.Fatal(err)
	}
	splitter, err := chunk.NewSplitter(500, 50)
	if err != nil {
		t.Fatal(err)
	}
	embedder := &hashEmbedder{}
	generator := &fakeGenerator{response: "a grounded answer"}
	synthesizer := synth.New(discard, generator, synth.DefaultUserPrompt, 0)
	c, err := New(context.Background(), discard, splitter, embedder, idx, synthesizer, func(ctx context.Context) bool { return true })
	if err != nil {
		t.Fatal(err)
	}
	return &env{coordinator: c, embedder: embedder, generator: generator, index: idx, path: path}
}

var corpus = []models.Document{
	{
		Title: "Machine Learning",
		URL:   "https://en.wikipedia.org/wiki/Machine_learning",
		Text:  "Machine learning is a field of study in artificial intelligence concerned with statistical algorithms that learn from data. " + strings.Repeat("Models generalise to unseen data. ", 20),
	},
	{
		Title: "Deep Learning",
		URL:   "https://en.wikipedia.org/wiki/Deep_learning",
		Text:  "Deep learning uses multilayered neural networks. " + strings.Repeat("Layers learn representations. ", 20),
	},
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("a new coordinator is uninitialized", func(t *testing.T) {
		e := newEnv(t, "")
		if e.coordinator.State() != StateUninitialized {
			t.Errorf("expected uninitialized, got %v", e.coordinator.State())
		}
		if _, err := e.coordinator.Answer(ctx, ChatQuery{Question: "q"}); !errors.Is(err, ErrNotReady) {
			t.Errorf("expected ErrNotReady, got %v", err)
		}
	})

	t.Run("ingestion transitions to ready", func(t *testing.T) {
		e := newEnv(t, "")
		if err := e.coordinator.Ingest(ctx, corpus); err != nil {
			t.Fatal(err)
		}
		if e.coordinator.State() != StateReady {
			t.Errorf("expected ready, got %v", e.coordinator.State())
		}
		count, err := e.coordinator.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if count == 0 {
			t.Error("expected a populated index")
		}
	})

	t.Run("re-ingesting an unchanged corpus is idempotent", func(t *testing.T) {
		e := newEnv(t, "")
		if err := e.coordinator.Ingest(ctx, corpus); err != nil {
			t.Fatal(err)
		}
		firstCount, err := e.coordinator.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		firstResults, err := e.index.Search(ctx, []float32{3, 4}, 5)
		if err != nil {
			t.Fatal(err)
		}

		if err := e.coordinator.Ingest(ctx, corpus); err != nil {
			t.Fatal(err)
		}
		secondCount, err := e.coordinator.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if firstCount != secondCount {
			t.Errorf("count changed across re-ingestion: %d != %d", firstCount, secondCount)
		}
		secondResults, err := e.index.Search(ctx, []float32{3, 4}, 5)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(firstResults, secondResults); diff != "" {
			t.Errorf("search results changed across re-ingestion: %v", diff)
		}
	})

	t.Run("an embedding failure degrades and preserves the previous index", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		e := newEnv(t, path)
		if err := e.coordinator.Ingest(ctx, corpus); err != nil {
			t.Fatal(err)
		}
		before, err := e.coordinator.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}

		e.embedder.failing = true
		if err := e.coordinator.Ingest(ctx, corpus); !errors.Is(err, embed.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		if e.coordinator.State() != StateDegraded {
			t.Errorf("expected degraded, got %v", e.coordinator.State())
		}
		after, err := e.coordinator.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if before != after {
			t.Errorf("failed ingestion modified the index: %d != %d", before, after)
		}
	})

	t.Run("a previously persisted index makes a new coordinator ready", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		e := newEnv(t, path)
		if err := e.coordinator.Ingest(ctx, corpus); err != nil {
			t.Fatal(err)
		}

		restarted := newEnv(t, path)
		if restarted.coordinator.State() != StateReady {
			t.Errorf("expected ready after restart, got %v", restarted.coordinator.State())
		}
	})
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("an answer cites its sources", func(t *testing.T) {
		e := newEnv(t, "")
		if err := e.coordinator.Ingest(ctx, corpus); err != nil {
			t.Fatal(err)
		}
		answer, err := e.coordinator.Answer(ctx, ChatQuery{Question: "What is machine learning?", TopK: 3})
		if err != nil {
			t.Fatal(err)
		}
		if answer.Answer != "a grounded answer" {
			t.Errorf("unexpected answer: %q", answer.Answer)
		}
		if len(answer.Sources) == 0 {
			t.Fatal("expected at least one source")
		}
		for _, source := range answer.Sources {
			if !strings.Contains(source, "(https://en.wikipedia.org/wiki/") {
				t.Errorf("source is not in Title (url) format: %q", source)
			}
		}
	})

	t.Run("an empty index returns the fallback without generation", func(t *testing.T) {
		e := newEnv(t, "")
		if err := e.coordinator.Ingest(ctx, nil); err != nil {
			t.Fatal(err)
		}
		answer, err := e.coordinator.Answer(ctx, ChatQuery{Question: "x", TopK: 3})
		if err != nil {
			t.Fatal(err)
		}
		if answer.Answer != synth.FallbackAnswer {
			t.Errorf("expected fallback answer, got %q", answer.Answer)
		}
		if len(answer.Sources) != 0 {
			t.Errorf("expected no sources, got %v", answer.Sources)
		}
		if e.generator.calls != 0 {
			t.Errorf("expected no generation calls, got %d", e.generator.calls)
		}
	})

	t.Run("a query-time embedding failure degrades to a textual answer", func(t *testing.T) {
		e := newEnv(t, "")
		if err := e.coordinator.Ingest(ctx, corpus); err != nil {
			t.Fatal(err)
		}
		e.embedder.failing = true
		answer, err := e.coordinator.Answer(ctx, ChatQuery{Question: "q", TopK: 3})
		if err != nil {
			t.Fatalf("a retrieval failure must degrade, not error: %v", err)
		}
		if !strings.Contains(answer.Answer, "embedding backend is unavailable") {
			t.Errorf("unexpected degraded answer: %q", answer.Answer)
		}
	})

	t.Run("a zero topK uses the default", func(t *testing.T) {
		e := newEnv(t, "")
		if err := e.coordinator.Ingest(ctx, corpus); err != nil {
			t.Fatal(err)
		}
		if _, err := e.coordinator.Answer(ctx, ChatQuery{Question: "What is deep learning?"}); err != nil {
			t.Fatal(err)
		}
	})
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "")
	if err := e.coordinator.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}

	h := e.coordinator.Health(ctx)
	if h.Status != "healthy" {
		t.Errorf("expected healthy, got %q", h.Status)
	}
	if h.DocumentCount == 0 {
		t.Error("expected a non-zero document count")
	}
	if !h.GenerationBackendAvailable {
		t.Error("expected the generation backend to be reported available")
	}

	e.embedder.failing = true
	_ = e.coordinator.Ingest(ctx, corpus)
	if h := e.coordinator.Health(ctx); h.Status != "degraded" {
		t.Errorf("expected degraded after a failed ingestion, got %q", h.Status)
	}
}
