package synth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/a-h/ragchat/chunk"
	"github.com/a-h/ragchat/index"
	"github.com/google/go-cmp/cmp"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func result(title, url, text string, score float64) index.Result {
	return index.Result{
		Chunk: chunk.Chunk{
			ID:            url + "#0",
			DocumentTitle: title,
			SourceURL:     url,
			Text:          text,
		},
		Score: score,
	}
}

func TestSynthesize(t *testing.T) {
	ctx := context.Background()

	t.Run("empty results return the fallback without calling the backend", func(t *testing.T) {
		gen := &fakeGenerator{response: "should not be used"}
		s := New(discard, gen, DefaultUserPrompt, 0)

		answer, err := s.Synthesize(ctx, "What is machine learning?", nil)
		if err != nil {
			t.Fatal(err)
		}
		if answer.Answer != FallbackAnswer {
			t.Errorf("expected fallback answer, got %q", answer.Answer)
		}
		if len(answer.Sources) != 0 {
			t.Errorf("expected no sources, got %v", answer.Sources)
		}
		if len(gen.prompts) != 0 {
			t.Errorf("expected the backend not to be invoked, got %d calls", len(gen.prompts))
		}
	})

	t.Run("the prompt contains the passages and the verbatim question", func(t *testing.T) {
		gen := &fakeGenerator{response: " ML is a field of AI.\n"}
		s := New(discard, gen, DefaultUserPrompt, 0)

		answer, err := s.Synthesize(ctx, "What is machine learning?", []index.Result{
			result("Machine Learning", "https://en.wikipedia.org/wiki/Machine_learning", "ML is the study of algorithms.", 0.9),
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(gen.prompts) != 1 {
			t.Fatalf("expected 1 generation call, got %d", len(gen.prompts))
		}
		prompt := gen.prompts[0]
		if !strings.Contains(prompt, "ML is the study of algorithms.") {
			t.Errorf("prompt is missing the passage text: %q", prompt)
		}
		if !strings.Contains(prompt, "Context from Machine Learning - https://en.wikipedia.org/wiki/Machine_learning") {
			t.Errorf("prompt is missing the source label: %q", prompt)
		}
		if !strings.Contains(prompt, "What is machine learning?") {
			t.Errorf("prompt is missing the question: %q", prompt)
		}
		if answer.Answer != "ML is a field of AI." {
			t.Errorf("expected a trimmed answer, got %q", answer.Answer)
		}
	})

	t.Run("sources are deduplicated in rank order", func(t *testing.T) {
		gen := &fakeGenerator{response: "answer"}
		s := New(discard, gen, DefaultUserPrompt, 0)

		answer, err := s.Synthesize(ctx, "q", []index.Result{
			result("A", "https://example.com/a", "a1", 0.9),
			result("B", "https://example.com/b", "b1", 0.8),
			result("A", "https://example.com/a", "a2", 0.7),
		})
		if err != nil {
			t.Fatal(err)
		}
		expected := []string{
			"A (https://example.com/a)",
			"B (https://example.com/b)",
		}
		if diff := cmp.Diff(expected, answer.Sources); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("passages beyond the context budget are dropped whole", func(t *testing.T) {
		gen := &fakeGenerator{response: "answer"}
		s := New(discard, gen, DefaultUserPrompt, 120)

		answer, err := s.Synthesize(ctx, "q", []index.Result{
			result("A", "https://example.com/a", strings.Repeat("a", 60), 0.9),
			result("B", "https://example.com/b", strings.Repeat("b", 60), 0.8),
		})
		if err != nil {
			t.Fatal(err)
		}
		prompt := gen.prompts[0]
		if !strings.Contains(prompt, strings.Repeat("a", 60)) {
			t.Error("expected the top-ranked passage to be kept whole")
		}
		if strings.Contains(prompt, "bbb") {
			t.Error("expected the lowest-ranked passage to be dropped")
		}
		if diff := cmp.Diff([]string{"A (https://example.com/a)"}, answer.Sources); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("an oversized top passage is still kept", func(t *testing.T) {
		gen := &fakeGenerator{response: "answer"}
		s := New(discard, gen, DefaultUserPrompt, 10)

		_, err := s.Synthesize(ctx, "q", []index.Result{
			result("A", "https://example.com/a", strings.Repeat("a", 60), 0.9),
		})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(gen.prompts[0], strings.Repeat("a", 60)) {
			t.Error("expected the top-ranked passage to survive the budget")
		}
	})

	t.Run("a generation failure degrades to an error-bearing answer", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("connection refused")}
		s := New(discard, gen, DefaultUserPrompt, 0)

		answer, err := s.Synthesize(ctx, "q", []index.Result{
			result("A", "https://example.com/a", "a1", 0.9),
		})
		if err != nil {
			t.Fatalf("a generation failure must not be an error: %v", err)
		}
		if !strings.HasPrefix(answer.Answer, "Error generating response:") {
			t.Errorf("expected a clearly-marked error answer, got %q", answer.Answer)
		}
		if len(answer.Sources) != 0 {
			t.Errorf("expected no sources on failure, got %v", answer.Sources)
		}
	})
}
