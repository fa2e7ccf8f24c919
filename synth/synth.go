// Package synth builds grounded prompts from retrieved passages and
// turns the generation backend's output into a citeable answer.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a-h/ragchat/index"
)

// Generator is the single capability required of a text-generation
// backend. Alternate backends can be substituted without touching
// prompt construction.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// FallbackAnswer is returned when retrieval produced no passages. The
// backend is not invoked: an empty context invites hallucination.
const FallbackAnswer = "No relevant information was found in the indexed documents to answer this question."

const defaultUserPrompt = `Here is the context you need to answer the question:

%s

Please answer using only the context above. If the answer is not in the context, say that you don't know. The question is: %s`

func DefaultUserPrompt(question, context string) (string, error) {
	return fmt.Sprintf(defaultUserPrompt, context, question), nil
}

func New(log *slog.Logger, generator Generator, userPrompt func(question, context string) (string, error), maxContextChars int) *Synthesizer {
	return &Synthesizer{
		log:             log,
		generator:       generator,
		userPrompt:      userPrompt,
		maxContextChars: maxContextChars,
	}
}

type Synthesizer struct {
	log             *slog.Logger
	generator       Generator
	userPrompt      func(question, context string) (string, error)
	maxContextChars int
}

type Answer struct {
	Answer  string
	Sources []string
}

// Synthesize answers the question from the retrieved passages. A
// generation failure degrades to an error-bearing answer rather than
// an error: a single failed generation must not fail the request.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, results []index.Result) (Answer, error) {
	if len(results) == 0 {
		return Answer{Answer: FallbackAnswer, Sources: []string{}}, nil
	}

	kept := s.fitToBudget(results)

	var sb strings.Builder
	for _, r := range kept {
		sb.WriteString(passageBlock(r))
	}
	prompt, err := s.userPrompt(question, sb.String())
	if err != nil {
		return Answer{}, fmt.Errorf("synth: failed to build prompt: %w", err)
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.log.Error("generation failed", slog.Any("error", err))
		return Answer{
			Answer:  fmt.Sprintf("Error generating response: %v. Please check that the generation backend is running.", err),
			Sources: []string{},
		}, nil
	}

	return Answer{
		Answer:  strings.TrimSpace(text),
		Sources: sources(kept),
	}, nil
}

// fitToBudget drops whole passages from the lowest-ranked end until
// the concatenated context fits. Passages are never truncated mid-text
// since that corrupts the evidence shown to the model. The top-ranked
// passage is always kept.
func (s *Synthesizer) fitToBudget(results []index.Result) []index.Result {
	if s.maxContextChars <= 0 {
		return results
	}
	total := 0
	kept := results[:0:0]
	for i, r := range results {
		size := len([]rune(passageBlock(r)))
		if i > 0 && total+size > s.maxContextChars {
			s.log.Warn("dropping passages to fit context budget",
				slog.Int("kept", len(kept)),
				slog.Int("dropped", len(results)-len(kept)))
			break
		}
		total += size
		kept = append(kept, r)
	}
	return kept
}

func passageBlock(r index.Result) string {
	return fmt.Sprintf("Context from %s - %s\n%s\n\n", r.Chunk.DocumentTitle, r.Chunk.SourceURL, r.Chunk.Text)
}

// sources deduplicates citations across chunks of the same document,
// ordered by the rank of their first occurrence.
func sources(results []index.Result) (out []string) {
	out = []string{}
	seen := map[string]bool{}
	for _, r := range results {
		source := r.Chunk.Source()
		if seen[source] {
			continue
		}
		seen[source] = true
		out = append(out, source)
	}
	return out
}
