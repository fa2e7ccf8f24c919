package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// ErrUnavailable indicates the generation backend could not be reached
// after the configured retries.
var ErrUnavailable = errors.New("synth: generation backend unavailable")

const defaultSystemPrompt = `You are a trusted advisor that doesn't make up answers. You are provided with context and a question. You always use the context to answer the question. If you don't know the answer, you say that you don't know, and don't try to make up an answer.

You respect the user's time and don't provide unnecessary information. You are succinct and to the point.`

func DefaultSystemPrompt() string {
	return defaultSystemPrompt
}

type GeneratorOption func(*LLMGenerator)

func WithGenerateTimeout(d time.Duration) GeneratorOption {
	return func(g *LLMGenerator) {
		g.timeout = d
	}
}

func WithGenerateAttempts(n int) GeneratorOption {
	return func(g *LLMGenerator) {
		g.attempts = n
	}
}

func WithGenerateRetryDelay(d time.Duration) GeneratorOption {
	return func(g *LLMGenerator) {
		g.retryDelay = d
	}
}

func NewLLMGenerator(log *slog.Logger, llm llms.Model, systemPrompt, serverURL string, httpClient *http.Client, opts ...GeneratorOption) *LLMGenerator {
	g := &LLMGenerator{
		log:          log,
		llm:          llm,
		systemPrompt: systemPrompt,
		serverURL:    serverURL,
		httpClient:   httpClient,
		timeout:      120 * time.Second,
		attempts:     2,
		retryDelay:   250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LLMGenerator adapts a langchaingo model to the Generator capability,
// with a bounded per-attempt timeout and a small fixed retry.
type LLMGenerator struct {
	log          *slog.Logger
	llm          llms.Model
	systemPrompt string
	serverURL    string
	httpClient   *http.Client
	timeout      time.Duration
	attempts     int
	retryDelay   time.Duration
}

func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (text string, err error) {
	// Detached from caller cancellation: a disconnect lets the call
	// complete, and the result is simply discarded by the caller.
	ctx = context.WithoutCancel(ctx)
	for attempt := 1; attempt <= g.attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		text, err = g.generate(attemptCtx, prompt)
		cancel()
		if err == nil {
			return text, nil
		}
		g.log.Warn("generation attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt < g.attempts {
			time.Sleep(g.retryDelay)
		}
	}
	return "", fmt.Errorf("synth: generation failed after %d attempts: %v: %w", g.attempts, err, ErrUnavailable)
}

func (g *LLMGenerator) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, g.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Content, nil
}

// Available reports whether the generation backend responds to a
// model listing request. Used by the health surface.
func (g *LLMGenerator) Available(ctx context.Context) bool {
	u, err := url.JoinPath(strings.TrimSuffix(g.serverURL, "/"), "api", "tags")
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
