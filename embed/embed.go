package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
)

// ErrUnavailable indicates the embedding backend could not be reached
// after the configured retries. Ingestion treats this as fatal for the
// whole batch, query handling degrades to a fallback answer.
var ErrUnavailable = errors.New("embed: backend unavailable")

// ErrDimensionMismatch indicates the backend returned vectors of a
// different dimension than the index was built for. This is a
// configuration error, not a transient failure.
var ErrDimensionMismatch = errors.New("embed: dimension mismatch")

// Embedder maps text to fixed-dimension vectors. Implementations must
// be deterministic for a fixed model: the same text yields the same
// vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithAttempts(n int) Option {
	return func(c *Client) {
		c.attempts = n
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

func New(log *slog.Logger, embedder embeddings.Embedder, dimension int, opts ...Option) *Client {
	c := &Client{
		log:        log,
		embedder:   embedder,
		dimension:  dimension,
		timeout:    60 * time.Second,
		attempts:   2,
		retryDelay: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Client wraps a langchaingo embedder with a bounded per-attempt
// timeout, a small fixed retry, and dimension validation.
type Client struct {
	log        *slog.Logger
	embedder   embeddings.Embedder
	dimension  int
	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
}

// Dimension returns the expected vector dimension.
func (c *Client) Dimension() int {
	return c.dimension
}

func (c *Client) EmbedQuery(ctx context.Context, text string) (v []float32, err error) {
	err = c.withRetry(ctx, "query", func(ctx context.Context) error {
		v, err = c.embedder.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err = c.validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) EmbedDocuments(ctx context.Context, texts []string) (vs [][]float32, err error) {
	err = c.withRetry(ctx, "documents", func(ctx context.Context) error {
		vs, err = c.embedder.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vs) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts: %w", len(vs), len(texts), ErrUnavailable)
	}
	for _, v := range vs {
		if err = c.validate(v); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func (c *Client) validate(v []float32) error {
	if c.dimension > 0 && len(v) != c.dimension {
		return fmt.Errorf("embed: expected dimension %d, got %d: %w", c.dimension, len(v), ErrDimensionMismatch)
	}
	return nil
}

// withRetry runs f with a per-attempt timeout on a context detached
// from caller cancellation, so a client disconnect never abandons an
// in-flight backend call mid-write.
func (c *Client) withRetry(ctx context.Context, op string, f func(ctx context.Context) error) (err error) {
	ctx = context.WithoutCancel(ctx)
	for attempt := 1; attempt <= c.attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = f(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		c.log.Warn("embedding attempt failed", slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt < c.attempts {
			time.Sleep(c.retryDelay)
		}
	}
	return fmt.Errorf("embed: %s failed after %d attempts: %v: %w", op, c.attempts, err, ErrUnavailable)
}
