// Package pooled implements an Embedder that tokenizes remotely, runs the
// embedding model and mean-pools the hidden states over unmasked tokens.
package pooled

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"babyrag/internal/domain"
	"babyrag/internal/embedding"
)

// DefaultWorkers bounds concurrent embed calls in EmbedBatch.
const DefaultWorkers = 4

var _ domain.Embedder = (*Client)(nil)

// Client is the tokenizer + model + mean-pooling embedder.
type Client struct {
	tokenizer domain.Tokenizer
	backend   domain.InferenceBackend
	workers   int

	mu        sync.RWMutex
	dimension int
}

// Option configures a Client.
type Option func(*Client)

// WithWorkers sets the EmbedBatch concurrency. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithDimensions pre-sets the expected embedding dimension.
func WithDimensions(d int) Option {
	return func(c *Client) { c.dimension = d }
}

// New creates a pooled embedding client.
func New(tok domain.Tokenizer, backend domain.InferenceBackend, opts ...Option) *Client {
	c := &Client{tokenizer: tok, backend: backend, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "pooled" }

// Dimensions returns the embedding size, or 0 before the first embed when it
// was not configured.
func (c *Client) Dimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed returns the mean-pooled embedding of text.
func (c *Client) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	enc, err := c.tokenizer.Tokenize(ctx, text)
	if err != nil {
		return nil, domain.EmbeddingBackendError("tokenizer", "tokenize", err)
	}
	seqLen := enc.Len()
	if seqLen == 0 {
		return nil, domain.EmbeddingBackendError("tokenizer", "tokenize",
			domain.ProtocolError("tokenizer", "tokenize", fmt.Errorf("empty encoding")))
	}
	if len(enc.AttentionMask) != seqLen {
		return nil, domain.EmbeddingBackendError("tokenizer", "tokenize",
			domain.ProtocolError("tokenizer", "tokenize",
				fmt.Errorf("attention mask has %d entries for %d tokens", len(enc.AttentionMask), seqLen)))
	}

	hidden, err := c.backend.Infer(ctx, embedding.Tensorize(enc))
	if err != nil {
		return nil, domain.EmbeddingBackendError("inference", "infer", err)
	}
	if len(hidden)%seqLen != 0 {
		return nil, domain.EmbeddingBackendError("inference", "infer",
			domain.ProtocolError("inference", "infer",
				fmt.Errorf("%d hidden values do not divide into %d tokens", len(hidden), seqLen)))
	}
	hiddenSize := len(hidden) / seqLen
	if err := c.observeDimension(hiddenSize); err != nil {
		return nil, err
	}
	return embedding.MeanPool(hidden, enc.AttentionMask, hiddenSize), nil
}

// EmbedBatch embeds texts concurrently; the i-th result belongs to texts[i].
// Any failure cancels the remaining work and returns no partial results.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([]domain.Embedding, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := c.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slog.Debug("embedded batch", "texts", len(texts), "dimensions", c.Dimensions())
	return out, nil
}

func (c *Client) observeDimension(d int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = d
		return nil
	}
	if c.dimension != d {
		return domain.EmbeddingBackendError("inference", "infer",
			fmt.Errorf("%w: model returned %d dimensions, expected %d", domain.ErrDimensionMismatch, d, c.dimension))
	}
	return nil
}
