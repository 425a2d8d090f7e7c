// Package stats provides the fake-mode embedder: cheap deterministic text
// statistics instead of learned vectors.
package stats

import (
	"context"
	"unicode"
	"unicode/utf8"

	"babyrag/internal/domain"
)

// Dimensions is the length of every stats embedding.
const Dimensions = 3

var _ domain.Embedder = Embedder{}

// Embedder maps text to [characters, letters, whitespace].
type Embedder struct{}

// New returns a stats embedder.
func New() Embedder { return Embedder{} }

// Name returns the identifier of this embedder implementation.
func (Embedder) Name() string { return "stats" }

// Dimensions returns the fixed embedding size.
func (Embedder) Dimensions() int { return Dimensions }

// Embed never fails.
func (Embedder) Embed(_ context.Context, text string) (domain.Embedding, error) {
	return Of(text), nil
}

// EmbedBatch embeds every text in order.
func (Embedder) EmbedBatch(_ context.Context, texts []string) ([]domain.Embedding, error) {
	out := make([]domain.Embedding, len(texts))
	for i, t := range texts {
		out[i] = Of(t)
	}
	return out, nil
}

// Of computes the statistics vector of text.
func Of(text string) domain.Embedding {
	var letters, spaces int
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsSpace(r):
			spaces++
		}
	}
	return domain.Embedding{
		float32(utf8.RuneCountInString(text)),
		float32(letters),
		float32(spaces),
	}
}
