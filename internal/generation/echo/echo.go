// Package echo is the generator used in fake mode.
package echo

import (
	"context"

	"babyrag/internal/domain"
)

// PreviewRunes is how much of the prompt the fake answer repeats.
const PreviewRunes = 200

var _ domain.Generator = Generator{}

// Generator answers with a prefix of the prompt.
type Generator struct{}

// New returns the fake generator.
func New() Generator { return Generator{} }

// Generate returns "[fake] " followed by the first PreviewRunes runes of
// prompt. It never fails.
func (Generator) Generate(_ context.Context, prompt string) (string, error) {
	r := []rune(prompt)
	if len(r) > PreviewRunes {
		r = r[:PreviewRunes]
	}
	return "[fake] " + string(r), nil
}
