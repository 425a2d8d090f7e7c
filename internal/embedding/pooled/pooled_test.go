package pooled

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babyrag/internal/domain"
)

// wordTokenizer yields one token per word plus one padding position.
type wordTokenizer struct {
	fail string
}

func (w wordTokenizer) Tokenize(_ context.Context, text string) (domain.Encoding, error) {
	if w.fail != "" && text == w.fail {
		return domain.Encoding{}, domain.TransportError("tokenizer", "tokenize", 0, errors.New("connection refused"))
	}
	n := len(strings.Fields(text))
	ids := make([]int64, n+1)
	mask := make([]int64, n+1)
	for i := 0; i < n; i++ {
		ids[i] = int64(i + 1)
		mask[i] = 1
	}
	return domain.Encoding{IDs: ids, AttentionMask: mask, TokenTypeIDs: make([]int64, n+1)}, nil
}

// lengthBackend returns hidden rows [L, L] for real tokens and [999, 999]
// for padding, so the pooled vector is [L, L] when padding is ignored.
type lengthBackend struct {
	calls atomic.Int32
	extra int
}

func (b *lengthBackend) Infer(_ context.Context, in domain.Tensors) ([]float32, error) {
	b.calls.Add(1)
	mask := in.AttentionMask[0]
	out := make([]float32, 0, len(mask)*2+b.extra)
	for _, m := range mask {
		v := float32(len(mask))
		if m == 0 {
			v = 999
		}
		out = append(out, v, v)
	}
	for i := 0; i < b.extra; i++ {
		out = append(out, 0)
	}
	return out, nil
}

func TestEmbed_MeanPoolsUnmaskedTokens(t *testing.T) {
	c := New(wordTokenizer{}, &lengthBackend{})

	vec, err := c.Embed(context.Background(), "a b c")
	require.NoError(t, err)
	assert.Equal(t, domain.Embedding{4, 4}, vec)
	assert.Equal(t, 2, c.Dimensions())
}

func TestEmbed_TokenizerFailure(t *testing.T) {
	c := New(wordTokenizer{fail: "bad"}, &lengthBackend{})

	_, err := c.Embed(context.Background(), "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestEmbed_IndivisibleHiddenState(t *testing.T) {
	c := New(wordTokenizer{}, &lengthBackend{extra: 1})

	_, err := c.Embed(context.Background(), "a b")
	assert.ErrorIs(t, err, domain.ErrBackendProtocol)
}

// shortMaskTokenizer returns four ids but only two mask entries.
type shortMaskTokenizer struct{}

func (shortMaskTokenizer) Tokenize(context.Context, string) (domain.Encoding, error) {
	return domain.Encoding{IDs: []int64{1, 2, 3, 4}, AttentionMask: []int64{1, 1}}, nil
}

func TestEmbed_MaskLengthMismatch(t *testing.T) {
	backend := &lengthBackend{}
	c := New(shortMaskTokenizer{}, backend)

	_, err := c.Embed(context.Background(), "a b c d")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendProtocol)
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)
	assert.Zero(t, backend.calls.Load())
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	c := New(wordTokenizer{}, &lengthBackend{}, WithDimensions(384))

	_, err := c.Embed(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	backend := &lengthBackend{}
	c := New(wordTokenizer{}, backend, WithWorkers(3))
	texts := []string{"one", "one two", "one two three", "x y z w", "q"}

	got, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	for i, text := range texts {
		single, err := c.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, got[i], "text %d", i)
	}
	assert.EqualValues(t, 2*len(texts), backend.calls.Load())
}

func TestEmbedBatch_FailureNamesInput(t *testing.T) {
	c := New(wordTokenizer{fail: "broken"}, &lengthBackend{})

	got, err := c.EmbedBatch(context.Background(), []string{"fine", "broken", "fine too"})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "embed text 1")
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)
}

func TestEmbedBatch_Empty(t *testing.T) {
	got, err := New(wordTokenizer{}, &lengthBackend{}).EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
