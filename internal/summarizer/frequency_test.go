package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_Empty(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("   ", 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarize_ShortTextUnchanged(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("One sentence. Two sentences!", 3)
	require.NoError(t, err)
	assert.Equal(t, "One sentence. Two sentences!", got)
}

func TestSummarize_KeepsTopicalSentencesInOrder(t *testing.T) {
	text := "Vector stores index embeddings. The weather was mild. " +
		"Embeddings let vector stores answer similarity queries. Lunch was late."

	got, err := NewFrequencySummarizer().Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "Vector stores index embeddings. Embeddings let vector stores answer similarity queries.", got)
}

func TestSummarize_TrailingFragment(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("First. Second without a stop", 5)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "Second without a stop"))
}
