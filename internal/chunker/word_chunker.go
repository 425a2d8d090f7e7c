package chunker

import (
	"strconv"
	"strings"

	"babyrag/internal/domain"
)

const (
	// DefaultChunkSize is the default number of words per chunk.
	DefaultChunkSize = 512
	// DefaultOverlap is the default number of words shared by consecutive chunks.
	DefaultOverlap = 50
)

// Chunk splits text into windows of chunkSize words where consecutive windows
// share overlap words. The step between windows never drops below one word,
// so overlap >= chunkSize still terminates. Empty text yields no chunks.
func Chunk(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	words := strings.Fields(text)
	step := max(1, chunkSize-overlap)

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := min(i+chunkSize, len(words))
		chunk := strings.Join(words[i:end], " ")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// WordChunker splits documents into overlapping word windows.
type WordChunker struct {
	chunkSize int
	overlap   int
}

// Option configures a WordChunker.
type Option func(*WordChunker)

// WithChunkSize sets the window size in words. Non-positive values are ignored.
func WithChunkSize(size int) Option {
	return func(c *WordChunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the number of shared words. Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *WordChunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewWordChunker creates a chunker with the given options.
func NewWordChunker(opts ...Option) *WordChunker {
	c := &WordChunker{chunkSize: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits the document content and assigns ids of the form name:index.
func (c *WordChunker) Chunk(doc domain.Document) []domain.Chunk {
	texts := Chunk(doc.Content, c.chunkSize, c.overlap)
	if len(texts) == 0 {
		return nil
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         doc.Name + ":" + strconv.Itoa(i),
			Text:       text,
			SourceName: doc.Name,
			Index:      i,
		}
	}
	return chunks
}
