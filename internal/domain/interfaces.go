package domain

import "context"

// Document represents a single uploaded or on-disk text file.
type Document struct {
	Name    string
	Content string
}

// Chunk is a contiguous window of a document's words used for indexing.
type Chunk struct {
	ID         string
	Text       string
	SourceName string
	Index      int
}

// Metadata returns the citation metadata stored alongside the chunk.
func (c Chunk) Metadata() map[string]any {
	return map[string]any{"source": c.SourceName, "chunk": c.Index}
}

// Embedding is a fixed-length vector produced by an Embedder.
type Embedding []float32

// Encoding is the tokenizer output for a single sequence.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Len returns the sequence length of the encoding.
func (e Encoding) Len() int { return len(e.IDs) }

// RetrievedDocument is a stored chunk returned by a similarity query.
type RetrievedDocument struct {
	Text     string
	Metadata map[string]any
	Distance float64
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) (Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
}

// Tokenizer turns text into an Encoding.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) (Encoding, error)
}

// Tensors are the three [1, L] integer inputs of an embedding model.
type Tensors struct {
	InputIDs      [][]int64
	AttentionMask [][]int64
	TokenTypeIDs  [][]int64
}

// InferenceBackend runs the embedding model and returns the per-token hidden
// states flattened row-major as [L * hiddenSize].
type InferenceBackend interface {
	Infer(ctx context.Context, in Tensors) ([]float32, error)
}

// VectorStore persists vectors for one named collection and supports
// similarity search.
type VectorStore interface {
	EnsureCollection(ctx context.Context) (string, error)
	Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any, embeddings []Embedding) error
	Query(ctx context.Context, embedding Embedding, topK int) ([]RetrievedDocument, error)
}

// Generator produces an answer for a composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
