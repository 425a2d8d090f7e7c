// Package memory is the in-process store used in fake mode.
package memory

import (
	"context"
	"maps"
	"sync"

	"babyrag/internal/domain"
	"babyrag/internal/vectorstore"
)

// CollectionID is the id reported for the single in-process collection.
const CollectionID = "memory"

var _ domain.VectorStore = (*Store)(nil)

type entry struct {
	text     string
	metadata map[string]any
}

// Store keeps (text, metadata) pairs in insertion order. It performs no
// similarity ranking: Query returns the first topK entries.
type Store struct {
	mu      sync.RWMutex
	entries []entry
	dims    vectorstore.DimensionGuard
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// EnsureCollection always succeeds with CollectionID.
func (s *Store) EnsureCollection(context.Context) (string, error) {
	return CollectionID, nil
}

// Upsert appends the batch. Ids are not deduplicated.
func (s *Store) Upsert(_ context.Context, ids, documents []string, metadatas []map[string]any, embeddings []domain.Embedding) error {
	if err := vectorstore.ValidateUpsert(ids, documents, metadatas, embeddings); err != nil {
		return err
	}
	if err := s.dims.Check(embeddings...); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range documents {
		s.entries = append(s.entries, entry{text: documents[i], metadata: maps.Clone(metadatas[i])})
	}
	return nil
}

// Query returns copies of the first min(topK, Len()) entries in insertion
// order. The embedding only has to match the stored dimension.
func (s *Store) Query(_ context.Context, embedding domain.Embedding, topK int) ([]domain.RetrievedDocument, error) {
	if err := vectorstore.ValidateQuery(embedding, topK); err != nil {
		return nil, err
	}
	if err := s.dims.Check(embedding); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := min(topK, len(s.entries))
	out := make([]domain.RetrievedDocument, n)
	for i := range n {
		out[i] = domain.RetrievedDocument{
			Text:     s.entries[i].text,
			Metadata: maps.Clone(s.entries[i].metadata),
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset drops every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
