// Package vectorstore holds the pieces shared by vector store clients: the
// collection identity cache and upsert/query precondition checks.
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"babyrag/internal/domain"
)

// Storage is the contract every vector store client implements.
type Storage = domain.VectorStore

// ResolveFunc looks up or creates a collection and returns its id.
type ResolveFunc func(ctx context.Context) (string, error)

// CollectionCache maps collection names to server-assigned ids. Entries live
// as long as the cache; a collection deleted behind our back stays cached.
// Concurrent resolutions of the same name share one ResolveFunc call.
type CollectionCache struct {
	mu    sync.RWMutex
	ids   map[string]string
	group singleflight.Group
}

// NewCollectionCache returns an empty cache.
func NewCollectionCache() *CollectionCache {
	return &CollectionCache{ids: make(map[string]string)}
}

// Lookup returns the cached id for name.
func (c *CollectionCache) Lookup(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[name]
	return id, ok
}

// Resolve returns the cached id for name, calling resolve at most once per
// concurrent wave of callers when it is missing. Errors are not cached.
func (c *CollectionCache) Resolve(ctx context.Context, name string, resolve ResolveFunc) (string, error) {
	if id, ok := c.Lookup(name); ok {
		return id, nil
	}
	v, err, _ := c.group.Do(name, func() (any, error) {
		if id, ok := c.Lookup(name); ok {
			return id, nil
		}
		id, err := resolve(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.ids[name] = id
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// DimensionGuard remembers the first embedding dimension it sees and rejects
// any other.
type DimensionGuard struct {
	mu  sync.Mutex
	dim int
}

// Check validates that every embedding has the guarded dimension.
func (g *DimensionGuard) Check(embeddings ...domain.Embedding) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range embeddings {
		if len(e) == 0 {
			return domain.Validationf("embedding %d is empty", i)
		}
		if g.dim == 0 {
			g.dim = len(e)
			continue
		}
		if len(e) != g.dim {
			return fmt.Errorf("%w: embedding %d has %d dimensions, collection uses %d",
				domain.ErrDimensionMismatch, i, len(e), g.dim)
		}
	}
	return nil
}

// Dimension returns the guarded dimension, or 0 if none was seen yet.
func (g *DimensionGuard) Dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

// ValidateUpsert checks the upsert preconditions shared by all stores.
func ValidateUpsert(ids, documents []string, metadatas []map[string]any, embeddings []domain.Embedding) error {
	n := len(ids)
	if n == 0 {
		return domain.Validationf("upsert needs at least one item")
	}
	if len(documents) != n || len(metadatas) != n || len(embeddings) != n {
		return domain.Validationf("upsert length mismatch: %d ids, %d documents, %d metadatas, %d embeddings",
			n, len(documents), len(metadatas), len(embeddings))
	}
	return nil
}

// ValidateQuery checks the query preconditions shared by all stores.
func ValidateQuery(embedding domain.Embedding, topK int) error {
	if topK < 1 {
		return domain.Validationf("topK must be at least 1, got %d", topK)
	}
	if len(embedding) == 0 {
		return domain.Validationf("query embedding is empty")
	}
	return nil
}
