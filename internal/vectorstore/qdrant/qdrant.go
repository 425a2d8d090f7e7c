// Package qdrant is a REST client for a Qdrant collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"babyrag/internal/domain"
	"babyrag/internal/vectorstore"
)

var _ domain.VectorStore = (*Store)(nil)

// pointNamespace scopes the UUIDv5 point ids derived from chunk ids.
var pointNamespace = uuid.MustParse("6f1c7a52-3d0e-4f6e-9a57-1c0d6b9b2e11")

// Store is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection on first upsert,
// once the vector size is known.
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	cache      *vectorstore.CollectionCache
	dims       vectorstore.DimensionGuard
}

// Config holds the connection settings for one collection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration // zero means 15s
}

// NewStore returns a store for cfg.Collection. No request is made until the
// first call.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		cache:      vectorstore.NewCollectionCache(),
	}
}

// PointID maps a chunk id onto the UUID Qdrant requires. The mapping is
// stable, so re-ingesting a chunk overwrites its point.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// EnsureCollection checks that the collection exists. Qdrant addresses
// collections by name, so the name doubles as the id. A missing collection
// is created by the first Upsert.
func (s *Store) EnsureCollection(ctx context.Context) (string, error) {
	if id, ok := s.cache.Lookup(s.createKey()); ok {
		return id, nil
	}
	return s.cache.Resolve(ctx, s.collection, func(ctx context.Context) (string, error) {
		found, err := s.exists(ctx)
		if err != nil {
			return "", err
		}
		if !found {
			return "", &domain.CollectionResolutionError{Name: s.collection, Err: errors.New("collection does not exist yet")}
		}
		return s.collection, nil
	})
}

func (s *Store) exists(ctx context.Context) (bool, error) {
	var resp struct {
		Result *struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	raw, err := s.doJSON(ctx, http.MethodGet, "/collections", nil, &resp)
	if err != nil {
		return false, &domain.CollectionResolutionError{Name: s.collection, Raw: string(raw), Err: err}
	}
	if resp.Result == nil {
		return false, &domain.CollectionResolutionError{Name: s.collection, Raw: string(raw), Err: errors.New("response has no result")}
	}
	for _, c := range resp.Result.Collections {
		if c.Name == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// createKey is the cache key for resolve-or-create. It is kept apart from the
// lookup-only key so a create never joins an in-flight lookup that cannot
// create.
func (s *Store) createKey() string { return s.collection + "#create" }

func (s *Store) create(ctx context.Context, dimension int) (string, error) {
	if id, ok := s.cache.Lookup(s.collection); ok {
		return id, nil
	}
	return s.cache.Resolve(ctx, s.createKey(), func(ctx context.Context) (string, error) {
		found, err := s.exists(ctx)
		if err != nil {
			return "", err
		}
		if found {
			return s.collection, nil
		}
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		raw, err := s.doJSON(ctx, http.MethodPut, "/collections/"+url.PathEscape(s.collection), body, nil)
		if err != nil {
			return "", &domain.CollectionResolutionError{Name: s.collection, Raw: string(raw), Err: err}
		}
		slog.Info("qdrant collection created", "collection", s.collection, "size", dimension)
		return s.collection, nil
	})
}

// Upsert writes the points, creating the collection with the batch's vector
// size if it does not exist yet.
func (s *Store) Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any, embeddings []domain.Embedding) error {
	if err := vectorstore.ValidateUpsert(ids, documents, metadatas, embeddings); err != nil {
		return err
	}
	if err := s.dims.Check(embeddings...); err != nil {
		return err
	}
	name, err := s.create(ctx, s.dims.Dimension())
	if err != nil {
		return err
	}
	points := make([]map[string]any, len(ids))
	for i := range ids {
		payload := make(map[string]any, len(metadatas[i])+2)
		for k, v := range metadatas[i] {
			payload[k] = v
		}
		payload["chunk_id"] = ids[i]
		payload["text"] = documents[i]
		points[i] = map[string]any{
			"id":      PointID(ids[i]),
			"vector":  embeddings[i],
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	_, err = s.doJSON(ctx, http.MethodPut, "/collections/"+url.PathEscape(name)+"/points?wait=true", body, nil)
	return err
}

// Query returns the topK nearest points. Distance is 1 - cosine score.
func (s *Store) Query(ctx context.Context, embedding domain.Embedding, topK int) ([]domain.RetrievedDocument, error) {
	if err := vectorstore.ValidateQuery(embedding, topK); err != nil {
		return nil, err
	}
	if err := s.dims.Check(embedding); err != nil {
		return nil, err
	}
	name, err := s.EnsureCollection(ctx)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       embedding,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result *[]struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.doJSON(ctx, http.MethodPost, "/collections/"+url.PathEscape(name)+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, domain.ProtocolError("qdrant", "search", errors.New("response has no result"))
	}
	results := make([]domain.RetrievedDocument, 0, len(*resp.Result))
	for _, r := range *resp.Result {
		doc := domain.RetrievedDocument{Metadata: make(map[string]any), Distance: 1 - r.Score}
		for k, v := range r.Payload {
			switch k {
			case "text":
				doc.Text, _ = v.(string)
			case "chunk_id":
			default:
				doc.Metadata[k] = v
			}
		}
		results = append(results, doc)
	}
	return results, nil
}

// Ping checks that the Qdrant server answers.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.doJSON(ctx, http.MethodGet, "/collections", nil, nil)
	return err
}

func (s *Store) doJSON(ctx context.Context, method, path string, body, out any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.TransportError("qdrant", method+" "+path, 0, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TransportError("qdrant", method+" "+path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		return raw, domain.TransportError("qdrant", method+" "+path, resp.StatusCode, errors.New(resp.Status))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, domain.ProtocolError("qdrant", method+" "+path, fmt.Errorf("decode response: %w", err))
		}
	}
	return raw, nil
}
