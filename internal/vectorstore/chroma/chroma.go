// Package chroma is a REST client for a Chroma vector database collection.
package chroma

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

	"babyrag/internal/domain"
	"babyrag/internal/vectorstore"
)

// DefaultTimeout bounds a single request to Chroma.
const DefaultTimeout = 15 * time.Second

var _ domain.VectorStore = (*Store)(nil)

// Config contains connection details for a Chroma server.
type Config struct {
	URL        string
	Collection string
	Timeout    time.Duration
}

// Store talks to one named collection. The collection id is resolved once
// and cached for the lifetime of the Store.
type Store struct {
	url        string
	collection string
	client     *http.Client
	cache      *vectorstore.CollectionCache
	dims       vectorstore.DimensionGuard
}

// NewStore creates a Chroma store client.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		cache:      vectorstore.NewCollectionCache(),
	}
}

type collectionEntry struct {
	Name *string `json:"name"`
	ID   *string `json:"id"`
}

// EnsureCollection returns the collection id, listing and if needed creating
// the collection on first use.
func (s *Store) EnsureCollection(ctx context.Context) (string, error) {
	return s.cache.Resolve(ctx, s.collection, s.resolve)
}

func (s *Store) resolve(ctx context.Context) (string, error) {
	raw, err := s.do(ctx, http.MethodGet, "/api/v1/collections", nil, "list collections")
	if err != nil {
		return "", s.resolutionError(raw, err)
	}
	var entries []collectionEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return "", s.resolutionError(raw, fmt.Errorf("unexpected list response: %w", err))
	}
	for _, e := range entries {
		if e.Name == nil || *e.Name != s.collection {
			continue
		}
		if e.ID == nil || *e.ID == "" {
			return "", s.resolutionError(raw, errors.New("matching collection has no id"))
		}
		slog.Debug("chroma collection found", "collection", s.collection, "id", *e.ID)
		return *e.ID, nil
	}

	body := map[string]any{"name": s.collection, "get_or_create": true}
	raw, err = s.do(ctx, http.MethodPost, "/api/v1/collections", body, "create collection")
	if err != nil {
		return "", s.resolutionError(raw, err)
	}
	var created collectionEntry
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == nil || *created.ID == "" {
		return "", s.resolutionError(raw, errors.New("create response has no id"))
	}
	slog.Info("chroma collection created", "collection", s.collection, "id", *created.ID)
	return *created.ID, nil
}

func (s *Store) resolutionError(raw []byte, err error) error {
	return &domain.CollectionResolutionError{Name: s.collection, Raw: string(raw), Err: err}
}

// Upsert writes one batch. Ids act as idempotency keys: re-sending an id
// overwrites the stored row.
func (s *Store) Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any, embeddings []domain.Embedding) error {
	if err := vectorstore.ValidateUpsert(ids, documents, metadatas, embeddings); err != nil {
		return err
	}
	if err := s.dims.Check(embeddings...); err != nil {
		return err
	}
	id, err := s.EnsureCollection(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": embeddings,
	}
	_, err = s.do(ctx, http.MethodPost, "/api/v1/collections/"+url.PathEscape(id)+"/upsert", body, "upsert")
	return err
}

type queryResponse struct {
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query returns up to topK nearest stored chunks in the backend's order.
func (s *Store) Query(ctx context.Context, embedding domain.Embedding, topK int) ([]domain.RetrievedDocument, error) {
	if err := vectorstore.ValidateQuery(embedding, topK); err != nil {
		return nil, err
	}
	if err := s.dims.Check(embedding); err != nil {
		return nil, err
	}
	id, err := s.EnsureCollection(ctx)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"query_embeddings": []domain.Embedding{embedding},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	raw, err := s.do(ctx, http.MethodPost, "/api/v1/collections/"+url.PathEscape(id)+"/query", body, "query")
	if err != nil {
		return nil, err
	}
	var resp queryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, domain.ProtocolError("chroma", "query", fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Documents) == 0 {
		return nil, domain.ProtocolError("chroma", "query", errors.New("response has no documents"))
	}

	docs := resp.Documents[0]
	results := make([]domain.RetrievedDocument, 0, len(docs))
	for i, d := range docs {
		r := domain.RetrievedDocument{Metadata: map[string]any{}}
		if d != nil {
			r.Text = *d
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) && resp.Metadatas[0][i] != nil {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Distance = resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

// Ping checks that the Chroma server answers.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, "/api/v1/heartbeat", nil, "heartbeat")
	return err
}

// do sends a JSON request and returns the raw body. Non-2xx statuses and
// bodies carrying an "error" field are reported as transport failures, with
// the body still returned for diagnostics.
func (s *Store) do(ctx context.Context, method, path string, body any, op string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.TransportError("chroma", op, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TransportError("chroma", op, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= 300 {
		return raw, domain.TransportError("chroma", op, resp.StatusCode, errors.New(truncate(raw)))
	}
	if msg, ok := errorPayload(raw); ok {
		return raw, domain.ProtocolError("chroma", op, errors.New(msg))
	}
	return raw, nil
}

// errorPayload detects Chroma's {"error": "...", "message": "..."} bodies.
func errorPayload(raw []byte) (string, bool) {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) != nil || e.Error == "" {
		return "", false
	}
	if e.Message != "" {
		return e.Error + ": " + e.Message, true
	}
	return e.Error, true
}

func truncate(raw []byte) string {
	const limit = 512
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
