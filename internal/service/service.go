// Package service orchestrates ingestion and question answering over a
// pluggable embedder, vector store and generator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"babyrag/internal/chunker"
	"babyrag/internal/domain"
	"babyrag/internal/embedding/stats"
	"babyrag/internal/generation/echo"
	"babyrag/internal/normalize"
	"babyrag/internal/observe"
	"babyrag/internal/vectorstore/memory"
)

const (
	DefaultBatchSize = 32
	DefaultTopK      = 5
)

const promptPreamble = "You are a helpful assistant. Answer the question using only the context below. " +
	"If the answer is not contained in the context, say \"I don't know\".\n\nContext:\n"

// Backends is one complete set of pipeline dependencies.
type Backends struct {
	Embedder  domain.Embedder
	Store     domain.VectorStore
	Generator domain.Generator
}

func (b Backends) validate() error {
	var missing []string
	if b.Embedder == nil {
		missing = append(missing, "embedder")
	}
	if b.Store == nil {
		missing = append(missing, "vector store")
	}
	if b.Generator == nil {
		missing = append(missing, "generator")
	}
	if len(missing) > 0 {
		return fmt.Errorf("backends not configured: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IngestResult reports what an Ingest call stored.
type IngestResult struct {
	Added   int
	Fake    bool
	Summary string
}

// Answer is the result of Ask. Sources holds the metadata of every retrieved
// chunk in rank order.
type Answer struct {
	Answer  string
	Sources []map[string]any
	Fake    bool
}

// Service runs the pipeline against either the real or the fake backends.
// The mode can be switched at any time; a call in flight keeps the backends
// it started with.
type Service struct {
	real     Backends
	fake     Backends
	fakeMode atomic.Bool

	chunker          *chunker.WordChunker
	batchSize        int
	summarizer       domain.Summarizer
	summarySentences int
	metrics          *observe.Metrics
}

type Option func(*Service)

func WithChunker(c *chunker.WordChunker) Option {
	return func(s *Service) { s.chunker = c }
}

// WithBatchSize sets how many chunks are embedded and upserted together.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSummarizer makes Ingest return a summary of at most maxSentences
// sentences of the ingested text.
func WithSummarizer(sum domain.Summarizer, maxSentences int) Option {
	return func(s *Service) {
		s.summarizer = sum
		s.summarySentences = maxSentences
	}
}

// WithMetrics sets the instruments the pipeline records into. Nil keeps
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithFakeMode sets the initial mode.
func WithFakeMode(on bool) Option {
	return func(s *Service) { s.fakeMode.Store(on) }
}

// New creates a Service. Unset fake backends default to the statistics
// embedder, the in-memory store and the echo generator.
func New(live, fake Backends, opts ...Option) *Service {
	if fake.Embedder == nil {
		fake.Embedder = stats.New()
	}
	if fake.Store == nil {
		fake.Store = memory.NewStore()
	}
	if fake.Generator == nil {
		fake.Generator = echo.New()
	}
	s := &Service{
		real:      live,
		fake:      fake,
		chunker:   chunker.NewWordChunker(),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

func (s *Service) SetFake(on bool) {
	if s.fakeMode.Swap(on) != on {
		slog.Info("execution mode changed", "fake", on)
	}
}

func (s *Service) Fake() bool { return s.fakeMode.Load() }

// Backends returns the set used by the current mode.
func (s *Service) Backends() (Backends, bool) {
	if s.Fake() {
		return s.fake, true
	}
	return s.real, false
}

// Ingest chunks docs and writes them to the store in batches. A failed batch
// aborts the call; batches written before it stay committed.
func (s *Service) Ingest(ctx context.Context, docs []domain.Document) (res IngestResult, err error) {
	b, fake := s.Backends()
	res.Fake = fake
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "service.Ingest", trace.WithAttributes(
		attribute.Int("documents", len(docs)),
		attribute.Bool("fake", fake),
	))
	defer func() {
		observe.EndSpan(span, err)
		s.metrics.IngestDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.Bool("fake", fake)))
	}()

	if len(docs) == 0 {
		return res, domain.Validationf("no documents to ingest")
	}
	if err := b.validate(); err != nil {
		return res, err
	}

	var (
		chunks []domain.Chunk
		corpus strings.Builder
		names  = make(map[string]bool, len(docs))
	)
	for _, d := range docs {
		if d.Content == "" {
			slog.Debug("skipping empty document", "name", d.Name)
			continue
		}
		// Chunk ids are name:index, so a repeated name would collide.
		if names[d.Name] {
			return res, domain.Validationf("duplicate document name %q", d.Name)
		}
		names[d.Name] = true
		d.Content = normalize.Clean(d.Name, d.Content)
		chunks = append(chunks, s.chunker.Chunk(d)...)
		corpus.WriteString(d.Content)
		corpus.WriteString("\n")
	}

	for first := 0; first < len(chunks); first += s.batchSize {
		batch := chunks[first:min(first+s.batchSize, len(chunks))]
		if err := s.writeBatch(ctx, b, batch); err != nil {
			return res, fmt.Errorf("ingest batch %d: %w", first/s.batchSize, err)
		}
		res.Added += len(batch)
	}
	s.metrics.ChunksIngested.Add(ctx, int64(res.Added), metric.WithAttributes(attribute.Bool("fake", fake)))

	if s.summarizer != nil && corpus.Len() > 0 {
		summary, sumErr := s.summarizer.Summarize(corpus.String(), s.summarySentences)
		if sumErr != nil {
			slog.Warn("summarize ingested text", "err", sumErr)
		} else {
			res.Summary = summary
		}
	}
	observe.Logger(ctx).Info("ingest complete", "documents", len(docs), "chunks", res.Added, "fake", fake)
	return res, nil
}

func (s *Service) writeBatch(ctx context.Context, b Backends, batch []domain.Chunk) error {
	ids := make([]string, len(batch))
	texts := make([]string, len(batch))
	metas := make([]map[string]any, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
		texts[i] = c.Text
		metas[i] = c.Metadata()
	}

	start := time.Now()
	embeddings, err := b.Embedder.EmbedBatch(ctx, texts)
	s.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordStageError(ctx, "embed", domain.KindOf(err))
		return fmt.Errorf("embed: %w", err)
	}

	start = time.Now()
	err = b.Store.Upsert(ctx, ids, texts, metas, embeddings)
	s.metrics.RecordStore(ctx, "upsert", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordStageError(ctx, "upsert", domain.KindOf(err))
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Ask retrieves the topK chunks closest to question and generates an answer
// from them. A non-positive topK means DefaultTopK.
func (s *Service) Ask(ctx context.Context, question string, topK int) (ans Answer, err error) {
	b, fake := s.Backends()
	ans.Fake = fake
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "service.Ask", trace.WithAttributes(attribute.Bool("fake", fake)))
	defer func() {
		observe.EndSpan(span, err)
		s.metrics.AskDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.Bool("fake", fake)))
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return ans, domain.Validationf("question is empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if err := b.validate(); err != nil {
		return ans, err
	}

	stageStart := time.Now()
	_, err = b.Store.EnsureCollection(ctx)
	s.metrics.RecordStore(ctx, "ensure_collection", time.Since(stageStart).Seconds())
	if err != nil {
		return ans, s.stageError(ctx, "collection", err)
	}

	stageStart = time.Now()
	emb, err := b.Embedder.Embed(ctx, question)
	s.metrics.EmbedDuration.Record(ctx, time.Since(stageStart).Seconds())
	if err != nil {
		return ans, s.stageError(ctx, "embed", err)
	}

	stageStart = time.Now()
	docs, err := b.Store.Query(ctx, emb, topK)
	s.metrics.RecordStore(ctx, "query", time.Since(stageStart).Seconds())
	if err != nil {
		return ans, s.stageError(ctx, "query", err)
	}

	stageStart = time.Now()
	text, err := b.Generator.Generate(ctx, BuildPrompt(question, docs))
	s.metrics.GenerateDuration.Record(ctx, time.Since(stageStart).Seconds())
	if err != nil {
		return ans, s.stageError(ctx, "generate", err)
	}

	ans.Answer = text
	ans.Sources = make([]map[string]any, len(docs))
	for i, d := range docs {
		src := maps.Clone(d.Metadata)
		if src == nil {
			src = map[string]any{}
		}
		ans.Sources[i] = src
	}
	observe.Logger(ctx).Debug("ask complete", "retrieved", len(docs), "fake", fake)
	return ans, nil
}

func (s *Service) stageError(ctx context.Context, stage string, err error) error {
	s.metrics.RecordStageError(ctx, stage, domain.KindOf(err))
	return fmt.Errorf("%s: %w", stage, err)
}

// ErrResetUnavailable is returned by Reset outside fake mode.
var ErrResetUnavailable = fmt.Errorf("%w: reset is only available in fake mode", domain.ErrValidation)

type resetter interface{ Reset() }

// Reset clears the fake store.
func (s *Service) Reset() error {
	if !s.Fake() {
		return ErrResetUnavailable
	}
	r, ok := s.fake.Store.(resetter)
	if !ok {
		return errors.New("fake store does not support reset")
	}
	r.Reset()
	slog.Info("fake store reset")
	return nil
}

// BuildPrompt joins the retrieved chunk texts into the context section of the
// answer prompt.
func BuildPrompt(question string, docs []domain.RetrievedDocument) string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString(strings.Join(texts, "\n---\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}
