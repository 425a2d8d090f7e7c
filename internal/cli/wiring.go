package cli

import (
	"fmt"
	"time"

	"babyrag/internal/chunker"
	"babyrag/internal/config"
	"babyrag/internal/embedding/inference"
	"babyrag/internal/embedding/pooled"
	"babyrag/internal/embedding/stats"
	"babyrag/internal/embedding/tokenizer"
	"babyrag/internal/generation/echo"
	"babyrag/internal/generation/ollama"
	"babyrag/internal/health"
	"babyrag/internal/observe"
	"babyrag/internal/service"
	"babyrag/internal/summarizer"
	"babyrag/internal/vectorstore"
	"babyrag/internal/vectorstore/chroma"
	"babyrag/internal/vectorstore/memory"
	"babyrag/internal/vectorstore/qdrant"
)

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// buildBackends assembles the live backends selected by cfg and the
// readiness checks for them.
func buildBackends(cfg *config.AppConfig) (service.Backends, []health.Checker, error) {
	var (
		b      service.Backends
		checks []health.Checker
	)

	switch cfg.Embedder.Type {
	case "pooled":
		p := cfg.Embedder.Pooled
		tok := tokenizer.NewClient(tokenizer.Config{URL: p.TokenizerURL, Timeout: secs(p.TokenizerTimeoutSecs)})
		inf := inference.NewClient(inference.Config{URL: p.InferenceURL, Timeout: secs(p.InferenceTimeoutSecs)})
		b.Embedder = pooled.New(tok, inf, pooled.WithWorkers(p.Workers), pooled.WithDimensions(p.Dimensions))
		checks = append(checks, health.FromPinger("tokenizer", tok), health.FromPinger("inference", inf))
	case "stats":
		b.Embedder = stats.New()
	default:
		return b, nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var store vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "chroma":
		c := cfg.VectorStore.Chroma
		st := chroma.NewStore(chroma.Config{URL: c.URL, Collection: c.Collection, Timeout: secs(c.TimeoutSecs)})
		store = st
		checks = append(checks, health.FromPinger("chroma", st))
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		st := qdrant.NewStore(qdrant.Config{URL: q.URL, APIKey: q.APIKey, Collection: q.Collection, Timeout: secs(q.TimeoutSecs)})
		store = st
		checks = append(checks, health.FromPinger("qdrant", st))
	case "memory":
		store = memory.NewStore()
	default:
		return b, nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
	b.Store = store

	switch cfg.Generator.Type {
	case "ollama":
		o := cfg.Generator.Ollama
		gen := ollama.NewClient(ollama.Config{URL: o.URL, Model: o.Model, Temperature: o.Temperature, Timeout: secs(o.TimeoutSecs)})
		b.Generator = gen
		checks = append(checks, health.FromPinger("ollama", gen))
	case "echo":
		b.Generator = echo.New()
	default:
		return b, nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
	return b, checks, nil
}

// buildService wires the live backends and pipeline options from cfg. m is
// shared with the HTTP layer so one meter serves both.
func buildService(cfg *config.AppConfig, m *observe.Metrics) (*service.Service, []health.Checker, error) {
	live, checks, err := buildBackends(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := []service.Option{
		service.WithChunker(chunker.NewWordChunker(
			chunker.WithChunkSize(cfg.Chunker.ChunkSize),
			chunker.WithOverlap(cfg.Chunker.Overlap),
		)),
		service.WithBatchSize(cfg.Ingest.BatchSize),
		service.WithFakeMode(cfg.FakeMode),
		service.WithMetrics(m),
	}
	if !cfg.Ingest.DisableSummary {
		opts = append(opts, service.WithSummarizer(summarizer.NewFrequencySummarizer(), cfg.Ingest.SummarySentences))
	}
	return service.New(live, service.Backends{}, opts...), checks, nil
}
