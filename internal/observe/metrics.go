// Package observe provides the metrics, tracing and HTTP middleware shared by
// the ingest and ask pipelines.
//
// Instruments are created through the OpenTelemetry Metrics API and exported
// to Prometheus by [InitProvider]. Tests should build their own [Metrics] with
// [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "babyrag"

// Metrics holds every instrument recorded by the application.
type Metrics struct {
	// EmbedDuration tracks one EmbedBatch or Embed call.
	EmbedDuration metric.Float64Histogram

	// StoreDuration tracks vector store calls. Use with attribute:
	//   attribute.String("op", "upsert"|"query"|"ensure_collection")
	StoreDuration metric.Float64Histogram

	// GenerateDuration tracks a full answer generation.
	GenerateDuration metric.Float64Histogram

	IngestDuration metric.Float64Histogram
	AskDuration    metric.Float64Histogram

	// ChunksIngested counts chunks written to the store. Use with attribute:
	//   attribute.Bool("fake", ...)
	ChunksIngested metric.Int64Counter

	// StageErrors counts pipeline failures by stage and error kind.
	StageErrors metric.Int64Counter

	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.EmbedDuration, "babyrag.embed.duration", "Latency of embedding calls."},
		{&met.StoreDuration, "babyrag.store.duration", "Latency of vector store calls by operation."},
		{&met.GenerateDuration, "babyrag.generate.duration", "Latency of answer generation."},
		{&met.IngestDuration, "babyrag.ingest.duration", "Latency of a whole ingest request."},
		{&met.AskDuration, "babyrag.ask.duration", "Latency of a whole ask request."},
		{&met.HTTPRequestDuration, "babyrag.http.request.duration", "HTTP request latency by method, route and status class."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.ChunksIngested, err = m.Int64Counter("babyrag.chunks.ingested",
		metric.WithDescription("Total chunks written to the vector store."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("babyrag.stage.errors",
		metric.WithDescription("Total pipeline failures by stage and kind."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level [Metrics] built on the global meter
// provider. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStageError increments the error counter for stage.
func (m *Metrics) RecordStageError(ctx context.Context, stage, kind string) {
	m.StageErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", kind),
		),
	)
}

// RecordStore records one vector store call of the given op.
func (m *Metrics) RecordStore(ctx context.Context, op string, seconds float64) {
	m.StoreDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("op", op)))
}
