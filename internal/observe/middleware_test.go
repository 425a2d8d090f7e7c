package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"babyrag/internal/domain"
)

func withTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestMiddleware(t *testing.T) {
	m, reader := newTestMetrics(t)
	exp := withTestTracer(t)

	var cid string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ask", func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	h := Middleware(m)(mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ask", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Len(t, cid, 32)
	assert.Equal(t, cid, rec.Header().Get("X-Correlation-ID"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/ask", spans[0].Name)

	assert.NotNil(t, findMetric(collect(t, reader), "babyrag.http.request.duration"))
}

func TestMiddleware_UnmatchedPathsShareOneLabel(t *testing.T) {
	m, reader := newTestMetrics(t)
	exp := withTestTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ask", func(http.ResponseWriter, *http.Request) {})
	h := Middleware(m)(mux)

	for _, path := range []string{"/wp-admin", "/.env", "/api/ask/extra"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/ask", nil))

	got := findMetric(collect(t, reader), "babyrag.http.request.duration")
	require.NotNil(t, got)
	hist, ok := got.Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	routes := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("route"))
		routes[v.AsString()] += dp.Count
	}
	assert.Equal(t, uint64(1), routes["/api/ask"])
	assert.Equal(t, uint64(3), routes[UnmatchedRoute])
	assert.Len(t, routes, 2)

	for _, sp := range exp.GetSpans() {
		assert.NotContains(t, sp.Name, "wp-admin")
	}
}

func TestRoute(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/ingest", nil)
	assert.Equal(t, UnmatchedRoute, Route(r))
	r.Pattern = "POST /api/ingest"
	assert.Equal(t, "/api/ingest", Route(r))
	r.Pattern = "/metrics"
	assert.Equal(t, "/metrics", Route(r))
}

func TestEndSpan_TagsErrorKind(t *testing.T) {
	exp := withTestTracer(t)

	_, span := StartSpan(context.Background(), "stage")
	EndSpan(span, domain.Validationf("empty question"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	var kind string
	for _, a := range spans[0].Attributes {
		if a.Key == "error.kind" {
			kind = a.Value.AsString()
		}
	}
	assert.Equal(t, domain.KindOf(domain.ErrValidation), kind)
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := withTestTracer(t)

	_, span := StartSpan(context.Background(), "stage")
	EndSpan(span, assert.AnError)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
	assert.NotEmpty(t, spans[0].Events)
}

func TestLogger_NoSpan(t *testing.T) {
	assert.NotNil(t, Logger(context.Background()))
	assert.Empty(t, CorrelationID(context.Background()))
}
