package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"babyrag/internal/domain"
)

const tracerName = "babyrag"

// Tracer returns the babyrag tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the babyrag tracer. Finish it with EndSpan.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan ends span. A non-nil err marks the span failed and tags it with
// the pipeline error kind, the same label StageErrors uses.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.kind", domain.KindOf(err)))
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID is the id returned to HTTP clients in X-Correlation-ID: the
// trace id of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns slog.Default tagged with the request's correlation id, so
// log lines can be matched to the header a client saw.
func Logger(ctx context.Context) *slog.Logger {
	if cid := CorrelationID(ctx); cid != "" {
		return slog.Default().With(slog.String("correlation_id", cid))
	}
	return slog.Default()
}
