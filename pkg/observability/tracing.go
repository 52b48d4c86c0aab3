package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name for judgeroute spans.
const TracerName = "judgeroute"

// Span attribute keys
const (
	AttrRunID      = "run_id"
	AttrIndex      = "record.index"
	AttrProcessID  = "record.process_id"
	AttrURL        = "http.url"
	AttrAttempt    = "http.attempt"
	AttrStatusCode = "http.status_code"
	AttrOutcome    = "outcome.kind"
	AttrErrorKind  = "error.kind"
)

// Span names
const (
	SpanStep    = "batch.step"
	SpanResolve = "resolver.resolve"
	SpanFetch   = "portal.fetch"
)

// Tracer wraps the global OpenTelemetry tracer. Without a configured
// provider the spans are no-ops.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartStepSpan starts the root span for one orchestrator step.
func (t *Tracer) StartStepSpan(ctx context.Context, runID string, index int, processID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanStep,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.Int(AttrIndex, index),
			attribute.String(AttrProcessID, processID),
		),
	)
}

// StartResolveSpan starts a span around judge resolution.
func (t *Tracer) StartResolveSpan(ctx context.Context, processID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanResolve,
		trace.WithAttributes(attribute.String(AttrProcessID, processID)),
	)
}

// StartFetchSpan starts a span around one fetch with its retries.
func (t *Tracer) StartFetchSpan(ctx context.Context, url string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanFetch,
		trace.WithAttributes(attribute.String(AttrURL, url)),
	)
}

// Fail marks span as failed with the given error kind.
func Fail(span trace.Span, err error, kind string) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(AttrErrorKind, kind))
	span.RecordError(err)
}

// Succeed marks span as successful.
func Succeed(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
