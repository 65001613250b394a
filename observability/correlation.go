package observability

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// correlationHeader carries an envelope's Correlation field (spec §3) across
// a service boundary, the direct descendant of the teacher's
// X-Correlation-ID propagation header.
const correlationHeader = "X-Correlation-ID"

// parentHeader names the envelope that caused this one to be enqueued
// (e.g. a workflow step spawning a task), mirroring the teacher's
// X-Parent-Operation-ID header.
const parentHeader = "X-Parent-Envelope-ID"

// PropagateHeaders attaches correlation and parent envelope identifiers to
// an outbound HTTP request; an empty identifier leaves its header unset.
func PropagateHeaders(req *http.Request, correlationID, parentEnvelopeID string) {
	if correlationID != "" {
		req.Header.Set(correlationHeader, correlationID)
	}
	if parentEnvelopeID != "" {
		req.Header.Set(parentHeader, parentEnvelopeID)
	}
}

// ExtractCorrelation reads the correlation and parent envelope identifiers
// back out of an inbound HTTP request.
func ExtractCorrelation(req *http.Request) (correlationID, parentEnvelopeID string) {
	return req.Header.Get(correlationHeader), req.Header.Get(parentHeader)
}

// SpanCorrelation pairs an OpenTelemetry trace/span ID with the engine's
// own envelope correlation key, letting an operator jump from an audit log
// entry to the matching trace in the configured OTLP backend.
type SpanCorrelation struct {
	TraceID     string
	SpanID      string
	Correlation string
}

// FromContext derives a SpanCorrelation from the current span in ctx. If
// ctx carries no valid span context, only Correlation is set.
func FromContext(ctx context.Context, correlation string) SpanCorrelation {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return SpanCorrelation{Correlation: correlation}
	}
	return SpanCorrelation{
		TraceID:     spanCtx.TraceID().String(),
		SpanID:      spanCtx.SpanID().String(),
		Correlation: correlation,
	}
}
