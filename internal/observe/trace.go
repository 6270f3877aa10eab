package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Earshot tracer.
const tracerName = "github.com/earshot/earshot"

// Span attribute keys for the capture domain.
const (
	AttrKeyword     = attribute.Key("earshot.wake.keyword")
	AttrConfidence  = attribute.Key("earshot.wake.confidence")
	AttrDetectionID = attribute.Key("earshot.wake.detection_id")
	AttrSessionID   = attribute.Key("earshot.recording.session_id")
	AttrPhase       = attribute.Key("earshot.recording.phase")
	AttrBytes       = attribute.Key("earshot.recording.bytes")
)

// Tracer returns the package-level [trace.Tracer] for Earshot. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// DetectionSpan records one wake-word detection as a point-in-time span
// carrying the detection's identity and confidence.
func DetectionSpan(ctx context.Context, id, keyword string, confidence float64) {
	_, span := StartSpan(ctx, "wake.detection", trace.WithAttributes(
		AttrDetectionID.String(id),
		AttrKeyword.String(keyword),
		AttrConfidence.Float64(confidence),
	))
	span.End()
}

// RecordingSpan records one recording lifecycle phase (started, completed,
// drained) as a point-in-time span tied to the session.
func RecordingSpan(ctx context.Context, phase, sessionID string, bytes int) {
	_, span := StartSpan(ctx, "recording."+phase, trace.WithAttributes(
		AttrPhase.String(phase),
		AttrSessionID.String(sessionID),
		AttrBytes.Int(bytes),
	))
	span.End()
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
