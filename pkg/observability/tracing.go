package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-labs/uep/pkg/contracts"
)

// NewTracingContext captures the active span's identifiers as the
// envelope tracing section. Returns nil when no span is recording, so
// untraced paths emit no tracing block at all.
func NewTracingContext(ctx context.Context) *contracts.TracingContext {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return &contracts.TracingContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// ContinueTrace rebuilds a remote span context from an envelope's
// tracing section so processing on the receiving side parents its spans
// correctly. The envelope's span becomes the remote parent.
func ContinueTrace(ctx context.Context, tc *contracts.TracingContext) context.Context {
	if tc == nil {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(tc.TraceID)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(tc.SpanID)
	if err != nil {
		return ctx
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}
