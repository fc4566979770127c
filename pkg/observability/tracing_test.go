package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-labs/uep/pkg/contracts"
)

func TestNewTracingContextWithoutSpan(t *testing.T) {
	assert.Nil(t, NewTracingContext(context.Background()))
}

func TestNewTracingContextFromActiveSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	t.Cleanup(func() { tp.Shutdown(context.Background()) }) //nolint:errcheck

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	tc := NewTracingContext(ctx)
	require.NotNil(t, tc)
	assert.Equal(t, span.SpanContext().TraceID().String(), tc.TraceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), tc.SpanID)
}

func TestContinueTraceRestoresRemoteParent(t *testing.T) {
	tc := &contracts.TracingContext{
		TraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
		SpanID:  "00f067aa0ba902b7",
	}
	ctx := ContinueTrace(context.Background(), tc)
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, tc.TraceID, sc.TraceID().String())
}

func TestContinueTraceIgnoresGarbage(t *testing.T) {
	ctx := ContinueTrace(context.Background(), &contracts.TracingContext{TraceID: "zz", SpanID: "zz"})
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())

	same := ContinueTrace(context.Background(), nil)
	assert.False(t, trace.SpanContextFromContext(same).IsValid())
}
