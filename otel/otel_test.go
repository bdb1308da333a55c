package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/builderkit/modloader/activation"
)

func TestNewTraceProviderUnsupportedProto(t *testing.T) {
	_, err := NewTraceProvider(context.Background(), "grpc", "localhost:4317", true)
	require.ErrorIs(t, err, ErrUnsupportedProto)
}

func TestNoopTraceProvider(t *testing.T) {
	tp := NewNoopTraceProvider()
	require.NoError(t, tp.Shutdown(context.Background()))

	_, span := Trace(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestTraceActivation(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prov := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(prov)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := activation.WithSessionID(context.Background(), "sess-1")
	_, span := TraceActivation(ctx, "load", activation.NewContext("scene_1206", "view_3005"), "flashcards")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "load", spans[0].Name())

	got := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		got[kv.Key] = kv.Value.AsString()
	}
	assert.Equal(t, map[attribute.Key]string{
		"activation.key":   "scene_1206-view_3005",
		"activation.scene": "scene_1206",
		"activation.view":  "view_3005",
		"module.id":        "flashcards",
		"session.id":       "sess-1",
	}, got)
}
