// Package otel provides higher level APIs around Open Telemetry instrumentation.
package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/builderkit/modloader/activation"
)

const (
	serviceName = "modloader"
	tracerName  = "modloader"
)

// ErrUnsupportedProto indicates that the defined exporter protocol is not supported.
var ErrUnsupportedProto = errors.New("unsupported protocol")

// TraceProvider provides methods for tracers initialization and shutdown of the
// processing pipeline.
type TraceProvider interface {
	Tracer(name string, options ...trace.TracerOption) trace.Tracer
	Shutdown(ctx context.Context) error
}

type (
	traceProvShutdownFunc func(ctx context.Context) error
)

type traceProvider struct {
	trace.TracerProvider

	noop bool

	shutdown traceProvShutdownFunc
}

// NewTraceProvider creates a new trace provider exporting spans to endpoint.
func NewTraceProvider(
	ctx context.Context, proto, endpoint string, insecure bool,
) (TraceProvider, error) {
	client, err := newClient(proto, endpoint, insecure)
	if err != nil {
		return nil, fmt.Errorf("creating exporter client: %w", err)
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	prov := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource()),
	)

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		shutdown:       prov.Shutdown,
	}, nil
}

func newResource() *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)
}

func newClient(proto, endpoint string, insecure bool) (otlptrace.Client, error) {
	switch strings.ToLower(proto) {
	case "http":
		return newHTTPClient(endpoint, insecure), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProto, proto)
	}
}

func newHTTPClient(endpoint string, insecure bool) otlptrace.Client {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.NewClient(opts...)
}

// NewNoopTraceProvider creates a new noop trace provider.
func NewNoopTraceProvider() TraceProvider {
	prov := noop.NewTracerProvider()

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		noop:           true,
	}
}

// Shutdown shuts down TracerProvider releasing any held computational resources.
// After Shutdown is called, all methods are no-ops.
func (tp *traceProvider) Shutdown(ctx context.Context) error {
	if tp.noop {
		return nil
	}

	return tp.shutdown(ctx)
}

// Trace generates a trace span and a context containing the generated span.
// If the input context already contains a span, the generated span will be a child of that span
// otherwise it will be a root span.
// Any Span that is created MUST also be ended.
func Trace(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// TraceActivation starts a span for work done on behalf of actx and tags it
// with the activation key and the module id.
func TraceActivation(
	ctx context.Context, spanName string, actx activation.Context, moduleID string,
) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("activation.key", actx.Key()),
		attribute.String("activation.scene", actx.SceneID),
	}
	if actx.ViewID != "" {
		attrs = append(attrs, attribute.String("activation.view", actx.ViewID))
	}
	if moduleID != "" {
		attrs = append(attrs, attribute.String("module.id", moduleID))
	}
	if sid := activation.GetSessionID(ctx); sid != "" {
		attrs = append(attrs, attribute.String("session.id", sid))
	}
	return Trace(ctx, spanName, trace.WithAttributes(attrs...))
}
