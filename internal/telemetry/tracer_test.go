package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitTracer_NoopWhenEmpty(t *testing.T) {
	tracer, shutdown, err := InitTracer(context.Background(), "", "bpsecpolicy", "v0.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdown(context.Background()) //nolint:errcheck // test cleanup

	// Noop tracer should create noop spans
	_, span := tracer.Start(context.Background(), "outgoing.Process")
	if _, ok := span.(noop.Span); !ok {
		t.Error("expected noop span when endpoint is empty")
	}
	span.End()
}

func TestInitTracer_WithEndpoint_BuildsExporterPipeline(t *testing.T) {
	// otlptracegrpc.New dials lazily, so a non-reachable endpoint still
	// succeeds here; this exercises the resource/exporter construction
	// path InitTracer takes for a configured --otel-endpoint.
	tracer, shutdown, err := InitTracer(context.Background(), "localhost:4317", "bpsecpolicy", "v0.0.0")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	defer shutdown(context.Background()) //nolint:errcheck // test cleanup

	_, span := tracer.Start(context.Background(), "incoming.Process")
	if _, ok := span.(noop.Span); ok {
		t.Error("expected a real span when an OTLP endpoint is configured, got noop")
	}
	span.End()
}
