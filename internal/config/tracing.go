package config

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider returns an OTLP/HTTP exporting provider when
// OTEL_EXPORTER_OTLP_ENDPOINT is set and a no-op provider otherwise. The
// returned func flushes and stops the exporter.
func (c *Config) TracerProvider(ctx context.Context, service string) (trace.TracerProvider, func(context.Context) error, error) {
	if c.OTLPEndpoint == "" {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	// The exporter reads OTEL_EXPORTER_OTLP_* itself.
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp http exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(time.Second)),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
	)
	shutdown := func(ctx context.Context) error {
		_ = tp.ForceFlush(ctx)
		return tp.Shutdown(ctx)
	}
	return tp, shutdown, nil
}
