// Package tracing wires an OpenTelemetry tracer provider around the
// viewer's long operations. Tracing is off by default; a disabled
// provider hands out no-op tracers so call sites never branch.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "loupe"
	serviceVersion = "1.0.0"
)

// Config holds tracing configuration.
type Config struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
	Insecure   bool
}

// Provider wraps the OpenTelemetry tracer provider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds a provider from cfg. When tracing is disabled the
// returned provider hands out the global (no-op) tracer.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tracer: otel.Tracer(serviceName),
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter *otlptrace.Exporter
	if cfg.Endpoint != "" {
		clientOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(serviceName),
	}, nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, opts...)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}

// TraceScan creates a span covering a whole scan of root.
func TraceScan(ctx context.Context, tracer trace.Tracer, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "scan.run",
		trace.WithAttributes(
			attribute.String("scan.root", root),
		),
	)
}

// TraceDiscovery creates a span for the directory walk.
func TraceDiscovery(ctx context.Context, tracer trace.Tracer, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "discovery.walk",
		trace.WithAttributes(
			attribute.String("discovery.root", root),
		),
	)
}

// TraceParse creates a span for parsing one file.
func TraceParse(ctx context.Context, tracer trace.Tracer, path, profileID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "parse.file",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.String("profile.id", profileID),
		),
	)
}

// TraceExport creates a span for one export operation.
func TraceExport(ctx context.Context, tracer trace.Tracer, format string, recordCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "export.write",
		trace.WithAttributes(
			attribute.String("export.format", format),
			attribute.Int("export.records", recordCount),
		),
	)
}
