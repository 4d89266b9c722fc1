// Package tracing provides OpenTelemetry tracing for progest operations.
// Tracing is off by default; a disabled Provider hands out a no-op tracer.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName identifies progest in exported traces.
const DefaultServiceName = "progest"

// DefaultOTLPEndpoint is the collector address used when none is configured.
const DefaultOTLPEndpoint = "localhost:4317"

// Exporter names accepted in tracing.exporter.
const (
	ExporterNone   = "none"
	ExporterFile   = "file"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config configures the tracing subsystem.
type Config struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter is one of ExporterNone, ExporterFile, ExporterStdout or ExporterOTLP.
	Exporter string

	// FilePath is the JSONL output of the file exporter.
	FilePath string

	// OTLPEndpoint is the collector endpoint for the otlp exporter.
	OTLPEndpoint string

	// SampleRate is the fraction of root spans kept. Values <= 0 or > 1 mean 1.
	SampleRate float64

	ServiceName    string
	ServiceVersion string

	// Stdout receives the stdout exporter's output. Defaults to os.Stderr
	// so traces never mix with command output.
	Stdout io.Writer
}

// DefaultConfig returns tracing disabled with the file exporter preselected.
func DefaultConfig() Config {
	return Config{
		Exporter:     ExporterFile,
		OTLPEndpoint: DefaultOTLPEndpoint,
		SampleRate:   1.0,
		ServiceName:  DefaultServiceName,
	}
}

// Provider owns the SDK tracer provider for one Library.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// batched exporters ship spans in the background; the others are written
// synchronously because a CLI invocation ends right after its last span.
var exporters = map[string]struct {
	build   func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error)
	batched bool
}{
	ExporterFile: {build: func(_ context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("tracing.file_path required for file exporter")
		}
		return NewFileExporter(cfg.FilePath)
	}},
	ExporterStdout: {build: func(_ context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		w := cfg.Stdout
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	}},
	ExporterOTLP: {batched: true, build: func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = DefaultOTLPEndpoint
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	}},
}

// Exporters lists the accepted exporter names.
func Exporters() []string {
	names := []string{ExporterNone}
	for name := range exporters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewProvider builds a provider from cfg. A disabled config yields a no-op
// tracer; the none exporter records spans without exporting them so trace
// ids still correlate log lines.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(DefaultServiceName)}, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}

	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}

	opts := []sdktrace.TracerProviderOption{
		// Schemaless avoids schema URL conflicts with resource.Default().
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}

	kind := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if kind != "" && kind != ExporterNone {
		entry, ok := exporters[kind]
		if !ok {
			return nil, fmt.Errorf("unsupported exporter type %q (want one of %s)", cfg.Exporter, strings.Join(Exporters(), ", "))
		}
		exp, err := entry.build(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s exporter: %w", kind, err)
		}
		if entry.batched {
			opts = append(opts, sdktrace.WithBatcher(exp))
		} else {
			opts = append(opts, sdktrace.WithSyncer(exp))
		}
	}

	sdk := sdktrace.NewTracerProvider(opts...)
	return &Provider{sdk: sdk, tracer: sdk.Tracer(name)}, nil
}

// Tracer returns the configured tracer. It is safe to use when tracing is
// disabled.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p.sdk != nil
}

// Shutdown flushes pending spans and releases exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
