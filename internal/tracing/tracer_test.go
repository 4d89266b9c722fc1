package tracing

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, ExporterFile, cfg.Exporter)
	require.Empty(t, cfg.FilePath)
	require.Equal(t, DefaultOTLPEndpoint, cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "progest", cfg.ServiceName)
}

func TestExporters(t *testing.T) {
	require.Equal(t, []string{"file", "none", "otlp", "stdout"}, Exporters())
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Exporter: "zipkin"})
	require.NoError(t, err, "exporter is not checked while disabled")
	require.False(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "create")
	require.False(t, span.SpanContext().IsValid(), "no-op spans carry no context")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterWritesEachSpan(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces", "traces.jsonl")

	provider, err := NewProvider(context.Background(), Config{
		Enabled:        true,
		Exporter:       ExporterFile,
		FilePath:       tracePath,
		ServiceVersion: "1.2.3",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, parent := provider.Tracer().Start(context.Background(), SpanCreateProject)
	_, child := provider.Tracer().Start(ctx, SpanInstantiate)
	require.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
	child.End()
	parent.End()

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"name":"`+SpanCreateProject+`"`)
	require.Contains(t, string(data), `"name":"`+SpanInstantiate+`"`)
}

func TestNewProvider_StdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	provider, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "STDOUT", Stdout: &buf})
	require.NoError(t, err)

	_, span := provider.Tracer().Start(context.Background(), "reconcile")
	span.End()
	require.NoError(t, provider.Shutdown(context.Background()))

	require.Contains(t, buf.String(), `"Name": "reconcile"`)
}

func TestNewProvider_NoneRecordsWithoutExporting(t *testing.T) {
	for _, exporter := range []string{ExporterNone, ""} {
		t.Run(exporter, func(t *testing.T) {
			provider, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: exporter, SampleRate: 7})
			require.NoError(t, err)
			_, span := provider.Tracer().Start(context.Background(), "plan")
			require.True(t, span.SpanContext().IsValid())
			require.True(t, span.SpanContext().IsSampled(), "out-of-range sample rate keeps everything")
			span.End()
			require.NoError(t, provider.Shutdown(context.Background()))
		})
	}
}

func TestNewProvider_FileExporter_MissingPath(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: ExporterFile})
	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "tracing.file_path required")
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), `unsupported exporter type "zipkin" (want one of file, none, otlp, stdout)`)
}
