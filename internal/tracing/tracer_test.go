package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "ignored")
	require.False(t, span.IsRecording())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer

	p, err := NewProvider(context.Background(), Config{
		Enabled:  true,
		Exporter: ExporterStdout,
		Writer:   &buf,
	})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := otel.Tracer("test").Start(context.Background(), "rpc.health")
	require.True(t, span.IsRecording())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	require.Contains(t, buf.String(), "rpc.health")
	require.Contains(t, buf.String(), "daemonkit")
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported exporter")
}
