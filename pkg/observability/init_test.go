package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyconv/pkg/observability"
)

func TestInit_DefaultsAreNoop(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogOutput = &buf
	cfg.LogJSON = true

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	_, span := providers.Tracer.Start(context.Background(), "pyconv.run")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	providers.Logger.Info("run finished", "files", 3)
	assert.Contains(t, buf.String(), `"service":"pyconv"`)
	assert.Contains(t, buf.String(), `"files":3`)

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_LogLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogOutput = &buf
	cfg.LogLevel = slog.LevelError

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	providers.Logger.Info("hidden")
	assert.Empty(t, buf.String())

	providers.Logger.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInit_WritesMetricsTextfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pyconv.prom")

	cfg := observability.DefaultConfig()
	cfg.LogOutput = &bytes.Buffer{}
	cfg.MetricsTextfile = path

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	metrics, err := observability.NewConversionMetrics(providers.Meter)
	require.NoError(t, err)

	metrics.RecordFile(context.Background(), observability.FileOutcome{
		Status:   observability.StatusConverted,
		Duration: 5 * time.Millisecond,
		Nodes:    10,
	})

	require.NoError(t, providers.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pyconv_files")
	assert.Contains(t, string(data), "pyconv_nodes")
	assert.Contains(t, string(data), `status="converted"`)
}
