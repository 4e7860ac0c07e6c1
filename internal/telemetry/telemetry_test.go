package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/instinctd/internal/config"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	tel := New(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NotNil(t, tel)

	degraded, reason := tel.Degraded()
	assert.False(t, degraded)
	assert.Empty(t, reason)

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_EnabledInstallsProviders(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "instinctd-test",
		Insecure:       true,
		ExportInterval: config.Duration(time.Minute),
	}

	// Exporter construction is lazy; no collector needs to be running.
	tel := New(context.Background(), cfg, "test")
	require.NotNil(t, tel)

	degraded, _ := tel.Degraded()
	assert.False(t, degraded)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Shutdown may fail to flush without a collector; it must still return.
	_ = tel.Shutdown(ctx)
}
