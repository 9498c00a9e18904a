package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/affect-tick/internal/telemetry"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), telemetry.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Endpoint = "http://localhost:4318"
	cfg.Enabled = "false"

	shutdown, err := telemetry.Setup(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no export happens.
	cfg := telemetry.DefaultConfig()
	cfg.Endpoint = "http://192.0.2.1:4318"
	cfg.SampleRatio = 0.5

	shutdown, err := telemetry.Setup(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_NoopShutdownIgnoresCancelledContext(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), telemetry.DefaultConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}
