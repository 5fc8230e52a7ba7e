package observability_test

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger", func(t *testing.T) {
		observability.InitCLILogger("pixelctl-test", false)
		require.NotNil(t, observability.CLILogger)

		observability.ApplyCLILevel("debug")
		observability.CLILogger.Debug("Limiter state", zap.Int("remaining", 3))
	})

	t.Run("Server logger", func(t *testing.T) {
		observability.InitServerLogger("pixelctl-test", "warn")
		require.NotNil(t, observability.ServerLogger)

		observability.ServerLogger.Info("Status request", zap.String("path", "/v1/limits"))
	})

	t.Run("Verbose CLI logger", func(t *testing.T) {
		logger, err := logging.NewCLI("pixelctl-verbose")
		require.NoError(t, err)
		logger.SetLevel(logging.DEBUG)
		logger.Debug("Debug message", zap.String("mode", "verbose"))
	})
}

func TestMetricsExporter(t *testing.T) {
	require.NoError(t, observability.InitMetrics(0))
	t.Cleanup(func() { _ = observability.StopMetrics() })

	require.NotNil(t, observability.TelemetrySystem)
	port := observability.GetMetricsPort()
	require.Positive(t, port)

	_ = observability.TelemetrySystem.Counter("pixels_placed_total", 1, map[string]string{"result": "placed"})

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck // test cleanup
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, observability.StopMetrics())
	require.Nil(t, observability.TelemetrySystem)
}
