package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelctl/pixelctl/internal/core/engine"
	"github.com/pixelctl/pixelctl/internal/observability"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
	"github.com/pixelctl/pixelctl/internal/server"
)

// isPermissionError normalizes OS-specific permission errors so tests skip
// when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics(0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = observability.StopMetrics() })
}

// startStatusServer binds the status server on an ephemeral loopback port.
func startStatusServer(t *testing.T, opts server.Options) string {
	t.Helper()
	opts.Host = "127.0.0.1"
	opts.Port = 0
	srv := server.New(opts)
	if err := srv.Start(); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping status server setup: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + srv.Addr()
}

func fixedLimits() []pixelapi.TaskLimits {
	limiter := &engine.RateLimiter{}
	header := http.Header{}
	header.Set(engine.HeaderRequestsRemaining, "0")
	header.Set(engine.HeaderRequestsReset, "30")
	limiter.UpdateFromHeaders("https://pixels.example/set_pixel", header)
	return []pixelapi.TaskLimits{{Task: 0, Endpoints: limiter.Snapshot()}}
}

func TestStatusServerMetrics_Integration(t *testing.T) {
	observability.InitCLILogger("pixelctl-test", false)
	observability.InitServerLogger("pixelctl-test", "warn")
	initMetricsOrSkip(t)

	baseURL := startStatusServer(t, server.Options{Version: "test", Limits: fixedLimits})
	client := &http.Client{Timeout: 5 * time.Second}

	paths := []string{"/health", "/version", "/v1/limits", "/v1/placements", "/missing"}
	const numRequests = 50
	const numWorkers = 10

	requests := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- i
	}
	close(requests)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for n := range requests {
				resp, err := client.Get(baseURL + paths[n%len(paths)])
				if err != nil {
					t.Error(err)
					continue
				}
				_ = resp.Body.Close()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	resp, err := client.Get(baseURL + "/v1/limits")
	require.NoError(t, err)
	var limits struct {
		Tasks []pixelapi.TaskLimits `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&limits))
	require.NoError(t, resp.Body.Close())
	require.Len(t, limits.Tasks, 1)
	require.Len(t, limits.Tasks[0].Endpoints, 1)
	assert.Equal(t, 0, limits.Tasks[0].Endpoints[0].RemainingRequests)

	resp, err = client.Get(baseURL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	content := string(body)
	assert.Contains(t, content, "http_requests_total")
	assert.Contains(t, content, "http_request_duration_ms")
	assert.Less(t, elapsed, 5*time.Second)
	t.Logf("%d requests in %v", numRequests, elapsed)
}

func TestStatusServerMetrics_TelemetryDisabled(t *testing.T) {
	observability.InitServerLogger("pixelctl-test", "warn")
	require.NoError(t, observability.StopMetrics())

	baseURL := startStatusServer(t, server.Options{Version: "test"})
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(baseURL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = client.Get(baseURL + "/v1/limits")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
