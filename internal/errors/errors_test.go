package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelctl/pixelctl/internal/metrics"
	"github.com/pixelctl/pixelctl/internal/observability"
)

func TestHTTPStatusFromCode(t *testing.T) {
	tests := map[string]int{
		CodeInvalidInput:     http.StatusBadRequest,
		CodeNotFound:         http.StatusNotFound,
		CodeMethodNotAllowed: http.StatusMethodNotAllowed,
		CodeExternalService:  http.StatusBadGateway,
		CodeUnavailable:      http.StatusServiceUnavailable,
		CodeDatabase:         http.StatusInternalServerError,
		"SOMETHING_ELSE":     http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestEnsureEnvelope(t *testing.T) {
	env := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternal, env.Code)

	original := NewNotFoundError("gone")
	assert.Same(t, original, EnsureEnvelope(original))

	env = EnsureEnvelope(stderrors.New("disk full"))
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, "disk full", env.Context["wrapped_error"])
}

func TestWrapKeepsCause(t *testing.T) {
	env := WrapInvalidInput(context.Background(), stderrors.New("limit must be positive"), "invalid placement query")
	assert.Equal(t, CodeInvalidInput, env.Code)
	assert.NotEmpty(t, env.CorrelationID)
	assert.Equal(t, "limit must be positive", env.Context["wrapped_error"])

	env = WrapInternal(context.Background(), nil, "nothing wrapped")
	assert.Empty(t, env.Context["wrapped_error"])
}

func TestRespondWithError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/canvas.png", nil)

	RespondWithError(rec, req, NewUnavailableError("snapshot store is not configured"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeUnavailable, body.Error.Code)
	assert.Equal(t, "snapshot store is not configured", body.Error.Message)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestRespondWithErrorCountsByRoute(t *testing.T) {
	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)
	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	router := chi.NewRouter()
	router.Get("/v1/placements", func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, r, WrapDatabaseError(r.Context(), stderrors.New("locked"), "failed to list placements"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/placements?limit=5", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Greater(t, collector.CountMetricsByName(metrics.StatusErrorsTotal), 0)
}
