package metrics

import (
	"strconv"

	"github.com/pixelctl/pixelctl/internal/observability"
)

// Status server failure metrics. Routes are chi patterns, never raw paths.
const (
	StatusErrorsTotal = "status_server_errors_total"
	StatusPanicsTotal = "status_server_panics_total"
)

// UnroutedPath labels requests that matched no route.
const UnroutedPath = "/unknown"

// StatusSource names the data behind a status route, so a failing journal
// or exporter shows up as one series regardless of which route hit it.
func StatusSource(route string) string {
	switch route {
	case "/v1/limits":
		return "limiter"
	case "/v1/placements":
		return "journal"
	case "/v1/canvas.png":
		return "snapshots"
	case "/metrics":
		return "exporter"
	case "/health", "/version":
		return "process"
	default:
		return "unrouted"
	}
}

// RecordStatusError counts an error response from the status server.
func RecordStatusError(route, errorCode string, httpStatus int) {
	if observability.TelemetrySystem == nil {
		return
	}
	if route == "" {
		route = UnroutedPath
	}
	_ = observability.TelemetrySystem.Counter(StatusErrorsTotal, 1, map[string]string{
		"route":       route,
		"source":      StatusSource(route),
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a recovered handler panic on route.
func RecordPanic(route string) {
	if observability.TelemetrySystem == nil {
		return
	}
	if route == "" {
		route = UnroutedPath
	}
	_ = observability.TelemetrySystem.Counter(StatusPanicsTotal, 1, map[string]string{
		"route":  route,
		"source": StatusSource(route),
	})
}
