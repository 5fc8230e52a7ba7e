package metrics

import (
	"strconv"
	"time"

	"github.com/pixelctl/pixelctl/internal/observability"
)

// Pixel API client metrics
var (
	APIRequestsTotal       = "pixel_api_requests_total"
	APIRequestDuration     = "pixel_api_request_duration_ms"
	RateLimitRetriesTotal  = "pixel_api_rate_limit_retries_total"
	RateLimitWaitDuration  = "pixel_api_wait_ms"
	PixelsPlacedTotal      = "pixels_placed_total"
	ChurchTasksTotal       = "church_tasks_total"
	RemainingRequestsGauge = "pixel_api_remaining_requests"
)

// RecordAPIRequest records one physical request to the pixel API.
func RecordAPIRequest(endpoint string, status int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{
		"endpoint": endpoint,
		"status":   strconv.Itoa(status),
	}
	_ = observability.TelemetrySystem.Counter(APIRequestsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(APIRequestDuration, duration, labels)
}

// RecordRateLimitRetry records a request repeated after a 429.
func RecordRateLimitRetry(endpoint string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitRetriesTotal,
			1,
			map[string]string{"endpoint": endpoint},
		)
	}
}

// RecordRateLimitWait records a limiter wait and the signal that caused it.
func RecordRateLimitWait(endpoint string, reason string, wait time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			RateLimitWaitDuration,
			wait,
			map[string]string{
				"endpoint": endpoint,
				"reason":   reason,
			},
		)
	}
}

// SetRemainingRequests exports the remaining quota last advertised by endpoint.
func SetRemainingRequests(endpoint string, remaining int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			RemainingRequestsGauge,
			float64(remaining),
			map[string]string{"endpoint": endpoint},
		)
	}
}

// RecordPlacement records the outcome of a put-pixel attempt.
func RecordPlacement(result string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			PixelsPlacedTotal,
			1,
			map[string]string{"result": result},
		)
	}
}

// RecordChurchTask records the outcome of a church task.
func RecordChurchTask(church string, status string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ChurchTasksTotal,
			1,
			map[string]string{
				"church": church,
				"status": status,
			},
		)
	}
}
