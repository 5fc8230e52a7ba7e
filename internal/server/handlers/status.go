package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/core/store"
	apperrors "github.com/pixelctl/pixelctl/internal/errors"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

// maxPlacementLimit caps ?limit= on /v1/placements.
const maxPlacementLimit = 1000

// LimitsProvider returns the current limiter snapshots.
type LimitsProvider func() []pixelapi.TaskLimits

// PlacementSource reads the placement journal.
type PlacementSource interface {
	ListPlacements(ctx context.Context, query store.PlacementQuery) ([]core.Placement, error)
	PlacementCounts(ctx context.Context) (map[core.PlacementStatus]int, error)
}

// SnapshotSource reads stored canvas snapshots.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context) (*store.Snapshot, error)
}

// LimitsResponse is the body of /v1/limits.
type LimitsResponse struct {
	Tasks []pixelapi.TaskLimits `json:"tasks"`
}

// PlacementsResponse is the body of /v1/placements.
type PlacementsResponse struct {
	Placements []core.Placement             `json:"placements"`
	Counts     map[core.PlacementStatus]int `json:"counts"`
}

// LimitsHandler serves the rate limit registries of the running clients.
func LimitsHandler(provider LimitsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if provider == nil {
			respondWithError(w, r, apperrors.NewUnavailableError("no pixel API clients are running"))
			return
		}
		tasks := provider()
		if tasks == nil {
			tasks = []pixelapi.TaskLimits{}
		}
		writeJSON(w, http.StatusOK, LimitsResponse{Tasks: tasks})
	}
}

// PlacementsHandler serves recent journal entries. Query parameters: limit,
// status (placed|skipped|failed) and since (RFC 3339).
func PlacementsHandler(source PlacementSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if source == nil {
			respondWithError(w, r, apperrors.NewUnavailableError("placement store is not configured"))
			return
		}

		query, err := parsePlacementQuery(r)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid placement query"))
			return
		}

		placements, err := source.ListPlacements(r.Context(), query)
		if err != nil {
			respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list placements"))
			return
		}
		counts, err := source.PlacementCounts(r.Context())
		if err != nil {
			respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to count placements"))
			return
		}

		if placements == nil {
			placements = []core.Placement{}
		}
		writeJSON(w, http.StatusOK, PlacementsResponse{Placements: placements, Counts: counts})
	}
}

func parsePlacementQuery(r *http.Request) (store.PlacementQuery, error) {
	var query store.PlacementQuery
	values := r.URL.Query()

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return query, fmt.Errorf("limit must be a positive integer, got %q", raw)
		}
		query.Limit = min(limit, maxPlacementLimit)
	}

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status := core.PlacementStatus(strings.ToLower(raw))
		switch status {
		case core.PlacementPlaced, core.PlacementSkipped, core.PlacementFailed:
			query.Status = status
		default:
			return query, fmt.Errorf("unknown status %q", raw)
		}
	}

	if raw := strings.TrimSpace(values.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, fmt.Errorf("since must be RFC 3339: %w", err)
		}
		query.Since = since
	}

	return query, nil
}

// CanvasPNGHandler serves the latest stored canvas snapshot as a PNG.
func CanvasPNGHandler(source SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if source == nil {
			respondWithError(w, r, apperrors.NewUnavailableError("snapshot store is not configured"))
			return
		}

		snapshot, err := source.LatestSnapshot(r.Context())
		if err != nil {
			respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to load canvas snapshot"))
			return
		}
		if snapshot == nil {
			respondWithError(w, r, apperrors.NewNotFoundError("no canvas snapshot has been taken yet"))
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Last-Modified", snapshot.TakenAt.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		_ = snapshot.Canvas.EncodePNG(w)
	}
}
