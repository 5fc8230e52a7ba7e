package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/pixelctl/pixelctl/internal/errors"
	"github.com/pixelctl/pixelctl/internal/server/handlers"
)

// HandleError writes err as an envelope. Every route, the 404/405 handlers
// and the handlers package respond through it.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/version", handlers.VersionHandler(s.startedAt, s.opts.Limits))
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/limits", handlers.LimitsHandler(s.opts.Limits))
		r.Get("/placements", handlers.PlacementsHandler(s.opts.Placements))
		r.Get("/canvas.png", handlers.CanvasPNGHandler(s.opts.Snapshots))
	})
}
