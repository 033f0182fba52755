package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the health probe, the Prometheus endpoint and the
// status routes.
func NewRouter(status *StatusHandler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", HealthCheckHandler)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	if status != nil {
		status.RegisterRoutes(r)
	}
	return r
}
