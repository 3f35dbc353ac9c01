// Package httpapi is the HTTP adapter over the integration controller:
// health and progress reads for dashboards, migrate and rollback commands
// for operators, and Prometheus exposition.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agrobridge/internal/controller"
	"agrobridge/internal/metrics"
)

// Handler binds HTTP routes to the controller.
type Handler struct {
	ctrl    *controller.Controller
	metrics *metrics.Set
}

// NewHandler constructs the HTTP adapter.
func NewHandler(ctrl *controller.Controller, m *metrics.Set) *Handler {
	return &Handler{ctrl: ctrl, metrics: m}
}

// NewRouter registers all routes and the middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/progress", h.progress)
		r.Get("/summary", h.summary)
		r.Get("/rollback/{subsystem}/history", h.history)
		r.Post("/migrate/{subsystem}", h.migrate)
		r.Post("/migrate-all", h.migrateAll)
		r.Post("/rollback/{subsystem}", h.rollbackSystem)
		r.Post("/restore/{subsystem}", h.restoreSystem)
	})

	return r
}
