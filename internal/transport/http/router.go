package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the public protocol endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/connect/authorize", h.handleAuthorize)
	r.Post("/connect/authorize", h.handleAuthorize)
	r.Post("/connect/token", h.handleToken)
	r.Post("/connect/introspect", h.handleIntrospect)
	r.Post("/connect/revocation", h.handleRevocation)
	r.Post("/connect/deviceauthorization", h.handleDeviceAuthorization)

	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
