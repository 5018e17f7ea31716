package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/simmsb/synapse-extension/internal/auth"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermLightRead)).Get("/metrics", s.handleMetrics)

			r.Route("/lights", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermLightRead)).Get("/", s.handleListLights)

				r.Route("/{entity_id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermLightRead)).Get("/", s.handleGetLight)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermLightOperate))
						r.Post("/turn_on", s.handleTurnOn)
						r.Post("/turn_off", s.handleTurnOff)
					})
				})
			})

			r.With(s.requirePermission(auth.PermLightRead)).Get("/audit", s.handleListAudit)
			r.With(s.requirePermission(auth.PermLightRead)).Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth reports overall and per-component health. A failing
// component turns the response into 503 so load balancers can act on it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.health))
	healthy := true

	for name, checker := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()

		if err != nil {
			healthy = false
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
