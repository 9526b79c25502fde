// Package server wires the HTTP API routes and middleware.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harrierlabs/harrier/internal/handlers"
	"github.com/harrierlabs/harrier/internal/middleware"
)

// NewRouter constructs the ServeMux with all API routes registered. The API
// routes sit behind bearer-token auth; health and metrics do not.
func NewRouter(h *handlers.Handler, apiToken string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/events", h.IngestEvent)
	api.HandleFunc("POST /api/v1/rules", h.CreateRule)
	api.HandleFunc("GET /api/v1/rules", h.ListRules)
	api.HandleFunc("GET /api/v1/rules/{id}", h.GetRule)
	api.HandleFunc("PUT /api/v1/rules/{id}", h.UpdateRule)
	api.HandleFunc("DELETE /api/v1/rules/{id}", h.DeleteRule)
	api.HandleFunc("GET /api/v1/alerts", h.ListAlerts)

	auth := middleware.BearerAuth(apiToken)
	mux.Handle("/api/v1/", auth(api))

	return middleware.RequestID(mux)
}
