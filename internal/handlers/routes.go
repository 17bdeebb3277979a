package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shortgrab/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by the operational endpoints.
type Dependencies struct {
	Ledger Pinger
	Logger *slog.Logger
}

// NewRouter builds the operational HTTP router: probes and Prometheus metrics.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	health := HealthHandler{Ledger: deps.Ledger}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
