// Package httphandler is the HTTP driving adapter: the dashboard read API and
// the provider webhook receivers.
package httphandler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ericfisherdev/cihealth/internal/application"
)

// WebhookConfig holds the optional shared secrets for webhook authentication.
// An empty value disables verification for that provider.
type WebhookConfig struct {
	GitHubSecret string
	JenkinsToken string
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	metrics  *application.MetricsService
	ingest   *application.IngestService
	webhooks WebhookConfig
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	metrics *application.MetricsService,
	ingest *application.IngestService,
	webhooks WebhookConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		metrics:  metrics,
		ingest:   ingest,
		webhooks: webhooks,
		logger:   logger,
	}
}

// NewRouter creates an http.Handler with all routes registered and wrapped
// with request id, logging and recovery middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Recovery innermost so panics are caught before logging.
	r.Use(middleware.RequestID, middleware.RealIP, loggingMiddleware(logger), recoveryMiddleware(logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/metrics", h.Metrics)
		r.Get("/builds", h.ListBuilds)

		r.Post("/webhooks/github", h.GitHubWebhook)
		r.Post("/webhooks/jenkins", h.JenkinsWebhook)
	})

	return r
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.metrics.Health(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{OK: false})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

// Metrics returns success and failure rates, average duration and the last
// completed build.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.metrics.Metrics(r.Context())
	if err != nil {
		h.logger.Error("failed to compute metrics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toMetricsResponse(m))
}

// ListBuilds returns the most recent builds. The optional limit query
// parameter defaults to 50 and is capped at 200.
func (h *Handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	builds, err := h.metrics.RecentBuilds(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list builds", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]BuildResponse, 0, len(builds))
	for _, b := range builds {
		resp = append(resp, toBuildResponse(b))
	}

	writeJSON(w, http.StatusOK, resp)
}
