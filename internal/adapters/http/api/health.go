// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"

	"github.com/okian/paycast/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	model ModelInfoProvider
	now   func() time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(model ModelInfoProvider) *HealthHandler {
	return &HealthHandler{model: model, now: time.Now}
}

type healthResponse struct {
	Status      string    `json:"status"`
	ModelLoaded bool      `json:"model_loaded"`
	Version     string    `json:"version,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HandleHealth handles GET /health. The process is healthy whether or not
// a model is loaded; model_loaded tells callers if predictions will work.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	info := h.model.ModelInfo()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		ModelLoaded: info.Loaded,
		Version:     info.Version,
		Timestamp:   h.now().UTC(),
	})
}

// HandleMetrics handles GET /healthz with the Prometheus exposition.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	// Use our custom metrics registry to serve metrics
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
