package api

import (
	"context"
	"net/http"

	"github.com/okian/paycast/internal/domain/types"
)

// DemoDependencies seeds demonstration histories.
type DemoDependencies interface {
	SeedDemo(ctx context.Context, entityID string) (types.DemoResult, error)
	ImproveDemo(ctx context.Context, entityID string) (types.DemoResult, error)
}

// DemoHandler handles demo seeding requests.
type DemoHandler struct {
	deps DemoDependencies
}

// NewDemoHandler creates a new demo handler.
func NewDemoHandler(deps DemoDependencies) *DemoHandler {
	return &DemoHandler{deps: deps}
}

// HandleSetup handles POST /demo/{entity}/setup.
func (h *DemoHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.SeedDemo(r.Context(), r.PathValue("entity"))
	if err != nil {
		writeServiceError(r.Context(), w, "api.demo_setup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleImprove handles POST /demo/{entity}/improve.
func (h *DemoHandler) HandleImprove(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.ImproveDemo(r.Context(), r.PathValue("entity"))
	if err != nil {
		writeServiceError(r.Context(), w, "api.demo_improve", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
