package api

import (
	"context"
	"net/http"

	"github.com/okian/paycast/internal/domain/inference"
	"github.com/okian/paycast/internal/domain/model"
)

// CustomerDependencies exposes per-entity reads.
type CustomerDependencies interface {
	CustomerRisk(ctx context.Context, entityID string) (inference.CustomerRisk, error)
	History(ctx context.Context, entityID string) ([]model.PaymentEvent, error)
}

type historyResponse struct {
	EntityID string               `json:"entity_id"`
	Records  int                  `json:"records"`
	History  []model.PaymentEvent `json:"history"`
}

// CustomerHandler handles customer risk and history requests.
type CustomerHandler struct {
	deps CustomerDependencies
}

// NewCustomerHandler creates a new customer handler.
func NewCustomerHandler(deps CustomerDependencies) *CustomerHandler {
	return &CustomerHandler{deps: deps}
}

// HandleRisk handles GET /customer-risk/{entity} requests.
func (h *CustomerHandler) HandleRisk(w http.ResponseWriter, r *http.Request) {
	const op = "api.customer_risk"
	risk, err := h.deps.CustomerRisk(r.Context(), r.PathValue("entity"))
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, risk)
}

// HandleHistory handles GET /history/{entity} requests.
func (h *CustomerHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.history"
	entity := r.PathValue("entity")
	hist, err := h.deps.History(r.Context(), entity)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	if hist == nil {
		hist = []model.PaymentEvent{}
	}
	writeJSON(w, http.StatusOK, historyResponse{EntityID: entity, Records: len(hist), History: hist})
}
