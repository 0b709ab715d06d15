package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/paycast/internal/domain/model"
)

// SettlementDependencies accepts settled invoices for the history store.
type SettlementDependencies interface {
	// RecordSettlement reports duplicate when the invoice id was already
	// accepted.
	RecordSettlement(ctx context.Context, st model.Settlement) (duplicate bool, err error)
}

// settlementRequest mirrors the OpenAPI schema for POST /settlements.
// payment_efficiency may be omitted when due_days is given.
type settlementRequest struct {
	InvoiceID         string   `json:"invoice_id"`
	EntityID          string   `json:"entity_id"`
	EventDate         string   `json:"event_date"`
	InvoiceAmount     float64  `json:"invoice_amount"`
	DaysToPayment     float64  `json:"days_to_payment"`
	DueDays           int      `json:"due_days"`
	PaymentEfficiency *float64 `json:"payment_efficiency"`
}

func (s settlementRequest) validate() error {
	switch {
	case strings.TrimSpace(s.InvoiceID) == "":
		return errors.New("missing invoice_id")
	case strings.TrimSpace(s.EntityID) == "":
		return errors.New("missing entity_id")
	case s.PaymentEfficiency == nil && s.DueDays <= 0:
		return errors.New("payment_efficiency or a positive due_days is required")
	}
	if s.EventDate != "" {
		if _, err := time.Parse(time.RFC3339, s.EventDate); err != nil {
			return errors.New("invalid event_date; must be RFC3339")
		}
	}
	return nil
}

// toSettlement builds the ingestion message; a missing event date means now.
func (s settlementRequest) toSettlement(now time.Time) model.Settlement {
	date := now.UTC()
	if s.EventDate != "" {
		date, _ = time.Parse(time.RFC3339, s.EventDate)
	}
	eff := model.Efficiency(s.DaysToPayment, float64(s.DueDays))
	if s.PaymentEfficiency != nil {
		eff = *s.PaymentEfficiency
	}
	return model.Settlement{
		InvoiceID: s.InvoiceID,
		Event: model.PaymentEvent{
			EntityID:          s.EntityID,
			EventDate:         date,
			InvoiceAmount:     s.InvoiceAmount,
			DaysToPayment:     s.DaysToPayment,
			PaymentEfficiency: eff,
		},
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	InvoiceID string `json:"invoice_id"`
	Duplicate bool   `json:"duplicate"`
}

// SettlementHandler handles settlement requests.
type SettlementHandler struct {
	deps SettlementDependencies
	now  func() time.Time
}

// NewSettlementHandler creates a new settlement handler.
func NewSettlementHandler(deps SettlementDependencies) *SettlementHandler {
	return &SettlementHandler{deps: deps, now: time.Now}
}

// HandlePostSettlement handles POST /settlements requests. New settlements
// are accepted with 202; a repeated invoice id is acknowledged with 200.
func (h *SettlementHandler) HandlePostSettlement(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_settlement"
	var req settlementRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	if err := req.validate(); err != nil {
		writeServiceError(r.Context(), w, op, WrapKind(op, ErrBadRequest, err))
		return
	}

	dup, err := h.deps.RecordSettlement(r.Context(), req.toSettlement(h.now()))
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", InvoiceID: req.InvoiceID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", InvoiceID: req.InvoiceID})
}
