package api

import (
	"context"
	"net/http"

	"github.com/okian/paycast/internal/domain/inference"
	"github.com/okian/paycast/internal/domain/model"
)

// PredictionDependencies scores invoices.
type PredictionDependencies interface {
	Predict(ctx context.Context, inv model.Invoice) (inference.Prediction, error)
	Forecast(ctx context.Context, invoices []model.Invoice) (inference.Forecast, error)
}

// invoiceRequest mirrors the OpenAPI Invoice schema. Optional attributes
// left empty take the documented defaults.
type invoiceRequest struct {
	InvoiceID       string   `json:"invoice_id"`
	EntityID        string   `json:"entity_id"`
	Amount          float64  `json:"amount"`
	DueDays         int      `json:"due_days"`
	CreditScore     float64  `json:"credit_score"`
	Industry        string   `json:"industry"`
	Location        string   `json:"location"`
	PaymentMethod   string   `json:"payment_method"`
	Segment         string   `json:"segment"`
	MarketCondition *float64 `json:"market_condition"`
	PaymentUrgency  *float64 `json:"payment_urgency"`
}

func (r invoiceRequest) toInvoice() model.Invoice {
	return model.Invoice{
		ID:              r.InvoiceID,
		EntityID:        r.EntityID,
		Amount:          r.Amount,
		DueDays:         r.DueDays,
		CreditScore:     r.CreditScore,
		Industry:        r.Industry,
		Location:        r.Location,
		PaymentMethod:   r.PaymentMethod,
		Segment:         r.Segment,
		MarketCondition: r.MarketCondition,
		PaymentUrgency:  r.PaymentUrgency,
	}
}

type forecastRequest struct {
	Invoices []invoiceRequest `json:"invoices"`
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps PredictionDependencies
}

// NewPredictHandler creates a new prediction handler.
func NewPredictHandler(deps PredictionDependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	var req invoiceRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	pred, err := h.deps.Predict(r.Context(), req.toInvoice())
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// HandleForecast handles POST /forecast requests.
func (h *PredictHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	const op = "api.forecast"
	var req forecastRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	invoices := make([]model.Invoice, len(req.Invoices))
	for i, inv := range req.Invoices {
		invoices[i] = inv.toInvoice()
	}
	fc, err := h.deps.Forecast(r.Context(), invoices)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}
