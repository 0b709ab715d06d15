package model

import (
	"strings"
	"time"
)

// Defaults applied to optional invoice attributes.
const (
	DefaultCreditScore     = 700.0
	DefaultIndustry        = "IT"
	DefaultLocation        = "Mumbai"
	DefaultPaymentMethod   = "Bank Transfer"
	DefaultSegment         = "Average"
	DefaultMarketCondition = 1.0
	DefaultPaymentUrgency  = 0.5
)

// Invoice is the input to a prediction. The core never mutates it.
type Invoice struct {
	ID            string    `json:"invoice_id,omitempty"`
	EntityID      string    `json:"entity_id"`
	Amount        float64   `json:"amount"`
	DueDays       int       `json:"due_days"`
	CreditScore   float64   `json:"credit_score,omitempty"`
	Industry      string    `json:"industry,omitempty"`
	Location      string    `json:"location,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Segment       string    `json:"segment,omitempty"`
	IssueDate     time.Time `json:"issue_date"`

	// Optional market context. Nil means unknown.
	MarketCondition *float64 `json:"market_condition,omitempty"`
	PaymentUrgency  *float64 `json:"payment_urgency,omitempty"`
}

// WithDefaults returns a copy with every optional attribute populated.
func (inv Invoice) WithDefaults() Invoice {
	out := inv
	if out.CreditScore == 0 {
		out.CreditScore = DefaultCreditScore
	}
	out.Industry = orDefault(out.Industry, DefaultIndustry)
	out.Location = orDefault(out.Location, DefaultLocation)
	out.PaymentMethod = orDefault(out.PaymentMethod, DefaultPaymentMethod)
	out.Segment = orDefault(out.Segment, DefaultSegment)
	if out.MarketCondition == nil {
		v := DefaultMarketCondition
		out.MarketCondition = &v
	}
	if out.PaymentUrgency == nil {
		v := DefaultPaymentUrgency
		out.PaymentUrgency = &v
	}
	return out
}

// Categorical returns the invoice value for one of the target-encoded columns.
func (inv Invoice) Categorical(column string) string {
	switch column {
	case ColumnIndustry:
		return inv.Industry
	case ColumnLocation:
		return inv.Location
	case ColumnPaymentMethod:
		return inv.PaymentMethod
	case ColumnSegment:
		return inv.Segment
	default:
		return ""
	}
}

// Target-encoded categorical columns, in static-vector order.
const (
	ColumnIndustry      = "industry"
	ColumnLocation      = "location"
	ColumnPaymentMethod = "payment_method"
	ColumnSegment       = "segment"
)

// CategoricalColumns lists the target-encoded columns in their fixed order.
var CategoricalColumns = []string{ColumnIndustry, ColumnLocation, ColumnPaymentMethod, ColumnSegment}

// HistoricalInvoice is an invoice whose payment outcome is known.
// It is one row of the training corpus.
type HistoricalInvoice struct {
	Invoice
	DaysToPayment     float64 `json:"days_to_payment"`
	PaymentEfficiency float64 `json:"payment_efficiency"`
}

// Event converts the settled invoice into the history record it produces.
func (h HistoricalInvoice) Event() PaymentEvent {
	return PaymentEvent{
		EntityID:          h.EntityID,
		EventDate:         h.IssueDate,
		InvoiceAmount:     h.Amount,
		DaysToPayment:     h.DaysToPayment,
		PaymentEfficiency: h.PaymentEfficiency,
	}
}

// TrainingSample is one model input/label pair.
type TrainingSample struct {
	Sequence []float64
	Static   []float64
	Label    float64
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
