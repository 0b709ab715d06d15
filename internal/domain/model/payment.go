// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// PaymentEvent is one settled invoice in an entity's payment history.
// Events are immutable once recorded; ordering by EventDate is significant.
type PaymentEvent struct {
	EntityID          string    `json:"entity_id"`
	EventDate         time.Time `json:"event_date"`
	InvoiceAmount     float64   `json:"invoice_amount"`
	DaysToPayment     float64   `json:"days_to_payment"`
	PaymentEfficiency float64   `json:"payment_efficiency"` // 1 = paid on or before due, 0 = very late
}

// Settlement is the ingestion message for a newly settled invoice.
// InvoiceID is the idempotency key.
type Settlement struct {
	InvoiceID string
	Event     PaymentEvent
}

// Efficiency derives payment efficiency from the actual and agreed payment
// terms: 1 - delay/due, clamped to [0, 1]. Non-positive dueDays yields 0.
func Efficiency(daysToPayment, dueDays float64) float64 {
	if dueDays <= 0 {
		return 0
	}
	delay := daysToPayment - dueDays
	return math.Min(1, math.Max(0, 1-delay/dueDays))
}
