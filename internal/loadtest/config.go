// Package loadtest drives a running paycast server over HTTP: it posts
// settlements concurrently, verifies the resulting histories and requests
// a forecast for the entities it populated.
package loadtest

import "time"

// Config holds configuration for a load test run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Entities       int           // Distinct entities to spread settlements over
	Settlements    int           // Unique settlements to generate
	DuplicateRatio float64       // Share of settlements resubmitted with the same invoice id
	Workers        int           // Concurrent HTTP workers
	Timeout        time.Duration // HTTP request timeout
	SettleWait     time.Duration // How long to wait for ingestion to catch up
	PollInterval   time.Duration // Interval between history polls while waiting
	Seed           int64         // Seed for the settlement generator
	OutputFile     string        // Optional JSON file for the generated settlements
	Verbose        bool
}

// Settlement is the request body of POST /settlements.
type Settlement struct {
	InvoiceID     string  `json:"invoice_id"`
	EntityID      string  `json:"entity_id"`
	EventDate     string  `json:"event_date"`
	InvoiceAmount float64 `json:"invoice_amount"`
	DaysToPayment float64 `json:"days_to_payment"`
	DueDays       int     `json:"due_days"`
}

// AckResponse is the body returned for an accepted or duplicate settlement.
type AckResponse struct {
	Status    string `json:"status"`
	InvoiceID string `json:"invoice_id"`
	Duplicate bool   `json:"duplicate"`
}

// HistoryEvent is one entry of GET /history/{entity}.
type HistoryEvent struct {
	EntityID          string    `json:"entity_id"`
	EventDate         time.Time `json:"event_date"`
	InvoiceAmount     float64   `json:"invoice_amount"`
	DaysToPayment     float64   `json:"days_to_payment"`
	PaymentEfficiency float64   `json:"payment_efficiency"`
}

// HistoryResponse is the body of GET /history/{entity}.
type HistoryResponse struct {
	EntityID string         `json:"entity_id"`
	Records  int            `json:"records"`
	History  []HistoryEvent `json:"history"`
}

// ForecastInvoice is one invoice of a POST /forecast request.
type ForecastInvoice struct {
	InvoiceID string  `json:"invoice_id"`
	EntityID  string  `json:"entity_id"`
	Amount    float64 `json:"amount"`
	DueDays   int     `json:"due_days"`
}

// ForecastResponse is the subset of the forecast body the test checks.
type ForecastResponse struct {
	InvoiceCount     int            `json:"invoice_count"`
	TotalAmount      float64        `json:"total_amount"`
	AverageDays      float64        `json:"average_predicted_days"`
	RiskDistribution map[string]int `json:"risk_distribution"`
}

// Stats holds run statistics.
type Stats struct {
	SettlementsGenerated int
	SubmissionsSent      int
	SubmissionsAccepted  int
	SubmissionsDuplicate int
	SubmissionsFailed    int
	EntitiesVerified     int
	HistoryMismatches    int
	ForecastInvoices     int
	ForecastSkipped      bool
	StartTime            time.Time
	EndTime              time.Time
	Duration             time.Duration
}
