// Package types contains read shapes shared by the service and the HTTP API.
package types

import (
	"time"

	"github.com/okian/paycast/internal/domain/inference"
	"github.com/okian/paycast/internal/domain/training"
)

// TrainingState is the lifecycle of the most recent training run.
type TrainingState string

const (
	TrainingIdle      TrainingState = "idle"
	TrainingRunning   TrainingState = "running"
	TrainingSucceeded TrainingState = "succeeded"
	TrainingFailed    TrainingState = "failed"
)

// TrainingStatus reports progress and outcome of the latest run.
type TrainingStatus struct {
	RunID        string            `json:"run_id,omitempty"`
	State        TrainingState     `json:"state"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	Epoch        int               `json:"epoch"`
	MaxEpochs    int               `json:"max_epochs,omitempty"`
	TrainLoss    float64           `json:"train_loss,omitempty"`
	ValLoss      float64           `json:"val_loss,omitempty"`
	LearningRate float64           `json:"learning_rate,omitempty"`
	Stage        string            `json:"failed_stage,omitempty"`
	Error        string            `json:"error,omitempty"`
	Metrics      *training.Metrics `json:"metrics,omitempty"`
	ModelVersion string            `json:"model_version,omitempty"`
}

// Finished reports whether the run has reached a terminal state.
func (s TrainingStatus) Finished() bool {
	return s.State == TrainingSucceeded || s.State == TrainingFailed
}

// Elapsed is the run's wall time so far, or its total once finished.
func (s TrainingStatus) Elapsed(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	if s.FinishedAt != nil {
		return s.FinishedAt.Sub(*s.StartedAt)
	}
	return now.Sub(*s.StartedAt)
}

// ModelInfo describes the served bundle.
type ModelInfo struct {
	Loaded    bool              `json:"model_loaded"`
	Version   string            `json:"version,omitempty"`
	TrainedAt *time.Time        `json:"trained_at,omitempty"`
	Metrics   *training.Metrics `json:"metrics,omitempty"`
}

// DemoResult reports what a demo seeding call did to an entity.
type DemoResult struct {
	EntityID string                 `json:"entity_id"`
	Added    int                    `json:"records_added"`
	Records  int                    `json:"history_records"`
	Risk     inference.CustomerRisk `json:"customer_risk"`
}
