package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds shared across the prediction core.
var (
	ErrNotReady           = errors.New("model not ready: no artifact bundle loaded")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrEmptyCorpus        = errors.New("training corpus is empty")

	// ErrIngestionUnavailable reports that a settlement could not be queued.
	ErrIngestionUnavailable = errors.New("settlement ingestion unavailable")
)

// ValidationError reports a missing or malformed required request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FeatureComputationError reports an input that cannot be turned into a
// finite feature value.
type FeatureComputationError struct {
	Field string
	Value float64
	Err   error
}

func (e *FeatureComputationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feature %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("feature %s: degenerate value %v", e.Field, e.Value)
}

func (e *FeatureComputationError) Unwrap() error { return e.Err }

// TrainingFailure reports a training run that did not produce a bundle.
// Diagnostics holds whatever was known when the run stopped.
type TrainingFailure struct {
	Stage       string
	Epochs      int
	Diagnostics map[string]float64
	Err         error
}

func (e *TrainingFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "training failed at %s after %d epochs", e.Stage, e.Epochs)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TrainingFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsFeatureComputation reports whether err is a FeatureComputationError.
func IsFeatureComputation(err error) bool {
	var f *FeatureComputationError
	return errors.As(err, &f)
}

// IsTrainingFailure reports whether err is a TrainingFailure.
func IsTrainingFailure(err error) bool {
	var t *TrainingFailure
	return errors.As(err, &t)
}
