package training

import "errors"

var (
	// ErrCorpusTooSmall is returned when a partition would be empty.
	ErrCorpusTooSmall = errors.New("training: corpus too small to split")
	// ErrBelowThreshold is returned when test metrics miss the configured bar.
	ErrBelowThreshold = errors.New("training: evaluation below threshold")
)

// Failure stages reported in model.TrainingFailure.
const (
	StageSplit    = "split"
	StageFeatures = "features"
	StageFit      = "fit"
	StageEvaluate = "evaluate"
	StagePublish  = "publish"
)
