package inference

import "math"

// RiskLevel is the coarse bucket reported with a prediction.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskLevels lists every level in ascending order.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

// Thresholds on predicted/due days.
const (
	lowDelayRatio    = 3.0
	mediumDelayRatio = 6.0
)

// Thresholds on the customer risk score.
const (
	lowRiskScore    = 25.0
	mediumRiskScore = 50.0
)

// Confidence heuristic bounds.
const (
	confidenceBase       = 0.6
	confidenceSpan       = 0.3
	confidenceSaturation = 20
	confidenceMin        = 0.6
	confidenceMax        = 0.95
)

// ClassifyDelay buckets a predicted/due ratio: ≤3 low, ≤6 medium, else high.
func ClassifyDelay(ratio float64) RiskLevel {
	switch {
	case ratio <= lowDelayRatio:
		return RiskLow
	case ratio <= mediumDelayRatio:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ClassifyScore buckets a customer risk score: ≤25 low, ≤50 medium, else high.
func ClassifyScore(score float64) RiskLevel {
	switch {
	case score <= lowRiskScore:
		return RiskLow
	case score <= mediumRiskScore:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Confidence grows with history depth, saturating at 20 records, plus the
// supplied noise, clamped to [0.6, 0.95]. It is an engagement heuristic,
// not a calibrated uncertainty.
func Confidence(records int, noise float64) float64 {
	depth := float64(min(records, confidenceSaturation)) / confidenceSaturation
	c := confidenceBase + depth*confidenceSpan + noise
	return math.Min(confidenceMax, math.Max(confidenceMin, c))
}
