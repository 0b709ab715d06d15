package features

import (
	"math"
	"sort"
	"strings"

	"github.com/okian/paycast/internal/domain/model"
)

// Name-based fill values for missing features.
const (
	fillEfficiency  = 0.7
	fillTrend       = 0.0
	fillConsistency = 0.5
)

// Imputer fills NaN features and rejects anything still non-finite.
// Medians come from the training partition; a zero Imputer fills with 0,
// which is what inference does.
type Imputer struct {
	SequenceMedians []float64
	StaticMedians   []float64
}

// FitImputer computes NaN-ignoring column medians over samples.
func FitImputer(samples []model.TrainingSample) Imputer {
	seq := make([][]float64, len(samples))
	static := make([][]float64, len(samples))
	for i, s := range samples {
		seq[i] = s.Sequence
		static[i] = s.Static
	}
	return Imputer{
		SequenceMedians: columnMedians(seq, SequenceSize),
		StaticMedians:   columnMedians(static, StaticSize),
	}
}

// Apply fills both vectors in place.
func (m Imputer) Apply(seq, static []float64) error {
	if len(seq) != SequenceSize || len(static) != StaticSize {
		return ErrWidth
	}
	if err := fill(SequenceNames, seq, m.SequenceMedians); err != nil {
		return err
	}
	return fill(StaticNames, static, m.StaticMedians)
}

// ApplyAll fills every sample in place.
func (m Imputer) ApplyAll(samples []model.TrainingSample) error {
	for i := range samples {
		if err := m.Apply(samples[i].Sequence, samples[i].Static); err != nil {
			return err
		}
	}
	return nil
}

func fill(names []string, row, medians []float64) error {
	for j, v := range row {
		if math.IsNaN(v) {
			v = fillValue(names[j], j, medians)
			row[j] = v
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &model.FeatureComputationError{Field: names[j], Value: v}
		}
	}
	return nil
}

func fillValue(name string, j int, medians []float64) float64 {
	switch {
	case strings.HasPrefix(name, "efficiency"):
		return fillEfficiency
	case name == "trend":
		return fillTrend
	case strings.HasPrefix(name, "consistency"):
		return fillConsistency
	case j < len(medians) && !math.IsNaN(medians[j]):
		return medians[j]
	default:
		return 0
	}
}

func columnMedians(rows [][]float64, width int) []float64 {
	out := make([]float64, width)
	col := make([]float64, 0, len(rows))
	for j := 0; j < width; j++ {
		col = col[:0]
		for _, r := range rows {
			if j < len(r) && !math.IsNaN(r[j]) {
				col = append(col, r[j])
			}
		}
		out[j] = median(col)
	}
	return out
}

func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}
