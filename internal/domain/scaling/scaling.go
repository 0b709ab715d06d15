// Package scaling implements the robust (median / interquartile range) scaler
// applied to both model inputs.
package scaling

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Sentinel kinds for scaler errors.
var (
	ErrNotFitted     = errors.New("scaler not fitted")
	ErrEmptyMatrix   = errors.New("scaler: empty matrix")
	ErrWidthMismatch = errors.New("scaler: width mismatch")
	ErrInvalidStats  = errors.New("scaler: invalid statistics")
)

const (
	lowerQuantile = 0.25
	upperQuantile = 0.75
	median        = 0.5
)

// Robust centers each column on its median and divides by its IQR.
// A column with zero IQR keeps a scale of 1.
type Robust struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

// FitRobust learns per-column medians and IQRs from rows.
// Every row must have the same width.
func FitRobust(rows [][]float64) (*Robust, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyMatrix
	}
	width := len(rows[0])
	col := make([]float64, len(rows))
	r := &Robust{
		Center: make([]float64, width),
		Scale:  make([]float64, width),
	}
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), width, ErrWidthMismatch)
			}
			col[i] = row[j]
		}
		sort.Float64s(col)
		r.Center[j] = percentile(col, median)
		iqr := percentile(col, upperQuantile) - percentile(col, lowerQuantile)
		if iqr == 0 || math.IsNaN(iqr) {
			iqr = 1
		}
		r.Scale[j] = iqr
	}
	return r, nil
}

// Fitted reports whether the scaler holds fitted statistics.
func (r *Robust) Fitted() bool {
	return r != nil && len(r.Center) > 0 && len(r.Center) == len(r.Scale)
}

// Validate checks that the scaler is fitted, every center is finite and
// every scale is finite and positive. A loaded scaler that fails here would
// feed NaN or Inf to the model.
func (r *Robust) Validate() error {
	if !r.Fitted() {
		return ErrNotFitted
	}
	for j := range r.Center {
		if c := r.Center[j]; math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("column %d center %v: %w", j, c, ErrInvalidStats)
		}
		if sc := r.Scale[j]; !(sc > 0) || math.IsInf(sc, 0) {
			return fmt.Errorf("column %d scale %v: %w", j, sc, ErrInvalidStats)
		}
	}
	return nil
}

// Width is the number of columns the scaler was fit on.
func (r *Robust) Width() int {
	if !r.Fitted() {
		return 0
	}
	return len(r.Center)
}

// Transform scales one row into a new slice, leaving row untouched.
func (r *Robust) Transform(row []float64) ([]float64, error) {
	if !r.Fitted() {
		return nil, ErrNotFitted
	}
	if len(row) != len(r.Center) {
		return nil, fmt.Errorf("got %d columns, want %d: %w", len(row), len(r.Center), ErrWidthMismatch)
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - r.Center[j]) / r.Scale[j]
	}
	return out, nil
}

// TransformAll scales every row.
func (r *Robust) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		t, err := r.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// percentile linearly interpolates between closest ranks of a sorted slice
// (the "linear" method: h = (n-1)p).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}
