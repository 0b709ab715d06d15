// Package encoding implements smoothed target encoding of categorical columns.
package encoding

import (
	"errors"
	"fmt"

	"github.com/okian/paycast/internal/domain/model"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Smoothing is the Bayesian prior weight k shared by fit and serve.
const Smoothing = 10.0

// ErrNoRows is returned when fitting on an empty corpus.
var ErrNoRows = errors.New("encoding: no rows to fit")

// Table maps each categorical column's values to a smoothed mean label.
// It is fit once per training run and shipped inside the artifact bundle.
type Table struct {
	Smoothing  float64                       `json:"smoothing"`
	GlobalMean float64                       `json:"global_mean"`
	Columns    map[string]map[string]float64 `json:"columns"`
}

// Fit computes, for every column in model.CategoricalColumns,
//
//	encoded = (mean_c*n_c + global*k) / (n_c + k)
//
// using days-to-payment as the label.
func Fit(rows []model.HistoricalInvoice) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	labels := lo.Map(rows, func(r model.HistoricalInvoice, _ int) float64 { return r.DaysToPayment })
	global := stat.Mean(labels, nil)

	t := &Table{
		Smoothing:  Smoothing,
		GlobalMean: global,
		Columns:    make(map[string]map[string]float64, len(model.CategoricalColumns)),
	}
	for _, col := range model.CategoricalColumns {
		sums := make(map[string]float64)
		counts := make(map[string]float64)
		for _, r := range rows {
			v := r.Categorical(col)
			sums[v] += r.DaysToPayment
			counts[v]++
		}
		enc := make(map[string]float64, len(sums))
		for v, sum := range sums {
			n := counts[v]
			mean := sum / n
			enc[v] = (mean*n + global*Smoothing) / (n + Smoothing)
		}
		t.Columns[col] = enc
	}
	return t, nil
}

// Encode returns the smoothed mean for value in column, or the fit-time
// global mean when the value (or the column) was never seen.
func (t *Table) Encode(column, value string) float64 {
	if enc, ok := t.Columns[column][value]; ok {
		return enc
	}
	return t.GlobalMean
}

// Validate checks that the table is usable at serve time.
func (t *Table) Validate() error {
	if t == nil {
		return errors.New("encoding: nil table")
	}
	if t.Smoothing != Smoothing {
		return fmt.Errorf("encoding: smoothing %v differs from %v", t.Smoothing, Smoothing)
	}
	for _, col := range model.CategoricalColumns {
		if _, ok := t.Columns[col]; !ok {
			return fmt.Errorf("encoding: missing column %q", col)
		}
	}
	return nil
}
