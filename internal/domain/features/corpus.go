package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/paycast/internal/domain/behavior"
	"github.com/okian/paycast/internal/domain/encoding"
	"github.com/okian/paycast/internal/domain/model"
)

// BuildCorpus builds one raw sample per row, aligned with rows.
//
// Each row's behavioral vector is computed by behavior.Compute over the rows
// of the same entity that precede it in issue-date order, as of the row's
// issue date. Missing market context stays NaN; run the result through a
// fitted Imputer before use.
func BuildCorpus(rows []model.HistoricalInvoice, enc *encoding.Table, ctx *ContextTable) ([]model.TrainingSample, error) {
	if len(rows) == 0 {
		return nil, model.ErrEmptyCorpus
	}
	byEntity := map[string][]int{}
	for i, r := range rows {
		byEntity[r.EntityID] = append(byEntity[r.EntityID], i)
	}

	samples := make([]model.TrainingSample, len(rows))
	for entity, idx := range byEntity {
		sort.SliceStable(idx, func(a, b int) bool {
			return rows[idx[a]].IssueDate.Before(rows[idx[b]].IssueDate)
		})
		history := make([]model.PaymentEvent, 0, len(idx))
		for _, i := range idx {
			r := rows[i]
			beh := behavior.Compute(history, r.IssueDate)

			inv := r.Invoice
			market, urgency := orNaN(inv.MarketCondition), orNaN(inv.PaymentUrgency)
			inv.MarketCondition, inv.PaymentUrgency = nil, nil
			inv = inv.WithDefaults()

			seq, static, err := raw(inv, market, urgency, beh, enc, ctx)
			if err != nil {
				return nil, fmt.Errorf("row %d entity %s: %w", i, entity, err)
			}
			samples[i] = model.TrainingSample{Sequence: seq, Static: static, Label: r.DaysToPayment}
			history = append(history, r.Event())
		}
	}
	return samples, nil
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
