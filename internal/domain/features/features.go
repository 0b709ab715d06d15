// Package features turns an invoice and its entity's behavioral vector into
// the two ordered numeric vectors the model consumes.
//
// Position is the contract: SequenceNames and StaticNames are recorded in
// the artifact bundle and the scalers are fit in exactly this order.
package features

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/paycast/internal/domain/behavior"
	"github.com/okian/paycast/internal/domain/encoding"
	"github.com/okian/paycast/internal/domain/model"
)

// Widths of the two model inputs.
const (
	SequenceSize = behavior.Size
	StaticSize   = 28
)

const (
	creditCenter    = 650.0
	creditScale     = 100.0
	dayOfMonthCycle = 31
)

// SequenceNames is the order of the sequence vector.
var SequenceNames = behavior.Names

// StaticNames is the order of the static vector.
var StaticNames = []string{
	"log_invoice_amount",
	"amount_sqrt",
	"log_amount_per_due_day",
	"credit_score_norm",
	"credit_score_squared",
	"credit_score_cubed",
	"month_sin",
	"month_cos",
	"quarter_sin",
	"quarter_cos",
	"day_of_week_sin",
	"day_of_week_cos",
	"day_of_month_sin",
	"day_of_month_cos",
	"market_condition",
	"payment_urgency",
	"market_trend",
	"market_volatility",
	"industry_seasonal_effect",
	"location_economic_index",
	"credit_score_amount",
	"credit_score_market",
	"amount_market",
	"efficiency_consistency",
	"industry_encoded",
	"location_encoded",
	"payment_method_encoded",
	"segment_encoded",
}

// Build produces the inference-time vectors for inv. Optional invoice
// attributes take their documented defaults and missing values are imputed
// without training medians.
func Build(inv model.Invoice, beh behavior.Vector, enc *encoding.Table, ctx *ContextTable) (seq, static []float64, err error) {
	inv = inv.WithDefaults()
	seq, static, err = raw(inv, *inv.MarketCondition, *inv.PaymentUrgency, beh, enc, ctx)
	if err != nil {
		return nil, nil, err
	}
	var imp Imputer
	if err := imp.Apply(seq, static); err != nil {
		return nil, nil, err
	}
	return seq, static, nil
}

// raw computes both vectors without imputation. NaN market or urgency
// values propagate so the imputer can fill them.
func raw(inv model.Invoice, market, urgency float64, beh behavior.Vector, enc *encoding.Table, ctx *ContextTable) ([]float64, []float64, error) {
	if enc == nil {
		return nil, nil, ErrNoEncoding
	}
	if err := validate(inv); err != nil {
		return nil, nil, err
	}

	amount := inv.Amount
	due := float64(inv.DueDays)
	date := inv.IssueDate

	logAmount := math.Log1p(amount)
	credit := (inv.CreditScore - creditCenter) / creditScale

	month := int(date.Month())
	quarter := (month-1)/3 + 1
	weekday := (int(date.Weekday()) + 6) % 7 // Monday = 0
	mSin, mCos := cyclical(float64(month), 12)
	qSin, qCos := cyclical(float64(quarter), 4)
	wSin, wCos := cyclical(float64(weekday), 7)
	dSin, dCos := cyclical(float64(date.Day()), dayOfMonthCycle)

	c := ctx.Lookup(inv.Industry, inv.Location, date)

	static := []float64{
		logAmount,
		math.Sqrt(amount),
		math.Log1p(amount / due),
		credit,
		credit * credit,
		credit * credit * credit,
		mSin, mCos,
		qSin, qCos,
		wSin, wCos,
		dSin, dCos,
		market,
		urgency,
		c.MarketTrend,
		c.MarketVolatility,
		c.IndustrySeasonalEffect,
		c.LocationEconomicIndex,
		credit * logAmount,
		credit * market,
		logAmount * market,
		beh.EfficiencyAllTime * beh.Consistency,
	}
	for _, col := range model.CategoricalColumns {
		static = append(static, enc.Encode(col, inv.Categorical(col)))
	}
	return beh.Slice(), static, nil
}

func validate(inv model.Invoice) error {
	switch {
	case !(inv.Amount > 0) || math.IsInf(inv.Amount, 0):
		return &model.FeatureComputationError{Field: "amount", Value: inv.Amount, Err: fmt.Errorf("must be positive and finite")}
	case inv.DueDays <= 0:
		return &model.FeatureComputationError{Field: "due_days", Value: float64(inv.DueDays), Err: fmt.Errorf("must be positive")}
	case inv.IssueDate.IsZero():
		return &model.FeatureComputationError{Field: "issue_date", Err: fmt.Errorf("missing date")}
	case math.IsNaN(inv.CreditScore) || math.IsInf(inv.CreditScore, 0):
		return &model.FeatureComputationError{Field: "credit_score", Value: inv.CreditScore}
	}
	return nil
}

func cyclical(v, period float64) (float64, float64) {
	a := 2 * math.Pi * v / period
	return math.Sin(a), math.Cos(a)
}

// Date returns the calendar day used for temporal encodings at inference.
func Date(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
