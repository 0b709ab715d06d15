// Package behavior turns an entity's ordered payment history into the fixed
// behavioral feature vector consumed by the sequence branch of the model.
//
// Compute is the single code path for both the training corpus (expanding
// window, as of each invoice date) and live inference (full history, as of
// now). Keeping one implementation is what guarantees train/serve parity.
package behavior

import (
	"math"
	"sort"
	"time"

	"github.com/okian/paycast/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// Defaults for an entity without history.
const (
	DefaultEfficiency    = 0.7
	DefaultVelocity      = 1.0
	DefaultConsistency   = 0.5
	DefaultTrend         = 0.0
	DefaultFrequency     = 0.1
	DefaultDaysSinceLast = 30.0
)

const (
	recentShort      = 3
	recentLong       = 7
	minTrendPoints   = 3
	daysPerMonth     = 30.0
	maxDaysSinceLast = 365.0
	hoursPerDay      = 24.0
)

// Size is the length of the behavioral vector.
const Size = 8

// Names lists the vector components in their fixed transport order.
var Names = []string{
	"efficiency_recent3",
	"efficiency_recent7",
	"efficiency_all_time",
	"velocity_avg",
	"consistency",
	"trend",
	"frequency",
	"days_since_last",
}

// Vector summarises an entity's payment behavior.
type Vector struct {
	EfficiencyRecent3 float64 `json:"efficiency_recent3"`
	EfficiencyRecent7 float64 `json:"efficiency_recent7"`
	EfficiencyAllTime float64 `json:"efficiency_all_time"`
	VelocityAvg       float64 `json:"velocity_avg"`
	Consistency       float64 `json:"consistency"`
	Trend             float64 `json:"trend"`
	Frequency         float64 `json:"frequency"`
	DaysSinceLast     float64 `json:"days_since_last"`
}

// Defaults returns the vector used for an entity with no history.
func Defaults() Vector {
	return Vector{
		EfficiencyRecent3: DefaultEfficiency,
		EfficiencyRecent7: DefaultEfficiency,
		EfficiencyAllTime: DefaultEfficiency,
		VelocityAvg:       DefaultVelocity,
		Consistency:       DefaultConsistency,
		Trend:             DefaultTrend,
		Frequency:         DefaultFrequency,
		DaysSinceLast:     DefaultDaysSinceLast,
	}
}

// Slice returns the components in Names order.
func (v Vector) Slice() []float64 {
	return []float64{
		v.EfficiencyRecent3,
		v.EfficiencyRecent7,
		v.EfficiencyAllTime,
		v.VelocityAvg,
		v.Consistency,
		v.Trend,
		v.Frequency,
		v.DaysSinceLast,
	}
}

// Compute derives the behavioral vector from history as seen at asOf.
// history must not contain the event being predicted; it need not be sorted.
func Compute(history []model.PaymentEvent, asOf time.Time) Vector {
	if len(history) == 0 {
		return Defaults()
	}

	events := make([]model.PaymentEvent, len(history))
	copy(events, history)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventDate.Before(events[j].EventDate)
	})

	eff := make([]float64, len(events))
	for i, e := range events {
		eff[i] = e.PaymentEfficiency
	}

	recent7 := tail(eff, recentLong)

	return Vector{
		EfficiencyRecent3: stat.Mean(tail(eff, recentShort), nil),
		EfficiencyRecent7: stat.Mean(recent7, nil),
		EfficiencyAllTime: stat.Mean(eff, nil),
		VelocityAvg:       velocity(events),
		Consistency:       consistency(eff),
		Trend:             trend(recent7),
		Frequency:         frequency(events),
		DaysSinceLast:     daysSince(events[len(events)-1].EventDate, asOf),
	}
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// velocity averages days-to-payment normalised by order of magnitude of the
// invoice amount. Events whose amount gives a degenerate divisor are skipped.
func velocity(events []model.PaymentEvent) float64 {
	vs := make([]float64, 0, len(events))
	for _, e := range events {
		if e.InvoiceAmount <= 0 {
			continue
		}
		den := math.Log(e.InvoiceAmount) + 1
		if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
			continue
		}
		vs = append(vs, e.DaysToPayment/den)
	}
	if len(vs) == 0 {
		return DefaultVelocity
	}
	return stat.Mean(vs, nil)
}

func consistency(eff []float64) float64 {
	if len(eff) < 2 {
		return DefaultConsistency
	}
	_, std := stat.PopMeanStdDev(eff, nil)
	return 1 / (1 + std)
}

// trend is the OLS slope of efficiency against event index.
func trend(eff []float64) float64 {
	if len(eff) < minTrendPoints {
		return DefaultTrend
	}
	x := make([]float64, len(eff))
	for i := range x {
		x[i] = float64(i)
	}
	_, slope := stat.LinearRegression(x, eff, nil, false)
	return slope
}

// frequency is events per 30 days over the inclusive span of the history.
func frequency(events []model.PaymentEvent) float64 {
	first := events[0].EventDate
	last := events[len(events)-1].EventDate
	span := wholeDays(last.Sub(first)) + 1
	return float64(len(events)) / math.Max(span/daysPerMonth, 1)
}

func daysSince(last, asOf time.Time) float64 {
	d := wholeDays(asOf.Sub(last))
	return math.Min(maxDaysSinceLast, math.Max(0, d))
}

func wholeDays(d time.Duration) float64 {
	return math.Floor(d.Hours() / hoursPerDay)
}
