package behavior_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/paycast/internal/domain/behavior"
	"github.com/okian/paycast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// history builds one event per efficiency, spaced stepDays apart.
func history(stepDays int, effs ...float64) []model.PaymentEvent {
	out := make([]model.PaymentEvent, len(effs))
	for i, e := range effs {
		out[i] = model.PaymentEvent{
			EntityID:          "acme",
			EventDate:         day0.AddDate(0, 0, i*stepDays),
			InvoiceAmount:     math.E - 1, // ln(amount)+1 is close to 1.54
			DaysToPayment:     30,
			PaymentEfficiency: e,
		}
	}
	return out
}

func TestCompute_EmptyHistory(t *testing.T) {
	Convey("Given an entity with no history", t, func() {
		v := behavior.Compute(nil, time.Now())

		Convey("Then the vector equals the documented defaults exactly", func() {
			So(v, ShouldResemble, behavior.Vector{
				EfficiencyRecent3: 0.7,
				EfficiencyRecent7: 0.7,
				EfficiencyAllTime: 0.7,
				VelocityAvg:       1.0,
				Consistency:       0.5,
				Trend:             0.0,
				Frequency:         0.1,
				DaysSinceLast:     30,
			})
			So(v.Slice(), ShouldHaveLength, behavior.Size)
			So(behavior.Names, ShouldHaveLength, behavior.Size)
		})
	})
}

func TestCompute_Efficiency(t *testing.T) {
	Convey("Given ten events with rising efficiency", t, func() {
		h := history(10, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0)
		v := behavior.Compute(h, day0.AddDate(0, 0, 100))

		Convey("Then recent windows average the tail of the history", func() {
			So(v.EfficiencyRecent3, ShouldAlmostEqual, 0.9, 1e-12)
			So(v.EfficiencyRecent7, ShouldAlmostEqual, 0.7, 1e-12)
			So(v.EfficiencyAllTime, ShouldAlmostEqual, 0.55, 1e-12)
		})

		Convey("And the trend is the per-event slope", func() {
			So(v.Trend, ShouldAlmostEqual, 0.1, 1e-9)
		})
	})

	Convey("Given a short history", t, func() {
		h := history(10, 0.4, 0.6)
		v := behavior.Compute(h, day0.AddDate(0, 0, 20))

		Convey("Then recent windows use what is available", func() {
			So(v.EfficiencyRecent3, ShouldAlmostEqual, 0.5, 1e-12)
			So(v.EfficiencyRecent7, ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("And the trend stays neutral below three events", func() {
			So(v.Trend, ShouldEqual, 0.0)
		})
	})
}

func TestCompute_Consistency(t *testing.T) {
	Convey("Given events with identical efficiency", t, func() {
		v := behavior.Compute(history(5, 0.8, 0.8, 0.8), day0.AddDate(0, 0, 30))

		Convey("Then consistency is exactly one", func() {
			So(v.Consistency, ShouldEqual, 1.0)
		})
	})

	Convey("Given a single event", t, func() {
		v := behavior.Compute(history(5, 0.3), day0)

		Convey("Then consistency falls back to the neutral value", func() {
			So(v.Consistency, ShouldEqual, 0.5)
		})
	})

	Convey("Given alternating efficiency", t, func() {
		v := behavior.Compute(history(5, 0.2, 0.8), day0.AddDate(0, 0, 30))

		Convey("Then consistency uses the population deviation", func() {
			So(v.Consistency, ShouldAlmostEqual, 1/1.3, 1e-12)
		})
	})
}

func TestCompute_Trend(t *testing.T) {
	Convey("Given strictly increasing efficiency", t, func() {
		v := behavior.Compute(history(7, 0.3, 0.35, 0.5, 0.9), day0.AddDate(0, 0, 40))
		Convey("Then the trend is positive", func() {
			So(v.Trend, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given strictly decreasing efficiency", t, func() {
		v := behavior.Compute(history(7, 0.95, 0.7, 0.6, 0.2, 0.1), day0.AddDate(0, 0, 40))
		Convey("Then the trend is negative", func() {
			So(v.Trend, ShouldBeLessThan, 0)
		})
	})

	Convey("Given a long history that only recently improved", t, func() {
		effs := []float64{0.9, 0.9, 0.9, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
		v := behavior.Compute(history(7, effs...), day0.AddDate(0, 0, 80))
		Convey("Then only the last seven events drive the trend", func() {
			So(v.Trend, ShouldBeGreaterThan, 0)
		})
	})
}

func TestCompute_TimeFeatures(t *testing.T) {
	Convey("Given four events over 91 days", t, func() {
		h := history(30, 0.5, 0.5, 0.5, 0.5)

		Convey("Then frequency is events per 30 day month of span", func() {
			v := behavior.Compute(h, day0.AddDate(0, 0, 100))
			So(v.Frequency, ShouldAlmostEqual, 4/(91.0/30.0), 1e-12)
		})

		Convey("And days since last counts whole days from the latest event", func() {
			v := behavior.Compute(h, day0.AddDate(0, 0, 100).Add(23*time.Hour))
			So(v.DaysSinceLast, ShouldEqual, 10)
		})

		Convey("And days since last is capped at a year", func() {
			v := behavior.Compute(h, day0.AddDate(3, 0, 0))
			So(v.DaysSinceLast, ShouldEqual, 365)
		})

		Convey("And it never goes negative when asOf precedes the history", func() {
			v := behavior.Compute(h, day0.AddDate(0, 0, -5))
			So(v.DaysSinceLast, ShouldEqual, 0)
		})
	})

	Convey("Given events clustered in one week", t, func() {
		v := behavior.Compute(history(1, 0.5, 0.5, 0.5), day0.AddDate(0, 0, 3))
		Convey("Then the span is floored at one month", func() {
			So(v.Frequency, ShouldEqual, 3)
		})
	})

	Convey("Given a single event", t, func() {
		v := behavior.Compute(history(5, 0.3), day0.AddDate(0, 0, 10))

		Convey("Then frequency counts one event per one-day span", func() {
			So(v.Frequency, ShouldEqual, 1.0)
		})

		Convey("And it differs from the empty-history default", func() {
			So(v.Frequency, ShouldNotEqual, behavior.DefaultFrequency)
		})
	})
}

func TestCompute_OrderAndVelocity(t *testing.T) {
	Convey("Given an unsorted history", t, func() {
		h := history(10, 0.2, 0.4, 0.6, 0.8)
		shuffled := []model.PaymentEvent{h[2], h[0], h[3], h[1]}

		Convey("Then the result matches the sorted history", func() {
			asOf := day0.AddDate(0, 0, 50)
			So(behavior.Compute(shuffled, asOf), ShouldResemble, behavior.Compute(h, asOf))
		})

		Convey("And the caller's slice is left untouched", func() {
			behavior.Compute(shuffled, day0)
			So(shuffled[0].PaymentEfficiency, ShouldEqual, 0.6)
		})
	})

	Convey("Given events with known amounts", t, func() {
		h := []model.PaymentEvent{
			{EventDate: day0, InvoiceAmount: math.Exp(1), DaysToPayment: 20, PaymentEfficiency: 1},
			{EventDate: day0.AddDate(0, 0, 1), InvoiceAmount: math.Exp(3), DaysToPayment: 40, PaymentEfficiency: 1},
			{EventDate: day0.AddDate(0, 0, 2), InvoiceAmount: 0, DaysToPayment: 99, PaymentEfficiency: 1},
		}
		v := behavior.Compute(h, day0.AddDate(0, 0, 2))

		Convey("Then velocity averages days over ln(amount)+1, skipping degenerate amounts", func() {
			So(v.VelocityAvg, ShouldAlmostEqual, (20.0/2+40.0/4)/2, 1e-9)
		})
	})
}
