package features_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/paycast/internal/domain/behavior"
	"github.com/okian/paycast/internal/domain/encoding"
	"github.com/okian/paycast/internal/domain/features"
	"github.com/okian/paycast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var monday = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func corpus() []model.HistoricalInvoice {
	mk := func(entity, industry string, day int, days, eff float64, market *float64) model.HistoricalInvoice {
		return model.HistoricalInvoice{
			Invoice: model.Invoice{
				EntityID:        entity,
				Amount:          10000,
				DueDays:         30,
				CreditScore:     700,
				Industry:        industry,
				Location:        "Delhi",
				PaymentMethod:   "UPI",
				Segment:         "Premium",
				IssueDate:       monday.AddDate(0, 0, day),
				MarketCondition: market,
				PaymentUrgency:  ptr(0.5),
			},
			DaysToPayment:     days,
			PaymentEfficiency: eff,
		}
	}
	return []model.HistoricalInvoice{
		mk("a", "IT", 20, 40, 0.6, ptr(1.1)),
		mk("a", "IT", 0, 30, 1.0, ptr(0.9)),
		mk("b", "Retail", 5, 50, 0.3, nil),
		mk("a", "IT", 10, 35, 0.8, ptr(1.0)),
	}
}

func fitted() (*encoding.Table, *features.ContextTable) {
	rows := corpus()
	enc, err := encoding.Fit(rows)
	So(err, ShouldBeNil)
	return enc, features.FitContext(rows)
}

func TestNames(t *testing.T) {
	Convey("The feature orders have fixed widths and unique names", t, func() {
		So(len(features.SequenceNames), ShouldEqual, features.SequenceSize)
		So(len(features.StaticNames), ShouldEqual, features.StaticSize)
		seen := map[string]bool{}
		for _, n := range append(append([]string{}, features.SequenceNames...), features.StaticNames...) {
			So(seen[n], ShouldBeFalse)
			seen[n] = true
		}
	})
}

func TestBuildNewEntity(t *testing.T) {
	Convey("Given a never seen entity with amount 50000 and due 30", t, func() {
		enc, _ := fitted()
		inv := model.Invoice{EntityID: "new", Amount: 50000, DueDays: 30, IssueDate: monday}
		beh := behavior.Compute(nil, monday)

		seq, static, err := features.Build(inv, beh, enc, nil)
		So(err, ShouldBeNil)

		Convey("Then the sequence vector is the default behavior", func() {
			So(beh, ShouldResemble, behavior.Defaults())
			So(seq, ShouldResemble, behavior.Defaults().Slice())
		})

		Convey("And the static vector is fully populated", func() {
			So(len(static), ShouldEqual, features.StaticSize)
			for _, v := range static {
				So(math.IsNaN(v) || math.IsInf(v, 0), ShouldBeFalse)
			}
		})

		Convey("And amount and credit transforms follow the formulas", func() {
			So(static[0], ShouldAlmostEqual, math.Log1p(50000), 1e-12)
			So(static[1], ShouldAlmostEqual, math.Sqrt(50000), 1e-12)
			So(static[2], ShouldAlmostEqual, math.Log1p(50000.0/30.0), 1e-12)
			So(static[3], ShouldAlmostEqual, 0.5, 1e-12) // (700-650)/100
			So(static[4], ShouldAlmostEqual, 0.25, 1e-12)
			So(static[5], ShouldAlmostEqual, 0.125, 1e-12)
		})

		Convey("And Monday the 1st of January encodes as weekday 0 and day 1 of 31", func() {
			So(static[10], ShouldAlmostEqual, 0, 1e-12)
			So(static[11], ShouldAlmostEqual, 1, 1e-12)
			So(static[12], ShouldAlmostEqual, math.Sin(2*math.Pi/31), 1e-12)
			So(static[6], ShouldAlmostEqual, math.Sin(2*math.Pi/12), 1e-12)
		})

		Convey("And defaults are used for context and market passthroughs", func() {
			So(static[14], ShouldEqual, model.DefaultMarketCondition)
			So(static[15], ShouldEqual, model.DefaultPaymentUrgency)
			So(static[16], ShouldEqual, features.FallbackMarketTrend)
			So(static[17], ShouldEqual, features.FallbackMarketVolatility)
			So(static[18], ShouldEqual, features.FallbackIndustrySeasonalEffect)
			So(static[19], ShouldEqual, features.FallbackLocationEconomicIndex)
			So(static[23], ShouldAlmostEqual, 0.7*0.5, 1e-12)
		})

		Convey("And unseen categories encode to the global mean", func() {
			// Mumbai, Bank Transfer and Average never appear in the corpus.
			So(static[25], ShouldEqual, enc.GlobalMean)
			So(static[26], ShouldEqual, enc.GlobalMean)
			So(static[27], ShouldEqual, enc.GlobalMean)
			So(static[24], ShouldEqual, enc.Encode(model.ColumnIndustry, "IT"))
		})
	})
}

func TestBuildErrors(t *testing.T) {
	Convey("Given degenerate invoices", t, func() {
		enc, _ := fitted()
		beh := behavior.Defaults()

		cases := map[string]model.Invoice{
			"due_days":   {Amount: 100, DueDays: 0, IssueDate: monday},
			"amount":     {Amount: -5, DueDays: 30, IssueDate: monday},
			"issue_date": {Amount: 100, DueDays: 30},
		}
		for field, inv := range cases {
			_, _, err := features.Build(inv, beh, enc, nil)
			var fe *model.FeatureComputationError
			So(errors.As(err, &fe), ShouldBeTrue)
			So(fe.Field, ShouldEqual, field)
		}

		Convey("And an overflowing credit transform is rejected", func() {
			inv := model.Invoice{Amount: 100, DueDays: 30, IssueDate: monday, CreditScore: 1e300}
			_, _, err := features.Build(inv, beh, enc, nil)
			So(model.IsFeatureComputation(err), ShouldBeTrue)
		})

		Convey("And building without an encoding table fails", func() {
			_, _, err := features.Build(model.Invoice{Amount: 1, DueDays: 1, IssueDate: monday}, beh, nil, nil)
			So(err, ShouldEqual, features.ErrNoEncoding)
		})
	})
}

func TestContextTable(t *testing.T) {
	Convey("Given a context table fit on the corpus", t, func() {
		_, ctx := fitted()

		Convey("Then January market trend is the mean market condition", func() {
			c := ctx.Lookup("IT", "Delhi", monday)
			So(c.MarketTrend, ShouldAlmostEqual, 1.0, 1e-12)
			So(c.MarketVolatility, ShouldAlmostEqual, math.Sqrt(0.02/3), 1e-12)
			So(c.LocationEconomicIndex, ShouldAlmostEqual, 1.0, 1e-12)
			// IT January mean 0.8 against global 0.675
			So(c.IndustrySeasonalEffect, ShouldAlmostEqual, 0.125, 1e-12)
		})

		Convey("And unknown keys fall back", func() {
			c := ctx.Lookup("Mining", "Pune", monday.AddDate(0, 6, 0))
			So(c, ShouldResemble, features.Context{
				MarketTrend:            features.FallbackMarketTrend,
				MarketVolatility:       features.FallbackMarketVolatility,
				IndustrySeasonalEffect: features.FallbackIndustrySeasonalEffect,
				LocationEconomicIndex:  features.FallbackLocationEconomicIndex,
			})
		})
	})
}

func TestBuildCorpus(t *testing.T) {
	Convey("Given an out of order corpus", t, func() {
		rows := corpus()
		enc, ctx := fitted()
		samples, err := features.BuildCorpus(rows, enc, ctx)
		So(err, ShouldBeNil)
		So(len(samples), ShouldEqual, len(rows))

		Convey("Then labels stay aligned with rows", func() {
			for i, s := range samples {
				So(s.Label, ShouldEqual, rows[i].DaysToPayment)
			}
		})

		Convey("And the earliest row of an entity sees no history", func() {
			So(samples[1].Sequence, ShouldResemble, behavior.Defaults().Slice())
			So(samples[2].Sequence, ShouldResemble, behavior.Defaults().Slice())
		})

		Convey("And later rows see only strictly earlier rows", func() {
			second := behavior.Compute([]model.PaymentEvent{rows[1].Event()}, rows[3].IssueDate)
			So(samples[3].Sequence, ShouldResemble, second.Slice())

			third := behavior.Compute([]model.PaymentEvent{rows[1].Event(), rows[3].Event()}, rows[0].IssueDate)
			So(samples[0].Sequence, ShouldResemble, third.Slice())
			So(samples[0].Sequence[0], ShouldAlmostEqual, 0.9, 1e-12)
		})

		Convey("And a missing market condition stays NaN until imputed", func() {
			So(math.IsNaN(samples[2].Static[14]), ShouldBeTrue)

			imp := features.FitImputer(samples)
			So(imp.ApplyAll(samples), ShouldBeNil)
			So(samples[2].Static[14], ShouldAlmostEqual, 1.0, 1e-12)
		})
	})

	Convey("Given an empty corpus", t, func() {
		_, err := features.BuildCorpus(nil, &encoding.Table{}, nil)
		So(err, ShouldEqual, model.ErrEmptyCorpus)
	})
}

func TestImputer(t *testing.T) {
	Convey("Given vectors with missing values", t, func() {
		seq := behavior.Defaults().Slice()
		seq[0] = math.NaN() // efficiency_recent3
		seq[4] = math.NaN() // consistency
		seq[5] = math.NaN() // trend
		static := make([]float64, features.StaticSize)
		static[16] = math.NaN() // market_trend
		static[23] = math.NaN() // efficiency_consistency

		Convey("When imputed without medians", func() {
			var imp features.Imputer
			So(imp.Apply(seq, static), ShouldBeNil)

			Convey("Then named defaults apply and others become zero", func() {
				So(seq[0], ShouldEqual, 0.7)
				So(seq[4], ShouldEqual, 0.5)
				So(seq[5], ShouldEqual, 0.0)
				So(static[16], ShouldEqual, 0.0)
				So(static[23], ShouldEqual, 0.7)
			})
		})

		Convey("When imputed with training medians", func() {
			med := make([]float64, features.StaticSize)
			med[16] = 1.25
			imp := features.Imputer{StaticMedians: med}
			So(imp.Apply(seq, static), ShouldBeNil)
			So(static[16], ShouldEqual, 1.25)
		})

		Convey("When a value is infinite", func() {
			static[0] = math.Inf(1)
			var imp features.Imputer
			err := imp.Apply(seq, static)
			var fe *model.FeatureComputationError
			So(errors.As(err, &fe), ShouldBeTrue)
			So(fe.Field, ShouldEqual, "log_invoice_amount")
		})

		Convey("When the width is wrong", func() {
			var imp features.Imputer
			So(imp.Apply(seq[:3], static), ShouldEqual, features.ErrWidth)
		})
	})
}
