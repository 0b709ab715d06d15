package synthetic_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/paycast/internal/domain/behavior"
	"github.com/okian/paycast/internal/synthetic"
	"github.com/okian/paycast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestGenerate(t *testing.T) {
	Convey("Given a small corpus config", t, func() {
		cfg := synthetic.Config{Customers: 10, Invoices: 300, Seed: 7}
		rows, err := synthetic.Generate(context.Background(), cfg)
		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 300)

		Convey("Then every row is a valid settled invoice", func() {
			terms := map[int]bool{15: true, 30: true, 45: true, 60: true, 90: true}
			for _, r := range rows {
				So(r.Amount, ShouldBeGreaterThan, 0)
				So(terms[r.DueDays], ShouldBeTrue)
				So(r.DaysToPayment, ShouldBeGreaterThanOrEqualTo, 1)
				So(r.PaymentEfficiency, ShouldBeBetweenOrEqual, 0, 1)
				So(r.IssueDate.Year(), ShouldEqual, synthetic.DefaultYear)
				So(r.MarketCondition, ShouldNotBeNil)
				So(r.PaymentUrgency, ShouldNotBeNil)
				So(*r.PaymentUrgency, ShouldBeBetween, 0, 1)
			}
		})

		Convey("And the same seed reproduces the corpus", func() {
			again, err := synthetic.Generate(context.Background(), cfg)
			So(err, ShouldBeNil)
			So(again[42].DaysToPayment, ShouldEqual, rows[42].DaysToPayment)
			So(again[299].EntityID, ShouldEqual, rows[299].EntityID)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := synthetic.Generate(ctx, synthetic.DefaultConfig())
		So(err, ShouldNotBeNil)
	})

	Convey("Given an empty config", t, func() {
		_, err := synthetic.Generate(context.Background(), synthetic.Config{})
		So(err, ShouldNotBeNil)
	})
}

func TestDemoHistories(t *testing.T) {
	Convey("Given the demo seeding histories", t, func() {
		now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		rng := rand.New(rand.NewSource(1))
		poor := synthetic.PoorHistory("Company_34", now, rng)
		good := synthetic.ImprovedHistory("Company_34", now, rng)

		So(len(poor), ShouldEqual, synthetic.PoorRecords)
		So(len(good), ShouldEqual, synthetic.ImprovedRecords)

		Convey("Then the improved history lifts recent efficiency", func() {
			before := behavior.Compute(poor, now)
			after := behavior.Compute(append(append(poor[:0:0], poor...), good...), now)
			So(before.EfficiencyRecent3, ShouldBeLessThan, 0.6)
			So(after.EfficiencyRecent3, ShouldBeGreaterThan, 0.8)
			So(after.EfficiencyAllTime, ShouldBeGreaterThan, before.EfficiencyAllTime)
		})

		Convey("And events are dated in the past in ascending order", func() {
			for i := 1; i < len(poor); i++ {
				So(poor[i].EventDate.After(poor[i-1].EventDate), ShouldBeTrue)
			}
			So(good[len(good)-1].EventDate.Before(now), ShouldBeTrue)
		})
	})
}
