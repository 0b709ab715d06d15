package encoding_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/paycast/internal/domain/encoding"
	"github.com/okian/paycast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func row(industry string, days float64) model.HistoricalInvoice {
	return model.HistoricalInvoice{
		Invoice: model.Invoice{
			EntityID:      "e",
			Industry:      industry,
			Location:      "Delhi",
			PaymentMethod: "UPI",
			Segment:       "Average",
		},
		DaysToPayment: days,
	}
}

func TestFit(t *testing.T) {
	Convey("Given a corpus with two industries", t, func() {
		rows := []model.HistoricalInvoice{
			row("IT", 10), row("IT", 20),
			row("Retail", 60), row("Retail", 50), row("Retail", 40), row("Retail", 60),
		}
		table, err := encoding.Fit(rows)
		So(err, ShouldBeNil)

		Convey("Then the global mean is the label mean", func() {
			So(table.GlobalMean, ShouldAlmostEqual, 40, 1e-12)
			So(table.Smoothing, ShouldEqual, encoding.Smoothing)
		})

		Convey("And categories shrink towards the global mean with k=10", func() {
			// IT: mean 15, n 2 -> (15*2 + 40*10) / 12
			So(table.Encode(model.ColumnIndustry, "IT"), ShouldAlmostEqual, (30.0+400.0)/12.0, 1e-12)
			// Retail: mean 52.5, n 4 -> (210 + 400) / 14
			So(table.Encode(model.ColumnIndustry, "Retail"), ShouldAlmostEqual, 610.0/14.0, 1e-12)
		})

		Convey("And a single-valued column encodes to the global mean", func() {
			So(table.Encode(model.ColumnLocation, "Delhi"), ShouldAlmostEqual, 40, 1e-12)
		})

		Convey("And an unseen category resolves to the fit-time global mean", func() {
			So(table.Encode(model.ColumnIndustry, "Aerospace"), ShouldEqual, table.GlobalMean)
			So(table.Encode("no_such_column", "x"), ShouldEqual, table.GlobalMean)
		})

		Convey("And the table survives a JSON round trip", func() {
			raw, err := json.Marshal(table)
			So(err, ShouldBeNil)
			var back encoding.Table
			So(json.Unmarshal(raw, &back), ShouldBeNil)
			So(back.Validate(), ShouldBeNil)
			So(back.Encode(model.ColumnIndustry, "IT"), ShouldEqual, table.Encode(model.ColumnIndustry, "IT"))
			So(back.Encode(model.ColumnSegment, "Unknown"), ShouldEqual, table.GlobalMean)
		})
	})

	Convey("Given an empty corpus", t, func() {
		_, err := encoding.Fit(nil)
		Convey("Then fitting fails", func() {
			So(err, ShouldEqual, encoding.ErrNoRows)
		})
	})

	Convey("Given a table with a different smoothing constant", t, func() {
		table := &encoding.Table{Smoothing: 5, Columns: map[string]map[string]float64{}}
		Convey("Then validation rejects it", func() {
			So(table.Validate(), ShouldNotBeNil)
		})
	})
}
