package model_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	model "github.com/okian/paycast/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEfficiency(t *testing.T) {
	convey.Convey("Given payment outcomes against a 30 day term", t, func() {
		convey.Convey("When paid early it caps at one", func() {
			convey.So(model.Efficiency(20, 30), convey.ShouldEqual, 1.0)
		})
		convey.Convey("When paid exactly on time", func() {
			convey.So(model.Efficiency(30, 30), convey.ShouldEqual, 1.0)
		})
		convey.Convey("When paid 15 days late", func() {
			convey.So(model.Efficiency(45, 30), convey.ShouldEqual, 0.5)
		})
		convey.Convey("When paid far too late it floors at zero", func() {
			convey.So(model.Efficiency(120, 30), convey.ShouldEqual, 0)
		})
		convey.Convey("When the due days are not positive", func() {
			convey.So(model.Efficiency(10, 0), convey.ShouldEqual, 0)
		})
	})
}

func TestInvoiceDefaults(t *testing.T) {
	convey.Convey("Given an invoice with only required fields", t, func() {
		inv := model.Invoice{EntityID: "acme", Amount: 50000, DueDays: 30}

		convey.Convey("When defaults are applied", func() {
			out := inv.WithDefaults()

			convey.Convey("Then every optional attribute is populated", func() {
				convey.So(out.CreditScore, convey.ShouldEqual, model.DefaultCreditScore)
				convey.So(out.Industry, convey.ShouldEqual, model.DefaultIndustry)
				convey.So(out.Location, convey.ShouldEqual, model.DefaultLocation)
				convey.So(out.PaymentMethod, convey.ShouldEqual, model.DefaultPaymentMethod)
				convey.So(out.Segment, convey.ShouldEqual, model.DefaultSegment)
				convey.So(*out.MarketCondition, convey.ShouldEqual, model.DefaultMarketCondition)
				convey.So(*out.PaymentUrgency, convey.ShouldEqual, model.DefaultPaymentUrgency)
			})

			convey.Convey("And the original is untouched", func() {
				convey.So(inv.Industry, convey.ShouldBeEmpty)
				convey.So(inv.MarketCondition, convey.ShouldBeNil)
			})
		})

		convey.Convey("When explicit values are present", func() {
			mc := 0.8
			inv.Industry = "Retail"
			inv.MarketCondition = &mc
			out := inv.WithDefaults()

			convey.So(out.Industry, convey.ShouldEqual, "Retail")
			convey.So(*out.MarketCondition, convey.ShouldEqual, 0.8)
			convey.So(out.Categorical(model.ColumnIndustry), convey.ShouldEqual, "Retail")
			convey.So(out.Categorical("unknown"), convey.ShouldBeEmpty)
		})
	})
}

func TestHistoricalInvoiceEvent(t *testing.T) {
	convey.Convey("Given a settled invoice", t, func() {
		issued := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
		h := model.HistoricalInvoice{
			Invoice:           model.Invoice{EntityID: "acme", Amount: 1200, DueDays: 30, IssueDate: issued},
			DaysToPayment:     33,
			PaymentEfficiency: 0.9,
		}

		convey.Convey("Then its history event mirrors the outcome", func() {
			ev := h.Event()
			convey.So(ev.EntityID, convey.ShouldEqual, "acme")
			convey.So(ev.EventDate, convey.ShouldEqual, issued)
			convey.So(ev.InvoiceAmount, convey.ShouldEqual, 1200)
			convey.So(ev.DaysToPayment, convey.ShouldEqual, 33)
			convey.So(ev.PaymentEfficiency, convey.ShouldEqual, 0.9)
		})
	})
}

func TestErrorTaxonomy(t *testing.T) {
	convey.Convey("Given wrapped domain errors", t, func() {
		v := fmt.Errorf("predict: %w", &model.ValidationError{Field: "amount", Reason: "required"})
		f := fmt.Errorf("predict: %w", &model.FeatureComputationError{Field: "due_days", Value: 0})
		tf := fmt.Errorf("train: %w", &model.TrainingFailure{Stage: "evaluate", Epochs: 3, Err: model.ErrEmptyCorpus})

		convey.Convey("Then each kind is recognised through wrapping", func() {
			convey.So(model.IsValidation(v), convey.ShouldBeTrue)
			convey.So(model.IsFeatureComputation(f), convey.ShouldBeTrue)
			convey.So(model.IsTrainingFailure(tf), convey.ShouldBeTrue)
			convey.So(model.IsValidation(f), convey.ShouldBeFalse)
			convey.So(errors.Is(tf, model.ErrEmptyCorpus), convey.ShouldBeTrue)
		})

		convey.Convey("And messages name the failing field", func() {
			convey.So(v.Error(), convey.ShouldContainSubstring, "amount")
			convey.So(f.Error(), convey.ShouldContainSubstring, "due_days")
			convey.So(tf.Error(), convey.ShouldContainSubstring, "evaluate after 3 epochs")
		})
	})
}
