package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func family(reg prometheus.Gatherer, name string) *dto.MetricFamily {
	mfs, err := reg.Gather()
	So(err, ShouldBeNil)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labeled(mf *dto.MetricFamily, key, value string) *dto.Metric {
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == key && l.GetValue() == value {
				return m
			}
		}
	}
	return nil
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewManager(
			WithPrometheusRegistry(reg),
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithHistogramBuckets([]float64{1, 10}),
			WithConstLabels(map[string]string{"env": "test"}),
		)
		So(m, ShouldNotBeNil)

		Convey("Then collectors carry the namespace and const labels", func() {
			m.bundleLoaded.Set(1)
			mf := family(reg, "test_unit_bundle_loaded")
			So(mf, ShouldNotBeNil)
			So(labeled(mf, "env", "test"), ShouldNotBeNil)
		})

		Convey("And a second manager on the same registry panics on duplicate registration", func() {
			So(func() { NewManager(WithPrometheusRegistry(reg), WithNamespace("test"), WithSubsystem("unit")) }, ShouldPanic)
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	reg := GetRegistry()

	Convey("Prediction recorders are labeled by risk level and error kind", t, func() {
		RecordPrediction("high", 3.5)
		RecordPredictionError("validation")

		mf := family(reg, "paycast_service_predictions_total")
		So(mf, ShouldNotBeNil)
		So(labeled(mf, "risk_level", "high").GetCounter().GetValue(), ShouldBeGreaterThanOrEqualTo, 1)

		mf = family(reg, "paycast_service_prediction_errors_total")
		So(labeled(mf, "kind", "validation"), ShouldNotBeNil)
	})

	Convey("Training recorders publish losses and quality", t, func() {
		RecordTrainingEpoch(12.5, 14.25)
		RecordTrainingRun(OutcomeSucceeded, 42)
		UpdateModelQuality(5.5, 7.25, 0.61)
		UpdateBundleLoaded(true)
		RecordBundleSwap()

		mf := family(reg, "paycast_service_training_loss")
		So(labeled(mf, "split", SplitVal).GetGauge().GetValue(), ShouldEqual, 14.25)
		mf = family(reg, "paycast_service_model_quality")
		So(labeled(mf, "metric", "r2").GetGauge().GetValue(), ShouldEqual, 0.61)
		So(family(reg, "paycast_service_bundle_loaded").GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 1)

		UpdateBundleLoaded(false)
		So(family(reg, "paycast_service_bundle_loaded").GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 0)
	})

	Convey("Ingestion and infrastructure recorders do not panic", t, func() {
		So(func() {
			RecordHistoryAppend(3)
			UpdateHistoryEntities(2)
			UpdateHistoryRecords(3)
			UpdateHistoryShardRecords("shard_0", 3)
			RecordHistoryQueryLatency(0.2)
			RecordSettlementAccepted()
			RecordSettlementDuplicate()
			UpdateQueueCapacity(100)
			UpdateQueueSize(5)
			UpdateQueueUtilization(0.05)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			RecordQueueEnqueueError()
			RecordQueueProcessingLatency(1)
			UpdateWorkerActiveCount(4)
			UpdateWorkerMessagesPerSecond(12.5)
			RecordWorkerProcessingLatency(2)
			RecordWorkerError()
			RecordHTTPRequest("/predict", "POST", "200")
			RecordHTTPRequestDuration("/predict", "POST", "200", 4)
			RecordErrorByComponent("queue", "queue_full")
			UpdateSystemMemoryUsage(1 << 20)
			UpdateSystemGoroutineCount(10)
			RecordSystemGCPauseTime(0.3)
		}, ShouldNotPanic)

		So(family(reg, "paycast_service_history_shard_records"), ShouldNotBeNil)
		So(family(reg, "paycast_service_settlements_duplicate_total").GetMetric()[0].GetCounter().GetValue(), ShouldBeGreaterThanOrEqualTo, 1)
	})
}
