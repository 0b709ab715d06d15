package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/okian/paycast/internal/app"
	"github.com/okian/paycast/internal/config"
	"github.com/okian/paycast/pkg/logger"
	"github.com/okian/paycast/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			t.Setenv("PAYCAST_ADDR", ":8080")
			t.Setenv("PAYCAST_QUEUE_SIZE", "1000")
			t.Setenv("PAYCAST_WORKER_COUNT", "4")
			t.Setenv("PAYCAST_TRAINING_EPOCHS", "12")

			convey.Convey("Then it should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.TrainingEpochs, convey.ShouldEqual, 12)

				svc := app.New(app.FromConfig(cfg)...)
				stats := svc.GetStats()
				convey.So(stats["queueSize"], convey.ShouldEqual, 1000)
				convey.So(stats["workerCount"], convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			t.Setenv("PAYCAST_LOG_FORMAT", "xml")

			convey.Convey("Then loading should fail", func() {
				_, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When building the HTTP server", func() {
			srv := newHTTPServer(":0", http.NewServeMux())

			convey.Convey("Then the timeouts should be set", func() {
				convey.So(srv.ReadTimeout, convey.ShouldEqual, readTimeout)
				convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
				convey.So(srv.IdleTimeout, convey.ShouldEqual, idleTimeout)
				convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			})
		})

		convey.Convey("When creating a metrics manager on its own registry", func() {
			manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))

			convey.Convey("Then it should be created", func() {
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestRoutes(t *testing.T) {
	convey.Convey("Given a started service behind the full mux", t, func() {
		ctx := context.Background()
		svc := app.New(
			app.WithArtifactDir(t.TempDir()),
			app.WithWorkerCount(1),
			app.WithQueueSize(16),
		)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := newMux(ctx, svc)

		get := func(path string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			return rec
		}

		convey.Convey("Then the landing page and docs should be served", func() {
			convey.So(get("/").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api-docs").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then the API should report no model yet", func() {
			rec := get("/health")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"model_loaded":false`)
		})

		convey.Convey("Then unknown paths should be 404", func() {
			convey.So(get("/no-such-page").Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("When system metrics are updated", func() {
			convey.Convey("Then it should not panic", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When service metrics are updated before and after start", func() {
			ctx := context.Background()
			svc := app.New(app.WithArtifactDir(t.TempDir()), app.WithWorkerCount(1))

			convey.Convey("Then it should not panic", func() {
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
				convey.So(svc.Start(ctx), convey.ShouldBeNil)
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
				convey.So(svc.Stop(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the updater loops are cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			svc := app.New()
			done := make(chan struct{}, 2)
			go func() { startSystemMetricsUpdater(ctx); done <- struct{}{} }()
			go func() { startServiceMetricsUpdater(ctx, svc); done <- struct{}{} }()
			cancel()

			convey.Convey("Then both should return", func() {
				for i := 0; i < 2; i++ {
					select {
					case <-done:
					case <-time.After(2 * time.Second):
						t.Fatal("metrics updater did not stop")
					}
				}
			})
		})
	})
}
