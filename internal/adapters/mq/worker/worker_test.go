package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/paycast/internal/adapters/mq/queue"
	"github.com/okian/paycast/internal/adapters/mq/worker"
	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type mockAppender struct {
	mu     sync.Mutex
	events map[string][]model.PaymentEvent
	fail   map[string]error
}

func newMockAppender() *mockAppender {
	return &mockAppender{events: map[string][]model.PaymentEvent{}, fail: map[string]error{}}
}

func (m *mockAppender) Append(_ context.Context, e model.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[e.EntityID]; err != nil {
		return err
	}
	m.events[e.EntityID] = append(m.events[e.EntityID], e)
	return nil
}

func (m *mockAppender) count(entity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events[entity])
}

func settlement(invoice, entity string) queue.Message {
	return model.Settlement{
		InvoiceID: invoice,
		Event: model.PaymentEvent{
			EntityID:          entity,
			EventDate:         time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			InvoiceAmount:     500,
			DaysToPayment:     20,
			PaymentEfficiency: 1,
		},
	}
}

func TestInMemoryWorker(t *testing.T) {
	Convey("Given a running worker", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		app := newMockAppender()
		var (
			mu     sync.Mutex
			failed []string
		)
		w := worker.NewInMemoryWorker(q, app,
			worker.WithName("test-worker"),
			worker.WithFailureHandler(func(_ context.Context, m queue.Message, _ error) {
				mu.Lock()
				failed = append(failed, m.InvoiceID)
				mu.Unlock()
			}))
		go w.Run(ctx)

		Convey("When settlements arrive", func() {
			So(q.Enqueue(ctx, settlement("inv-1", "acme")), ShouldBeNil)
			So(q.Enqueue(ctx, settlement("inv-2", "acme")), ShouldBeNil)

			Convey("Then they are appended to the history", func() {
				So(eventually(func() bool { return app.count("acme") == 2 }), ShouldBeTrue)
				So(w.Processed(), ShouldEqual, 2)
			})
		})

		Convey("When the appender rejects a settlement", func() {
			app.fail["broken"] = errors.New("store unavailable")
			So(q.Enqueue(ctx, settlement("inv-9", "broken")), ShouldBeNil)

			Convey("Then the failure handler receives it", func() {
				So(eventually(func() bool {
					mu.Lock()
					defer mu.Unlock()
					return len(failed) == 1 && failed[0] == "inv-9"
				}), ShouldBeTrue)
				So(w.Processed(), ShouldEqual, 0)
			})
		})

		Convey("When shutting down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			Convey("Then the worker stops gracefully", func() {
				So(w.Shutdown(sctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a worker whose context is cancelled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		w := worker.NewInMemoryWorker(queue.NewInMemoryQueue(), newMockAppender())
		done := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(done)
		}()
		cancel()

		Convey("Then Run returns", func() {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("worker did not stop")
			}
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of workers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		app := newMockAppender()
		p := worker.NewPool(4, q, app)
		So(p.Size(), ShouldEqual, 4)
		p.Start(ctx)

		Convey("When many settlements are enqueued concurrently", func() {
			var wg sync.WaitGroup
			for g := 0; g < 5; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						_ = q.Enqueue(ctx, settlement(fmt.Sprintf("inv-%d-%d", g, i), fmt.Sprintf("entity-%d", g)))
					}
				}(g)
			}
			wg.Wait()

			Convey("Then every settlement is applied", func() {
				So(eventually(func() bool { return p.Processed() == 500 }), ShouldBeTrue)
				for g := 0; g < 5; g++ {
					So(app.count(fmt.Sprintf("entity-%d", g)), ShouldEqual, 100)
				}
			})
		})

		Convey("When shutting down with pending settlements", func() {
			for i := 0; i < 20; i++ {
				So(q.Enqueue(ctx, settlement(fmt.Sprintf("inv-%d", i), "acme")), ShouldBeNil)
			}
			So(p.Shutdown(context.Background()), ShouldBeNil)

			Convey("Then the queue is drained and closed", func() {
				So(app.count("acme"), ShouldEqual, 20)
				So(q.IsClosed(), ShouldBeTrue)
				So(p.Shutdown(context.Background()), ShouldBeNil)
			})
		})
	})

	Convey("A pool without an explicit size uses one worker per CPU", t, func() {
		p := worker.NewPool(0, queue.NewInMemoryQueue(), newMockAppender())
		So(p.Size(), ShouldBeGreaterThan, 0)
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
