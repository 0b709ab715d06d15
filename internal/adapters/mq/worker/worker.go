// Package worker applies queued settlements to the history store.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/paycast/internal/adapters/mq/queue"
	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/pkg/logger"
	"github.com/okian/paycast/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Appender records a payment event in an entity's history.
type Appender interface {
	Append(ctx context.Context, e model.PaymentEvent) error
}

// Queue defines how workers receive settlements.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Message
}

// FailureHandler observes settlements that could not be applied.
type FailureHandler func(ctx context.Context, m queue.Message, err error)

type acker interface{ Ack() }

// InMemoryWorker drains the queue into an Appender.
type InMemoryWorker struct {
	queue     Queue
	appender  Appender
	name      string
	onFailure FailureHandler
	processed *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, appender Appender, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		appender:  appender,
		name:      "worker",
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes settlements until ctx is done, Shutdown is called or the
// queue channel closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	messages := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			if a, ok := w.queue.(acker); ok {
				a.Ack()
			}
			if err := w.process(ctx, m); err != nil {
				w.logger.Error(ctx, "settlement not applied",
					logger.String("invoice_id", m.InvoiceID),
					logger.String("entity_id", m.Event.EntityID),
					logger.Error(err))
				if w.onFailure != nil {
					w.onFailure(ctx, m, err)
				}
			}
		}
	}
}

// Shutdown stops the worker and waits for the current settlement.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many settlements this worker applied.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, m queue.Message) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.appender.Append(ctx, m.Event); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "append_error")
		return fmt.Errorf("append settlement %s: %w", m.InvoiceID, err)
	}
	w.processed.Add(1)
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counter  *atomic.Int64
	shutdown chan struct{}
	stopped  atomic.Bool

	logger logger.Logger
}

// NewPool creates workerCount workers; a count below one uses one worker
// per CPU.
func NewPool(workerCount int, q Queue, appender Appender, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		counter:  new(atomic.Int64),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, appender, wopts...)
		w.processed = p.counter
		p.workers[i] = w
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many settlements the pool applied.
func (p *Pool) Processed() int64 { return p.counter.Load() }

// Start launches every worker and the rate updater.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	last, lastAt := p.counter.Load(), time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case now := <-ticker.C:
			n := p.counter.Load()
			if secs := now.Sub(lastAt).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(n-last) / secs)
			}
			last, lastAt = n, now
		}
	}
}

// Shutdown closes the queue when it supports closing, lets workers drain
// it and waits for them up to ctx or the pool timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
