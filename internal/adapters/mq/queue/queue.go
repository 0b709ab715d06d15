// Package queue buffers settlements between the API and the history
// workers.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Message is the payload flowing through the queue.
type Message = model.Settlement

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a settlement without blocking. It fails with ErrFull
	// when the queue is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, m Message) error

	// Dequeue returns the channel of pending settlements. The channel is
	// closed after Close once drained.
	Dequeue(ctx context.Context) <-chan Message

	// Len returns the current number of queued settlements.
	Len(ctx context.Context) int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with a bounded channel.
type InMemoryQueue struct {
	messages chan Message
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.messages = make(chan Message, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.observe()
	return q
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue implements Queue.Enqueue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, m Message) error {
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return q.reject("closed", ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return q.reject("context_cancelled", err)
	}
	select {
	case q.messages <- m:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		return q.reject("queue_full", fmt.Errorf("%w: capacity %d", ErrFull, q.capacity))
	}
}

func (q *InMemoryQueue) reject(kind string, err error) error {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", kind)
	return err
}

// Dequeue implements Queue.Dequeue. Every caller shares the same channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Message {
	return q.messages
}

// Ack records that a dequeued settlement left the queue.
func (q *InMemoryQueue) Ack() {
	metrics.RecordQueueDequeue()
	q.observe()
}

// Len implements Queue.Len.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.observe()
}

func (q *InMemoryQueue) observe() int {
	size := len(q.messages)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close stops accepting settlements. Pending ones remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.messages)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
