package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/paycast/internal/domain/model"
)

func settlement(id string) Message {
	return model.Settlement{
		InvoiceID: id,
		Event: model.PaymentEvent{
			EntityID:          "acme",
			EventDate:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			InvoiceAmount:     100,
			DaysToPayment:     30,
			PaymentEfficiency: 1,
		},
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if err := q.Enqueue(ctx, settlement("inv-1")); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	m := <-q.Dequeue(ctx)
	q.Ack()
	if m.InvoiceID != "inv-1" {
		t.Errorf("expected inv-1, got %v", m.InvoiceID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"inv-1", "inv-2"} {
		if err := q.Enqueue(ctx, settlement(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := q.Enqueue(ctx, settlement("inv-3")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if q.Capacity() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Capacity())
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()
	_ = q.Enqueue(ctx, settlement("inv-1"))

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if err := q.Enqueue(ctx, settlement("inv-2")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var drained []string
	for m := range q.Dequeue(ctx) {
		drained = append(drained, m.InvoiceID)
	}
	if len(drained) != 1 || drained[0] != "inv-1" {
		t.Errorf("pending settlements should drain after close, got %v", drained)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, settlement("inv-1")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	const producers, each = 8, 50
	q := NewInMemoryQueue(WithCapacity(producers * each))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if err := q.Enqueue(ctx, settlement(fmt.Sprintf("inv-%d-%d", p, i))); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if l := q.Len(ctx); l != producers*each {
		t.Errorf("expected %d queued, got %d", producers*each, l)
	}
}
