package repository

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/okian/paycast/internal/domain/model"
)

var base = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func event(entity string, day int, eff float64) model.PaymentEvent {
	return model.PaymentEvent{
		EntityID:          entity,
		EventDate:         base.AddDate(0, 0, day),
		InvoiceAmount:     1000,
		DaysToPayment:     30,
		PaymentEfficiency: eff,
	}
}

func newStore(t *testing.T, opts ...Option) *HistoryStore {
	t.Helper()
	s := NewHistoryStore(context.Background(), opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHistoryStore_Empty(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	hist, err := s.History(ctx, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("expected empty history, got %d events", len(hist))
	}
	if n := s.Count(ctx, "nobody"); n != 0 {
		t.Errorf("expected count 0, got %d", n)
	}
	if n := s.Entities(ctx); n != 0 {
		t.Errorf("expected 0 entities, got %d", n)
	}
}

func TestHistoryStore_OrderedByDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, e := range []model.PaymentEvent{
		event("acme", 10, 0.5),
		event("acme", 1, 0.9),
		event("acme", 5, 0.7),
		event("acme", 5, 0.6),
	} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	hist, err := s.History(ctx, "acme")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []float64{0.9, 0.7, 0.6, 0.5}
	if len(hist) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(hist))
	}
	for i, e := range hist {
		if e.PaymentEfficiency != want[i] {
			t.Errorf("event %d: expected efficiency %v, got %v", i, want[i], e.PaymentEfficiency)
		}
	}
	if s.Records(ctx) != 4 || s.Entities(ctx) != 1 {
		t.Errorf("unexpected totals: records=%d entities=%d", s.Records(ctx), s.Entities(ctx))
	}
}

func TestHistoryStore_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Append(ctx, event("acme", 1, 0.8)); err != nil {
		t.Fatalf("append: %v", err)
	}

	hist, _ := s.History(ctx, "acme")
	hist[0].PaymentEfficiency = 0

	again, _ := s.History(ctx, "acme")
	if again[0].PaymentEfficiency != 0.8 {
		t.Errorf("stored history was mutated through a returned slice")
	}
}

func TestHistoryStore_AppendManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	batch := []model.PaymentEvent{
		event("", 1, 0.9),
		event("", 2, 0.8),
		event("", 3, math.NaN()),
	}
	err := s.AppendMany(ctx, "acme", batch)
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if n := s.Count(ctx, "acme"); n != 0 {
		t.Fatalf("a rejected batch must store nothing, got %d events", n)
	}

	if err := s.AppendMany(ctx, "acme", batch[:2]); err != nil {
		t.Fatalf("append many: %v", err)
	}
	hist, _ := s.History(ctx, "acme")
	if len(hist) != 2 || hist[0].EntityID != "acme" {
		t.Errorf("expected two events attributed to acme, got %+v", hist)
	}
}

func TestHistoryStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	cases := map[string]struct {
		entity string
		event  model.PaymentEvent
		want   error
	}{
		"missing entity":      {"", event("", 1, 0.5), ErrInvalidEntity},
		"foreign entity":      {"acme", event("other", 1, 0.5), ErrInvalidEvent},
		"missing date":        {"acme", model.PaymentEvent{EntityID: "acme", PaymentEfficiency: 0.5}, ErrInvalidEvent},
		"efficiency too high": {"acme", event("acme", 1, 1.5), ErrInvalidEvent},
		"infinite amount":     {"acme", model.PaymentEvent{EntityID: "acme", EventDate: base, InvoiceAmount: math.Inf(1)}, ErrInvalidEvent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := s.AppendMany(ctx, tc.entity, []model.PaymentEvent{tc.event})
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestHistoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := NewHistoryStore(ctx)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := s.Append(ctx, event("acme", 1, 0.5)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := s.History(ctx, "acme"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestHistoryStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, WithShardCount(4), WithMetricsUpdateInterval(time.Millisecond))

	const entities, perEntity = 20, 50
	var wg sync.WaitGroup
	for e := 0; e < entities; e++ {
		for i := 0; i < perEntity; i++ {
			wg.Add(1)
			go func(id string, day int) {
				defer wg.Done()
				if err := s.Append(ctx, event(id, day, 0.5)); err != nil {
					t.Errorf("append: %v", err)
				}
				_, _ = s.History(ctx, id)
			}("entity-"+strconv.Itoa(e), i)
		}
	}
	wg.Wait()

	if n := s.Entities(ctx); n != entities {
		t.Errorf("expected %d entities, got %d", entities, n)
	}
	if n := s.Records(ctx); n != entities*perEntity {
		t.Errorf("expected %d records, got %d", entities*perEntity, n)
	}
	hist, _ := s.History(ctx, "entity-3")
	for i := 1; i < len(hist); i++ {
		if hist[i].EventDate.Before(hist[i-1].EventDate) {
			t.Fatalf("history out of order at %d", i)
		}
	}
}
