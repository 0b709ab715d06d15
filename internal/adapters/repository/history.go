package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/pkg/metrics"
)

// DefaultShardCount is the number of shards when none is configured.
const DefaultShardCount = 64

const defaultMetricsUpdateInterval = 5 * time.Second

type shard struct {
	mu      sync.RWMutex
	byID    map[string][]model.PaymentEvent
	records int
}

// HistoryStore is an in-memory Store sharded by entity hash. Appends to one
// entity are serialized by its shard lock; reads return copies.
type HistoryStore struct {
	shards                []*shard
	shardCount            int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

var _ Store = (*HistoryStore)(nil)

// NewHistoryStore constructs a store and starts its metrics updater, which
// runs until ctx is done or Close is called.
func NewHistoryStore(ctx context.Context, opts ...Option) *HistoryStore {
	s := &HistoryStore{
		shardCount:            DefaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{byID: make(map[string][]model.PaymentEvent)}
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *HistoryStore) shardFor(entityID string) *shard {
	return s.shards[xxhash.Sum64String(entityID)%uint64(len(s.shards))]
}

// Append implements Store.Append.
func (s *HistoryStore) Append(ctx context.Context, e model.PaymentEvent) error {
	return s.AppendMany(ctx, e.EntityID, []model.PaymentEvent{e})
}

// AppendMany implements Store.AppendMany. Events with an empty EntityID are
// attributed to entityID.
func (s *HistoryStore) AppendMany(ctx context.Context, entityID string, events []model.PaymentEvent) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	if entityID == "" {
		return ErrInvalidEntity
	}
	batch := make([]model.PaymentEvent, len(events))
	for i, e := range events {
		if e.EntityID == "" {
			e.EntityID = entityID
		}
		if err := validate(entityID, e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		batch[i] = e
	}
	if len(batch) == 0 {
		return nil
	}

	sh := s.shardFor(entityID)
	sh.mu.Lock()
	hist := sh.byID[entityID]
	for _, e := range batch {
		hist = insertOrdered(hist, e)
	}
	sh.byID[entityID] = hist
	sh.records += len(batch)
	sh.mu.Unlock()

	metrics.RecordHistoryAppend(len(batch))
	return nil
}

// History implements Store.History.
func (s *HistoryStore) History(ctx context.Context, entityID string) ([]model.PaymentEvent, error) {
	start := time.Now()
	defer func() {
		metrics.RecordHistoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := s.alive(ctx); err != nil {
		return nil, err
	}
	sh := s.shardFor(entityID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	hist := sh.byID[entityID]
	out := make([]model.PaymentEvent, len(hist))
	copy(out, hist)
	return out, nil
}

// Count implements Store.Count.
func (s *HistoryStore) Count(_ context.Context, entityID string) int {
	sh := s.shardFor(entityID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.byID[entityID])
}

// Entities implements Store.Entities.
func (s *HistoryStore) Entities(_ context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.byID)
		sh.mu.RUnlock()
	}
	return n
}

// Records returns the number of events across all entities.
func (s *HistoryStore) Records(_ context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += sh.records
		sh.mu.RUnlock()
	}
	return n
}

// Close stops the background metrics updater.
func (s *HistoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *HistoryStore) alive(ctx context.Context) error {
	select {
	case <-s.stopChan:
		return ErrClosed
	default:
	}
	return ctx.Err()
}

// insertOrdered places e after every event with the same or earlier date,
// so equal timestamps keep arrival order.
func insertOrdered(hist []model.PaymentEvent, e model.PaymentEvent) []model.PaymentEvent {
	i := sort.Search(len(hist), func(i int) bool { return hist[i].EventDate.After(e.EventDate) })
	hist = append(hist, model.PaymentEvent{})
	copy(hist[i+1:], hist[i:])
	hist[i] = e
	return hist
}

func validate(entityID string, e model.PaymentEvent) error {
	switch {
	case e.EntityID != entityID:
		return fmt.Errorf("%w: entity %q in batch for %q", ErrInvalidEvent, e.EntityID, entityID)
	case e.EventDate.IsZero():
		return fmt.Errorf("%w: missing event date", ErrInvalidEvent)
	case !finite(e.InvoiceAmount) || !finite(e.DaysToPayment) || !finite(e.PaymentEfficiency):
		return fmt.Errorf("%w: non-finite value", ErrInvalidEvent)
	case e.PaymentEfficiency < 0 || e.PaymentEfficiency > 1:
		return fmt.Errorf("%w: efficiency %v outside [0, 1]", ErrInvalidEvent, e.PaymentEfficiency)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *HistoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *HistoryStore) updateMetrics() {
	entities, records := 0, 0
	for i, sh := range s.shards {
		sh.mu.RLock()
		n, r := len(sh.byID), sh.records
		sh.mu.RUnlock()
		entities += n
		records += r
		metrics.UpdateHistoryShardRecords("shard_"+strconv.Itoa(i), r)
	}
	metrics.UpdateHistoryEntities(entities)
	metrics.UpdateHistoryRecords(records)
}
