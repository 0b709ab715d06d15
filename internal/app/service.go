// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/okian/paycast/internal/adapters/artifact"
	"github.com/okian/paycast/internal/adapters/mq/queue"
	"github.com/okian/paycast/internal/adapters/mq/worker"
	"github.com/okian/paycast/internal/adapters/repository"
	"github.com/okian/paycast/internal/domain/dedupe"
	"github.com/okian/paycast/internal/domain/inference"
	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/internal/domain/training"
	"github.com/okian/paycast/internal/domain/types"
	"github.com/okian/paycast/internal/synthetic"
	"github.com/okian/paycast/pkg/logger"
	"github.com/okian/paycast/pkg/metrics"
)

// components are the pieces built by Start and torn down by Stop.
type components struct {
	ctx    context.Context
	cancel context.CancelFunc

	history   *repository.HistoryStore
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	registry  *artifact.Registry
	store     *artifact.FileStore
	publisher *artifact.Publisher
	inference *inference.Service
}

// Service wires history, settlement ingestion, training and inference
// together for the HTTP API.
type Service struct {
	mu sync.RWMutex
	c  *components

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	shardCount    int
	artifactDir   string
	loadOnStart   bool
	trainingCfg   training.Config
	corpus        CorpusSource
	inferenceOpts []inference.Option
	now           func() time.Time

	// Training runs one at a time on a background goroutine.
	trainSem *semaphore.Weighted
	trainWG  sync.WaitGroup
	statusMu sync.RWMutex
	status   types.TrainingStatus

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   10_000,
		dedupeSize:  100_000,
		shardCount:  repository.DefaultShardCount,
		artifactDir: "artifacts",
		loadOnStart: true,
		trainingCfg: training.DefaultConfig(),
		now:         time.Now,
		trainSem:    semaphore.NewWeighted(1),
		status:      types.TrainingStatus{State: types.TrainingIdle},
	}
	s.corpus = func(ctx context.Context) ([]model.HistoricalInvoice, error) {
		return synthetic.Generate(ctx, synthetic.DefaultConfig())
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds every component, starts the settlement workers and, when
// configured, serves the stored bundle. A missing or unreadable bundle
// leaves the service running but not ready to predict.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting paycast service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &components{ctx: runCtx, cancel: cancel}
	c.history = repository.NewHistoryStore(runCtx, repository.WithShardCount(s.shardCount))
	c.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	c.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	c.pool = worker.NewPool(s.workerCount, c.queue, c.history,
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithFailureHandler(func(ctx context.Context, m queue.Message, _ error) {
			// Let the caller resend a settlement that was never applied.
			c.deduper.Unrecord(ctx, m.InvoiceID)
		}),
	)
	c.pool.Start(runCtx)

	c.registry = artifact.NewRegistry()
	c.store = artifact.NewFileStore(s.artifactDir, artifact.WithStoreLogger(s.logger.Named("artifact")))
	c.publisher = artifact.NewPublisher(c.store, c.registry, s.logger.Named("artifact"))
	iopts := append([]inference.Option{
		inference.WithClock(s.now),
		inference.WithLogger(s.logger.Named("inference")),
	}, s.inferenceOpts...)
	c.inference = inference.NewService(c.registry, c.history, iopts...)

	metrics.UpdateBundleLoaded(false)
	if s.loadOnStart {
		s.restore(ctx, c)
	}

	s.c = c
	s.logger.Info(ctx, "paycast service started",
		logger.Int("workers", c.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("shards", s.shardCount),
		logger.String("artifactDir", s.artifactDir),
	)
	return nil
}

func (s *Service) restore(ctx context.Context, c *components) {
	snap, err := c.publisher.Restore(ctx)
	switch {
	case errors.Is(err, artifact.ErrNoBundle):
		s.logger.Info(ctx, "no stored bundle, train to enable predictions", logger.String("path", c.store.Path()))
	case err != nil:
		s.logger.Error(ctx, "stored bundle not loaded", logger.String("path", c.store.Path()), logger.Error(err))
	default:
		s.logger.Info(ctx, "stored bundle loaded", logger.String("version", snap.Bundle.Version))
	}
}

// Stop drains the settlement queue, cancels any training run and waits
// for it, then closes the history store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	s.logger.Info(ctx, "stopping paycast service...")

	var errs []error
	if err := c.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	c.cancel()
	s.trainWG.Wait()
	if err := c.history.Close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info(ctx, "paycast service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() (*components, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return nil, ErrNotStarted
	}
	return s.c, nil
}

// Predict scores one invoice against the served bundle.
func (s *Service) Predict(ctx context.Context, inv model.Invoice) (inference.Prediction, error) {
	c, err := s.running()
	if err != nil {
		return inference.Prediction{}, err
	}
	return c.inference.Predict(ctx, inv)
}

// Forecast scores a batch of invoices against one bundle snapshot.
func (s *Service) Forecast(ctx context.Context, invoices []model.Invoice) (inference.Forecast, error) {
	c, err := s.running()
	if err != nil {
		return inference.Forecast{}, err
	}
	return c.inference.Forecast(ctx, invoices)
}

// CustomerRisk assesses an entity from its payment history.
func (s *Service) CustomerRisk(ctx context.Context, entityID string) (inference.CustomerRisk, error) {
	c, err := s.running()
	if err != nil {
		return inference.CustomerRisk{}, err
	}
	return c.inference.CustomerRisk(ctx, entityID)
}

// History returns an entity's payment history ordered by event date.
func (s *Service) History(ctx context.Context, entityID string) ([]model.PaymentEvent, error) {
	c, err := s.running()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(entityID) == "" {
		return nil, &model.ValidationError{Field: "entity_id", Reason: "required"}
	}
	return c.history.History(ctx, entityID)
}

// RecordSettlement queues a settled invoice for the history store. It
// reports duplicate when the invoice id was already accepted; duplicates
// are dropped.
func (s *Service) RecordSettlement(ctx context.Context, st model.Settlement) (duplicate bool, err error) {
	c, err := s.running()
	if err != nil {
		return false, err
	}
	if err := validateSettlement(st); err != nil {
		return false, err
	}

	if c.deduper.SeenAndRecord(ctx, st.InvoiceID) {
		metrics.RecordSettlementDuplicate()
		s.logger.Debug(ctx, "duplicate settlement skipped",
			logger.String("invoice_id", st.InvoiceID),
			logger.String("entity_id", st.Event.EntityID))
		return true, nil
	}
	if err := c.queue.Enqueue(ctx, st); err != nil {
		c.deduper.Unrecord(ctx, st.InvoiceID)
		s.logger.Warn(ctx, "settlement not queued",
			logger.String("invoice_id", st.InvoiceID),
			logger.String("entity_id", st.Event.EntityID),
			logger.Error(err))
		return false, fmt.Errorf("%w: %w", model.ErrIngestionUnavailable, err)
	}
	metrics.RecordSettlementAccepted()
	return false, nil
}

func validateSettlement(st model.Settlement) error {
	e := st.Event
	switch {
	case strings.TrimSpace(st.InvoiceID) == "":
		return &model.ValidationError{Field: "invoice_id", Reason: "required"}
	case strings.TrimSpace(e.EntityID) == "":
		return &model.ValidationError{Field: "entity_id", Reason: "required"}
	case e.EventDate.IsZero():
		return &model.ValidationError{Field: "event_date", Reason: "required"}
	case math.IsNaN(e.InvoiceAmount) || math.IsInf(e.InvoiceAmount, 0) || e.InvoiceAmount < 0:
		return &model.ValidationError{Field: "invoice_amount", Reason: "must be a non-negative number"}
	case math.IsNaN(e.DaysToPayment) || math.IsInf(e.DaysToPayment, 0) || e.DaysToPayment < 0:
		return &model.ValidationError{Field: "days_to_payment", Reason: "must be a non-negative number"}
	case math.IsNaN(e.PaymentEfficiency) || e.PaymentEfficiency < 0 || e.PaymentEfficiency > 1:
		return &model.ValidationError{Field: "payment_efficiency", Reason: "must be within [0, 1]"}
	}
	return nil
}

// ModelInfo reports whether a bundle is served and which one.
func (s *Service) ModelInfo() types.ModelInfo {
	c, err := s.running()
	if err != nil {
		return types.ModelInfo{}
	}
	snap := c.registry.Current()
	if snap == nil {
		return types.ModelInfo{}
	}
	trained := snap.Bundle.Timestamp
	m := snap.Bundle.Metrics
	return types.ModelInfo{Loaded: true, Version: snap.Bundle.Version, TrainedAt: &trained, Metrics: &m}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     false,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"shardCount":  s.shardCount,
		"training":    s.TrainStatus().State,
	}

	c, err := s.running()
	if err != nil {
		return stats
	}
	queueLen := c.queue.Len(ctx)
	entities := c.history.Entities(ctx)
	records := c.history.Records(ctx)
	info := s.ModelInfo()

	stats["started"] = true
	stats["workerCount"] = c.pool.Size()
	stats["queueLength"] = queueLen
	stats["settlementsProcessed"] = c.pool.Processed()
	stats["dedupeEntries"] = c.deduper.Size()
	stats["entities"] = entities
	stats["historyRecords"] = records
	stats["modelLoaded"] = info.Loaded
	stats["modelVersion"] = info.Version

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateHistoryEntities(entities)
	metrics.UpdateHistoryRecords(records)
	return stats
}
