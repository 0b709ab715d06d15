// Package inference scores invoices against the currently served model
// and derives risk and confidence from the prediction.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/okian/paycast/internal/domain/behavior"
	"github.com/okian/paycast/internal/domain/encoding"
	"github.com/okian/paycast/internal/domain/features"
	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/internal/domain/scaling"
	"github.com/okian/paycast/pkg/logger"
	"github.com/okian/paycast/pkg/metrics"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Defaults for Service options.
const (
	DefaultConfidenceNoise = 0.05
	DefaultMaxForecast     = 1000

	dayHours = 24 * time.Hour
)

// Regressor produces raw predictions from scaled vectors.
type Regressor interface {
	Predict(seq, static [][]float64) ([]float64, error)
}

// Pipeline is one immutable set of fitted transforms and the model they
// were fit with. Inference uses a single Pipeline for a whole request.
type Pipeline struct {
	Version        string
	Model          Regressor
	SequenceScaler *scaling.Robust
	StaticScaler   *scaling.Robust
	Encoding       *encoding.Table
	Context        *features.ContextTable
}

// Source returns the currently served pipeline, or nil when none is loaded.
type Source interface {
	Pipeline() *Pipeline
}

// HistoryReader returns an entity's ordered payment history.
type HistoryReader interface {
	History(ctx context.Context, entityID string) ([]model.PaymentEvent, error)
}

// Prediction is the scored outcome for one invoice.
type Prediction struct {
	InvoiceID           string    `json:"invoice_id,omitempty"`
	EntityID            string    `json:"entity_id"`
	Amount              float64   `json:"amount"`
	PredictedDays       float64   `json:"predicted_days_to_payment"`
	RiskLevel           RiskLevel `json:"risk_level"`
	Confidence          float64   `json:"confidence_score"`
	DelayRatio          float64   `json:"delay_ratio"`
	HistoryRecords      int       `json:"history_records"`
	ExpectedPaymentDate time.Time `json:"expected_payment_date"`
	ModelVersion        string    `json:"model_version"`
}

// Forecast aggregates predictions over a batch of invoices.
type Forecast struct {
	Predictions      []Prediction      `json:"predictions"`
	TotalAmount      float64           `json:"total_amount"`
	InvoiceCount     int               `json:"invoice_count"`
	AverageDays      float64           `json:"average_predicted_days"`
	RiskDistribution map[RiskLevel]int `json:"risk_distribution"`
	GeneratedAt      time.Time         `json:"generated_at"`
}

// CustomerRisk is the behavioral risk assessment of one entity.
type CustomerRisk struct {
	EntityID           string    `json:"entity_id"`
	RiskLevel          RiskLevel `json:"risk_level"`
	RiskScore          float64   `json:"risk_score"`
	AverageDelayDays   float64   `json:"average_delay_days"`
	PaymentReliability float64   `json:"payment_reliability"`
	HistoryRecords     int       `json:"history_records"`
	Efficiency         float64   `json:"efficiency"`
	Consistency        float64   `json:"consistency"`
	Trend              float64   `json:"trend"`
}

// Service answers prediction, forecast and customer-risk queries.
type Service struct {
	source  Source
	history HistoryReader
	logger  logger.Logger

	now         func() time.Time
	noise       float64
	parallelism int
	maxForecast int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandSource sets the source of confidence noise.
func WithRandSource(src rand.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.rng = rand.New(src)
		}
	}
}

// WithConfidenceNoise sets the half-width of the uniform confidence noise.
func WithConfidenceNoise(width float64) Option {
	return func(s *Service) {
		if width >= 0 {
			s.noise = width
		}
	}
}

// WithForecastParallelism bounds how many forecast invoices are scored at once.
func WithForecastParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithMaxForecastInvoices bounds the size of one forecast request.
func WithMaxForecastInvoices(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxForecast = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires an inference service.
func NewService(source Source, history HistoryReader, opts ...Option) *Service {
	s := &Service{
		source:      source,
		history:     history,
		now:         time.Now,
		noise:       DefaultConfidenceNoise,
		parallelism: runtime.NumCPU(),
		maxForecast: DefaultMaxForecast,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	return s
}

// Predict scores one invoice with the current pipeline.
func (s *Service) Predict(ctx context.Context, inv model.Invoice) (Prediction, error) {
	p := s.source.Pipeline()
	if p == nil {
		metrics.RecordPredictionError("not_ready")
		return Prediction{}, model.ErrNotReady
	}
	return s.predict(ctx, p, inv)
}

// Forecast scores every invoice against one pipeline snapshot, in
// parallel, and aggregates the results in input order.
func (s *Service) Forecast(ctx context.Context, invoices []model.Invoice) (Forecast, error) {
	if len(invoices) == 0 {
		return Forecast{}, &model.ValidationError{Field: "invoices", Reason: "no invoices provided"}
	}
	if len(invoices) > s.maxForecast {
		return Forecast{}, &model.ValidationError{Field: "invoices", Reason: fmt.Sprintf("at most %d invoices per forecast", s.maxForecast)}
	}
	p := s.source.Pipeline()
	if p == nil {
		metrics.RecordPredictionError("not_ready")
		return Forecast{}, model.ErrNotReady
	}

	preds := make([]Prediction, len(invoices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, inv := range invoices {
		g.Go(func() error {
			pred, err := s.predict(gctx, p, inv)
			if err != nil {
				return fmt.Errorf("invoice %d: %w", i, err)
			}
			preds[i] = pred
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Forecast{}, err
	}

	dist := make(map[RiskLevel]int, len(RiskLevels))
	for _, lvl := range RiskLevels {
		dist[lvl] = 0
	}
	for lvl, n := range lo.CountValuesBy(preds, func(p Prediction) RiskLevel { return p.RiskLevel }) {
		dist[lvl] = n
	}
	return Forecast{
		Predictions:      preds,
		TotalAmount:      lo.SumBy(preds, func(p Prediction) float64 { return p.Amount }),
		InvoiceCount:     len(preds),
		AverageDays:      lo.SumBy(preds, func(p Prediction) float64 { return p.PredictedDays }) / float64(len(preds)),
		RiskDistribution: dist,
		GeneratedAt:      s.now().UTC(),
	}, nil
}

// CustomerRisk assesses an entity from its payment behavior alone; it does
// not need a loaded model.
func (s *Service) CustomerRisk(ctx context.Context, entityID string) (CustomerRisk, error) {
	if entityID == "" {
		return CustomerRisk{}, &model.ValidationError{Field: "entity_id", Reason: "required"}
	}
	hist, err := s.history.History(ctx, entityID)
	if err != nil {
		return CustomerRisk{}, fmt.Errorf("load history: %w", err)
	}
	beh := behavior.Compute(hist, s.now())
	eff := beh.EfficiencyAllTime
	score := (1-eff)*70 + (1-beh.Consistency)*30
	return CustomerRisk{
		EntityID:           entityID,
		RiskLevel:          ClassifyScore(score),
		RiskScore:          score,
		AverageDelayDays:   (1 - eff) * 20,
		PaymentReliability: eff * 100,
		HistoryRecords:     len(hist),
		Efficiency:         eff,
		Consistency:        beh.Consistency,
		Trend:              beh.Trend,
	}, nil
}

func (s *Service) predict(ctx context.Context, p *Pipeline, inv model.Invoice) (Prediction, error) {
	start := time.Now()
	if err := validate(inv); err != nil {
		metrics.RecordPredictionError("validation")
		return Prediction{}, err
	}
	hist, err := s.history.History(ctx, inv.EntityID)
	if err != nil {
		metrics.RecordPredictionError("history")
		return Prediction{}, fmt.Errorf("load history: %w", err)
	}

	now := s.now()
	inv.IssueDate = features.Date(now)
	beh := behavior.Compute(hist, now)
	seq, static, err := features.Build(inv, beh, p.Encoding, p.Context)
	if err != nil {
		s.logFeatureError(ctx, inv.EntityID, err)
		metrics.RecordPredictionError("features")
		return Prediction{}, err
	}
	if seq, err = p.SequenceScaler.Transform(seq); err != nil {
		return Prediction{}, fmt.Errorf("scale sequence: %w", err)
	}
	if static, err = p.StaticScaler.Transform(static); err != nil {
		return Prediction{}, fmt.Errorf("scale static: %w", err)
	}
	out, err := p.Model.Predict([][]float64{seq}, [][]float64{static})
	if err != nil {
		metrics.RecordPredictionError("model")
		return Prediction{}, fmt.Errorf("model: %w", err)
	}

	days := math.Max(0, out[0])
	ratio := days / float64(inv.DueDays)
	risk := ClassifyDelay(ratio)
	metrics.RecordPrediction(string(risk), float64(time.Since(start).Microseconds())/1000)

	return Prediction{
		InvoiceID:           inv.ID,
		EntityID:            inv.EntityID,
		Amount:              inv.Amount,
		PredictedDays:       days,
		RiskLevel:           risk,
		Confidence:          Confidence(len(hist), s.sampleNoise()),
		DelayRatio:          ratio,
		HistoryRecords:      len(hist),
		ExpectedPaymentDate: now.Add(time.Duration(days * float64(dayHours))).UTC(),
		ModelVersion:        p.Version,
	}, nil
}

func (s *Service) sampleNoise() float64 {
	if s.noise == 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return (s.rng.Float64()*2 - 1) * s.noise
}

func (s *Service) logFeatureError(ctx context.Context, entityID string, err error) {
	fields := []logger.Field{logger.String("entity_id", entityID), logger.Error(err)}
	var fe *model.FeatureComputationError
	if errors.As(err, &fe) {
		fields = append(fields, logger.String("field", fe.Field))
	}
	s.logger.Warn(ctx, "feature computation failed", fields...)
}

func validate(inv model.Invoice) error {
	switch {
	case inv.EntityID == "":
		return &model.ValidationError{Field: "entity_id", Reason: "required"}
	case !(inv.Amount > 0) || math.IsInf(inv.Amount, 0):
		return &model.ValidationError{Field: "amount", Reason: "must be a positive number"}
	case inv.DueDays <= 0:
		return &model.ValidationError{Field: "due_days", Reason: "must be positive"}
	case inv.CreditScore < 0 || math.IsNaN(inv.CreditScore):
		return &model.ValidationError{Field: "credit_score", Reason: "must not be negative"}
	}
	return nil
}
