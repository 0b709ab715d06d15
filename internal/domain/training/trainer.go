// Package training runs the end-to-end fit of the hybrid model: split,
// fit the feature transforms on the training partition, train with early
// stopping, evaluate on the held-out test partition and publish.
package training

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/paycast/internal/domain/encoding"
	"github.com/okian/paycast/internal/domain/features"
	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/internal/domain/nn"
	"github.com/okian/paycast/internal/domain/scaling"
	"github.com/okian/paycast/pkg/logger"
	"github.com/okian/paycast/pkg/metrics"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarises a finished run.
type Metrics struct {
	MAE          float64 `json:"mae"`
	RMSE         float64 `json:"rmse"`
	R2           float64 `json:"r2"`
	Epochs       int     `json:"epochs"`
	BestEpoch    int     `json:"best_epoch"`
	BestValLoss  float64 `json:"best_val_loss"`
	FinalLR      float64 `json:"final_learning_rate"`
	TrainRows    int     `json:"train_rows"`
	ValRows      int     `json:"val_rows"`
	TestRows     int     `json:"test_rows"`
	DurationSecs float64 `json:"duration_seconds"`
}

// EpochReport is the loss summary of one epoch.
type EpochReport struct {
	Epoch        int
	TrainLoss    float64
	ValLoss      float64
	LearningRate float64
}

// Result holds everything a successful run produced.
type Result struct {
	Model          *nn.Model
	Encoding       *encoding.Table
	Context        *features.ContextTable
	SequenceScaler *scaling.Robust
	StaticScaler   *scaling.Robust
	Metrics        Metrics
	History        []EpochReport
}

// Sink receives the result of a successful run. It is never called for a
// failed run.
type Sink interface {
	Publish(ctx context.Context, r *Result) error
}

// Trainer runs training jobs. It is not safe for concurrent Train calls;
// callers serialize runs.
type Trainer struct {
	cfg        Config
	logger     logger.Logger
	checkpoint string
	onEpoch    func(EpochReport)
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithConfig replaces the default hyperparameters.
func WithConfig(cfg Config) Option {
	return func(t *Trainer) { t.cfg = cfg }
}

// WithLogger sets the trainer's logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithCheckpointPath writes the best weights to path whenever validation
// loss improves.
func WithCheckpointPath(path string) Option {
	return func(t *Trainer) { t.checkpoint = path }
}

// WithEpochHook registers a callback invoked after every epoch.
func WithEpochHook(fn func(EpochReport)) Option {
	return func(t *Trainer) { t.onEpoch = fn }
}

// New constructs a Trainer.
func New(opts ...Option) *Trainer {
	t := &Trainer{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.Get()
	}
	return t
}

// Config returns the trainer's hyperparameters.
func (t *Trainer) Config() Config { return t.cfg }

type dataset struct {
	seq    [][]float64
	static [][]float64
	labels []float64
}

func (d dataset) size() int { return len(d.labels) }

// Train fits a model on rows and hands the result to sink. Any failure is
// returned as *model.TrainingFailure and sink is not called.
func (t *Trainer) Train(ctx context.Context, rows []model.HistoricalInvoice, sink Sink) (*Result, error) {
	start := time.Now()
	if err := t.cfg.Validate(); err != nil {
		return nil, &model.TrainingFailure{Stage: StageSplit, Err: err}
	}
	if len(rows) == 0 {
		return nil, &model.TrainingFailure{Stage: StageSplit, Err: model.ErrEmptyCorpus}
	}
	parts, err := split(len(rows), t.cfg.ValFraction, t.cfg.TestFraction, t.cfg.Seed)
	if err != nil {
		return nil, &model.TrainingFailure{Stage: StageSplit, Err: err}
	}

	res, train, val, test, err := t.prepare(rows, parts)
	if err != nil {
		return nil, &model.TrainingFailure{Stage: StageFeatures, Err: err}
	}
	t.logger.Info(ctx, "training started",
		logger.Int("train_rows", train.size()),
		logger.Int("val_rows", val.size()),
		logger.Int("test_rows", test.size()),
		logger.Int("epochs", t.cfg.Epochs))

	if err := t.fit(ctx, res, train, val); err != nil {
		return nil, err
	}

	if err := t.evaluate(res, test); err != nil {
		return nil, err
	}
	res.Metrics.TrainRows, res.Metrics.ValRows, res.Metrics.TestRows = train.size(), val.size(), test.size()
	res.Metrics.DurationSecs = time.Since(start).Seconds()

	if sink != nil {
		if err := sink.Publish(ctx, res); err != nil {
			return nil, &model.TrainingFailure{Stage: StagePublish, Epochs: res.Metrics.Epochs, Diagnostics: diagnostics(res), Err: err}
		}
	}
	t.logger.Info(ctx, "training finished",
		logger.Float64("mae", res.Metrics.MAE),
		logger.Float64("rmse", res.Metrics.RMSE),
		logger.Float64("r2", res.Metrics.R2),
		logger.Int("epochs", res.Metrics.Epochs),
		logger.Int("best_epoch", res.Metrics.BestEpoch))
	return res, nil
}

// prepare fits every transform on the training partition and returns the
// scaled datasets.
func (t *Trainer) prepare(rows []model.HistoricalInvoice, p partitions) (*Result, dataset, dataset, dataset, error) {
	pick := func(idx []int) []model.HistoricalInvoice {
		return lo.Map(idx, func(i int, _ int) model.HistoricalInvoice { return rows[i] })
	}
	trainRows := pick(p.train)

	enc, err := encoding.Fit(trainRows)
	if err != nil {
		return nil, dataset{}, dataset{}, dataset{}, err
	}
	ctxTable := features.FitContext(trainRows)

	samples, err := features.BuildCorpus(rows, enc, ctxTable)
	if err != nil {
		return nil, dataset{}, dataset{}, dataset{}, err
	}
	trainSamples := lo.Map(p.train, func(i int, _ int) model.TrainingSample { return samples[i] })
	if err := features.FitImputer(trainSamples).ApplyAll(samples); err != nil {
		return nil, dataset{}, dataset{}, dataset{}, err
	}

	seqScaler, err := scaling.FitRobust(lo.Map(trainSamples, func(s model.TrainingSample, _ int) []float64 { return s.Sequence }))
	if err != nil {
		return nil, dataset{}, dataset{}, dataset{}, fmt.Errorf("sequence scaler: %w", err)
	}
	staticScaler, err := scaling.FitRobust(lo.Map(trainSamples, func(s model.TrainingSample, _ int) []float64 { return s.Static }))
	if err != nil {
		return nil, dataset{}, dataset{}, dataset{}, fmt.Errorf("static scaler: %w", err)
	}

	build := func(idx []int) (dataset, error) {
		picked := lo.Map(idx, func(i int, _ int) model.TrainingSample { return samples[i] })
		seq, err := seqScaler.TransformAll(lo.Map(picked, func(s model.TrainingSample, _ int) []float64 { return s.Sequence }))
		if err != nil {
			return dataset{}, fmt.Errorf("sequence: %w", err)
		}
		static, err := staticScaler.TransformAll(lo.Map(picked, func(s model.TrainingSample, _ int) []float64 { return s.Static }))
		if err != nil {
			return dataset{}, fmt.Errorf("static: %w", err)
		}
		return dataset{
			seq:    seq,
			static: static,
			labels: lo.Map(picked, func(s model.TrainingSample, _ int) float64 { return s.Label }),
		}, nil
	}
	train, err := build(p.train)
	if err != nil {
		return nil, train, dataset{}, dataset{}, err
	}
	val, err := build(p.val)
	if err != nil {
		return nil, train, val, dataset{}, err
	}
	test, err := build(p.test)
	if err != nil {
		return nil, train, val, test, err
	}

	m, err := nn.NewHybrid(t.cfg.Architecture)
	if err != nil {
		return nil, train, val, test, err
	}
	return &Result{
		Model:          m,
		Encoding:       enc,
		Context:        ctxTable,
		SequenceScaler: seqScaler,
		StaticScaler:   staticScaler,
	}, train, val, test, nil
}

// fit runs the epoch loop with early stopping and a plateau schedule, then
// restores the best validation weights.
func (t *Trainer) fit(ctx context.Context, res *Result, train, val dataset) error {
	cfg := t.cfg
	opt := nn.NewAdam(cfg.LearningRate)
	rng := rand.New(rand.NewSource(cfg.Seed + 1))

	best := math.Inf(1)
	bestWeights := res.Model.Weights()
	bestEpoch, sinceBest, sinceLR := 0, 0, 0
	var last EpochReport

	fail := func(epochs int, err error) error {
		return &model.TrainingFailure{
			Stage:  StageFit,
			Epochs: epochs,
			Diagnostics: map[string]float64{
				"last_train_loss": last.TrainLoss,
				"last_val_loss":   last.ValLoss,
				"best_val_loss":   best,
				"learning_rate":   opt.LearningRate,
			},
			Err: err,
		}
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		order := rng.Perm(train.size())
		var total float64
		var batches int
		for from := 0; from < len(order); from += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return fail(epoch-1, err)
			}
			to := min(from+cfg.BatchSize, len(order))
			seq, static, labels := slice(train, order[from:to])
			loss, err := res.Model.TrainBatch(seq, static, labels, opt)
			if err != nil {
				last.TrainLoss = loss
				return fail(epoch-1, err)
			}
			total += loss
			batches++
		}
		valLoss, _, err := res.Model.Evaluate(val.seq, val.static, val.labels)
		if err != nil {
			return fail(epoch-1, err)
		}
		last = EpochReport{Epoch: epoch, TrainLoss: total / float64(batches), ValLoss: valLoss, LearningRate: opt.LearningRate}
		res.History = append(res.History, last)
		metrics.RecordTrainingEpoch(last.TrainLoss, last.ValLoss)
		if t.onEpoch != nil {
			t.onEpoch(last)
		}
		if math.IsNaN(valLoss) || math.IsInf(valLoss, 0) {
			return fail(epoch, nn.ErrNonFinite)
		}
		t.logger.Debug(ctx, "epoch finished",
			logger.Int("epoch", epoch),
			logger.Float64("loss", last.TrainLoss),
			logger.Float64("val_loss", valLoss),
			logger.Float64("lr", opt.LearningRate))

		if valLoss < best {
			best, bestEpoch = valLoss, epoch
			bestWeights = res.Model.Weights()
			sinceBest, sinceLR = 0, 0
			t.saveCheckpoint(ctx, bestWeights)
		} else {
			sinceBest++
			sinceLR++
		}
		if sinceLR >= cfg.LRPatience && opt.LearningRate > cfg.MinLR {
			opt.LearningRate = math.Max(opt.LearningRate*cfg.LRFactor, cfg.MinLR)
			sinceLR = 0
			t.logger.Debug(ctx, "reducing learning rate", logger.Float64("lr", opt.LearningRate))
		}
		res.Metrics.Epochs = epoch
		if sinceBest >= cfg.Patience {
			t.logger.Info(ctx, "early stopping", logger.Int("epoch", epoch), logger.Int("best_epoch", bestEpoch))
			break
		}
	}

	if err := res.Model.SetWeights(bestWeights); err != nil {
		return fail(res.Metrics.Epochs, err)
	}
	res.Metrics.BestEpoch = bestEpoch
	res.Metrics.BestValLoss = best
	res.Metrics.FinalLR = opt.LearningRate
	return nil
}

// evaluate scores the restored model on the test partition.
func (t *Trainer) evaluate(res *Result, test dataset) error {
	pred, err := res.Model.Predict(test.seq, test.static)
	if err != nil {
		return &model.TrainingFailure{Stage: StageEvaluate, Epochs: res.Metrics.Epochs, Err: err}
	}
	var absSum, sqSum float64
	for i, p := range pred {
		d := p - test.labels[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(pred))
	res.Metrics.MAE = absSum / n
	res.Metrics.RMSE = math.Sqrt(sqSum / n)
	res.Metrics.R2 = stat.RSquaredFrom(pred, test.labels, nil)

	m := res.Metrics
	switch {
	case math.IsNaN(m.MAE) || math.IsInf(m.MAE, 0) || math.IsNaN(m.R2):
		err = nn.ErrNonFinite
	case m.R2 < t.cfg.MinR2:
		err = fmt.Errorf("r2 %.4f below %.4f: %w", m.R2, t.cfg.MinR2, ErrBelowThreshold)
	case t.cfg.MaxMAE > 0 && m.MAE > t.cfg.MaxMAE:
		err = fmt.Errorf("mae %.4f above %.4f: %w", m.MAE, t.cfg.MaxMAE, ErrBelowThreshold)
	}
	if err != nil {
		return &model.TrainingFailure{Stage: StageEvaluate, Epochs: m.Epochs, Diagnostics: diagnostics(res), Err: err}
	}
	return nil
}

func (t *Trainer) saveCheckpoint(ctx context.Context, w map[string]nn.Matrix) {
	if t.checkpoint == "" {
		return
	}
	raw, err := json.Marshal(w)
	if err == nil {
		tmp := t.checkpoint + ".tmp"
		if err = os.MkdirAll(filepath.Dir(t.checkpoint), 0o755); err == nil {
			if err = os.WriteFile(tmp, raw, 0o644); err == nil {
				err = os.Rename(tmp, t.checkpoint)
			}
		}
	}
	if err != nil {
		t.logger.Warn(ctx, "failed to write checkpoint", logger.String("path", t.checkpoint), logger.Error(err))
	}
}

func diagnostics(res *Result) map[string]float64 {
	return map[string]float64{
		"mae":           res.Metrics.MAE,
		"rmse":          res.Metrics.RMSE,
		"r2":            res.Metrics.R2,
		"best_val_loss": res.Metrics.BestValLoss,
		"best_epoch":    float64(res.Metrics.BestEpoch),
	}
}

func slice(d dataset, idx []int) ([][]float64, [][]float64, []float64) {
	seq := make([][]float64, len(idx))
	static := make([][]float64, len(idx))
	labels := make([]float64, len(idx))
	for k, i := range idx {
		seq[k], static[k], labels[k] = d.seq[i], d.static[i], d.labels[i]
	}
	return seq, static, labels
}
