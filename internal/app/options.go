package service

import (
	"context"
	"time"

	"github.com/okian/paycast/internal/config"
	"github.com/okian/paycast/internal/domain/inference"
	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/internal/domain/training"
	"github.com/okian/paycast/internal/synthetic"
	"github.com/okian/paycast/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// CorpusSource produces the rows a training run fits on.
type CorpusSource func(ctx context.Context) ([]model.HistoricalInvoice, error)

// WithWorkerCount sets the number of settlement workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the settlement queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many settlement invoice ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the number of history store shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithArtifactDir sets where bundle.json lives.
func WithArtifactDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.artifactDir = dir
		}
	}
}

// WithLoadOnStart controls whether Start restores the stored bundle.
func WithLoadOnStart(load bool) Option {
	return func(s *Service) { s.loadOnStart = load }
}

// WithTrainingConfig sets the hyperparameters used by Train.
func WithTrainingConfig(cfg training.Config) Option {
	return func(s *Service) { s.trainingCfg = cfg }
}

// WithCorpusConfig sets the synthetic corpus shape used by Train.
func WithCorpusConfig(cfg synthetic.Config) Option {
	return func(s *Service) {
		s.corpus = func(ctx context.Context) ([]model.HistoricalInvoice, error) {
			return synthetic.Generate(ctx, cfg)
		}
	}
}

// WithCorpusSource replaces the corpus Train fits on.
func WithCorpusSource(src CorpusSource) Option {
	return func(s *Service) {
		if src != nil {
			s.corpus = src
		}
	}
}

// WithInferenceOptions passes options through to the inference service.
func WithInferenceOptions(opts ...inference.Option) Option {
	return func(s *Service) { s.inferenceOpts = append(s.inferenceOpts, opts...) }
}

// WithClock sets the time source for inference and demo seeding.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// TrainingConfig derives trainer hyperparameters from process configuration.
func TrainingConfig(cfg *config.Config) training.Config {
	tc := training.DefaultConfig()
	tc.Epochs = cfg.TrainingEpochs
	tc.BatchSize = cfg.TrainingBatchSize
	tc.LearningRate = cfg.TrainingLearningRate
	tc.Patience = cfg.TrainingPatience
	tc.LRPatience = cfg.TrainingLRPatience
	tc.LRFactor = cfg.TrainingLRFactor
	tc.MinLR = cfg.TrainingMinLR
	tc.Seed = cfg.TrainingSeed
	tc.ValFraction = cfg.TrainingValFraction
	tc.TestFraction = cfg.TrainingTestFraction
	tc.MinR2 = cfg.TrainingMinR2
	tc.MaxMAE = cfg.TrainingMaxMAE
	return tc
}

// CorpusConfig derives the synthetic corpus shape from process configuration.
func CorpusConfig(cfg *config.Config) synthetic.Config {
	return synthetic.Config{
		Customers: cfg.CorpusCustomers,
		Invoices:  cfg.CorpusInvoices,
		Seed:      cfg.CorpusSeed,
		Year:      synthetic.DefaultYear,
	}
}

// FromConfig maps process configuration onto service options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithShardCount(cfg.ShardCount),
		WithArtifactDir(cfg.ArtifactDir),
		WithLoadOnStart(cfg.LoadOnStart),
		WithTrainingConfig(TrainingConfig(cfg)),
		WithCorpusConfig(CorpusConfig(cfg)),
		WithInferenceOptions(
			inference.WithMaxForecastInvoices(cfg.MaxForecastInvoices),
			inference.WithForecastParallelism(cfg.ForecastParallelism),
			inference.WithConfidenceNoise(cfg.ConfidenceNoise),
		),
	}
}
