// Package config defines service configuration and its defaults.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Config contains process configuration. Keys are flat and lower-case so
// PAYCAST_TRAINING_EPOCHS maps onto training_epochs.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ArtifactDir holds bundle.json.
	ArtifactDir string `koanf:"artifact_dir"`
	// LoadOnStart restores the stored bundle when the service starts.
	LoadOnStart bool `koanf:"load_on_start"`

	// QueueSize bounds the settlement queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of settlement workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the remembered settlement invoice ids.
	DedupeSize int `koanf:"dedupe_size"`
	// ShardCount configures the number of history store shards.
	ShardCount int `koanf:"shard_count"`

	MaxForecastInvoices int     `koanf:"max_forecast_invoices"`
	ForecastParallelism int     `koanf:"forecast_parallelism"`
	ConfidenceNoise     float64 `koanf:"confidence_noise"`

	TrainingEpochs       int     `koanf:"training_epochs"`
	TrainingBatchSize    int     `koanf:"training_batch_size"`
	TrainingLearningRate float64 `koanf:"training_learning_rate"`
	TrainingPatience     int     `koanf:"training_patience"`
	TrainingLRPatience   int     `koanf:"training_lr_patience"`
	TrainingLRFactor     float64 `koanf:"training_lr_factor"`
	TrainingMinLR        float64 `koanf:"training_min_lr"`
	TrainingSeed         int64   `koanf:"training_seed"`
	TrainingValFraction  float64 `koanf:"training_val_fraction"`
	TrainingTestFraction float64 `koanf:"training_test_fraction"`
	// TrainingMinR2 and TrainingMaxMAE gate publication; a zero MaxMAE
	// disables the MAE gate.
	TrainingMinR2  float64 `koanf:"training_min_r2"`
	TrainingMaxMAE float64 `koanf:"training_max_mae"`

	// Synthetic corpus used by POST /train.
	CorpusCustomers int   `koanf:"corpus_customers"`
	CorpusInvoices  int   `koanf:"corpus_invoices"`
	CorpusSeed      int64 `koanf:"corpus_seed"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		ArtifactDir:          "artifacts",
		LoadOnStart:          true,
		QueueSize:            10_000,
		WorkerCount:          runtime.NumCPU(),
		DedupeSize:           100_000,
		ShardCount:           64,
		MaxForecastInvoices:  1000,
		ForecastParallelism:  runtime.NumCPU(),
		ConfidenceNoise:      0.05,
		TrainingEpochs:       100,
		TrainingBatchSize:    32,
		TrainingLearningRate: 0.001,
		TrainingPatience:     15,
		TrainingLRPatience:   8,
		TrainingLRFactor:     0.7,
		TrainingMinLR:        1e-6,
		TrainingSeed:         42,
		TrainingValFraction:  0.15,
		TrainingTestFraction: 0.15,
		TrainingMinR2:        -1,
		CorpusCustomers:      200,
		CorpusInvoices:       4000,
		CorpusSeed:           42,
	}
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var problem string
	switch {
	case strings.TrimSpace(c.Addr) == "":
		problem = "addr must not be empty"
	case strings.TrimSpace(c.ArtifactDir) == "":
		problem = "artifact_dir must not be empty"
	case c.LogFormat != "text" && c.LogFormat != "json":
		problem = fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat)
	case c.QueueSize <= 0:
		problem = "queue_size must be positive"
	case c.WorkerCount < 0:
		problem = "worker_count must not be negative"
	case c.ShardCount <= 0:
		problem = "shard_count must be positive"
	case c.MaxForecastInvoices <= 0:
		problem = "max_forecast_invoices must be positive"
	case c.ForecastParallelism < 0:
		problem = "forecast_parallelism must not be negative"
	case c.ConfidenceNoise < 0:
		problem = "confidence_noise must not be negative"
	case c.TrainingEpochs <= 0 || c.TrainingBatchSize <= 0:
		problem = "training_epochs and training_batch_size must be positive"
	case c.TrainingLearningRate <= 0:
		problem = "training_learning_rate must be positive"
	case c.TrainingValFraction <= 0 || c.TrainingTestFraction <= 0 || c.TrainingValFraction+c.TrainingTestFraction >= 1:
		problem = "training_val_fraction and training_test_fraction must be positive and sum below 1"
	case c.TrainingMaxMAE < 0:
		problem = "training_max_mae must not be negative"
	case c.CorpusCustomers <= 0 || c.CorpusInvoices <= 0:
		problem = "corpus_customers and corpus_invoices must be positive"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, problem)
}
