package training

import (
	"fmt"

	"github.com/okian/paycast/internal/domain/features"
	"github.com/okian/paycast/internal/domain/nn"
)

// Config holds the hyperparameters of one training run.
type Config struct {
	Epochs       int
	BatchSize    int
	LearningRate float64

	// Early stopping and plateau schedule, in epochs.
	Patience   int
	LRPatience int
	LRFactor   float64
	MinLR      float64

	Seed         int64
	ValFraction  float64
	TestFraction float64

	// MinR2 is the lowest acceptable test R². MaxMAE, when positive, is the
	// highest acceptable test MAE in days.
	MinR2  float64
	MaxMAE float64

	Architecture nn.Architecture
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{
		Epochs:       100,
		BatchSize:    32,
		LearningRate: nn.DefaultLearningRate,
		Patience:     15,
		LRPatience:   8,
		LRFactor:     0.7,
		MinLR:        1e-6,
		Seed:         42,
		ValFraction:  0.15,
		TestFraction: 0.15,
		MinR2:        -1,
		Architecture: nn.DefaultArchitecture(features.SequenceSize, features.StaticSize),
	}
}

// Validate checks the config for values that cannot run.
func (c Config) Validate() error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %v", c.LearningRate)
	case c.LRFactor <= 0 || c.LRFactor >= 1:
		return fmt.Errorf("lr factor must be in (0, 1), got %v", c.LRFactor)
	case c.ValFraction <= 0 || c.TestFraction <= 0 || c.ValFraction+c.TestFraction >= 1:
		return fmt.Errorf("invalid split fractions %v/%v", c.ValFraction, c.TestFraction)
	case c.Architecture.SequenceWidth != features.SequenceSize || c.Architecture.StaticWidth != features.StaticSize:
		return fmt.Errorf("architecture widths %d/%d do not match features %d/%d",
			c.Architecture.SequenceWidth, c.Architecture.StaticWidth, features.SequenceSize, features.StaticSize)
	}
	return c.Architecture.Validate()
}
