// Package artifact persists trained model bundles and serves the current
// one to concurrent readers.
package artifact

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/okian/paycast/internal/domain/encoding"
	"github.com/okian/paycast/internal/domain/features"
	"github.com/okian/paycast/internal/domain/inference"
	"github.com/okian/paycast/internal/domain/nn"
	"github.com/okian/paycast/internal/domain/scaling"
	"github.com/okian/paycast/internal/domain/training"
)

// SchemaVersion is bumped whenever the bundle layout changes.
const SchemaVersion = 1

// Bundle is everything inference needs, produced by one successful
// training run. Every field is required.
type Bundle struct {
	SchemaVersion        int                    `json:"schema_version"`
	Version              string                 `json:"version"`
	Timestamp            time.Time              `json:"timestamp"`
	Architecture         nn.Architecture        `json:"architecture"`
	Weights              map[string]nn.Matrix   `json:"weights"`
	SequenceScaler       *scaling.Robust        `json:"sequence_scaler"`
	StaticScaler         *scaling.Robust        `json:"static_scaler"`
	SequenceFeatureNames []string               `json:"sequence_feature_names"`
	StaticFeatureNames   []string               `json:"static_feature_names"`
	TargetEncoding       *encoding.Table        `json:"target_encoding"`
	Context              *features.ContextTable `json:"context"`
	Metrics              training.Metrics       `json:"metrics"`
}

// NewBundle assembles a fresh, uniquely versioned bundle from a run.
func NewBundle(res *training.Result) *Bundle {
	return &Bundle{
		SchemaVersion:        SchemaVersion,
		Version:              uuid.NewString(),
		Timestamp:            time.Now().UTC(),
		Architecture:         res.Model.Architecture(),
		Weights:              res.Model.Weights(),
		SequenceScaler:       res.SequenceScaler,
		StaticScaler:         res.StaticScaler,
		SequenceFeatureNames: slices.Clone(features.SequenceNames),
		StaticFeatureNames:   slices.Clone(features.StaticNames),
		TargetEncoding:       res.Encoding,
		Context:              res.Context,
		Metrics:              res.Metrics,
	}
}

// Validate checks field presence and that the recorded feature order
// matches both the architecture and the running feature pipeline.
func (b *Bundle) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidBundle, fmt.Sprintf(format, args...))
	}
	switch {
	case b == nil:
		return invalid("nil bundle")
	case b.SchemaVersion != SchemaVersion:
		return invalid("schema version %d, want %d", b.SchemaVersion, SchemaVersion)
	case b.Version == "" || b.Timestamp.IsZero():
		return invalid("missing version or timestamp")
	case len(b.Weights) == 0:
		return invalid("missing weights")
	case !b.SequenceScaler.Fitted() || !b.StaticScaler.Fitted():
		return invalid("missing scaler")
	case b.Context == nil:
		return invalid("missing context table")
	}
	if err := b.SequenceScaler.Validate(); err != nil {
		return invalid("sequence scaler: %v", err)
	}
	if err := b.StaticScaler.Validate(); err != nil {
		return invalid("static scaler: %v", err)
	}
	if err := b.TargetEncoding.Validate(); err != nil {
		return invalid("%v", err)
	}
	if n := len(b.SequenceFeatureNames); n != b.Architecture.SequenceWidth || n != b.SequenceScaler.Width() {
		return invalid("%d sequence names for width %d and scaler %d", n, b.Architecture.SequenceWidth, b.SequenceScaler.Width())
	}
	if n := len(b.StaticFeatureNames); n != b.Architecture.StaticWidth || n != b.StaticScaler.Width() {
		return invalid("%d static names for width %d and scaler %d", n, b.Architecture.StaticWidth, b.StaticScaler.Width())
	}
	if !slices.Equal(b.SequenceFeatureNames, features.SequenceNames) || !slices.Equal(b.StaticFeatureNames, features.StaticNames) {
		return invalid("feature order differs from this build")
	}
	return nil
}

// Snapshot is a validated bundle with its model rebuilt. It is immutable
// and shared by concurrent readers.
type Snapshot struct {
	Bundle *Bundle
	Model  *nn.Model

	pipeline *inference.Pipeline
}

// Pipeline exposes the snapshot to the inference service.
func (s *Snapshot) Pipeline() *inference.Pipeline { return s.pipeline }

// Open validates b and rebuilds its model. Weight names and shapes must
// match the graph described by the architecture.
func Open(b *Bundle) (*Snapshot, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	m, err := nn.NewHybrid(b.Architecture)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if err := m.SetWeights(b.Weights); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}
	return &Snapshot{
		Bundle: b,
		Model:  m,
		pipeline: &inference.Pipeline{
			Version:        b.Version,
			Model:          m,
			SequenceScaler: b.SequenceScaler,
			StaticScaler:   b.StaticScaler,
			Encoding:       b.TargetEncoding,
			Context:        b.Context,
		},
	}, nil
}
