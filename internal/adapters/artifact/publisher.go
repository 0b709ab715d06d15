package artifact

import (
	"context"
	"fmt"

	"github.com/okian/paycast/internal/domain/training"
	"github.com/okian/paycast/pkg/logger"
	"github.com/okian/paycast/pkg/metrics"
)

// Publisher turns training results into the served bundle: build, open,
// persist, then swap the registry pointer. It implements training.Sink.
type Publisher struct {
	store    *FileStore
	registry *Registry
	logger   logger.Logger
}

// NewPublisher wires a store and registry together.
func NewPublisher(store *FileStore, registry *Registry, l logger.Logger) *Publisher {
	if l == nil {
		l = logger.Get()
	}
	return &Publisher{store: store, registry: registry, logger: l}
}

// Publish persists res as the new bundle and serves it. If any step fails
// the stored file and the served snapshot are left as they were.
func (p *Publisher) Publish(ctx context.Context, res *training.Result) error {
	b := NewBundle(res)
	snap, err := Open(b)
	if err != nil {
		return fmt.Errorf("open new bundle: %w", err)
	}
	if err := p.store.Save(ctx, b); err != nil {
		return err
	}
	p.install(ctx, snap)
	return nil
}

// Restore serves the stored bundle, if any.
func (p *Publisher) Restore(ctx context.Context) (*Snapshot, error) {
	b, err := p.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := Open(b)
	if err != nil {
		return nil, err
	}
	p.install(ctx, snap)
	return snap, nil
}

func (p *Publisher) install(ctx context.Context, snap *Snapshot) {
	prev := p.registry.Swap(snap)
	metrics.RecordBundleSwap()
	metrics.UpdateBundleLoaded(true)
	metrics.UpdateModelQuality(snap.Bundle.Metrics.MAE, snap.Bundle.Metrics.RMSE, snap.Bundle.Metrics.R2)
	fields := []logger.Field{logger.String("version", snap.Bundle.Version)}
	if prev != nil {
		fields = append(fields, logger.String("previous", prev.Bundle.Version))
	}
	p.logger.Info(ctx, "bundle swapped in", fields...)
}

var _ training.Sink = (*Publisher)(nil)
