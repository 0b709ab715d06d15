package artifact

import (
	"sync/atomic"

	"github.com/okian/paycast/internal/domain/inference"
)

// Registry holds the snapshot currently served. Readers take one snapshot
// per request and never see a mix of two bundles.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Current returns the served snapshot, or nil when none is loaded.
func (r *Registry) Current() *Snapshot { return r.current.Load() }

// Swap installs s and returns the previous snapshot.
func (r *Registry) Swap(s *Snapshot) *Snapshot { return r.current.Swap(s) }

// Pipeline returns the served inference pipeline, or nil when none is loaded.
func (r *Registry) Pipeline() *inference.Pipeline {
	s := r.current.Load()
	if s == nil {
		return nil
	}
	return s.Pipeline()
}

var _ inference.Source = (*Registry)(nil)
