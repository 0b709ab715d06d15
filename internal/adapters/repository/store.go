// Package repository holds per-entity payment history.
package repository

import (
	"context"

	"github.com/okian/paycast/internal/domain/model"
)

// Store provides read/write access to payment histories.
type Store interface {
	// Append records one settled invoice in its entity's history.
	Append(ctx context.Context, e model.PaymentEvent) error

	// AppendMany records a batch for one entity; either every event is
	// stored or none is.
	AppendMany(ctx context.Context, entityID string, events []model.PaymentEvent) error

	// History returns the entity's events ordered by event date. An unknown
	// entity yields an empty history.
	History(ctx context.Context, entityID string) ([]model.PaymentEvent, error)

	// Count returns the number of events stored for an entity.
	Count(ctx context.Context, entityID string) int

	// Entities returns the number of entities with at least one event.
	Entities(ctx context.Context) int
}
