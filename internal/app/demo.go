package service

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/internal/domain/types"
	"github.com/okian/paycast/internal/synthetic"
	"github.com/okian/paycast/pkg/logger"
)

// SeedDemo gives an entity a late-paying history. An entity that already
// has history is left alone.
func (s *Service) SeedDemo(ctx context.Context, entityID string) (types.DemoResult, error) {
	return s.seed(ctx, entityID, true, synthetic.PoorHistory)
}

// ImproveDemo appends prompt payments to an entity's history.
func (s *Service) ImproveDemo(ctx context.Context, entityID string) (types.DemoResult, error) {
	return s.seed(ctx, entityID, false, synthetic.ImprovedHistory)
}

type historyShape func(entity string, now time.Time, rng *rand.Rand) []model.PaymentEvent

func (s *Service) seed(ctx context.Context, entityID string, onlyEmpty bool, shape historyShape) (types.DemoResult, error) {
	c, err := s.running()
	if err != nil {
		return types.DemoResult{}, err
	}
	if strings.TrimSpace(entityID) == "" {
		return types.DemoResult{}, &model.ValidationError{Field: "entity_id", Reason: "required"}
	}

	added := 0
	if !onlyEmpty || c.history.Count(ctx, entityID) == 0 {
		now := s.now()
		events := shape(entityID, now, rand.New(rand.NewSource(now.UnixNano())))
		if err := c.history.AppendMany(ctx, entityID, events); err != nil {
			return types.DemoResult{}, err
		}
		added = len(events)
		s.logger.Info(ctx, "demo history seeded",
			logger.String("entity_id", entityID),
			logger.Int("records", added))
	}

	risk, err := c.inference.CustomerRisk(ctx, entityID)
	if err != nil {
		return types.DemoResult{}, err
	}
	return types.DemoResult{EntityID: entityID, Added: added, Records: risk.HistoryRecords, Risk: risk}, nil
}
