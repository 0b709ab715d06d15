package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/okian/paycast/pkg/logger"
)

var dueDayChoices = []int{15, 30, 45, 60, 90}

// Plan is a generated workload: the unique settlements, the resubmissions
// of some of them and the per-entity record counts the server should end
// up with.
type Plan struct {
	Settlements []Settlement
	Duplicates  []Settlement
	Expected    map[string]int
}

// Submissions returns every request to send, originals first.
func (p Plan) Submissions() []Settlement {
	out := make([]Settlement, 0, len(p.Settlements)+len(p.Duplicates))
	out = append(out, p.Settlements...)
	out = append(out, p.Duplicates...)
	return out
}

// generatePlan creates settlements spread over the configured entities.
// Event dates step back from now so every entity gets a spread history.
func generatePlan(ctx context.Context, config *Config, now time.Time) (Plan, error) {
	if config.Entities <= 0 || config.Settlements <= 0 {
		return Plan{}, errors.New("entities and settlements must be positive")
	}
	logger.Get().Info(ctx, "generating settlements",
		logger.Int("entities", config.Entities),
		logger.Int("settlements", config.Settlements))

	rng := rand.New(rand.NewSource(config.Seed))
	run := uuid.NewString()[:8]
	entities := make([]string, config.Entities)
	for i := range entities {
		entities[i] = fmt.Sprintf("load-%s-%04d", run, i)
	}

	plan := Plan{
		Settlements: make([]Settlement, config.Settlements),
		Expected:    make(map[string]int, config.Entities),
	}
	for i := range plan.Settlements {
		entity := entities[i%len(entities)]
		due := dueDayChoices[rng.Intn(len(dueDayChoices))]
		days := math.Max(1, math.Round(float64(due)*(0.6+0.8*rng.Float64())))
		plan.Settlements[i] = Settlement{
			InvoiceID:     uuid.NewString(),
			EntityID:      entity,
			EventDate:     now.Add(-time.Duration(rng.Intn(365*24)) * time.Hour).UTC().Format(time.RFC3339),
			InvoiceAmount: math.Round(math.Exp(10+rng.NormFloat64())*100) / 100,
			DaysToPayment: days,
			DueDays:       due,
		}
		plan.Expected[entity]++
	}

	dups := int(float64(config.Settlements) * config.DuplicateRatio)
	for i := 0; i < dups; i++ {
		plan.Duplicates = append(plan.Duplicates, plan.Settlements[rng.Intn(len(plan.Settlements))])
	}
	return plan, nil
}
