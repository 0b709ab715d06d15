package synthetic

import (
	"math"
	"math/rand"
	"time"

	"github.com/okian/paycast/internal/domain/model"
)

// Demo history shapes.
const (
	PoorRecords     = 8
	ImprovedRecords = 6

	poorLookback     = 180 * 24 * time.Hour
	poorSpacing      = 20 * 24 * time.Hour
	improvedLookback = 60 * 24 * time.Hour
	improvedSpacing  = 10 * 24 * time.Hour
)

type band struct{ lo, hi float64 }

func (b band) draw(rng *rand.Rand) float64 { return b.lo + rng.Float64()*(b.hi-b.lo) }

// PoorHistory returns eight late-paying records spread over the last six months.
func PoorHistory(entity string, now time.Time, rng *rand.Rand) []model.PaymentEvent {
	return series(entity, now.Add(-poorLookback), poorSpacing, PoorRecords, rng,
		band{45000, 85000}, band{35, 55}, band{0.3, 0.6})
}

// ImprovedHistory returns six prompt-paying records over the last two months.
func ImprovedHistory(entity string, now time.Time, rng *rand.Rand) []model.PaymentEvent {
	return series(entity, now.Add(-improvedLookback), improvedSpacing, ImprovedRecords, rng,
		band{50000, 90000}, band{18, 28}, band{0.8, 0.95})
}

func series(entity string, start time.Time, step time.Duration, n int, rng *rand.Rand, amount, days, eff band) []model.PaymentEvent {
	out := make([]model.PaymentEvent, n)
	for i := range out {
		out[i] = model.PaymentEvent{
			EntityID:          entity,
			EventDate:         start.Add(time.Duration(i) * step),
			InvoiceAmount:     math.Round(amount.draw(rng)*100) / 100,
			DaysToPayment:     math.Round(days.draw(rng)*10) / 10,
			PaymentEfficiency: eff.draw(rng),
		}
	}
	return out
}
