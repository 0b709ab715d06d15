// Package synthetic produces a seeded demo training corpus and the demo
// payment histories used to show the model reacting to behavior changes.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/pkg/logger"
	"gonum.org/v1/gonum/stat"
)

// Corpus shape defaults.
const (
	DefaultCustomers = 200
	DefaultInvoices  = 4000
	DefaultSeed      = 42
	DefaultYear      = 2024

	ctxCheckEvery = 1000
	longTailRate  = 0.01
	longTailMean  = 30.0
	minDays       = 1.0
	maxDays       = 120.0
)

var (
	industries     = []string{"IT", "Finance", "Healthcare", "Retail", "Manufacturing"}
	locations      = []string{"Mumbai", "Delhi", "Bangalore", "Chennai", "Hyderabad"}
	paymentMethods = []string{"Bank Transfer", "Credit Card", "Cheque", "UPI"}
	dueTerms       = []int{15, 30, 45, 60, 90}
	dueWeights     = []float64{0.1, 0.4, 0.3, 0.15, 0.05}

	// mean, stddev of the per-invoice adjustment in days
	methodEffects = map[string][2]float64{
		"Bank Transfer": {-2, 1},
		"Credit Card":   {-1, 1.5},
		"Cheque":        {3, 2},
		"UPI":           {-0.5, 1},
	}
	locationEffects = map[string][2]float64{
		"Mumbai":    {-1, 2},
		"Delhi":     {0, 2},
		"Bangalore": {-0.5, 1.5},
		"Chennai":   {1, 2},
		"Hyderabad": {0.5, 1.5},
	}
)

// Config controls corpus size and reproducibility.
type Config struct {
	Customers int
	Invoices  int
	Seed      int64
	Year      int
}

// DefaultConfig returns the demo corpus shape.
func DefaultConfig() Config {
	return Config{Customers: DefaultCustomers, Invoices: DefaultInvoices, Seed: DefaultSeed, Year: DefaultYear}
}

type customer struct {
	id       string
	industry string
	credit   float64
	location string
	segment  string
	history  []float64 // efficiencies in generation order
}

// Generate builds cfg.Invoices settled invoices over cfg.Customers entities.
// The same config always yields the same corpus.
func Generate(ctx context.Context, cfg Config) ([]model.HistoricalInvoice, error) {
	if cfg.Customers <= 0 || cfg.Invoices <= 0 {
		return nil, fmt.Errorf("synthetic: customers and invoices must be positive, got %d/%d", cfg.Customers, cfg.Invoices)
	}
	if cfg.Year == 0 {
		cfg.Year = DefaultYear
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	customers := make([]*customer, cfg.Customers)
	for i := range customers {
		credit := math.Trunc(700 + 50*rng.NormFloat64())
		customers[i] = &customer{
			id:       fmt.Sprintf("Company_%d", i+1),
			industry: industries[rng.Intn(len(industries))],
			credit:   credit,
			location: locations[rng.Intn(len(locations))],
			segment:  segmentFor(credit),
		}
	}

	var market, urgency [13]float64
	for m := 1; m <= 12; m++ {
		market[m] = 1 + 0.2*math.Sin(2*math.Pi*float64(m)/12) + 0.05*rng.NormFloat64()
		urgency[m] = beta25(rng)
	}

	rows := make([]model.HistoricalInvoice, 0, cfg.Invoices)
	for i := 0; i < cfg.Invoices; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("synthetic: generation cancelled: %w", err)
			}
		}
		c := customers[rng.Intn(len(customers))]
		month := 1 + rng.Intn(12)
		day := 1 + rng.Intn(27)
		due := dueTerms[weighted(rng, dueWeights)]

		amount := math.Exp(9.5 + 1.2*rng.NormFloat64())
		amount *= (1 + 0.3*math.Sin(2*math.Pi*float64(month)/12)) * market[month]
		amount = math.Round(amount*100) / 100
		method := paymentMethods[rng.Intn(len(paymentMethods))]

		creditFactor := (c.credit - 600) / 200
		base := float64(due) * (1.2 - creditFactor)

		adj := industryEffect(c.industry, month, urgency[month])
		adj += math.Log(amount/50000) * 2
		adj += normal(rng, methodEffects[method])
		adj += normal(rng, locationEffects[c.location])
		adj += historyEffect(c.history, rng)
		adj += (1 - market[month]) * 10
		adj += 2 * math.Sin(2*math.Pi*float64(day)/30)

		days := base + adj + 3*rng.NormFloat64()
		days = math.Round(math.Max(minDays, math.Min(maxDays, days))*10) / 10
		if rng.Float64() < longTailRate {
			days += rng.ExpFloat64() * longTailMean
		}

		eff := model.Efficiency(days, float64(due))
		c.history = append(c.history, eff)

		mc, pu := market[month], urgency[month]
		rows = append(rows, model.HistoricalInvoice{
			Invoice: model.Invoice{
				ID:              fmt.Sprintf("INV-%d", 10001+i),
				EntityID:        c.id,
				Amount:          amount,
				DueDays:         due,
				CreditScore:     c.credit,
				Industry:        c.industry,
				Location:        c.location,
				PaymentMethod:   method,
				Segment:         c.segment,
				IssueDate:       time.Date(cfg.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
				MarketCondition: &mc,
				PaymentUrgency:  &pu,
			},
			DaysToPayment:     days,
			PaymentEfficiency: eff,
		})
	}
	logger.Get().Debug(ctx, "generated synthetic corpus",
		logger.Int("customers", cfg.Customers),
		logger.Int("invoices", len(rows)))
	return rows, nil
}

func segmentFor(credit float64) string {
	switch {
	case credit > 720:
		return "Reliable"
	case credit < 650:
		return "At-risk"
	default:
		return "Average"
	}
}

func industryEffect(industry string, month int, urgency float64) float64 {
	m := float64(month)
	switch industry {
	case "IT":
		return 2 * math.Sin(2*math.Pi*m/12)
	case "Finance":
		return -3 + 5*urgency
	case "Healthcare":
		return 1 + 2*math.Cos(2*math.Pi*m/6)
	case "Retail":
		if month >= 11 {
			return -5
		}
		return 3
	case "Manufacturing":
		return 4 * math.Sin(2*math.Pi*(m-3)/12)
	}
	return 0
}

// historyEffect rewards recent efficiency weighted by consistency.
func historyEffect(history []float64, rng *rand.Rand) float64 {
	if len(history) == 0 {
		return 3 * rng.NormFloat64()
	}
	recent := history[max(0, len(history)-10):]
	last5 := history[max(0, len(history)-5):]
	_, sd := stat.PopMeanStdDev(last5, nil)
	return stat.Mean(recent, nil) * (1 - sd/10) * 5
}

func normal(rng *rand.Rand, p [2]float64) float64 {
	return p[0] + p[1]*rng.NormFloat64()
}

// beta25 samples Beta(2, 5) as a ratio of integer-shape gamma draws.
func beta25(rng *rand.Rand) float64 {
	x := rng.ExpFloat64() + rng.ExpFloat64()
	y := 0.0
	for i := 0; i < 5; i++ {
		y += rng.ExpFloat64()
	}
	return x / (x + y)
}

func weighted(rng *rand.Rand, weights []float64) int {
	r := rng.Float64()
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}
