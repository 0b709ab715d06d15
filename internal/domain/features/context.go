package features

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/paycast/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// Fallbacks used when the context table has no entry for a key.
const (
	FallbackMarketTrend            = 0.0
	FallbackMarketVolatility       = 0.1
	FallbackIndustrySeasonalEffect = 0.0
	FallbackLocationEconomicIndex  = 1.0
)

// Context holds the four market-context features for one invoice.
type Context struct {
	MarketTrend            float64
	MarketVolatility       float64
	IndustrySeasonalEffect float64
	LocationEconomicIndex  float64
}

// ContextTable holds aggregate market context learned from the training
// partition. Months are 1..12 and quarters 1..4.
type ContextTable struct {
	MarketTrend      map[int]float64    `json:"market_trend"`
	MarketVolatility map[int]float64    `json:"market_volatility"`
	IndustrySeasonal map[string]float64 `json:"industry_seasonal"`
	LocationIndex    map[string]float64 `json:"location_index"`
}

// FitContext aggregates rows by month, (industry, month) and
// (location, quarter). Rows with no market condition only contribute to
// the seasonal efficiency effect.
func FitContext(rows []model.HistoricalInvoice) *ContextTable {
	t := &ContextTable{
		MarketTrend:      map[int]float64{},
		MarketVolatility: map[int]float64{},
		IndustrySeasonal: map[string]float64{},
		LocationIndex:    map[string]float64{},
	}
	if len(rows) == 0 {
		return t
	}

	byMonth := map[int][]float64{}
	byLocation := map[string][]float64{}
	byIndustry := map[string][]float64{}
	eff := make([]float64, 0, len(rows))
	for _, r := range rows {
		month := int(r.IssueDate.Month())
		eff = append(eff, r.PaymentEfficiency)
		byIndustry[seasonKey(r.Industry, month)] = append(byIndustry[seasonKey(r.Industry, month)], r.PaymentEfficiency)
		if r.MarketCondition == nil || math.IsNaN(*r.MarketCondition) {
			continue
		}
		m := *r.MarketCondition
		byMonth[month] = append(byMonth[month], m)
		lk := locationKey(r.Location, r.IssueDate)
		byLocation[lk] = append(byLocation[lk], m)
	}

	for month, xs := range byMonth {
		mean, std := stat.PopMeanStdDev(xs, nil)
		t.MarketTrend[month] = mean
		t.MarketVolatility[month] = std
	}
	global := stat.Mean(eff, nil)
	for k, xs := range byIndustry {
		t.IndustrySeasonal[k] = stat.Mean(xs, nil) - global
	}
	for k, xs := range byLocation {
		t.LocationIndex[k] = stat.Mean(xs, nil)
	}
	return t
}

// Lookup returns the context for an invoice issued on date. A nil table
// yields the fallbacks.
func (t *ContextTable) Lookup(industry, location string, date time.Time) Context {
	c := Context{
		MarketTrend:            FallbackMarketTrend,
		MarketVolatility:       FallbackMarketVolatility,
		IndustrySeasonalEffect: FallbackIndustrySeasonalEffect,
		LocationEconomicIndex:  FallbackLocationEconomicIndex,
	}
	if t == nil {
		return c
	}
	month := int(date.Month())
	if v, ok := t.MarketTrend[month]; ok {
		c.MarketTrend = v
	}
	if v, ok := t.MarketVolatility[month]; ok {
		c.MarketVolatility = v
	}
	if v, ok := t.IndustrySeasonal[seasonKey(industry, month)]; ok {
		c.IndustrySeasonalEffect = v
	}
	if v, ok := t.LocationIndex[locationKey(location, date)]; ok {
		c.LocationEconomicIndex = v
	}
	return c
}

func seasonKey(industry string, month int) string {
	return fmt.Sprintf("%s|%d", industry, month)
}

func locationKey(location string, date time.Time) string {
	return fmt.Sprintf("%s|q%d", location, (int(date.Month())-1)/3+1)
}
