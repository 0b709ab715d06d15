package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/paycast/pkg/logger"
)

// maxForecastBatch matches the server's default forecast limit.
const maxForecastBatch = 1000

// ErrVerification is returned when the server's state does not match the
// submitted workload.
var ErrVerification = errors.New("verification failed")

// verifyHistories waits for each entity's history to reach its expected
// size and checks its ordering. With exact unset, failed submissions make
// the expected counts an upper bound.
func verifyHistories(ctx context.Context, config *Config, client *HTTPClient, expected map[string]int, exact bool, stats *Stats) error {
	l := logger.Get()
	l.Info(ctx, "verifying histories", logger.Int("entities", len(expected)), logger.Any("exact", exact))

	entities := make([]string, 0, len(expected))
	for e := range expected {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	deadline := time.Now().Add(config.SettleWait)
	var (
		verified, mismatched atomic.Int64
		wg                   sync.WaitGroup
	)
	ch := make(chan string, config.Workers*workerChannelMultiplier)
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entity := range ch {
				if err := verifyEntity(ctx, config, client, entity, expected[entity], exact, deadline); err != nil {
					mismatched.Add(1)
					l.Warn(ctx, "history mismatch", logger.String("entity_id", entity), logger.Error(err))
					continue
				}
				verified.Add(1)
			}
		}()
	}
	go func() {
		defer close(ch)
		for _, e := range entities {
			select {
			case <-ctx.Done():
				return
			case ch <- e:
			}
		}
	}()
	wg.Wait()

	stats.EntitiesVerified = int(verified.Load())
	stats.HistoryMismatches = int(mismatched.Load())
	if err := ctx.Err(); err != nil {
		return err
	}
	if stats.HistoryMismatches > 0 {
		return fmt.Errorf("%w: %d of %d entities", ErrVerification, stats.HistoryMismatches, len(entities))
	}
	l.Info(ctx, "histories verified", logger.Int("entities", stats.EntitiesVerified))
	return nil
}

func verifyEntity(ctx context.Context, config *Config, client *HTTPClient, entity string, want int, exact bool, deadline time.Time) error {
	path := "/history/" + url.PathEscape(entity)
	for {
		var h HistoryResponse
		if _, err := client.getJSON(ctx, path, &h); err != nil {
			return err
		}
		if err := checkHistory(entity, h); err != nil {
			return err
		}
		switch {
		case h.Records > want:
			return fmt.Errorf("%d records, want at most %d", h.Records, want)
		case h.Records == want:
			return nil
		case !exact && h.Records > 0 && time.Now().After(deadline):
			return nil
		case time.Now().After(deadline):
			return fmt.Errorf("%d records after waiting, want %d", h.Records, want)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.PollInterval):
		}
	}
}

// checkHistory validates ownership and ordering of one history response.
func checkHistory(entity string, h HistoryResponse) error {
	if h.Records != len(h.History) {
		return fmt.Errorf("records %d but %d events returned", h.Records, len(h.History))
	}
	for i, ev := range h.History {
		if ev.EntityID != entity {
			return fmt.Errorf("event %d belongs to %q", i, ev.EntityID)
		}
		if i > 0 && ev.EventDate.Before(h.History[i-1].EventDate) {
			return fmt.Errorf("event %d out of order", i)
		}
		if ev.PaymentEfficiency < 0 || ev.PaymentEfficiency > 1 {
			return fmt.Errorf("event %d efficiency %.3f out of range", i, ev.PaymentEfficiency)
		}
	}
	return nil
}

// requestForecast asks for one invoice per entity. A server without a
// model answers 503, which skips the check rather than failing the run.
func requestForecast(ctx context.Context, client *HTTPClient, entities []string, stats *Stats) error {
	if len(entities) > maxForecastBatch {
		entities = entities[:maxForecastBatch]
	}
	invoices := make([]ForecastInvoice, len(entities))
	for i, e := range entities {
		invoices[i] = ForecastInvoice{InvoiceID: uuid.NewString(), EntityID: e, Amount: 25000, DueDays: 30}
	}

	var fc ForecastResponse
	code, err := client.postJSON(ctx, "/forecast", map[string]any{"invoices": invoices}, &fc)
	if code == http.StatusServiceUnavailable {
		stats.ForecastSkipped = true
		logger.Get().Warn(ctx, "forecast skipped, no model loaded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	if fc.InvoiceCount != len(invoices) {
		return fmt.Errorf("%w: forecast covered %d of %d invoices", ErrVerification, fc.InvoiceCount, len(invoices))
	}
	stats.ForecastInvoices = fc.InvoiceCount
	logger.Get().Info(ctx, "forecast received",
		logger.Int("invoices", fc.InvoiceCount),
		logger.Float64("average_days", fc.AverageDays),
		logger.Any("risk_distribution", fc.RiskDistribution))
	return nil
}
