package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/okian/paycast/pkg/logger"
)

const directoryPermission = 0750

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

// Run executes a complete load test against config.BaseURL.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	l := logger.Get()
	l.Info(ctx, "starting paycast load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("entities", config.Entities),
		logger.Int("settlements", config.Settlements),
		logger.Float64("duplicateRatio", config.DuplicateRatio),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	health, err := checkServiceHealth(ctx, client)
	if err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	l.Info(ctx, "service is healthy",
		logger.Any("modelLoaded", health.ModelLoaded),
		logger.String("version", health.Version))

	plan, err := generatePlan(ctx, config, time.Now())
	if err != nil {
		return stats, fmt.Errorf("settlement generation failed: %w", err)
	}
	stats.SettlementsGenerated = len(plan.Settlements)

	if config.OutputFile != "" {
		if err := savePlan(config.OutputFile, plan); err != nil {
			l.Warn(ctx, "failed to save settlements to file", logger.Error(err))
		}
	}

	submitSettlements(ctx, config, client, plan.Submissions(), stats)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	if err := verifyHistories(ctx, config, client, plan.Expected, stats.SubmissionsFailed == 0, stats); err != nil {
		return stats, err
	}

	entities := make([]string, 0, len(plan.Expected))
	for e := range plan.Expected {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	if err := requestForecast(ctx, client, entities, stats); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func checkServiceHealth(ctx context.Context, client *HTTPClient) (healthResponse, error) {
	var h healthResponse
	if _, err := client.getJSON(ctx, "/health", &h); err != nil {
		return h, err
	}
	return h, nil
}

// savePlan writes the unique settlements as a JSON array.
func savePlan(filename string, plan Plan) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(plan.Settlements); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write settlements: %w", err)
	}
	return f.Close()
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, perSecond float64
	if stats.SubmissionsSent > 0 {
		successRate = float64(stats.SubmissionsAccepted+stats.SubmissionsDuplicate) / float64(stats.SubmissionsSent) * 100
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.SubmissionsSent) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("settlementsGenerated", stats.SettlementsGenerated),
		logger.Int("submissionsSent", stats.SubmissionsSent),
		logger.Int("accepted", stats.SubmissionsAccepted),
		logger.Int("duplicate", stats.SubmissionsDuplicate),
		logger.Int("failed", stats.SubmissionsFailed),
		logger.Int("entitiesVerified", stats.EntitiesVerified),
		logger.Int("forecastInvoices", stats.ForecastInvoices),
		logger.Any("forecastSkipped", stats.ForecastSkipped),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", perSecond))
}
