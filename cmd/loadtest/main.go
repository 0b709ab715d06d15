package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/paycast/internal/loadtest"
)

// Default configuration constants.
const (
	defaultEntities       = 200
	defaultSettlements    = 5000
	defaultDuplicateRatio = 0.05
	defaultWorkers        = 2 // multiplier for runtime.NumCPU()
	defaultTimeout        = 30 * time.Second
	defaultSettleWait     = 30 * time.Second
	defaultPollInterval   = 200 * time.Millisecond
	defaultTestTimeout    = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		entities    = flag.Int("entities", defaultEntities, "Distinct entities")
		settlements = flag.Int("settlements", defaultSettlements, "Unique settlements to submit")
		duplicates  = flag.Float64("duplicates", defaultDuplicateRatio, "Share of settlements resubmitted")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait        = flag.Duration("wait", defaultSettleWait, "How long to wait for ingestion")
		seed        = flag.Int64("seed", 1, "Generator seed")
		outputFile  = flag.String("output", "", "Output file for generated settlements")
		logFile     = flag.String("log", "", "Also write logs to this file")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	closeLog, err := loadtest.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := &loadtest.Config{
		BaseURL:        *baseURL,
		Entities:       *entities,
		Settlements:    *settlements,
		DuplicateRatio: *duplicates,
		Workers:        *workers,
		Timeout:        *timeout,
		SettleWait:     *wait,
		PollInterval:   defaultPollInterval,
		Seed:           *seed,
		OutputFile:     *outputFile,
		Verbose:        *verbose,
	}

	if _, err := loadtest.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load test failed: " + err.Error() + "\n")
		stop()
		cancel()
		_ = closeLog()
		os.Exit(1)
	}
}
