package loadtest

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/paycast/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initializes the logger, writing to stdout and, when logFile
// is set, to that file too. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	var (
		out     io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = f.Close
	}
	if err := logger.Init(logger.WithOutput(out)); err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	os.Stdout.WriteString(`Paycast Load Test
=================

Posts settlements to a running paycast server concurrently, then verifies
every entity's history and requests a forecast for the populated entities.

Usage:
  go run ./cmd/loadtest [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -entities int        Distinct entities (default 200)
  -settlements int     Unique settlements to submit (default 5000)
  -duplicates float    Share of settlements resubmitted (default 0.05)
  -workers int         Concurrent workers (default CPU cores * 2)
  -timeout duration    HTTP request timeout (default 30s)
  -wait duration       How long to wait for ingestion (default 30s)
  -seed int            Generator seed (default 1)
  -output string       Write the generated settlements to this JSON file
  -log string          Also write logs to this file
  -verbose             Enable debug logging
  -help                Show this help message

Examples:
  go run ./cmd/loadtest -settlements 50000 -workers 16
  go run ./cmd/loadtest -url http://localhost:8080 -verbose
`)
}
