package loadtest

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/paycast/pkg/logger"
)

// Submission outcomes.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

const (
	workerChannelMultiplier = 2
	progressInterval        = time.Second
)

// submitSettlements posts every submission with a pool of workers.
func submitSettlements(ctx context.Context, config *Config, client *HTTPClient, subs []Settlement, stats *Stats) {
	l := logger.Get()
	l.Info(ctx, "submitting settlements",
		logger.Int("requests", len(subs)),
		logger.Int("workers", config.Workers))

	var (
		sent, accepted, duplicate, failed atomic.Int64
		lastReport                        atomic.Int64
	)
	lastReport.Store(time.Now().UnixNano())

	ch := make(chan Settlement, config.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for st := range ch {
				switch submitSingle(ctx, client, st) {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
				}
				n := sent.Add(1)

				last := lastReport.Load()
				if config.Verbose && time.Since(time.Unix(0, last)) >= progressInterval &&
					lastReport.CompareAndSwap(last, time.Now().UnixNano()) {
					l.Info(ctx, "submission progress",
						logger.Int("sent", int(n)),
						logger.Int("total", len(subs)),
						logger.Int("failed", int(failed.Load())))
				}
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, st := range subs {
			select {
			case <-ctx.Done():
				return
			case ch <- st:
			}
		}
	}()
	wg.Wait()

	stats.SubmissionsSent = int(sent.Load())
	stats.SubmissionsAccepted = int(accepted.Load())
	stats.SubmissionsDuplicate = int(duplicate.Load())
	stats.SubmissionsFailed = int(failed.Load())

	l.Info(ctx, "settlement submission completed",
		logger.Int("accepted", stats.SubmissionsAccepted),
		logger.Int("duplicate", stats.SubmissionsDuplicate),
		logger.Int("failed", stats.SubmissionsFailed))
}

// submitSingle posts one settlement and classifies the answer.
func submitSingle(ctx context.Context, client *HTTPClient, st Settlement) string {
	var ack AckResponse
	code, err := client.postJSON(ctx, "/settlements", st, &ack)
	switch {
	case err != nil:
		logger.Get().Debug(ctx, "settlement rejected",
			logger.String("invoice_id", st.InvoiceID),
			logger.Int("status", code),
			logger.Error(err))
		return outcomeFailed
	case code == http.StatusOK && ack.Duplicate:
		return outcomeDuplicate
	case code == http.StatusAccepted:
		return outcomeAccepted
	default:
		return outcomeFailed
	}
}
