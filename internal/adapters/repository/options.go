package repository

import "time"

// Option applies a configuration option to the HistoryStore.
type Option func(*HistoryStore)

// WithShardCount sets the number of lock shards.
func WithShardCount(n int) Option {
	return func(s *HistoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *HistoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
