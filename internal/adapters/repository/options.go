package repository

import (
	"time"

	"github.com/okian/mathboard/pkg/logger"
)

// Option applies a configuration option to the ShardStore.
type Option func(*ShardStore)

// WithShardCount sets the number of independently locked shards.
func WithShardCount(n int) Option {
	return func(s *ShardStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *ShardStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *ShardStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithConflictRetries bounds retries of serialization failures.
func WithConflictRetries(n int) PostgresOption {
	return func(p *PostgresStore) {
		if n >= 0 {
			p.retries = n
		}
	}
}

// WithRetryBackoff sets the base backoff between conflict retries.
func WithRetryBackoff(d time.Duration) PostgresOption {
	return func(p *PostgresStore) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// WithPostgresLogger sets the store logger.
func WithPostgresLogger(l logger.Logger) PostgresOption {
	return func(p *PostgresStore) {
		if l != nil {
			p.logger = l
		}
	}
}
