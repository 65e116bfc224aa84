package service

import (
	"time"

	"github.com/okian/mathboard/internal/adapters/repository"
	"github.com/okian/mathboard/internal/domain/identity"
	"github.com/okian/mathboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the statistics store. Without it Start creates a ShardStore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithIdentity sets the identity resolver. Without it every player is accepted.
func WithIdentity(r identity.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.ids = r
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued results.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithInboxSize sets the per-worker buffer behind the queue.
func WithInboxSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.inboxSize = size
		}
	}
}

// WithDedupeSize sets how many result IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the shard count of the default in-memory store.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMaxPageSize caps page and top-N sizes.
func WithMaxPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

// WithTopRefreshInterval sets how often the top cache is rebuilt eagerly.
func WithTopRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		s.refreshInterval = d
	}
}

// WithApplyTimeout bounds one asynchronous apply.
func WithApplyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.applyTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
