package ranking

import (
	"time"

	"github.com/okian/mathboard/pkg/logger"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxPageSize caps page and top-N sizes.
func WithMaxPageSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPage = n
		}
	}
}

// WithRefreshInterval enables the eager top cache refresher.
func WithRefreshInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.refreshInterval = d
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}
