package aggregator

import (
	"github.com/okian/mathboard/internal/domain/identity"
	"github.com/okian/mathboard/pkg/logger"
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithResolver sets the identity resolver consulted before every update.
func WithResolver(r identity.Resolver) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.ids = r
		}
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
