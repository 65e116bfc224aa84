package worker

import (
	"time"

	"github.com/okian/mathboard/pkg/logger"
)

// Option configures a Pool.
type Option func(*Pool)

// WithWorkerCount sets the number of workers.
func WithWorkerCount(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithInboxSize sets the per-worker buffer between dispatcher and worker.
func WithInboxSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.inboxSize = n
		}
	}
}

// WithApplyTimeout bounds a single Apply call.
func WithApplyTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.applyTimeout = d
		}
	}
}

// WithErrorHandler registers a callback for results that failed to apply.
func WithErrorHandler(h ErrorHandler) Option {
	return func(p *Pool) {
		p.onError = h
	}
}

// WithLogger sets the pool logger. Workers log through named children.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
