package api

import (
	"time"

	"github.com/okian/mathboard/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithDefaultPageSize sets the page size used when limit or n is omitted.
func WithDefaultPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.defaultPageSize = n
		}
	}
}

// WithRequestTimeout sets the deadline attached to every API request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithAllowedOrigins sets the CORS origin allow-list.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
