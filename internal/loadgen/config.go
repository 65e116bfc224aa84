// Package loadgen drives a running leaderboard over HTTP and checks that what
// it serves matches the games that were submitted.
package loadgen

import (
	"time"

	"github.com/okian/mathboard/pkg/logger"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Players  int           // Distinct players to create
	Games    int           // Game results to submit
	Workers  int           // Concurrent submitters and rank readers
	PageSize int           // limit used when walking /leaderboard/global
	Timeout  time.Duration // HTTP request timeout
	Async    bool          // Submit through /results/async
	Register bool          // Register every player through /players before submitting
	Settle   time.Duration // How long to retry verification while async results drain
	Seed     uint64        // Seed for the game generator
	Output   string        // Optional file receiving the generated games
	Verbose  bool
	Log      logger.Logger
}

// Stats holds run statistics.
type Stats struct {
	Generated    int
	Submitted    int
	Applied      int
	Duplicate    int
	Failed       int
	PagesWalked  int
	RanksChecked int
	StartTime    time.Time
	Duration     time.Duration
}

// Defaults applied by Normalize.
const (
	DefaultPlayers  = 1000
	DefaultGames    = 10000
	DefaultPageSize = 10
	DefaultTimeout  = 10 * time.Second
	DefaultSettle   = 30 * time.Second
)

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Players <= 0 {
		c.Players = DefaultPlayers
	}
	if c.Games <= 0 {
		c.Games = DefaultGames
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.Log == nil {
		c.Log = logger.Nop()
	}
}
