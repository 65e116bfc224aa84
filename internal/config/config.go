// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New(ctx) returns a Config populated with defaults.
// - Load(ctx) layers a YAML file and environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Returned by Load and Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Identity modes.
const (
	IdentityOpen       = "open"
	IdentityRegistered = "registered"
	IdentityRedis      = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ResultQueueSize bounds the in-memory queue behind POST /results/async.
	ResultQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of apply workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many result ids the ingestion edge remembers.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of shards in the in-memory store.
	ShardCount int `koanf:"shard_count"`

	// DefaultPageSize is used when a page request omits limit.
	DefaultPageSize int `koanf:"default_page_size"`

	// MaxPageSize caps limit on global pages and top-N.
	MaxPageSize int `koanf:"max_page_size"`

	// TopRefreshIntervalMS rebuilds the top cache eagerly; 0 disables the refresher.
	TopRefreshIntervalMS int `koanf:"top_refresh_interval_ms"`

	// RequestTimeoutMS is the deadline attached to every HTTP request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// StoreDriver selects the statistics store: memory or postgres.
	StoreDriver string `koanf:"store_driver"`

	PostgresURL      string `koanf:"postgres_url"`
	PostgresMaxConns int    `koanf:"postgres_max_conns"`

	// ConflictRetries bounds retries of a serialization failure before Conflict is reported.
	ConflictRetries int `koanf:"conflict_retries"`

	// IdentityMode selects the player directory: open, registered or redis.
	IdentityMode string `koanf:"identity_mode"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	KafkaEnabled bool   `koanf:"kafka_enabled"`
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`
	KafkaGroupID string `koanf:"kafka_group_id"`

	// CORSAllowedOrigins is a comma separated list; "*" allows any origin.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		ResultQueueSize:      100_000,
		WorkerCount:          runtime.NumCPU() * 2,
		DedupeSize:           500_000,
		ShardCount:           16,
		DefaultPageSize:      10,
		MaxPageSize:          10,
		TopRefreshIntervalMS: 1000,
		RequestTimeoutMS:     2000,
		StoreDriver:          StoreMemory,
		PostgresMaxConns:     10,
		ConflictRetries:      3,
		IdentityMode:         IdentityOpen,
		RedisAddr:            "localhost:6379",
		KafkaTopic:           "game-results",
		KafkaGroupID:         "mathboard-ranking",
		CORSAllowedOrigins:   "*",
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("%w: max_page_size must be positive", ErrInvalidConfig)
	}
	if c.DefaultPageSize <= 0 {
		return fmt.Errorf("%w: default_page_size must be positive", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("%w: postgres_url is required for store_driver=postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch c.IdentityMode {
	case IdentityOpen, IdentityRegistered:
	case IdentityRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for identity_mode=redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown identity_mode %q", ErrInvalidConfig, c.IdentityMode)
	}
	if c.KafkaEnabled && len(c.Brokers()) == 0 {
		return fmt.Errorf("%w: kafka_brokers is required when kafka_enabled", ErrInvalidConfig)
	}
	return nil
}

// Brokers splits KafkaBrokers on commas.
func (c *Config) Brokers() []string { return splitList(c.KafkaBrokers) }

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string { return splitList(c.CORSAllowedOrigins) }

// TopRefreshInterval returns the top cache refresh period.
func (c *Config) TopRefreshInterval() time.Duration {
	return time.Duration(c.TopRefreshIntervalMS) * time.Millisecond
}

// RequestTimeout returns the per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
