package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/okian/mathboard/internal/domain/types"
	"github.com/okian/mathboard/pkg/logger"
)

const (
	settlePoll     = 250 * time.Millisecond
	topCheckSize   = 10
	filePermission = 0o600
)

// Run generates a workload, submits it and verifies the served leaderboard.
// The target service must start empty.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	cfg.Normalize()
	stats := &Stats{StartTime: time.Now()}
	log := cfg.Log
	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("games", cfg.Games),
		logger.Int("workers", cfg.Workers),
		logger.Bool("async", cfg.Async))

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	plan := Generate(cfg)
	stats.Generated = len(plan.Games)
	if cfg.Output != "" {
		if err := saveGames(cfg.Output, plan.Games); err != nil {
			log.Warn(ctx, "failed to save games", logger.Error(err))
		}
	}

	if cfg.Register {
		if err := RegisterPlayers(ctx, cfg, client, plan); err != nil {
			return stats, fmt.Errorf("registration failed: %w", err)
		}
		log.Info(ctx, "players registered", logger.Int("players", len(plan.Expected)))
	}

	if err := Submit(ctx, cfg, client, plan.Games, stats); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%d of %d submissions failed", stats.Failed, stats.Submitted)
	}
	log.Info(ctx, "submission completed",
		logger.Int("applied", stats.Applied),
		logger.Int("duplicate", stats.Duplicate))

	board, err := settle(ctx, cfg, client, plan, stats)
	if err != nil {
		return stats, fmt.Errorf("leaderboard verification failed: %w", err)
	}
	if err := VerifyTop(ctx, client, board, topCheckSize); err != nil {
		return stats, fmt.Errorf("top verification failed: %w", err)
	}
	if err := VerifyRanks(ctx, cfg, client, board, stats); err != nil {
		return stats, fmt.Errorf("rank verification failed: %w", err)
	}

	stats.Duration = time.Since(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, nil
}

// settle walks the board until it matches the plan. Synchronous runs get a
// single attempt; async runs retry until cfg.Settle elapses.
func settle(ctx context.Context, cfg Config, client *HTTPClient, plan Plan, stats *Stats) ([]types.Entry, error) {
	deadline := time.Now().Add(cfg.Settle)
	for {
		board, err := WalkPages(ctx, client, cfg.PageSize, stats)
		if err != nil {
			return nil, err
		}
		err = VerifyBoard(board, plan.Expected)
		if err == nil || !cfg.Async || !errors.Is(err, ErrMismatch) || time.Now().After(deadline) {
			return board, err
		}
		if cfg.Verbose {
			cfg.Log.Debug(ctx, "board not settled yet", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(settlePoll):
		}
	}
}

func saveGames(path string, games any) error {
	data, err := json.MarshalIndent(games, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal games: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("applied", stats.Applied),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("pagesWalked", stats.PagesWalked),
		logger.Int("ranksChecked", stats.RanksChecked),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("gamesPerSecond", perSecond))
}
