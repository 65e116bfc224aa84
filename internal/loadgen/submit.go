package loadgen

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
)

// Submit posts every game. Games of one player always go through the same
// lane, in plan order, so the service folds them in the order Generate did.
func Submit(ctx context.Context, cfg Config, client *HTTPClient, games []model.GameResult, stats *Stats) error {
	lanes := make([][]model.GameResult, cfg.Workers)
	for _, g := range games {
		i := xxhash.Sum64String(g.PlayerID) % uint64(cfg.Workers)
		lanes[i] = append(lanes[i], g)
	}

	path := "/results"
	if cfg.Async {
		path = "/results/async"
	}

	var applied, duplicate, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, lane := range lanes {
		g.Go(func() error {
			for _, game := range lane {
				status, a, err := client.postJSON(ctx, path, game)
				switch {
				case err != nil:
					if ctx.Err() != nil {
						return ctx.Err()
					}
					failed.Add(1)
					if cfg.Verbose {
						cfg.Log.Warn(ctx, "submit failed", logger.String("resultID", game.ResultID), logger.Error(err))
					}
				case a.Duplicate:
					duplicate.Add(1)
				case status == http.StatusOK || status == http.StatusAccepted:
					applied.Add(1)
				default:
					failed.Add(1)
					if cfg.Verbose {
						cfg.Log.Warn(ctx, "submit rejected",
							logger.String("resultID", game.ResultID),
							logger.Int("status", status),
							logger.String("code", a.Code))
					}
				}
			}
			return nil
		})
	}
	err := g.Wait()

	stats.Submitted = int(applied.Load() + duplicate.Load() + failed.Load())
	stats.Applied = int(applied.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	return err
}

// RegisterPlayers records every planned player with its display name.
func RegisterPlayers(ctx context.Context, cfg Config, client *HTTPClient, plan Plan) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for id, st := range plan.Expected {
		g.Go(func() error {
			return client.RegisterPlayer(ctx, id, st.DisplayName)
		})
	}
	return g.Wait()
}
