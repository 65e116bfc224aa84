package loadgen

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/ranking"
	"github.com/okian/mathboard/internal/domain/types"
)

// ErrMismatch reports that the served leaderboard disagrees with the plan.
var ErrMismatch = errors.New("leaderboard mismatch")

// WalkPages pages through /leaderboard/global until an empty page. The
// service may cap limit, so skip advances by what each page returned.
func WalkPages(ctx context.Context, client *HTTPClient, pageSize int, stats *Stats) ([]types.Entry, error) {
	var all []types.Entry
	for {
		page, err := client.Page(ctx, len(all), pageSize)
		if err != nil {
			return nil, err
		}
		stats.PagesWalked++
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
	}
}

// VerifyBoard checks that board lists every expected player exactly once,
// with contiguous ranks, in ranking order, carrying the expected stats.
func VerifyBoard(board []types.Entry, expected map[string]model.PlayerStats) error {
	if len(board) != len(expected) {
		return fmt.Errorf("%w: board has %d players, want %d", ErrMismatch, len(board), len(expected))
	}
	seen := make(map[string]struct{}, len(board))
	var prev model.PlayerStats
	for i, e := range board {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrMismatch, i, e.Rank)
		}
		if _, dup := seen[e.PlayerID]; dup {
			return fmt.Errorf("%w: %s listed twice", ErrMismatch, e.PlayerID)
		}
		seen[e.PlayerID] = struct{}{}

		want, ok := expected[e.PlayerID]
		if !ok {
			return fmt.Errorf("%w: unexpected player %s", ErrMismatch, e.PlayerID)
		}
		if got := types.NewEntry(e.Rank, want); got != e {
			return fmt.Errorf("%w: rank %d is %+v, want %+v", ErrMismatch, e.Rank, e, got)
		}
		if i > 0 && !ranking.Less(prev, want) {
			return fmt.Errorf("%w: rank %d (%s) out of order", ErrMismatch, e.Rank, e.PlayerID)
		}
		prev = want
	}
	return nil
}

// VerifyTop checks that /leaderboard/top agrees with the head of board.
func VerifyTop(ctx context.Context, client *HTTPClient, board []types.Entry, n int) error {
	top, err := client.Top(ctx, n)
	if err != nil {
		return err
	}
	want := board[:min(n, len(board))]
	if len(top) != len(want) {
		return fmt.Errorf("%w: top returned %d entries, want %d", ErrMismatch, len(top), len(want))
	}
	for i := range want {
		if top[i] != want[i] {
			return fmt.Errorf("%w: top[%d] is %s, board has %s", ErrMismatch, i, top[i].PlayerID, want[i].PlayerID)
		}
	}
	return nil
}

// VerifyRanks asks for every player's rank concurrently and checks it
// against their position on board.
func VerifyRanks(ctx context.Context, cfg Config, client *HTTPClient, board []types.Entry, stats *Stats) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, e := range board {
		g.Go(func() error {
			pr, err := client.Rank(ctx, e.PlayerID)
			if err != nil {
				return err
			}
			if pr.Rank != e.Rank || pr.TotalPlayers != len(board) || pr.Score != e.Score {
				return fmt.Errorf("%w: rank of %s is %d/%d score %d, board says %d/%d score %d",
					ErrMismatch, e.PlayerID, pr.Rank, pr.TotalPlayers, pr.Score, e.Rank, len(board), e.Score)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	stats.RanksChecked = len(board)
	return nil
}
