// Package aggregator folds accepted game results into player statistics.
package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/okian/mathboard/internal/domain/identity"
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
	"github.com/okian/mathboard/pkg/metrics"
)

// Updater is the part of the statistics store the aggregator writes through.
type Updater interface {
	Update(ctx context.Context, playerID string, fn model.UpdateFunc) (model.PlayerStats, error)
}

// Aggregator applies one GameResult at a time. It holds no state of its own;
// atomicity per player comes from the store.
type Aggregator struct {
	store  Updater
	ids    identity.Resolver
	logger logger.Logger
}

// New returns an Aggregator writing to store. Without WithResolver every
// well-formed player ID is accepted.
func New(store Updater, opts ...Option) *Aggregator {
	a := &Aggregator{store: store}
	for _, opt := range opts {
		opt(a)
	}
	if a.ids == nil {
		a.ids = identity.NewDirectory()
	}
	if a.logger == nil {
		a.logger = logger.Nop()
	}
	return a
}

// Apply validates r, resolves the player and folds r into the player's
// record. The returned record is the one now visible to readers.
func (a *Aggregator) Apply(ctx context.Context, r model.GameResult) (model.PlayerStats, error) {
	start := time.Now()

	if err := r.Validate(); err != nil {
		metrics.RecordResultRejected("invalid")
		return model.PlayerStats{}, err
	}

	who, err := a.ids.Resolve(ctx, r.PlayerID)
	if err != nil {
		if errors.Is(err, model.ErrUnknownPlayer) {
			metrics.RecordResultRejected("unknown_player")
		} else {
			metrics.RecordErrorByComponent("aggregator", "identity")
		}
		return model.PlayerStats{}, err
	}

	st, err := a.store.Update(ctx, r.PlayerID, func(prev model.PlayerStats, _ bool) (model.PlayerStats, error) {
		next, err := prev.Next(r)
		if err != nil {
			return prev, err
		}
		next.DisplayName = displayName(who.DisplayName, r.DisplayName, prev.DisplayName, r.PlayerID)
		return next, nil
	})
	if errors.Is(err, model.ErrInvalidResult) {
		metrics.RecordResultRejected("overflow")
		return model.PlayerStats{}, err
	}
	if err != nil {
		metrics.RecordErrorByComponent("aggregator", "store")
		a.logger.Warn(ctx, "applying result failed",
			logger.String("player_id", r.PlayerID),
			logger.String("result_id", r.ResultID),
			logger.Error(err))
		return model.PlayerStats{}, err
	}

	metrics.RecordResultApplied(float64(time.Since(start).Microseconds()) / 1000)
	return st, nil
}

// displayName picks the first non-empty candidate: the directory, then the
// submitted result, then the stored record, then the player ID.
func displayName(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
