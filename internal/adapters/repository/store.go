// Package repository holds the statistics store implementations: a sharded
// in-memory store and a PostgreSQL store.
package repository

import (
	"context"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/ranking"
)

// UpdateFunc is the per-player read-modify-write step.
type UpdateFunc = model.UpdateFunc

// Store is the keyed statistics store. Update is atomic per player and its
// result is visible to every read that starts after it returns. Range and
// Position each read a single consistent snapshot.
type Store interface {
	ranking.Source

	Update(ctx context.Context, playerID string, fn UpdateFunc) (model.PlayerStats, error)

	// Get returns model.ErrUnknownPlayer when the player has no record.
	Get(ctx context.Context, playerID string) (model.PlayerStats, error)

	Count(ctx context.Context) (int, error)

	Close() error
}
