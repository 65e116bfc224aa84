package ranking

import (
	"context"

	"github.com/okian/mathboard/internal/domain/model"
)

// Window is an ordered slice of one store snapshot.
type Window struct {
	// Entries holds the records at positions [skip, skip+len) of the total order.
	Entries []model.PlayerStats
	// Total is the number of players in the same snapshot.
	Total int
	// Version identifies the snapshot when the source is versioned.
	Version uint64
}

// Position is one player's place in a snapshot.
type Position struct {
	// Index is the 0-based position in the total order.
	Index   int
	Total   int
	Stats   model.PlayerStats
	Version uint64
}

// Source is what the resolver reads from. Implementations must take Range and
// Position from a single consistent snapshot each.
type Source interface {
	Range(ctx context.Context, skip, limit int) (Window, error)
	Position(ctx context.Context, playerID string) (Position, error)
}

// Versioned is implemented by sources that can cheaply report a counter that
// changes whenever any record changes.
type Versioned interface {
	Version() uint64
}
