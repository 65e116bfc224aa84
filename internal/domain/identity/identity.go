// Package identity resolves player IDs to the profile the leaderboard shows.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/mathboard/internal/domain/model"
)

// Mode decides how the in-memory directory treats IDs it has never seen.
type Mode string

const (
	// ModeOpen accepts any well-formed ID.
	ModeOpen Mode = "open"
	// ModeRegistered only accepts IDs added with Register.
	ModeRegistered Mode = "registered"
)

// Identity is what the leaderboard knows about a player.
type Identity struct {
	PlayerID    string
	DisplayName string
}

// Resolver looks up players. Resolve returns model.ErrUnknownPlayer when the
// ID cannot be resolved.
type Resolver interface {
	Resolve(ctx context.Context, playerID string) (Identity, error)
}

// Registrar is implemented by directories that can record new players.
type Registrar interface {
	Register(ctx context.Context, playerID, displayName string) error
}

// Directory is an in-memory Resolver.
type Directory struct {
	mu      sync.RWMutex
	names   map[string]string
	mode    Mode
	latency time.Duration
}

var (
	_ Resolver  = (*Directory)(nil)
	_ Registrar = (*Directory)(nil)
)

// NewDirectory creates an in-memory directory. The default mode is ModeOpen.
func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		names: make(map[string]string),
		mode:  ModeOpen,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve returns the registered display name. In open mode an unregistered
// ID resolves with an empty display name.
func (d *Directory) Resolve(ctx context.Context, playerID string) (Identity, error) {
	if d.latency > 0 {
		select {
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		case <-time.After(d.latency):
		}
	} else if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	if strings.TrimSpace(playerID) == "" {
		return Identity{}, fmt.Errorf("%w: empty player id", model.ErrUnknownPlayer)
	}

	d.mu.RLock()
	name, ok := d.names[playerID]
	d.mu.RUnlock()

	if !ok && d.mode == ModeRegistered {
		return Identity{}, fmt.Errorf("%w: %s", model.ErrUnknownPlayer, playerID)
	}
	return Identity{PlayerID: playerID, DisplayName: name}, nil
}

// Register adds or renames a player.
func (d *Directory) Register(_ context.Context, playerID, displayName string) error {
	if err := model.ValidatePlayerID(playerID); err != nil {
		return err
	}
	d.mu.Lock()
	d.names[playerID] = displayName
	d.mu.Unlock()
	return nil
}

// Len returns the number of registered players.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}
