// Package directory holds identity resolvers backed by external stores.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/mathboard/internal/domain/identity"
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
)

const nameField = "username"

// RedisClient is the subset of go-redis the directory needs.
type RedisClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// RedisDirectory resolves players from the player:<id>:info hashes written
// by the account service. Only players with a hash resolve.
type RedisDirectory struct {
	client RedisClient
	logger logger.Logger
}

var (
	_ identity.Resolver  = (*RedisDirectory)(nil)
	_ identity.Registrar = (*RedisDirectory)(nil)
)

// NewRedisClient opens and pings a go-redis client.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewRedisDirectory wraps client. A nil log falls back to a no-op logger.
func NewRedisDirectory(client RedisClient, log logger.Logger) *RedisDirectory {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisDirectory{client: client, logger: log}
}

func infoKey(playerID string) string {
	return fmt.Sprintf("player:%s:info", playerID)
}

// Resolve reads the player's display name.
func (d *RedisDirectory) Resolve(ctx context.Context, playerID string) (identity.Identity, error) {
	if playerID == "" {
		return identity.Identity{}, fmt.Errorf("%w: empty player id", model.ErrUnknownPlayer)
	}
	name, err := d.client.HGet(ctx, infoKey(playerID), nameField).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return identity.Identity{}, fmt.Errorf("%w: %s", model.ErrUnknownPlayer, playerID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return identity.Identity{}, err
	case err != nil:
		d.logger.Warn(ctx, "identity lookup failed", logger.String("player_id", playerID), logger.Error(err))
		return identity.Identity{}, fmt.Errorf("%w: identity lookup: %w", model.ErrStoreUnavailable, err)
	}
	return identity.Identity{PlayerID: playerID, DisplayName: name}, nil
}

// Register writes the player's display name.
func (d *RedisDirectory) Register(ctx context.Context, playerID, displayName string) error {
	if err := model.ValidatePlayerID(playerID); err != nil {
		return err
	}
	if err := d.client.HSet(ctx, infoKey(playerID), nameField, displayName).Err(); err != nil {
		return fmt.Errorf("%w: identity register: %w", model.ErrStoreUnavailable, err)
	}
	return nil
}
