package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/ranking"
	"github.com/okian/mathboard/pkg/logger"
	"github.com/okian/mathboard/pkg/metrics"
)

// PgPool is the subset of *pgxpool.Pool the store uses.
type PgPool interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const statsColumns = `player_id, display_name, score, games_played, games_won,
	correct_answers, total_answers, current_streak, best_streak`

// leaderboardOrder must stay identical to ranking.Compare. Player ids compare
// bytewise there, so the final key is pinned to the "C" collation whatever
// the database default is.
const leaderboardOrder = `score DESC, current_streak DESC, games_won DESC, player_id COLLATE "C" ASC`

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS player_stats (
		player_id       VARCHAR(128) COLLATE "C" PRIMARY KEY,
		display_name    VARCHAR(255) NOT NULL DEFAULT '',
		score           BIGINT NOT NULL DEFAULT 0 CHECK (score >= 0),
		games_played    BIGINT NOT NULL DEFAULT 0,
		games_won       BIGINT NOT NULL DEFAULT 0 CHECK (games_won <= games_played),
		correct_answers BIGINT NOT NULL DEFAULT 0 CHECK (correct_answers <= total_answers),
		total_answers   BIGINT NOT NULL DEFAULT 0,
		current_streak  BIGINT NOT NULL DEFAULT 0,
		best_streak     BIGINT NOT NULL DEFAULT 0 CHECK (best_streak >= current_streak),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`DROP INDEX IF EXISTS idx_player_stats_order`,
	`CREATE INDEX IF NOT EXISTS idx_player_stats_rank
		ON player_stats (` + leaderboardOrder + `)`,
}

const (
	sqlInsertIgnore = `INSERT INTO player_stats (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`
	sqlSelectLocked = `SELECT ` + statsColumns + ` FROM player_stats WHERE player_id = $1 FOR UPDATE`
	sqlSelectOne    = `SELECT ` + statsColumns + ` FROM player_stats WHERE player_id = $1`
	sqlUpdate       = `UPDATE player_stats SET display_name = $2, score = $3, games_played = $4, games_won = $5,
		correct_answers = $6, total_answers = $7, current_streak = $8, best_streak = $9, updated_at = now()
		WHERE player_id = $1`
	sqlCount = `SELECT count(*) FROM player_stats`
	sqlPage  = `SELECT ` + statsColumns + ` FROM player_stats ORDER BY ` + leaderboardOrder + ` LIMIT $1 OFFSET $2`
	sqlRank  = `SELECT ` + statsColumns + `, position, total FROM (
		SELECT ` + statsColumns + `,
			ROW_NUMBER() OVER (ORDER BY ` + leaderboardOrder + `) - 1 AS position,
			COUNT(*) OVER () AS total
		FROM player_stats) ranked
		WHERE player_id = $1`
)

// PostgresStore keeps player statistics in a single PostgreSQL table. Each
// update locks the player's row; reads run in a read-only REPEATABLE READ
// transaction so rank and total come from one snapshot.
type PostgresStore struct {
	pool    PgPool
	retries int
	backoff time.Duration
	logger  logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresPool opens and pings a pgx pool.
func NewPostgresPool(ctx context.Context, url string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating connection pool: %w", model.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: connecting to database: %w", model.ErrStoreUnavailable, err)
	}
	return pool, nil
}

// NewPostgresStore wraps pool.
func NewPostgresStore(pool PgPool, opts ...PostgresOption) *PostgresStore {
	p := &PostgresStore{
		pool:    pool,
		retries: 3,
		backoff: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Nop()
	}
	return p
}

// Migrate creates the schema if missing.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := p.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("executing migration: %w", classify(err))
		}
	}
	p.logger.Info(ctx, "database migrations completed")
	return nil
}

// fnError marks a failure returned by the caller's UpdateFunc so it is
// passed through unclassified and never retried.
type fnError struct{ err error }

func (e fnError) Error() string { return e.err.Error() }
func (e fnError) Unwrap() error { return e.err }

// Update runs fn inside a transaction holding the player's row lock.
// Serialization failures and deadlocks are retried; once retries run out the
// caller gets model.ErrConflict.
func (p *PostgresStore) Update(ctx context.Context, playerID string, fn UpdateFunc) (model.PlayerStats, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreUpdateLatency(msSince(start)) }()

	for attempt := 0; ; attempt++ {
		st, err := p.updateOnce(ctx, playerID, fn)
		if err == nil {
			return st, nil
		}
		var fe fnError
		if errors.As(err, &fe) {
			return model.PlayerStats{}, fe.err
		}
		if !isConflict(err) {
			return model.PlayerStats{}, classify(err)
		}
		metrics.RecordStoreConflict()
		if attempt >= p.retries {
			p.logger.Warn(ctx, "update conflict not resolved", logger.String("player_id", playerID), logger.Int("attempts", attempt+1))
			return model.PlayerStats{}, fmt.Errorf("%w: player %s after %d attempts: %w", model.ErrConflict, playerID, attempt+1, err)
		}
		if err := sleepCtx(ctx, p.backoff*time.Duration(attempt+1)); err != nil {
			return model.PlayerStats{}, err
		}
	}
}

func (p *PostgresStore) updateOnce(ctx context.Context, playerID string, fn UpdateFunc) (model.PlayerStats, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return model.PlayerStats{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, sqlInsertIgnore, playerID)
	if err != nil {
		return model.PlayerStats{}, err
	}
	exists := tag.RowsAffected() == 0

	prev, err := scanStats(tx.QueryRow(ctx, sqlSelectLocked, playerID))
	if err != nil {
		return model.PlayerStats{}, err
	}

	next, err := fn(prev, exists)
	if err != nil {
		return model.PlayerStats{}, fnError{err}
	}
	if next.PlayerID != playerID {
		return model.PlayerStats{}, fnError{fmt.Errorf("update for %q returned record for %q", playerID, next.PlayerID)}
	}

	if _, err := tx.Exec(ctx, sqlUpdate, next.PlayerID, next.DisplayName, next.Score, next.GamesPlayed,
		next.GamesWon, next.CorrectAnswers, next.TotalAnswers, next.CurrentStreak, next.BestStreak); err != nil {
		return model.PlayerStats{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.PlayerStats{}, err
	}
	return next, nil
}

// Get returns one player's record.
func (p *PostgresStore) Get(ctx context.Context, playerID string) (model.PlayerStats, error) {
	st, err := scanStats(p.pool.QueryRow(ctx, sqlSelectOne, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PlayerStats{}, fmt.Errorf("%w: %s", model.ErrUnknownPlayer, playerID)
	}
	if err != nil {
		return model.PlayerStats{}, classify(err)
	}
	return st, nil
}

// Count returns the number of players.
func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, sqlCount).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Range returns one ordered page and the total from the same snapshot.
func (p *PostgresStore) Range(ctx context.Context, skip, limit int) (ranking.Window, error) {
	if skip < 0 || limit <= 0 {
		return ranking.Window{}, fmt.Errorf("%w: skip=%d limit=%d", model.ErrInvalidRange, skip, limit)
	}
	var w ranking.Window
	err := p.readSnapshot(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, sqlCount).Scan(&w.Total); err != nil {
			return err
		}
		if skip >= w.Total {
			return nil
		}
		rows, err := tx.Query(ctx, sqlPage, limit, skip)
		if err != nil {
			return err
		}
		defer rows.Close()
		w.Entries = make([]model.PlayerStats, 0, min(limit, w.Total-skip))
		for rows.Next() {
			st, err := scanStats(rows)
			if err != nil {
				return err
			}
			w.Entries = append(w.Entries, st)
		}
		return rows.Err()
	})
	if err != nil {
		return ranking.Window{}, classify(err)
	}
	return w, nil
}

// Position returns the player's index and the total from one window query.
func (p *PostgresStore) Position(ctx context.Context, playerID string) (ranking.Position, error) {
	var pos ranking.Position
	err := p.readSnapshot(ctx, func(tx pgx.Tx) error {
		st, err := scanStats(tx.QueryRow(ctx, sqlRank, playerID), &pos.Index, &pos.Total)
		pos.Stats = st
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return ranking.Position{}, fmt.Errorf("%w: %s", model.ErrUnknownPlayer, playerID)
	}
	if err != nil {
		return ranking.Position{}, classify(err)
	}
	return pos, nil
}

// Close releases the pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) readSnapshot(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// scanStats scans the stats columns followed by any extra destinations.
func scanStats(row pgx.Row, extra ...any) (model.PlayerStats, error) {
	var s model.PlayerStats
	dest := append([]any{
		&s.PlayerID, &s.DisplayName, &s.Score, &s.GamesPlayed, &s.GamesWon,
		&s.CorrectAnswers, &s.TotalAnswers, &s.CurrentStreak, &s.BestStreak,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.PlayerStats{}, err
	}
	return s, nil
}

// isConflict reports serialization failures and deadlocks.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// classify maps driver errors onto the engine taxonomy. Context errors pass
// through so callers can tell cancellation from deadline expiry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, model.ErrStoreUnavailable) || errors.Is(err, model.ErrConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08", // connection exception
			pgErr.Code == "57P01", pgErr.Code == "57P03", pgErr.Code == "53300":
			return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
		case isConflict(err):
			return fmt.Errorf("%w: %w", model.ErrConflict, err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
