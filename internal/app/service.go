// Package service is the query and ingestion façade the transports call. It
// owns the process wiring: store, identity, dedupe, queue, workers and the
// rank resolver.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/mathboard/internal/adapters/mq/queue"
	"github.com/okian/mathboard/internal/adapters/mq/worker"
	"github.com/okian/mathboard/internal/adapters/repository"
	"github.com/okian/mathboard/internal/domain/aggregator"
	"github.com/okian/mathboard/internal/domain/dedupe"
	"github.com/okian/mathboard/internal/domain/identity"
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/ranking"
	"github.com/okian/mathboard/internal/domain/types"
	"github.com/okian/mathboard/pkg/logger"
	"github.com/okian/mathboard/pkg/metrics"
)

var (
	// ErrNotStarted is returned by every operation before Start.
	ErrNotStarted = errors.New("service not started")

	// ErrRegistrationUnsupported means the identity backend cannot record players.
	ErrRegistrationUnsupported = errors.New("identity backend does not accept registrations")
)

// Receipt describes what happened to a submitted result.
type Receipt struct {
	ResultID  string
	Duplicate bool
	// Stats is the player's record after a synchronous apply. It is empty
	// for duplicates and queued results.
	Stats model.PlayerStats
}

// Service implements the API dependencies for the leaderboard.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	ids      identity.Resolver
	deduper  dedupe.Deduper
	results  *queue.InMemoryQueue
	agg      *aggregator.Aggregator
	resolver *ranking.Resolver
	pool     *worker.Pool

	workerCount     int
	queueSize       int
	inboxSize       int
	dedupeSize      int
	shardCount      int
	maxPageSize     int
	refreshInterval time.Duration
	applyTimeout    time.Duration

	started bool
	logger  logger.Logger
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       100_000,
		dedupeSize:      500_000,
		shardCount:      16,
		maxPageSize:     ranking.DefaultMaxPageSize,
		refreshInterval: time.Second,
		applyTimeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components not supplied through options and starts the
// workers and the top cache refresher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting ranking service...")

	if s.store == nil {
		s.store = repository.NewShardStore(ctx,
			repository.WithShardCount(s.shardCount),
			repository.WithLogger(s.logger.Named("store")),
		)
		s.logger.Info(ctx, "using in-memory shard store", logger.Int("shards", s.shardCount))
	}
	if s.ids == nil {
		s.ids = identity.NewDirectory()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.results = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.agg = aggregator.New(s.store,
		aggregator.WithResolver(s.ids),
		aggregator.WithLogger(s.logger.Named("aggregator")),
	)
	s.resolver = ranking.NewResolver(s.store,
		ranking.WithMaxPageSize(s.maxPageSize),
		ranking.WithRefreshInterval(s.refreshInterval),
		ranking.WithLogger(s.logger.Named("ranking")),
	)
	s.pool = worker.NewPool(s.results, s.agg,
		worker.WithWorkerCount(s.workerCount),
		worker.WithInboxSize(s.inboxSize),
		worker.WithApplyTimeout(s.applyTimeout),
		worker.WithErrorHandler(s.onApplyError),
		worker.WithLogger(s.logger.Named("workers")),
	)

	s.resolver.Start(ctx)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxPageSize", s.maxPageSize),
	)
	return nil
}

// Stop drains queued results, stops background work and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping ranking service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping workers: %w", err))
	}
	s.resolver.Stop()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
	return errors.Join(errs...)
}

// Submit applies r synchronously. A result whose ResultID was already seen is
// reported as a duplicate and not applied again.
func (s *Service) Submit(ctx context.Context, r model.GameResult) (Receipt, error) {
	if err := s.ready(); err != nil {
		return Receipt{}, err
	}
	if err := r.Validate(); err != nil {
		metrics.RecordResultRejected("invalid")
		return Receipt{}, err
	}
	if r.ResultID == "" {
		r.ResultID = uuid.NewString()
	}
	if s.seen(ctx, r.ResultID) {
		return Receipt{ResultID: r.ResultID, Duplicate: true}, nil
	}

	st, err := s.agg.Apply(ctx, r)
	if err != nil {
		s.deduper.Unrecord(ctx, r.ResultID)
		return Receipt{}, mapErr(err)
	}
	return Receipt{ResultID: r.ResultID, Stats: st}, nil
}

// Enqueue accepts r for asynchronous application. It never blocks; a full
// queue is reported as model.ErrBackpressure.
func (s *Service) Enqueue(ctx context.Context, r model.GameResult) (Receipt, error) {
	if err := s.ready(); err != nil {
		return Receipt{}, err
	}
	if err := r.Validate(); err != nil {
		metrics.RecordResultRejected("invalid")
		return Receipt{}, err
	}
	if r.ResultID == "" {
		r.ResultID = uuid.NewString()
	}
	if s.seen(ctx, r.ResultID) {
		return Receipt{ResultID: r.ResultID, Duplicate: true}, nil
	}

	if !s.results.Enqueue(ctx, r) {
		s.deduper.Unrecord(ctx, r.ResultID)
		if err := ctx.Err(); err != nil {
			return Receipt{}, mapErr(err)
		}
		return Receipt{}, fmt.Errorf("%w: %d results queued", model.ErrBackpressure, s.results.Len(ctx))
	}
	return Receipt{ResultID: r.ResultID}, nil
}

// RegisterPlayer records playerID and its display name in the identity
// directory. Registered-only directories reject results from players that
// never went through here.
func (s *Service) RegisterPlayer(ctx context.Context, playerID, displayName string) (identity.Identity, error) {
	if err := s.ready(); err != nil {
		return identity.Identity{}, err
	}
	if err := model.ValidatePlayerID(playerID); err != nil {
		return identity.Identity{}, err
	}
	reg, ok := s.ids.(identity.Registrar)
	if !ok {
		return identity.Identity{}, ErrRegistrationUnsupported
	}
	if err := reg.Register(ctx, playerID, displayName); err != nil {
		return identity.Identity{}, mapErr(err)
	}
	s.logger.Debug(ctx, "player registered", logger.String("player_id", playerID))
	return identity.Identity{PlayerID: playerID, DisplayName: displayName}, nil
}

// GlobalPage returns ranks skip+1 .. skip+limit.
func (s *Service) GlobalPage(ctx context.Context, skip, limit int) ([]types.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	page, err := s.resolver.GlobalPage(ctx, skip, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	return types.Entries(page), nil
}

// TopN returns the first n ranks.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	page, err := s.resolver.TopN(ctx, n)
	if err != nil {
		return nil, mapErr(err)
	}
	return types.Entries(page), nil
}

// RankOf returns the player's rank and the total number of ranked players.
func (s *Service) RankOf(ctx context.Context, playerID string) (types.PlayerRank, error) {
	if err := s.ready(); err != nil {
		return types.PlayerRank{}, err
	}
	pr, err := s.resolver.RankOf(ctx, playerID)
	if err != nil {
		return types.PlayerRank{}, mapErr(err)
	}
	return types.NewPlayerRank(pr), nil
}

// MaxPageSize reports the page size cap.
func (s *Service) MaxPageSize() int { return s.maxPageSize }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"maxPageSize": s.maxPageSize,
	}
	if !s.started {
		return stats
	}

	stats["queueLength"] = s.results.Len(ctx)
	stats["dedupeEntries"] = s.deduper.Size()
	if n, err := s.store.Count(ctx); err == nil {
		stats["totalPlayers"] = n
		metrics.UpdatePlayersTotal(n)
	} else {
		stats["storeError"] = err.Error()
	}
	if v, ok := s.store.(ranking.Versioned); ok {
		stats["storeVersion"] = v.Version()
	}
	return stats
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) seen(ctx context.Context, resultID string) bool {
	if s.deduper.SeenAndRecord(ctx, resultID) {
		metrics.RecordResultDuplicate()
		s.logger.Debug(ctx, "duplicate result skipped", logger.String("result_id", resultID))
		return true
	}
	return false
}

// onApplyError forgets results that failed for reasons a resend could fix,
// so the producer's retry is not dropped as a duplicate.
func (s *Service) onApplyError(ctx context.Context, r model.GameResult, err error) {
	if errors.Is(err, model.ErrInvalidResult) || errors.Is(err, model.ErrUnknownPlayer) {
		return
	}
	s.deduper.Unrecord(ctx, r.ResultID)
}

// mapErr turns deadline expiry into model.ErrTimeout. Everything else is
// already part of the model error taxonomy.
func mapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, model.ErrTimeout) {
		return fmt.Errorf("%w: %w", model.ErrTimeout, err)
	}
	return err
}
