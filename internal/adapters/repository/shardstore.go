package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/ranking"
	"github.com/okian/mathboard/pkg/logger"
	"github.com/okian/mathboard/pkg/metrics"
)

const (
	defaultShardCount            = 16
	defaultMetricsUpdateInterval = 5 * time.Second
)

// shard owns a disjoint subset of players and their order index.
type shard struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.PlayerStats
}

// ShardStore is the in-memory Store. Players are partitioned by
// xxhash(playerID) so writers for different shards never contend. Readers
// read-lock every shard in index order, which gives a consistent snapshot.
type ShardStore struct {
	shards                []*shard
	shardCount            int
	metricsUpdateInterval time.Duration
	logger                logger.Logger

	// version is bumped under the writer's shard lock on every update.
	version atomic.Uint64
	closed  atomic.Bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

var _ Store = (*ShardStore)(nil)

// NewShardStore constructs a sharded store and starts its metrics updater.
func NewShardStore(ctx context.Context, opts ...Option) *ShardStore {
	s := &ShardStore{
		shardCount:            defaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{byID: make(map[string]model.PlayerStats)}
	}

	metrics.UpdateStoreShardCount(s.shardCount)
	s.startMetricsUpdater(ctx)
	return s
}

func (s *ShardStore) shardFor(playerID string) *shard {
	return s.shards[xxhash.Sum64String(playerID)%uint64(len(s.shards))]
}

// Update applies fn to the player's record under that player's shard lock.
func (s *ShardStore) Update(ctx context.Context, playerID string, fn UpdateFunc) (model.PlayerStats, error) {
	if err := s.check(ctx); err != nil {
		return model.PlayerStats{}, err
	}
	start := time.Now()
	defer func() { metrics.RecordStoreUpdateLatency(msSince(start)) }()

	sh := s.shardFor(playerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev, exists := sh.byID[playerID]
	if !exists {
		prev = model.PlayerStats{PlayerID: playerID}
	}
	next, err := fn(prev, exists)
	if err != nil {
		return model.PlayerStats{}, err
	}
	if next.PlayerID != playerID {
		return model.PlayerStats{}, fmt.Errorf("update for %q returned record for %q", playerID, next.PlayerID)
	}

	if exists {
		sh.root = remove(sh.root, prev)
	}
	sh.root = insert(sh.root, next)
	sh.byID[playerID] = next
	s.version.Add(1)
	return next, nil
}

// Get returns the player's current record.
func (s *ShardStore) Get(ctx context.Context, playerID string) (model.PlayerStats, error) {
	if err := s.check(ctx); err != nil {
		return model.PlayerStats{}, err
	}
	sh := s.shardFor(playerID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	st, ok := sh.byID[playerID]
	if !ok {
		return model.PlayerStats{}, fmt.Errorf("%w: %s", model.ErrUnknownPlayer, playerID)
	}
	return st, nil
}

// Count returns the number of players across all shards.
func (s *ShardStore) Count(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	s.rlockAll()
	defer s.runlockAll()
	return s.totalLocked(), nil
}

// Version reports the number of updates applied so far.
func (s *ShardStore) Version() uint64 {
	return s.version.Load()
}

// Range returns the players at positions [skip, skip+limit) of the total order.
func (s *ShardStore) Range(ctx context.Context, skip, limit int) (ranking.Window, error) {
	if err := s.check(ctx); err != nil {
		return ranking.Window{}, err
	}
	if skip < 0 || limit <= 0 {
		return ranking.Window{}, fmt.Errorf("%w: skip=%d limit=%d", model.ErrInvalidRange, skip, limit)
	}

	s.rlockAll()
	defer s.runlockAll()

	total := s.totalLocked()
	w := ranking.Window{Total: total, Version: s.version.Load()}
	if skip >= total {
		return w, nil
	}

	iters, err := s.iteratorsAtLocked(skip)
	if err != nil {
		s.logger.Error(ctx, "order index inconsistent", logger.Int("skip", skip), logger.Int("total", total), logger.Error(err))
		return ranking.Window{}, err
	}
	n := min(limit, total-skip)
	w.Entries = make([]model.PlayerStats, 0, n)
	for len(w.Entries) < n {
		best := -1
		var bestStats model.PlayerStats
		for i, it := range iters {
			st, ok := it.peek()
			if !ok {
				continue
			}
			if best < 0 || ranking.Less(st, bestStats) {
				best, bestStats = i, st
			}
		}
		if best < 0 {
			break
		}
		w.Entries = append(w.Entries, bestStats)
		iters[best].next()
	}
	return w, nil
}

// Position returns the player's 0-based index and the total from one snapshot.
func (s *ShardStore) Position(ctx context.Context, playerID string) (ranking.Position, error) {
	if err := s.check(ctx); err != nil {
		return ranking.Position{}, err
	}

	s.rlockAll()
	defer s.runlockAll()

	st, ok := s.shardFor(playerID).byID[playerID]
	if !ok {
		return ranking.Position{}, fmt.Errorf("%w: %s", model.ErrUnknownPlayer, playerID)
	}
	return ranking.Position{
		Index:   s.aheadLocked(st),
		Total:   s.totalLocked(),
		Stats:   st,
		Version: s.version.Load(),
	}, nil
}

// Close stops the metrics updater. Further calls fail with ErrClosed.
func (s *ShardStore) Close() error {
	s.closed.Store(true)
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *ShardStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// rlockAll takes every shard's read lock in index order. Writers only ever
// hold one shard lock, so the fixed order cannot deadlock.
func (s *ShardStore) rlockAll() {
	for _, sh := range s.shards {
		sh.mu.RLock()
	}
}

func (s *ShardStore) runlockAll() {
	for i := len(s.shards) - 1; i >= 0; i-- {
		s.shards[i].mu.RUnlock()
	}
}

func (s *ShardStore) totalLocked() int {
	total := 0
	for _, sh := range s.shards {
		total += nsize(sh.root)
	}
	return total
}

// aheadLocked counts players ranked strictly ahead of st across all shards.
func (s *ShardStore) aheadLocked(st model.PlayerStats) int {
	ahead := 0
	for _, sh := range s.shards {
		ahead += countBefore(sh.root, st)
	}
	return ahead
}

// iteratorsAtLocked returns one iterator per shard positioned so that merging
// them yields the total order starting at global position skip. skip must be
// below the total.
func (s *ShardStore) iteratorsAtLocked(skip int) ([]*iterator, error) {
	pivot, err := s.pivotLocked(skip)
	if err != nil {
		return nil, err
	}
	iters := make([]*iterator, len(s.shards))
	for i, sh := range s.shards {
		iters[i] = seek(sh.root, countBefore(sh.root, pivot))
	}
	return iters, nil
}

// pivotLocked finds the record at global position k. Within one shard the
// global position of its j-th record grows with j, so a binary search per
// shard finds the owner.
func (s *ShardStore) pivotLocked(k int) (model.PlayerStats, error) {
	for _, sh := range s.shards {
		lo, hi := 0, nsize(sh.root)-1
		for lo <= hi {
			mid := lo + (hi-lo)/2
			cand := kth(sh.root, mid)
			switch pos := s.aheadLocked(cand); {
			case pos == k:
				return cand, nil
			case pos < k:
				lo = mid + 1
			default:
				hi = mid - 1
			}
		}
	}
	// Exactly one record sits at each position below the total.
	return model.PlayerStats{}, fmt.Errorf("no record at position %d", k)
}

func (s *ShardStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *ShardStore) updateMetrics() {
	total := 0
	for i, sh := range s.shards {
		sh.mu.RLock()
		n := len(sh.byID)
		sh.mu.RUnlock()
		total += n
		metrics.UpdateStoreRecordsPerShard(strconv.Itoa(i), n)
	}
	metrics.UpdatePlayersTotal(total)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
