package ranking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
	"github.com/okian/mathboard/pkg/metrics"
)

// DefaultMaxPageSize caps page and top-N sizes when no option overrides it.
const DefaultMaxPageSize = 10

// Entry is one row of the leaderboard.
type Entry struct {
	Rank  int
	Stats model.PlayerStats
}

// PlayerRank is a player's position together with the snapshot size.
type PlayerRank struct {
	Rank         int
	TotalPlayers int
	Stats        model.PlayerStats
}

// topCache holds the first maxPage entries of one snapshot.
type topCache struct {
	version uint64
	builtAt time.Time
	entries []Entry
}

// Resolver answers rank queries over a Source.
type Resolver struct {
	src             Source
	maxPage         int
	refreshInterval time.Duration
	logger          logger.Logger

	mu  sync.RWMutex
	top *topCache

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewResolver creates a resolver over src.
func NewResolver(src Source, opts ...Option) *Resolver {
	r := &Resolver{
		src:      src,
		maxPage:  DefaultMaxPageSize,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	return r
}

// MaxPageSize reports the configured cap.
func (r *Resolver) MaxPageSize() int { return r.maxPage }

// GlobalPage returns the entries at positions [skip, skip+limit) of the total
// order. limit is capped at the configured maximum. A page shorter than the
// capped limit means the end of the order was reached.
func (r *Resolver) GlobalPage(ctx context.Context, skip, limit int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordQueryLatency("global_page", msSince(start)) }()

	if skip < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: skip=%d limit=%d", model.ErrInvalidRange, skip, limit)
	}
	limit = min(limit, r.maxPage)

	w, err := r.src.Range(ctx, skip, limit)
	if err != nil {
		return nil, err
	}
	metrics.UpdatePlayersTotal(w.Total)
	return rankWindow(skip, w.Entries), nil
}

// TopN is GlobalPage(0, n), served from a cache of the top slice.
func (r *Resolver) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordQueryLatency("top_n", msSince(start)) }()

	if n <= 0 {
		return nil, fmt.Errorf("%w: n=%d", model.ErrInvalidRange, n)
	}
	n = min(n, r.maxPage)

	if c := r.cached(); c != nil {
		metrics.RecordTopCacheHit()
		return copyPrefix(c.entries, n), nil
	}

	metrics.RecordTopCacheMiss()
	c, err := r.rebuildTop(ctx)
	if err != nil {
		return nil, err
	}
	return copyPrefix(c.entries, n), nil
}

// RankOf returns the player's 1-based rank and the player count of the same snapshot.
func (r *Resolver) RankOf(ctx context.Context, playerID string) (PlayerRank, error) {
	start := time.Now()
	defer func() { metrics.RecordQueryLatency("rank_of", msSince(start)) }()

	if playerID == "" {
		return PlayerRank{}, fmt.Errorf("%w: empty player id", model.ErrUnknownPlayer)
	}
	p, err := r.src.Position(ctx, playerID)
	if err != nil {
		return PlayerRank{}, err
	}
	rank := p.Index + 1
	if rank < 1 || rank > p.Total {
		return PlayerRank{}, fmt.Errorf("rank %d outside [1, %d] for %s", rank, p.Total, playerID)
	}
	return PlayerRank{Rank: rank, TotalPlayers: p.Total, Stats: p.Stats}, nil
}

// cached returns the top cache if it still reflects the source.
func (r *Resolver) cached() *topCache {
	r.mu.RLock()
	c := r.top
	r.mu.RUnlock()
	if c == nil {
		return nil
	}
	if v, ok := r.src.(Versioned); ok {
		if v.Version() == c.version {
			return c
		}
		return nil
	}
	// Unversioned sources are only cached while the refresher keeps the slice fresh.
	if r.refreshInterval > 0 && time.Since(c.builtAt) < r.refreshInterval {
		return c
	}
	return nil
}

func (r *Resolver) rebuildTop(ctx context.Context) (*topCache, error) {
	w, err := r.src.Range(ctx, 0, r.maxPage)
	if err != nil {
		return nil, err
	}
	c := &topCache{version: w.Version, builtAt: time.Now(), entries: rankWindow(0, w.Entries)}

	r.mu.Lock()
	// Keep whichever cache saw the newer snapshot.
	if r.top == nil || r.top.version <= c.version {
		r.top = c
	}
	r.mu.Unlock()

	metrics.UpdatePlayersTotal(w.Total)
	return c, nil
}

// Start launches the eager top cache refresher when an interval is configured.
func (r *Resolver) Start(ctx context.Context) {
	if r.refreshInterval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				if r.cached() != nil {
					continue
				}
				if _, err := r.rebuildTop(ctx); err != nil {
					r.logger.Warn(ctx, "top cache refresh failed", logger.Error(err))
					continue
				}
				metrics.RecordTopRefresh()
			}
		}
	}()
}

// Stop terminates the refresher and waits for it.
func (r *Resolver) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

func rankWindow(skip int, records []model.PlayerStats) []Entry {
	out := make([]Entry, len(records))
	for i, s := range records {
		out[i] = Entry{Rank: skip + i + 1, Stats: s}
	}
	return out
}

func copyPrefix(entries []Entry, n int) []Entry {
	n = min(n, len(entries))
	out := make([]Entry, n)
	copy(out, entries[:n])
	return out
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
