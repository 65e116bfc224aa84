package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/mathboard/internal/adapters/mq/queue"
	"github.com/okian/mathboard/internal/adapters/mq/worker"
	"github.com/okian/mathboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// recordingApplier remembers the order results were applied per player and
// flags any overlap between two applies for the same player.
type recordingApplier struct {
	mu       sync.Mutex
	seq      map[string][]string
	inFlight map[string]bool
	overlap  bool
	fail     map[string]error
	delay    time.Duration
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{
		seq:      map[string][]string{},
		inFlight: map[string]bool{},
		fail:     map[string]error{},
	}
}

func (a *recordingApplier) Apply(ctx context.Context, r model.GameResult) (model.PlayerStats, error) {
	a.mu.Lock()
	if a.inFlight[r.PlayerID] {
		a.overlap = true
	}
	a.inFlight[r.PlayerID] = true
	err := a.fail[r.ResultID]
	a.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight[r.PlayerID] = false
	if err != nil {
		return model.PlayerStats{}, err
	}
	a.seq[r.PlayerID] = append(a.seq[r.PlayerID], r.ResultID)
	return model.PlayerStats{PlayerID: r.PlayerID}, nil
}

func (a *recordingApplier) applied(playerID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.seq[playerID]...)
}

func TestPool_PerPlayerOrder(t *testing.T) {
	Convey("Given a pool of four workers over a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10_000))
		app := newRecordingApplier()
		pool := worker.NewPool(q, app, worker.WithWorkerCount(4), worker.WithInboxSize(8))
		pool.Start(ctx)

		const players, perPlayer = 20, 50
		for i := 0; i < perPlayer; i++ {
			for p := 0; p < players; p++ {
				ok := q.Enqueue(ctx, model.GameResult{
					ResultID: fmt.Sprintf("%02d-%03d", p, i),
					PlayerID: fmt.Sprintf("player-%02d", p),
				})
				So(ok, ShouldBeTrue)
			}
		}

		Convey("When the pool shuts down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			So(pool.Shutdown(sctx), ShouldBeNil)

			Convey("Then every result was applied in arrival order per player", func() {
				So(pool.Size(), ShouldEqual, 4)
				for p := 0; p < players; p++ {
					got := app.applied(fmt.Sprintf("player-%02d", p))
					So(len(got), ShouldEqual, perPlayer)
					for i, id := range got {
						So(id, ShouldEqual, fmt.Sprintf("%02d-%03d", p, i))
					}
				}
			})

			Convey("And no player had two results applied at once", func() {
				So(app.overlap, ShouldBeFalse)
			})
		})
	})
}

func TestPool_ErrorHandler(t *testing.T) {
	Convey("Given a pool whose applier rejects one result", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		app := newRecordingApplier()
		app.fail["bad"] = model.ErrStoreUnavailable

		var mu sync.Mutex
		var failed []string
		pool := worker.NewPool(q, app, worker.WithWorkerCount(2), worker.WithErrorHandler(
			func(_ context.Context, r model.GameResult, err error) {
				mu.Lock()
				defer mu.Unlock()
				if errors.Is(err, model.ErrStoreUnavailable) {
					failed = append(failed, r.ResultID)
				}
			}))
		pool.Start(ctx)

		q.Enqueue(ctx, model.GameResult{ResultID: "good", PlayerID: "p1"})
		q.Enqueue(ctx, model.GameResult{ResultID: "bad", PlayerID: "p1"})
		q.Enqueue(ctx, model.GameResult{ResultID: "after", PlayerID: "p1"})
		So(pool.Shutdown(ctx), ShouldBeNil)

		Convey("Then the handler sees the failure and later results still apply", func() {
			So(failed, ShouldResemble, []string{"bad"})
			So(app.applied("p1"), ShouldResemble, []string{"good", "after"})
		})
	})
}

func TestPool_Shutdown(t *testing.T) {
	Convey("Given a pool that was never started", t, func() {
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(q, newRecordingApplier())

		Convey("Then shutdown closes the queue and returns at once", func() {
			So(pool.Shutdown(context.Background()), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
		})
	})

	Convey("Given a pool stuck on a slow applier", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		app := newRecordingApplier()
		app.delay = time.Second
		pool := worker.NewPool(q, app, worker.WithWorkerCount(1))
		pool.Start(ctx)
		q.Enqueue(ctx, model.GameResult{ResultID: "slow", PlayerID: "p1"})
		q.Enqueue(ctx, model.GameResult{ResultID: "slower", PlayerID: "p1"})

		Convey("When shutdown's deadline is shorter than the backlog", func() {
			sctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(sctx)

			Convey("Then shutdown reports the deadline", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}
