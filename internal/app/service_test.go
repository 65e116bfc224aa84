package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	service "github.com/okian/mathboard/internal/app"
	"github.com/okian/mathboard/internal/domain/identity"
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithLogger(logger.Nop()),
		service.WithShardCount(4),
		service.WithTopRefreshInterval(0),
	}
	return service.New(append(base, opts...)...)
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was not started", t, func() {
		ctx := context.Background()
		svc := newService()

		Convey("Then every operation reports ErrNotStarted", func() {
			_, err := svc.Submit(ctx, model.GameResult{PlayerID: "p1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.TopN(ctx, 10)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			So(svc.Stop(ctx), ShouldBeNil)
		})

		Convey("When it is started twice and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats(ctx)["started"], ShouldEqual, true)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it reports stopped", func() {
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When A, B and C submit results", func() {
			for _, r := range []model.GameResult{
				{PlayerID: "A", PointsEarned: 50, Won: true},
				{PlayerID: "A", PointsEarned: 50, Won: true},
				{PlayerID: "B", PointsEarned: 100, Won: true},
				{PlayerID: "C", PointsEarned: 50, Won: true},
			} {
				_, err := svc.Submit(ctx, r)
				So(err, ShouldBeNil)
			}

			Convey("Then the global page orders them by score then streak", func() {
				page, err := svc.GlobalPage(ctx, 0, 10)
				So(err, ShouldBeNil)
				So(len(page), ShouldEqual, 3)
				So(page[0].PlayerID, ShouldEqual, "A")
				So(page[0].CurrentStreak, ShouldEqual, 2)
				So(page[1].PlayerID, ShouldEqual, "B")
				So(page[2].PlayerID, ShouldEqual, "C")
				So(page[2].Rank, ShouldEqual, 3)
			})

			Convey("Then RankOf agrees with the page", func() {
				pr, err := svc.RankOf(ctx, "C")
				So(err, ShouldBeNil)
				So(pr.Rank, ShouldEqual, 3)
				So(pr.TotalPlayers, ShouldEqual, 3)
				So(pr.DisplayName, ShouldEqual, "C")
			})

			Convey("Then TopN returns the leaders", func() {
				top, err := svc.TopN(ctx, 2)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 2)
				So(top[0].PlayerID, ShouldEqual, "A")
			})

			Convey("Then stats report the player count", func() {
				stats := svc.GetStats(ctx)
				So(stats["totalPlayers"], ShouldEqual, 3)
			})
		})

		Convey("When the same result is submitted twice", func() {
			r := model.GameResult{ResultID: "game-1", PlayerID: "p1", PointsEarned: 10, Won: true}
			first, err := svc.Submit(ctx, r)
			So(err, ShouldBeNil)
			second, err := svc.Submit(ctx, r)
			So(err, ShouldBeNil)

			Convey("Then the second is reported as a duplicate and not applied", func() {
				So(first.Duplicate, ShouldBeFalse)
				So(first.Stats.GamesPlayed, ShouldEqual, 1)
				So(second.Duplicate, ShouldBeTrue)
				pr, err := svc.RankOf(ctx, "p1")
				So(err, ShouldBeNil)
				So(pr.Score, ShouldEqual, 10)
			})
		})

		Convey("When a result without an ID is submitted", func() {
			rec, err := svc.Submit(ctx, model.GameResult{PlayerID: "p1"})

			Convey("Then one is assigned", func() {
				So(err, ShouldBeNil)
				So(rec.ResultID, ShouldNotBeEmpty)
			})
		})

		Convey("When the result is malformed", func() {
			_, err := svc.Submit(ctx, model.GameResult{PlayerID: ""})

			Convey("Then it is rejected as invalid", func() {
				So(errors.Is(err, model.ErrInvalidResult), ShouldBeTrue)
			})
		})

		Convey("When queries are out of range", func() {
			_, err := svc.GlobalPage(ctx, -1, 10)
			So(errors.Is(err, model.ErrInvalidRange), ShouldBeTrue)
			_, err = svc.TopN(ctx, 0)
			So(errors.Is(err, model.ErrInvalidRange), ShouldBeTrue)
			_, err = svc.RankOf(ctx, "ghost")
			So(errors.Is(err, model.ErrUnknownPlayer), ShouldBeTrue)
		})
	})
}

func TestService_Timeout(t *testing.T) {
	Convey("Given a service whose identity lookups are slow", t, func() {
		ctx := context.Background()
		svc := newService(service.WithIdentity(identity.NewDirectory(identity.WithLatency(200 * time.Millisecond))))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When the request deadline is shorter than the lookup", func() {
			tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			_, err := svc.Submit(tctx, model.GameResult{ResultID: "r1", PlayerID: "p1", PointsEarned: 1})

			Convey("Then the error is a timeout", func() {
				So(errors.Is(err, model.ErrTimeout), ShouldBeTrue)
			})

			Convey("And the result may be resubmitted", func() {
				rec, err := svc.Submit(ctx, model.GameResult{ResultID: "r1", PlayerID: "p1", PointsEarned: 1})
				So(err, ShouldBeNil)
				So(rec.Duplicate, ShouldBeFalse)
			})
		})
	})
}

func TestService_Enqueue(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := newService(service.WithWorkerCount(3))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When results are enqueued for several players", func() {
			for i := 0; i < 10; i++ {
				for p := 0; p < 5; p++ {
					r := model.GameResult{ResultID: fmt.Sprintf("r-%d-%d", p, i), PlayerID: fmt.Sprintf("p%d", p), PointsEarned: 1, Won: true}
					rec, err := svc.Enqueue(ctx, r)
					So(err, ShouldBeNil)
					So(rec.Duplicate, ShouldBeFalse)
				}
			}

			Convey("Then the workers apply all of them", func() {
				ok := eventually(2*time.Second, func() bool {
					for p := 0; p < 5; p++ {
						pr, err := svc.RankOf(ctx, fmt.Sprintf("p%d", p))
						if err != nil || pr.Score != 10 {
							return false
						}
					}
					return true
				})
				So(ok, ShouldBeTrue)
			})

			Convey("And a redelivered result is a duplicate", func() {
				rec, err := svc.Enqueue(ctx, model.GameResult{ResultID: "r-0-0", PlayerID: "p0", PointsEarned: 1})
				So(err, ShouldBeNil)
				So(rec.Duplicate, ShouldBeTrue)
			})
		})
	})

	Convey("Given a service with a tiny queue and a slow worker", t, func() {
		ctx := context.Background()
		svc := newService(
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithInboxSize(1),
			service.WithIdentity(identity.NewDirectory(identity.WithLatency(100*time.Millisecond))),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When results arrive faster than they are applied", func() {
			var err error
			for i := 0; i < 20 && err == nil; i++ {
				_, err = svc.Enqueue(ctx, model.GameResult{ResultID: fmt.Sprintf("r%d", i), PlayerID: "p1"})
			}

			Convey("Then the caller is told to back off", func() {
				So(errors.Is(err, model.ErrBackpressure), ShouldBeTrue)
			})
		})
	})
}

type lookupOnly struct{}

func (lookupOnly) Resolve(_ context.Context, playerID string) (identity.Identity, error) {
	return identity.Identity{PlayerID: playerID}, nil
}

func TestService_RegisterPlayer(t *testing.T) {
	Convey("Given a started service with a registered-only directory", t, func() {
		ctx := context.Background()
		svc := newService(service.WithIdentity(identity.NewDirectory(identity.WithMode(identity.ModeRegistered))))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When a player registers and then submits", func() {
			id, err := svc.RegisterPlayer(ctx, "ada", "Ada")
			So(err, ShouldBeNil)
			So(id.DisplayName, ShouldEqual, "Ada")

			rec, err := svc.Submit(ctx, model.GameResult{PlayerID: "ada", PointsEarned: 4, Won: true})

			Convey("Then the result is applied under the registered name", func() {
				So(err, ShouldBeNil)
				So(rec.Stats.DisplayName, ShouldEqual, "Ada")
				So(rec.Stats.Score, ShouldEqual, 4)
			})
		})

		Convey("When the player id is blank", func() {
			_, err := svc.RegisterPlayer(ctx, "  ", "Nobody")

			Convey("Then it is rejected as invalid", func() {
				So(errors.Is(err, model.ErrInvalidResult), ShouldBeTrue)
			})
		})
	})

	Convey("Given an identity backend that can only look players up", t, func() {
		ctx := context.Background()
		svc := newService(service.WithIdentity(lookupOnly{}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("Then registration is reported as unsupported", func() {
			_, err := svc.RegisterPlayer(ctx, "ada", "Ada")
			So(errors.Is(err, service.ErrRegistrationUnsupported), ShouldBeTrue)
		})
	})

	Convey("Given a service that was not started", t, func() {
		_, err := newService().RegisterPlayer(context.Background(), "ada", "Ada")

		Convey("Then registration is refused", func() {
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}
