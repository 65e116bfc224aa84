package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/mathboard/internal/app"
	"github.com/okian/mathboard/internal/config"
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
)

func TestConfigFromEnv(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("MATHBOARD_ADDR", ":8080")
		t.Setenv("MATHBOARD_QUEUE_SIZE", "1000")
		t.Setenv("MATHBOARD_WORKER_COUNT", "4")

		convey.Convey("Then configuration picks them up", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.ResultQueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
		})
	})
}

func TestServiceOptions(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.TopRefreshIntervalMS = 0

		opts, closers, err := serviceOptions(ctx, cfg, logger.Nop())

		convey.Convey("Then an in-memory service can be built and served", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(closers, convey.ShouldBeEmpty)

			svc := app.New(opts...)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			_, err := svc.Submit(ctx, model.GameResult{PlayerID: "p1", PointsEarned: 5, Won: true})
			convey.So(err, convey.ShouldBeNil)

			h := newRouter(cfg, svc, logger.Nop())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard/rank/p1", http.NoBody))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"rank":1`)

			convey.So(func() { updateServiceMetrics(ctx, svc) }, convey.ShouldNotPanic)
		})
	})

	convey.Convey("Given a registered-only directory", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.IdentityMode = config.IdentityRegistered

		opts, _, err := serviceOptions(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)

		svc := app.New(opts...)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		convey.Convey("Then unknown players are rejected", func() {
			_, err := svc.Submit(ctx, model.GameResult{PlayerID: "stranger"})
			convey.So(errors.Is(err, model.ErrUnknownPlayer), convey.ShouldBeTrue)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given short-lived contexts", t, func() {
		convey.Convey("Then the updaters return when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)

			svc := app.New(app.WithLogger(logger.Nop()))
			ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel2()
			convey.So(func() { startServiceMetricsUpdater(ctx2, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then a direct system update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
