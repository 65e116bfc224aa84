package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/mathboard/internal/adapters/directory"
	"github.com/okian/mathboard/internal/adapters/http/api"
	"github.com/okian/mathboard/internal/adapters/mq/kafka"
	"github.com/okian/mathboard/internal/adapters/repository"
	app "github.com/okian/mathboard/internal/app"
	"github.com/okian/mathboard/internal/config"
	"github.com/okian/mathboard/internal/domain/identity"
	"github.com/okian/mathboard/pkg/logger"
	"github.com/okian/mathboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Custom system metrics replace the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	code := 0
	if err := run(); err != nil {
		logger.Get().Error(context.Background(), "mathboard exited", logger.Error(err))
		code = 1
	}
	_ = logger.Sync()
	os.Exit(code)
}

func run() error {
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	var cleanup []func() error
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if err := cleanup[i](); err != nil {
				log.Warn(context.Background(), "cleanup failed", logger.Error(err))
			}
		}
	}()

	opts, closers, err := serviceOptions(ctx, cfg, log)
	cleanup = append(cleanup, closers...)
	if err != nil {
		return err
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	var consumer *kafka.Consumer
	if cfg.KafkaEnabled {
		consumer, err = kafka.NewConsumer(kafka.Config{
			Brokers: cfg.Brokers(),
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, svc, log.Named("kafka"))
		if err != nil {
			_ = svc.Stop(context.Background())
			return fmt.Errorf("kafka consumer: %w", err)
		}
		consumer.Start(ctx)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("kafka shutdown: %w", err))
		}
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("service shutdown: %w", err))
	}

	log.Info(shutdownCtx, "server stopped")
	return errors.Join(errs...)
}

// serviceOptions turns configuration into service options, opening any
// external store or directory. The returned closers release what was opened
// and are valid even when err is non-nil.
func serviceOptions(ctx context.Context, cfg *config.Config, log logger.Logger) ([]app.Option, []func() error, error) {
	opts := []app.Option{
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.ResultQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithShardCount(cfg.ShardCount),
		app.WithMaxPageSize(cfg.MaxPageSize),
		app.WithTopRefreshInterval(cfg.TopRefreshInterval()),
	}
	var closers []func() error

	if cfg.StoreDriver == config.StorePostgres {
		pool, err := repository.NewPostgresPool(ctx, cfg.PostgresURL, cfg.PostgresMaxConns)
		if err != nil {
			return nil, closers, err
		}
		store := repository.NewPostgresStore(pool,
			repository.WithConflictRetries(cfg.ConflictRetries),
			repository.WithPostgresLogger(log.Named("postgres")))
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, closers, err
		}
		// Service.Stop closes the store.
		opts = append(opts, app.WithStore(store))
	}

	switch cfg.IdentityMode {
	case config.IdentityRedis:
		client, err := directory.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, client.Close)
		opts = append(opts, app.WithIdentity(directory.NewRedisDirectory(client, log.Named("directory"))))
	case config.IdentityRegistered:
		opts = append(opts, app.WithIdentity(identity.NewDirectory(identity.WithMode(identity.ModeRegistered))))
	default:
		opts = append(opts, app.WithIdentity(identity.NewDirectory(identity.WithMode(identity.ModeOpen))))
	}
	return opts, closers, nil
}

func newRouter(cfg *config.Config, svc api.Dependencies, log logger.Logger) http.Handler {
	return api.NewServer(svc,
		api.WithDefaultPageSize(cfg.DefaultPageSize),
		api.WithRequestTimeout(cfg.RequestTimeout()),
		api.WithAllowedOrigins(cfg.AllowedOrigins()),
		api.WithLogger(log.Named("http")),
	).Router()
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater updates service metrics until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics publishes gauges GetStats does not already set.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
