package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/mathboard/internal/loadgen"
	"github.com/okian/mathboard/pkg/logger"
)

const (
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	runTimeout     = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		players  = flag.Int("players", loadgen.DefaultPlayers, "Distinct players")
		games    = flag.Int("games", loadgen.DefaultGames, "Game results to submit")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		pageSize = flag.Int("page", loadgen.DefaultPageSize, "Page size for the leaderboard walk")
		timeout  = flag.Duration("timeout", loadgen.DefaultTimeout, "HTTP request timeout")
		async    = flag.Bool("async", false, "Submit through /results/async")
		register = flag.Bool("register", false, "Register every player before submitting")
		settle   = flag.Duration("settle", loadgen.DefaultSettle, "How long async verification keeps retrying")
		seed     = flag.Uint64("seed", 1, "Generator seed")
		output   = flag.String("output", "", "Write the generated games to this JSON file")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	cfg := loadgen.Config{
		BaseURL:  *baseURL,
		Players:  *players,
		Games:    *games,
		Workers:  *workers,
		PageSize: *pageSize,
		Timeout:  *timeout,
		Async:    *async,
		Register: *register,
		Settle:   *settle,
		Seed:     *seed,
		Output:   *output,
		Verbose:  *verbose,
		Log:      logger.Named("loadgen"),
	}
	code := run(cfg)
	_ = logger.Sync()
	os.Exit(code)
}

func run(cfg loadgen.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		cfg.Log.Error(ctx, "load run failed", logger.Error(err))
		return 1
	}
	cfg.Log.Info(ctx, "load run passed")
	return 0
}
