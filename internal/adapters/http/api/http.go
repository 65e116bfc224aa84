// Package api serves the leaderboard HTTP contract.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/okian/mathboard/internal/adapters/http/swagger"
	service "github.com/okian/mathboard/internal/app"
	"github.com/okian/mathboard/internal/domain/identity"
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/types"
	"github.com/okian/mathboard/pkg/logger"
)

const (
	defaultPageSize       = 10
	defaultRequestTimeout = 2 * time.Second
	maxBodyBytes          = 1 << 20

	// PlayerIDHeader carries the caller's identity, set by the auth proxy.
	PlayerIDHeader = "X-Player-ID"

	// PageLimitHeader reports the page size served after capping.
	PageLimitHeader = "X-Page-Limit"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Submit(ctx context.Context, r model.GameResult) (service.Receipt, error)
	Enqueue(ctx context.Context, r model.GameResult) (service.Receipt, error)

	GlobalPage(ctx context.Context, skip, limit int) ([]types.Entry, error)
	TopN(ctx context.Context, n int) ([]types.Entry, error)
	RankOf(ctx context.Context, playerID string) (types.PlayerRank, error)
	MaxPageSize() int

	RegisterPlayer(ctx context.Context, playerID, displayName string) (identity.Identity, error)

	GetStats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the leaderboard API.
type Server struct {
	deps            Dependencies
	defaultPageSize int
	requestTimeout  time.Duration
	allowedOrigins  []string
	logger          logger.Logger

	results     *ResultsHandler
	leaderboard *LeaderboardHandler
	rank        *RankHandler
	players     *PlayersHandler
	health      *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:            deps,
		defaultPageSize: defaultPageSize,
		requestTimeout:  defaultRequestTimeout,
		allowedOrigins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.results = NewResultsHandler(deps)
	s.leaderboard = NewLeaderboardHandler(deps, s.defaultPageSize)
	s.rank = NewRankHandler(deps)
	s.players = NewPlayersHandler(deps)
	s.health = NewHealthHandler(deps)
	return s
}

// Router returns the HTTP handler serving every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", PlayerIDHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, PageLimitHeader},
		MaxAge:         300,
	}))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.health.HandleHealth)
	r.Handle("/metrics", s.health.MetricsHandler())
	swagger.Mount(r)

	r.Group(func(r chi.Router) {
		r.Use(Deadline(s.requestTimeout))

		r.Get("/stats", s.health.HandleStats)
		r.Post("/results", s.results.HandleSubmit)
		r.Post("/results/async", s.results.HandleEnqueue)
		r.Post("/players", s.players.HandleRegister)

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/global", s.leaderboard.HandleGlobal)
			r.Get("/top", s.leaderboard.HandleTop)
			r.Get("/top-10", s.leaderboard.HandleTop10)
			r.Get("/rank/{playerID}", s.rank.HandleRank)
			r.Get("/my-rank", s.rank.HandleMyRank)
		})
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// classify maps the error taxonomy onto HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range"
	case errors.Is(err, model.ErrInvalidResult), errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingPlayer):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrUnknownPlayer):
		return http.StatusNotFound, "unknown_player"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, model.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, model.ErrStoreUnavailable), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, service.ErrRegistrationUnsupported):
		return http.StatusNotImplemented, "registration_unsupported"
	}
	return http.StatusInternalServerError, "internal_error"
}
