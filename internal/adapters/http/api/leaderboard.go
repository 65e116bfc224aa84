package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/types"
)

// LeaderboardDependencies defines the leaderboard read operations.
type LeaderboardDependencies interface {
	GlobalPage(ctx context.Context, skip, limit int) ([]types.Entry, error)
	TopN(ctx context.Context, n int) ([]types.Entry, error)
	MaxPageSize() int
}

// LeaderboardHandler serves leaderboard pages.
type LeaderboardHandler struct {
	deps        LeaderboardDependencies
	defaultSize int
}

// NewLeaderboardHandler creates a leaderboard handler. defaultSize is used
// when the client omits limit or n.
func NewLeaderboardHandler(deps LeaderboardDependencies, defaultSize int) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, defaultSize: defaultSize}
}

// HandleGlobal handles GET /leaderboard/global?skip=S&limit=L.
func (h *LeaderboardHandler) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	const op = "api.global_page"
	skip, err := intParam(r, "skip", 0)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	limit, err := intParam(r, "limit", h.defaultSize)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	entries, err := h.deps.GlobalPage(r.Context(), skip, limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	h.setPageLimit(w, limit)
	writeJSON(w, http.StatusOK, entries)
}

// HandleTop handles GET /leaderboard/top?n=N.
func (h *LeaderboardHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	const op = "api.top_n"
	n, err := intParam(r, "n", h.defaultSize)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	h.top(w, r, op, n)
}

// HandleTop10 handles GET /leaderboard/top-10.
func (h *LeaderboardHandler) HandleTop10(w http.ResponseWriter, r *http.Request) {
	h.top(w, r, "api.top_10", 10)
}

func (h *LeaderboardHandler) top(w http.ResponseWriter, r *http.Request, op string, n int) {
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	h.setPageLimit(w, n)
	writeJSON(w, http.StatusOK, entries)
}

// setPageLimit reports the page size actually served. Requests above the
// cap are trimmed, so a page shorter than the requested limit is only the
// last one when it is also shorter than this value.
func (h *LeaderboardHandler) setPageLimit(w http.ResponseWriter, requested int) {
	effective := requested
	if limit := h.deps.MaxPageSize(); limit > 0 && effective > limit {
		effective = limit
	}
	w.Header().Set(PageLimitHeader, strconv.Itoa(effective))
}

// intParam reads an integer query parameter, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", model.ErrInvalidRange, name, raw)
	}
	return v, nil
}
