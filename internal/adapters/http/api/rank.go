package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/mathboard/internal/domain/types"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	RankOf(ctx context.Context, playerID string) (types.PlayerRank, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleRank handles GET /leaderboard/rank/{playerID}.
func (h *RankHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "api.rank", chi.URLParam(r, "playerID"))
}

// HandleMyRank handles GET /leaderboard/my-rank for the caller named in the
// X-Player-ID header.
func (h *RankHandler) HandleMyRank(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "api.my_rank", r.Header.Get(PlayerIDHeader))
}

func (h *RankHandler) serve(w http.ResponseWriter, r *http.Request, op, playerID string) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		writeError(w, NewKind(op, ErrMissingPlayer))
		return
	}
	pr, err := h.deps.RankOf(r.Context(), playerID)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, pr)
}
