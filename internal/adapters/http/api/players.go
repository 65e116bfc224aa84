package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/mathboard/internal/domain/identity"
)

// PlayerDependencies records players in the identity directory.
type PlayerDependencies interface {
	RegisterPlayer(ctx context.Context, playerID, displayName string) (identity.Identity, error)
}

// PlayersHandler handles player registration.
type PlayersHandler struct {
	deps PlayerDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayerDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

type playerRequest struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

type playerResponse struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

// HandleRegister handles POST /players. Registering an existing player
// replaces its display name.
func (h *PlayersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_player"
	var req playerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.PlayerID) == "" {
		writeError(w, NewKind(op, ErrMissingPlayer))
		return
	}
	id, err := h.deps.RegisterPlayer(r.Context(), req.PlayerID, req.DisplayName)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, playerResponse{PlayerID: id.PlayerID, DisplayName: id.DisplayName})
}
