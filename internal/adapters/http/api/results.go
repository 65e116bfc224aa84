package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/mathboard/internal/app"
	"github.com/okian/mathboard/internal/domain/model"
)

// ResultDependencies accepts finished games.
type ResultDependencies interface {
	Submit(ctx context.Context, r model.GameResult) (service.Receipt, error)
	Enqueue(ctx context.Context, r model.GameResult) (service.Receipt, error)
}

// ResultsHandler handles game result submissions.
type ResultsHandler struct {
	deps ResultDependencies
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultDependencies) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

type ackResponse struct {
	Status    string             `json:"status"`
	Duplicate bool               `json:"duplicate"`
	ResultID  string             `json:"result_id,omitempty"`
	Stats     *model.PlayerStats `json:"stats,omitempty"`
}

// HandleSubmit handles POST /results. The result is applied before the
// response is written.
func (h *ResultsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_result"
	res, err := decodeResult(w, r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	rec, err := h.deps.Submit(r.Context(), res)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if rec.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, ResultID: rec.ResultID})
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "applied", ResultID: rec.ResultID, Stats: &rec.Stats})
}

// HandleEnqueue handles POST /results/async.
func (h *ResultsHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.enqueue_result"
	res, err := decodeResult(w, r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	rec, err := h.deps.Enqueue(r.Context(), res)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if rec.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, ResultID: rec.ResultID})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ResultID: rec.ResultID})
}

func decodeResult(w http.ResponseWriter, r *http.Request) (model.GameResult, error) {
	var res model.GameResult
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&res); err != nil {
		return model.GameResult{}, err
	}
	return res, nil
}
