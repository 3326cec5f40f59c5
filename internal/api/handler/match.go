package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/stakegame/internal/api/apierr"
	"github.com/mcoot/stakegame/internal/api/middleware"
	"github.com/mcoot/stakegame/internal/api/request"
	"github.com/mcoot/stakegame/internal/api/response"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/commitment"
	"github.com/mcoot/stakegame/internal/services/match"
)

// MatchHandler handles match orchestration endpoints
type MatchHandler struct {
	matches match.ControllerInterface
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(matches match.ControllerInterface) *MatchHandler {
	return &MatchHandler{matches: matches}
}

// Get handles GET /api/v1/matches/{id}
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.matches.GetMatch(r.Context(), matchID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.MatchFromModel(m))
}

// Move handles POST /api/v1/matches/{id}/moves
func (h *MatchHandler) Move(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipantID(r.Context())

	var req request.MoveRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if len(req.Move) == 0 {
		WriteError(w, apierr.NewInvalidRequestError("move is required"))
		return
	}

	m, err := h.matches.SubmitMove(r.Context(), matchID(r), participant, req.Move)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.MatchFromModel(m))
}

// Commit handles POST /api/v1/matches/{id}/commit
func (h *MatchHandler) Commit(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipantID(r.Context())

	var req request.CommitRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	hash, err := commitment.Decode(req.Hash)
	if err != nil {
		WriteError(w, err)
		return
	}

	m, err := h.matches.SubmitCommit(r.Context(), matchID(r), participant, hash)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.MatchFromModel(m))
}

// Reveal handles POST /api/v1/matches/{id}/reveal. A reveal that does not
// open the commit forfeits the match and is answered with 422.
func (h *MatchHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipantID(r.Context())

	var req request.RevealRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	m, err := h.matches.SubmitReveal(r.Context(), matchID(r), participant, req.Move, req.Salt)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.MatchFromModel(m))
}

func matchID(r *http.Request) model.MatchID {
	return model.MatchID(mux.Vars(r)["id"])
}
