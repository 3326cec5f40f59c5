package handler

import (
	"net/http"

	"github.com/mcoot/stakegame/internal/api/middleware"
	"github.com/mcoot/stakegame/internal/api/request"
	"github.com/mcoot/stakegame/internal/api/response"
	"github.com/mcoot/stakegame/internal/services/auth"
)

// ParticipantHandler handles identity endpoints
type ParticipantHandler struct {
	authService *auth.Service
}

// NewParticipantHandler creates a new participant handler
func NewParticipantHandler(authService *auth.Service) *ParticipantHandler {
	return &ParticipantHandler{authService: authService}
}

// CreateGuest handles POST /api/v1/participants/guest
func (h *ParticipantHandler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	var req request.CreateGuestRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	session, err := h.authService.CreateGuest(r.Context(), req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, response.AuthResponseFromSession(session))
}

// GetMe handles GET /api/v1/participants/me
func (h *ParticipantHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	participant, err := h.authService.GetParticipant(r.Context(), session.Token)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.OK(w, response.ParticipantFromModel(participant))
}
