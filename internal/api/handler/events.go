package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/stakegame/internal/api/middleware"
	"github.com/mcoot/stakegame/internal/broadcast"
	"github.com/mcoot/stakegame/internal/services/match"
)

// EventsHandler subscribes clients to a match's event stream
type EventsHandler struct {
	matches     match.ControllerInterface
	coordinator *broadcast.Coordinator
	upgrader    websocket.Upgrader
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(matches match.ControllerInterface, coordinator *broadcast.Coordinator) *EventsHandler {
	return &EventsHandler{
		matches:     matches,
		coordinator: coordinator,
		upgrader:    broadcast.NewUpgrader(),
	}
}

// SSE handles GET /api/v1/matches/{id}/events
func (h *EventsHandler) SSE(w http.ResponseWriter, r *http.Request) {
	client, ok := h.subscribe(w, r)
	if !ok {
		return
	}

	// Streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	h.coordinator.ServeSSE(w, r, client)
}

// WebSocket handles GET /api/v1/matches/{id}/ws
func (h *EventsHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	client, ok := h.subscribe(w, r)
	if !ok {
		return
	}
	h.coordinator.ServeWS(w, r, h.upgrader, client)
}

func (h *EventsHandler) subscribe(w http.ResponseWriter, r *http.Request) (*broadcast.Client, bool) {
	participant := middleware.MustGetParticipantID(r.Context())

	m, err := h.matches.GetMatch(r.Context(), matchID(r))
	if err != nil {
		WriteError(w, err)
		return nil, false
	}

	client, err := h.coordinator.Subscribe(m.ID, participant)
	if err != nil {
		WriteError(w, err)
		return nil, false
	}
	return client, true
}
