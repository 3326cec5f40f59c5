package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/stakegame/internal/api/apierr"
	"github.com/mcoot/stakegame/internal/api/middleware"
	"github.com/mcoot/stakegame/internal/api/request"
	"github.com/mcoot/stakegame/internal/api/response"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/room"
)

// RoomHandler handles room registry endpoints
type RoomHandler struct {
	rooms room.ControllerInterface
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms room.ControllerInterface) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// Create handles POST /api/v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipantID(r.Context())

	var req request.CreateRoomRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	rm, err := h.rooms.CreateRoom(r.Context(), participant, room.CreateParams{
		GameKind: req.GameKind,
		Stake:    req.Stake,
		FeeBps:   req.FeeBps,
		Privacy:  req.Privacy,
		JoinCode: req.JoinCode,
		Rules:    req.Rules,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, response.RoomFromModel(rm))
}

// List handles GET /api/v1/rooms
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RoomFilter{
		GameKind:       model.GameKind(q.Get("game_kind")),
		Status:         model.RoomStatus(q.Get("status")),
		IncludePrivate: q.Get("include_private") == "true",
	}

	if v := q.Get("stake"); v != "" {
		stake, err := model.ParseAmount(v)
		if err != nil {
			WriteError(w, apierr.NewInvalidRequestError("Invalid stake filter"))
			return
		}
		filter.Stake = stake
	}
	for _, p := range []struct {
		name string
		dest *int
	}{{"page", &filter.Page}, {"limit", &filter.Limit}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, apierr.NewInvalidRequestError("Invalid "+p.name))
			return
		}
		*p.dest = n
	}

	rooms, err := h.rooms.ListRooms(r.Context(), filter)
	if err != nil {
		WriteError(w, err)
		return
	}

	page, limit := room.NormalizePage(filter.Page, filter.Limit)
	response.OK(w, response.RoomListFromModel(rooms, page, limit))
}

// Get handles GET /api/v1/rooms/{id}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.GetRoom(r.Context(), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.RoomFromModel(rm))
}

// Join handles POST /api/v1/rooms/{id}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipantID(r.Context())

	var req request.JoinRoomRequest
	if err := decodeJSON(r, &req, true); err != nil {
		WriteError(w, err)
		return
	}

	rm, err := h.rooms.JoinRoom(r.Context(), roomID(r), participant, req.JoinCode)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.RoomFromModel(rm))
}

// Leave handles POST /api/v1/rooms/{id}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipantID(r.Context())

	rm, err := h.rooms.LeaveRoom(r.Context(), roomID(r), participant)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.RoomFromModel(rm))
}

// Cancel handles POST /api/v1/rooms/{id}/cancel
func (h *RoomHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipantID(r.Context())

	rm, err := h.rooms.CancelRoom(r.Context(), roomID(r), participant)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.RoomFromModel(rm))
}

func roomID(r *http.Request) model.RoomID {
	return model.RoomID(mux.Vars(r)["id"])
}
