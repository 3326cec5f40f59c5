package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/stakegame/internal/api/apierr"
	"github.com/mcoot/stakegame/internal/api/handler"
	"github.com/mcoot/stakegame/internal/api/middleware"
	"github.com/mcoot/stakegame/internal/api/response"
	"github.com/mcoot/stakegame/internal/broadcast"
	commonmw "github.com/mcoot/stakegame/internal/middleware"
	"github.com/mcoot/stakegame/internal/services/auth"
	"github.com/mcoot/stakegame/internal/services/escrow"
	"github.com/mcoot/stakegame/internal/services/match"
	"github.com/mcoot/stakegame/internal/services/room"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger          *slog.Logger
	AuthService     *auth.Service
	RoomController  room.ControllerInterface
	MatchController match.ControllerInterface
	Ledger          escrow.LedgerInterface
	Coordinator     *broadcast.Coordinator
	// AdminToken guards the admin routes; empty disables them
	AdminToken string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	participantHandler := handler.NewParticipantHandler(cfg.AuthService)
	roomHandler := handler.NewRoomHandler(cfg.RoomController)
	matchHandler := handler.NewMatchHandler(cfg.MatchController)
	escrowHandler := handler.NewEscrowHandler(cfg.Ledger)
	eventsHandler := handler.NewEventsHandler(cfg.MatchController, cfg.Coordinator)
	adminHandler := handler.NewAdminHandler(cfg.MatchController, cfg.Ledger, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.AuthService)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(commonmw.Recovery(cfg.Logger, apierr.WritePanic))
	api.Use(commonmw.Logging(cfg.Logger))

	// Unauthenticated routes
	api.HandleFunc("/health", healthHandler(cfg.Coordinator)).Methods(http.MethodGet)
	api.HandleFunc("/participants/guest", participantHandler.CreateGuest).Methods(http.MethodPost)

	// Operator routes authenticate with the admin token instead
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.Admin(cfg.AdminToken))
	admin.HandleFunc("/matches/{id}/cancel", adminHandler.CancelMatch).Methods(http.MethodPost)
	admin.HandleFunc("/escrow/{matchId}/executed", adminHandler.RecordExecution).Methods(http.MethodPost)

	// Everything else requires a participant
	protected := api.NewRoute().Subrouter()
	protected.Use(authMiddleware)

	protected.HandleFunc("/participants/me", participantHandler.GetMe).Methods(http.MethodGet)

	protected.HandleFunc("/rooms", roomHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/rooms", roomHandler.Create).Methods(http.MethodPost)
	protected.HandleFunc("/rooms/{id}", roomHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/rooms/{id}/join", roomHandler.Join).Methods(http.MethodPost)
	protected.HandleFunc("/rooms/{id}/leave", roomHandler.Leave).Methods(http.MethodPost)
	protected.HandleFunc("/rooms/{id}/cancel", roomHandler.Cancel).Methods(http.MethodPost)

	protected.HandleFunc("/matches/{id}", matchHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/matches/{id}/moves", matchHandler.Move).Methods(http.MethodPost)
	protected.HandleFunc("/matches/{id}/commit", matchHandler.Commit).Methods(http.MethodPost)
	protected.HandleFunc("/matches/{id}/reveal", matchHandler.Reveal).Methods(http.MethodPost)
	protected.HandleFunc("/matches/{id}/events", eventsHandler.SSE).Methods(http.MethodGet)
	protected.HandleFunc("/matches/{id}/ws", eventsHandler.WebSocket).Methods(http.MethodGet)

	protected.HandleFunc("/escrow/{matchId}", escrowHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/escrow/{matchId}/deposit-intent", escrowHandler.DepositIntent).Methods(http.MethodGet)

	return r
}

func healthHandler(coordinator *broadcast.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, response.Health{Status: "ok", Hubs: coordinator.HubCount()})
	}
}
