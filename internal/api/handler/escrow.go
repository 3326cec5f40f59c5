package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/stakegame/internal/api/middleware"
	"github.com/mcoot/stakegame/internal/api/response"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/escrow"
)

// EscrowHandler handles escrow ledger endpoints
type EscrowHandler struct {
	ledger escrow.LedgerInterface
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(ledger escrow.LedgerInterface) *EscrowHandler {
	return &EscrowHandler{ledger: ledger}
}

// Get handles GET /api/v1/escrow/{matchId}
func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.ledger.Get(r.Context(), escrowMatchID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.EscrowFromModel(record))
}

// DepositIntent handles GET /api/v1/escrow/{matchId}/deposit-intent
func (h *EscrowHandler) DepositIntent(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipantID(r.Context())

	intent, err := h.ledger.DepositIntent(r.Context(), escrowMatchID(r), participant)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.DepositIntentFromModel(intent))
}

func escrowMatchID(r *http.Request) model.MatchID {
	return model.MatchID(mux.Vars(r)["matchId"])
}
