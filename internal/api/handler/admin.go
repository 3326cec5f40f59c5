package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/stakegame/internal/api/apierr"
	"github.com/mcoot/stakegame/internal/api/request"
	"github.com/mcoot/stakegame/internal/api/response"
	"github.com/mcoot/stakegame/internal/services/escrow"
	"github.com/mcoot/stakegame/internal/services/match"
)

// AdminHandler handles operator overrides
type AdminHandler struct {
	matches match.ControllerInterface
	ledger  escrow.LedgerInterface
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(matches match.ControllerInterface, ledger escrow.LedgerInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{matches: matches, ledger: ledger, logger: logger}
}

// CancelMatch handles POST /api/v1/admin/matches/{id}/cancel. The escrow is
// refunded.
func (h *AdminHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	id := matchID(r)
	m, err := h.matches.CancelMatch(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.logger.Warn("match cancelled by operator", slog.String("match_id", string(id)))
	response.OK(w, response.MatchFromModel(m))
}

// RecordExecution handles POST /api/v1/admin/escrow/{matchId}/executed
func (h *AdminHandler) RecordExecution(w http.ResponseWriter, r *http.Request) {
	var req request.RecordExecutionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if req.TxRef == "" {
		WriteError(w, apierr.NewInvalidRequestError("tx_ref is required"))
		return
	}

	record, err := h.ledger.RecordExecution(r.Context(), escrowMatchID(r), req.TxRef)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.EscrowFromModel(record))
}
