package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/stakegame/internal/model"
)

// Control move types understood by every direct-move game
const (
	MoveResign     = "resign"
	MoveOfferDraw  = "offer_draw"
	MoveAcceptDraw = "accept_draw"
)

// movePayload is the envelope shared by direct moves
type movePayload struct {
	Type string `json:"type"`
	Cell *int   `json:"cell,omitempty"`
}

func decodeMove(raw json.RawMessage) (movePayload, error) {
	var p movePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: move must be a JSON object", model.ErrInvalidMove)
	}
	return p, nil
}

// validateControl checks draw acceptance against the previous move
func validateControl(match *model.Match, participant model.ParticipantID, p movePayload) error {
	if p.Type != MoveAcceptDraw {
		return nil
	}
	last := match.LastMove()
	if last == nil || last.ParticipantID == participant {
		return fmt.Errorf("%w: no draw offer to accept", model.ErrInvalidMove)
	}
	prev, err := decodeMove(last.Payload)
	if err != nil || prev.Type != MoveOfferDraw {
		return fmt.Errorf("%w: no draw offer to accept", model.ErrInvalidMove)
	}
	return nil
}

// controlOutcome resolves resignations and accepted draws from the last move
func controlOutcome(match *model.Match) (Outcome, bool) {
	last := match.LastMove()
	if last == nil {
		return Outcome{}, false
	}
	p, err := decodeMove(last.Payload)
	if err != nil {
		return Outcome{}, false
	}
	switch p.Type {
	case MoveResign:
		return Decisive(match.Opponent(last.ParticipantID), model.EndReasonResigned), true
	case MoveAcceptDraw:
		return Draw(), true
	}
	return Outcome{}, false
}

// checkTurn enforces strict alternation starting with the first player
func checkTurn(match *model.Match, participant model.ParticipantID) error {
	if len(match.Players) == 0 {
		return model.ErrNotMember
	}
	next := match.Players[len(match.Moves)%len(match.Players)]
	if next != participant {
		return model.ErrNotYourTurn
	}
	return nil
}
