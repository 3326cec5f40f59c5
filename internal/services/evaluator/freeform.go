package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/stakegame/internal/model"
)

// Freeform records moves for games whose rules are enforced by the
// clients. The server only decides resignations and agreed draws.
type Freeform struct {
	kind       model.GameKind
	alternates bool
}

var (
	_ Evaluator     = (*Freeform)(nil)
	_ MoveValidator = (*Freeform)(nil)
)

// NewFreeform creates a freeform evaluator; alternates enforces strict turns
func NewFreeform(kind model.GameKind, alternates bool) *Freeform {
	return &Freeform{kind: kind, alternates: alternates}
}

func (f *Freeform) GameKind() model.GameKind {
	return f.kind
}

func (f *Freeform) ValidateMove(match *model.Match, participant model.ParticipantID, move json.RawMessage) error {
	p, err := decodeMove(move)
	if err != nil {
		return err
	}
	if p.Type == "" {
		return fmt.Errorf("%w: move type is required", model.ErrInvalidMove)
	}
	// Resigning is allowed out of turn
	if f.alternates && p.Type != MoveResign {
		if err := checkTurn(match, participant); err != nil {
			return err
		}
	}
	return validateControl(match, participant, p)
}

func (f *Freeform) Evaluate(match *model.Match) Outcome {
	if outcome, ok := controlOutcome(match); ok {
		return outcome
	}
	return Continue()
}
