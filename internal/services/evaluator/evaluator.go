// Package evaluator decides match outcomes, one implementation per game kind.
package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/stakegame/internal/model"
)

// OutcomeKind is the verdict an evaluator reaches on a match
type OutcomeKind string

const (
	OutcomeContinue OutcomeKind = "continue"
	OutcomeDecisive OutcomeKind = "decisive"
	OutcomeDraw     OutcomeKind = "draw"
)

// Outcome is the result of evaluating a match's history
type Outcome struct {
	Kind   OutcomeKind
	Winner model.ParticipantID // Decisive only
	Reason model.EndReason
}

// Continue is the outcome of an undecided match
func Continue() Outcome { return Outcome{Kind: OutcomeContinue} }

// Decisive returns a win for the given participant
func Decisive(winner model.ParticipantID, reason model.EndReason) Outcome {
	return Outcome{Kind: OutcomeDecisive, Winner: winner, Reason: reason}
}

// Draw returns a drawn outcome
func Draw() Outcome { return Outcome{Kind: OutcomeDraw, Reason: model.EndReasonDraw} }

// Evaluator decides the outcome of a match from its recorded history
type Evaluator interface {
	GameKind() model.GameKind
	Evaluate(match *model.Match) Outcome
}

// MoveValidator is implemented by direct-move evaluators to reject a move
// before it is appended to the history
type MoveValidator interface {
	ValidateMove(match *model.Match, participant model.ParticipantID, move json.RawMessage) error
}

// Registry dispatches to the evaluator for a game kind
type Registry struct {
	evaluators map[model.GameKind]Evaluator
}

// NewRegistry creates a registry holding the given evaluators
func NewRegistry(evaluators ...Evaluator) *Registry {
	r := &Registry{evaluators: make(map[model.GameKind]Evaluator, len(evaluators))}
	for _, e := range evaluators {
		r.evaluators[e.GameKind()] = e
	}
	return r
}

// DefaultRegistry returns a registry with every supported game kind
func DefaultRegistry() *Registry {
	return NewRegistry(
		RockPaperScissors{},
		TicTacToe{},
		NewFreeform(model.GameChess, true),
		NewFreeform(model.GameCheckers, true),
		NewFreeform(model.GameDurak, false),
	)
}

// Get returns the evaluator for a game kind
func (r *Registry) Get(kind model.GameKind) (Evaluator, error) {
	e, ok := r.evaluators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedGame, kind)
	}
	return e, nil
}

// Supports reports whether the registry can evaluate a game kind
func (r *Registry) Supports(kind model.GameKind) bool {
	_, ok := r.evaluators[kind]
	return ok
}
