package evaluator

import "github.com/mcoot/stakegame/internal/model"

// RockPaperScissors evaluates the current commit-reveal round
type RockPaperScissors struct{}

var _ Evaluator = RockPaperScissors{}

func (RockPaperScissors) GameKind() model.GameKind {
	return model.GameRockPaperScissors
}

// Evaluate continues until both commitments of the round are revealed
func (RockPaperScissors) Evaluate(match *model.Match) Outcome {
	revealed := match.RevealedCommits()
	if len(match.Players) != 2 || len(revealed) != 2 {
		return Continue()
	}

	a, b := revealed[0], revealed[1]
	switch {
	case a.Move == b.Move:
		return Draw()
	case a.Move.Beats(b.Move):
		return Decisive(a.ParticipantID, model.EndReasonDecisive)
	default:
		return Decisive(b.ParticipantID, model.EndReasonDecisive)
	}
}
