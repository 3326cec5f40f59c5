package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/stakegame/internal/model"
)

const boardCells = 9

var winningLines = [][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// TicTacToe enforces the full rules of 3x3 noughts and crosses.
// Moves are {"type":"place","cell":0..8}; the room owner plays first.
type TicTacToe struct{}

var (
	_ Evaluator     = TicTacToe{}
	_ MoveValidator = TicTacToe{}
)

func (TicTacToe) GameKind() model.GameKind {
	return model.GameTicTacToe
}

func (TicTacToe) ValidateMove(match *model.Match, participant model.ParticipantID, move json.RawMessage) error {
	p, err := decodeMove(move)
	if err != nil {
		return err
	}

	switch p.Type {
	case MoveResign:
		return nil
	case MoveOfferDraw, MoveAcceptDraw:
		if err := checkTurn(match, participant); err != nil {
			return err
		}
		return validateControl(match, participant, p)
	case "place", "":
	default:
		return fmt.Errorf("%w: unknown move type %q", model.ErrInvalidMove, p.Type)
	}

	if err := checkTurn(match, participant); err != nil {
		return err
	}
	if p.Cell == nil || *p.Cell < 0 || *p.Cell >= boardCells {
		return fmt.Errorf("%w: cell must be between 0 and 8", model.ErrInvalidMove)
	}
	board := replay(match)
	if board[*p.Cell] != "" {
		return fmt.Errorf("%w: cell %d is occupied", model.ErrInvalidMove, *p.Cell)
	}
	return nil
}

func (TicTacToe) Evaluate(match *model.Match) Outcome {
	if outcome, ok := controlOutcome(match); ok {
		return outcome
	}

	board := replay(match)
	for _, line := range winningLines {
		owner := board[line[0]]
		if owner != "" && owner == board[line[1]] && owner == board[line[2]] {
			return Decisive(owner, model.EndReasonDecisive)
		}
	}
	for _, cell := range board {
		if cell == "" {
			return Continue()
		}
	}
	return Draw()
}

// replay rebuilds the board from the placement history
func replay(match *model.Match) [boardCells]model.ParticipantID {
	var board [boardCells]model.ParticipantID
	for _, mv := range match.Moves {
		p, err := decodeMove(mv.Payload)
		if err != nil || p.Cell == nil || *p.Cell < 0 || *p.Cell >= boardCells {
			continue
		}
		board[*p.Cell] = mv.ParticipantID
	}
	return board
}
