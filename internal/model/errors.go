package model

import "errors"

// Error kinds. Every concrete error below matches exactly one kind with
// errors.Is, which is what the API layer uses to pick a status code.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrUnavailable       = errors.New("unavailable")
)

// Common errors used across the application
var (
	// Request errors
	ErrUnsupportedGame = newKindError(ErrInvalidRequest, "unsupported game kind")
	ErrInvalidStake    = newKindError(ErrInvalidRequest, "stake must be a positive amount")
	ErrInvalidFee      = newKindError(ErrInvalidRequest, "fee must be between 0 and 10000 basis points")
	ErrInvalidMove     = newKindError(ErrInvalidRequest, "invalid move")
	ErrInvalidCommit   = newKindError(ErrInvalidRequest, "invalid commit hash")
	ErrWrongDiscipline = newKindError(ErrInvalidRequest, "operation not supported by this game kind")
	ErrUnknownWinner   = newKindError(ErrInvalidRequest, "winner is not a contributor")

	// Lookup errors
	ErrParticipantNotFound = newKindError(ErrNotFound, "participant not found")
	ErrRoomNotFound        = newKindError(ErrNotFound, "room not found")
	ErrMatchNotFound       = newKindError(ErrNotFound, "match not found")
	ErrEscrowNotFound      = newKindError(ErrNotFound, "escrow not found")
	ErrNotMember           = newKindError(ErrNotFound, "participant is not a member")
	ErrNoCommit            = newKindError(ErrNotFound, "no commit for participant")

	// Permission errors
	ErrInvalidSession  = newKindError(ErrForbidden, "invalid session")
	ErrInvalidJoinCode = newKindError(ErrForbidden, "invalid join code")
	ErrNotOwner        = newKindError(ErrForbidden, "participant is not the room owner")

	// Room state errors
	ErrAlreadyMember   = newKindError(ErrConflict, "participant is already a member")
	ErrRoomFull        = newKindError(ErrConflict, "room is full")
	ErrRoomNotJoinable = newKindError(ErrConflict, "room is not accepting members")
	ErrRoomLocked      = newKindError(ErrConflict, "room is locked")

	// Match state errors
	ErrMatchClosed      = newKindError(ErrConflict, "match is closed")
	ErrDuplicateCommit  = newKindError(ErrConflict, "participant has already committed")
	ErrNotYetRevealable = newKindError(ErrConflict, "opponent has not committed yet")
	ErrAlreadyRevealed  = newKindError(ErrConflict, "participant has already revealed")
	ErrNotYourTurn      = newKindError(ErrConflict, "not this participant's turn")

	// Escrow state errors
	ErrAlreadyClosed = newKindError(ErrConflict, "escrow is already closed")
	ErrEscrowBound   = newKindError(ErrConflict, "escrow is bound to other contributors")

	// Protocol errors
	ErrHashMismatch = newKindError(ErrProtocolViolation, "revealed move does not match commit")
)

type kindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}
