package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/stakegame/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Error codes
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnsupportedGame     = "UNSUPPORTED_GAME"
	CodeInvalidStake        = "INVALID_STAKE"
	CodeInvalidFee          = "INVALID_FEE"
	CodeInvalidMove         = "INVALID_MOVE"
	CodeInvalidCommit       = "INVALID_COMMIT"
	CodeWrongDiscipline     = "WRONG_DISCIPLINE"
	CodeUnknownWinner       = "UNKNOWN_WINNER"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidJoinCode     = "INVALID_JOIN_CODE"
	CodeNotOwner            = "NOT_OWNER"
	CodeNotFound            = "NOT_FOUND"
	CodeParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeMatchNotFound       = "MATCH_NOT_FOUND"
	CodeEscrowNotFound      = "ESCROW_NOT_FOUND"
	CodeNotMember           = "NOT_MEMBER"
	CodeNoCommit            = "NO_COMMIT"
	CodeConflict            = "CONFLICT"
	CodeAlreadyMember       = "ALREADY_MEMBER"
	CodeRoomFull            = "ROOM_FULL"
	CodeRoomNotJoinable     = "ROOM_NOT_JOINABLE"
	CodeRoomLocked          = "ROOM_LOCKED"
	CodeMatchClosed         = "MATCH_CLOSED"
	CodeDuplicateCommit     = "DUPLICATE_COMMIT"
	CodeNotYetRevealable    = "NOT_YET_REVEALABLE"
	CodeAlreadyRevealed     = "ALREADY_REVEALED"
	CodeNotYourTurn         = "NOT_YOUR_TURN"
	CodeAlreadyClosed       = "ALREADY_CLOSED"
	CodeHashMismatch        = "HASH_MISMATCH"
	CodeProtocolViolation   = "PROTOCOL_VIOLATION"
	CodeUnavailable         = "UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// Status returns the HTTP status the error is written with
func (e *httpError) Status() int {
	return e.status
}

// Concrete errors and their codes, checked before falling back to the kind
var errorCodes = []struct {
	err  error
	code string
}{
	{model.ErrUnsupportedGame, CodeUnsupportedGame},
	{model.ErrInvalidStake, CodeInvalidStake},
	{model.ErrInvalidFee, CodeInvalidFee},
	{model.ErrInvalidMove, CodeInvalidMove},
	{model.ErrInvalidCommit, CodeInvalidCommit},
	{model.ErrWrongDiscipline, CodeWrongDiscipline},
	{model.ErrUnknownWinner, CodeUnknownWinner},
	{model.ErrInvalidJoinCode, CodeInvalidJoinCode},
	{model.ErrNotOwner, CodeNotOwner},
	{model.ErrParticipantNotFound, CodeParticipantNotFound},
	{model.ErrRoomNotFound, CodeRoomNotFound},
	{model.ErrMatchNotFound, CodeMatchNotFound},
	{model.ErrEscrowNotFound, CodeEscrowNotFound},
	{model.ErrNotMember, CodeNotMember},
	{model.ErrNoCommit, CodeNoCommit},
	{model.ErrAlreadyMember, CodeAlreadyMember},
	{model.ErrRoomFull, CodeRoomFull},
	{model.ErrRoomNotJoinable, CodeRoomNotJoinable},
	{model.ErrRoomLocked, CodeRoomLocked},
	{model.ErrMatchClosed, CodeMatchClosed},
	{model.ErrDuplicateCommit, CodeDuplicateCommit},
	{model.ErrNotYetRevealable, CodeNotYetRevealable},
	{model.ErrAlreadyRevealed, CodeAlreadyRevealed},
	{model.ErrNotYourTurn, CodeNotYourTurn},
	{model.ErrAlreadyClosed, CodeAlreadyClosed},
	{model.ErrHashMismatch, CodeHashMismatch},
}

// Error kinds with their status and fallback code
var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{model.ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
	{model.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{model.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{model.ErrConflict, http.StatusConflict, CodeConflict},
	{model.ErrProtocolViolation, http.StatusUnprocessableEntity, CodeProtocolViolation},
	{model.ErrUnavailable, http.StatusServiceUnavailable, CodeUnavailable},
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// StatusOf returns the HTTP status an error is written with
func StatusOf(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	// An unknown or expired token is an authentication failure, not a
	// permission one
	if errors.Is(err, model.ErrInvalidSession) {
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired session"}}
	}

	for _, k := range errorKinds {
		if !errors.Is(err, k.kind) {
			continue
		}
		code := k.code
		for _, c := range errorCodes {
			if errors.Is(err, c.err) {
				code = c.code
				break
			}
		}
		message := err.Error()
		if k.kind == model.ErrUnavailable {
			// Storage details stay in the logs
			message = "Service temporarily unavailable"
		}
		return &httpError{k.status, APIError{code, message}}
	}

	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) error {
	return &httpError{http.StatusForbidden, APIError{CodeForbidden, message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// WritePanic answers a recovered panic with the internal error body
func WritePanic(w http.ResponseWriter, _ *http.Request, _ any) {
	WriteError(w, NewInternalError())
}
