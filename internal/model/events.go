package model

import (
	"encoding/json"
	"time"
)

// EventType identifies the type of match event
type EventType string

const (
	EventMoveSubmitted   EventType = "move_submitted"
	EventCommitSubmitted EventType = "commit_submitted"
	EventRevealSubmitted EventType = "reveal_submitted"
	EventRoundDrawn      EventType = "round_drawn"
	EventMatchFinished   EventType = "match_finished"
	EventMatchCancelled  EventType = "match_cancelled"
)

// Event is a state transition published to a match's subscribers
type Event struct {
	Type          EventType     `json:"type"`
	Timestamp     time.Time     `json:"timestamp"`
	MatchID       MatchID       `json:"match_id"`
	RoomID        RoomID        `json:"room_id"`
	ParticipantID ParticipantID `json:"participant_id,omitempty"` // The participant who triggered it
	Payload       any           `json:"payload,omitempty"`
}

// MoveSubmittedPayload contains data for move submitted events
type MoveSubmittedPayload struct {
	Seq  int             `json:"seq"`
	Move json.RawMessage `json:"move"`
}

// CommitSubmittedPayload contains data for commit submitted events.
// The hash itself is withheld until the round is over.
type CommitSubmittedPayload struct {
	Round         int  `json:"round"`
	BothCommitted bool `json:"both_committed"`
}

// RevealSubmittedPayload contains data for reveal submitted events
type RevealSubmittedPayload struct {
	Round int     `json:"round"`
	Move  RPSMove `json:"move"`
}

// RoundDrawnPayload contains data for round drawn events
type RoundDrawnPayload struct {
	Round     int `json:"round"`
	NextRound int `json:"next_round"`
}

// MatchEndedPayload contains data for match finished and cancelled events
type MatchEndedPayload struct {
	Status      MatchStatus   `json:"status"`
	Winner      ParticipantID `json:"winner,omitempty"` // Empty if no decisive winner
	ForfeitedBy ParticipantID `json:"forfeited_by,omitempty"`
	Reason      EndReason     `json:"reason"`
}
