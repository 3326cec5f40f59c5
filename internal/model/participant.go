package model

import "time"

// ParticipantID uniquely identifies a participant across the system
type ParticipantID string

// Participant is an authenticated identity able to stake on matches
type Participant struct {
	ID          ParticipantID
	DisplayName string
	CreatedAt   time.Time
}
