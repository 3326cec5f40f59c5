package model

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"
)

// MatchID uniquely identifies a match
type MatchID string

// MatchStatus represents the lifecycle of a match
type MatchStatus string

const (
	MatchStatusActive    MatchStatus = "ACTIVE"
	MatchStatusFinished  MatchStatus = "FINISHED"
	MatchStatusCancelled MatchStatus = "CANCELLED"
)

// Terminal reports whether the status can no longer change
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusFinished || s == MatchStatusCancelled
}

// EndReason records why a match reached its terminal state
type EndReason string

const (
	EndReasonDecisive      EndReason = "decisive"
	EndReasonDraw          EndReason = "draw"
	EndReasonResigned      EndReason = "resigned"
	EndReasonHashMismatch  EndReason = "hash_mismatch"
	EndReasonRevealTimeout EndReason = "reveal_timeout"
	EndReasonCommitTimeout EndReason = "commit_timeout"
	EndReasonNoReveal      EndReason = "no_reveal"
	EndReasonDrawLimit     EndReason = "draw_limit"
	EndReasonLeftRoom      EndReason = "left_room"
	EndReasonAdmin         EndReason = "admin"
)

// Move is one entry in a direct-move game's history
type Move struct {
	Seq           int
	ParticipantID ParticipantID
	Payload       json.RawMessage
	SubmittedAt   time.Time
}

// CommitEntry is a participant's binding commitment for one round,
// augmented with the move and salt once revealed
type CommitEntry struct {
	ParticipantID ParticipantID
	Hash          []byte
	CommittedAt   time.Time
	Move          RPSMove
	Salt          string
	RevealedAt    *time.Time
}

// Revealed reports whether the commitment has been opened
func (c *CommitEntry) Revealed() bool {
	return c.RevealedAt != nil
}

// RoundResult archives a drawn commit-reveal round
type RoundResult struct {
	Round   int
	Commits []CommitEntry
}

// Match is a single staked game between the two members of a room
type Match struct {
	ID       MatchID
	RoomID   RoomID
	GameKind GameKind
	Players  []ParticipantID // Room join order; Players[0] moves first
	Status   MatchStatus

	// Direct-move history
	Moves []Move

	// Commit-reveal state for the current round
	Round          int
	Commits        []CommitEntry
	Rounds         []RoundResult
	CommitDeadline *time.Time // Set by the round's first commit
	RevealDeadline *time.Time // Set once every player has committed

	// Started is set by the first commit or move
	Started bool

	Winner      ParticipantID // Set only on a decisive FINISHED outcome
	ForfeitedBy ParticipantID
	EndReason   EndReason

	// Settlement annotation, written once the escrow has been closed
	Settled      bool
	SettlementID string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}

// IsPlayer reports whether the participant plays in this match
func (m *Match) IsPlayer(id ParticipantID) bool {
	return slices.Contains(m.Players, id)
}

// Opponent returns the other player, or empty if id does not play
func (m *Match) Opponent(id ParticipantID) ParticipantID {
	if !m.IsPlayer(id) {
		return ""
	}
	for _, p := range m.Players {
		if p != id {
			return p
		}
	}
	return ""
}

// GetCommit returns the participant's commit for the current round, or nil
func (m *Match) GetCommit(id ParticipantID) *CommitEntry {
	for i := range m.Commits {
		if m.Commits[i].ParticipantID == id {
			return &m.Commits[i]
		}
	}
	return nil
}

// BothCommitted reports whether every player has committed this round
func (m *Match) BothCommitted() bool {
	return len(m.Commits) == len(m.Players)
}

// RevealedCommits returns the commits opened so far this round
func (m *Match) RevealedCommits() []CommitEntry {
	var revealed []CommitEntry
	for _, c := range m.Commits {
		if c.Revealed() {
			revealed = append(revealed, c)
		}
	}
	return revealed
}

// Deadline returns the deadline currently running for the round, if any
func (m *Match) Deadline() *time.Time {
	if m.RevealDeadline != nil {
		return m.RevealDeadline
	}
	return m.CommitDeadline
}

// LastMove returns the most recent direct move, or nil
func (m *Match) LastMove() *Move {
	if len(m.Moves) == 0 {
		return nil
	}
	return &m.Moves[len(m.Moves)-1]
}

// Clone returns a deep copy that shares no mutable state with m
func (m *Match) Clone() *Match {
	c := *m
	c.Players = slices.Clone(m.Players)
	c.Moves = make([]Move, len(m.Moves))
	for i, mv := range m.Moves {
		mv.Payload = bytes.Clone(mv.Payload)
		c.Moves[i] = mv
	}
	c.Commits = cloneCommits(m.Commits)
	c.Rounds = make([]RoundResult, len(m.Rounds))
	for i, r := range m.Rounds {
		c.Rounds[i] = RoundResult{Round: r.Round, Commits: cloneCommits(r.Commits)}
	}
	if m.CommitDeadline != nil {
		d := *m.CommitDeadline
		c.CommitDeadline = &d
	}
	if m.RevealDeadline != nil {
		d := *m.RevealDeadline
		c.RevealDeadline = &d
	}
	if m.FinishedAt != nil {
		f := *m.FinishedAt
		c.FinishedAt = &f
	}
	return &c
}

func cloneCommits(commits []CommitEntry) []CommitEntry {
	if commits == nil {
		return nil
	}
	out := make([]CommitEntry, len(commits))
	for i, cm := range commits {
		cm.Hash = bytes.Clone(cm.Hash)
		if cm.RevealedAt != nil {
			t := *cm.RevealedAt
			cm.RevealedAt = &t
		}
		out[i] = cm
	}
	return out
}

// MatchFilter selects matches for background sweeps
type MatchFilter struct {
	Status MatchStatus // Empty matches any
	// DeadlineBefore matches matches whose commit or reveal deadline passed before this time
	DeadlineBefore time.Time
	// Unsettled matches terminal matches whose escrow has not been closed
	Unsettled bool
}

// Matches reports whether the match passes every set criterion
func (f MatchFilter) Matches(m *Match) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if !f.DeadlineBefore.IsZero() {
		if d := m.Deadline(); d == nil || !d.Before(f.DeadlineBefore) {
			return false
		}
	}
	if f.Unsettled && (!m.Status.Terminal() || m.Settled) {
		return false
	}
	return true
}
