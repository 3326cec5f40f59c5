package model

import (
	"fmt"
	"slices"
	"time"
)

// RoomID is a short human-readable identifier for joining rooms
type RoomID string

// RoomStatus represents where a room is in its lifecycle
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "WAITING"   // Accepting members
	RoomStatusFull      RoomStatus = "FULL"      // Capacity reached, match spawned
	RoomStatusInGame    RoomStatus = "IN_GAME"   // Match has started play
	RoomStatusFinished  RoomStatus = "FINISHED"  // Match finished
	RoomStatusCancelled RoomStatus = "CANCELLED" // Cancelled before play, or match cancelled
)

// Terminal reports whether no further transition can leave this status
func (s RoomStatus) Terminal() bool {
	return s == RoomStatusFinished || s == RoomStatusCancelled
}

// Privacy controls whether a room shows up in listings
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

// RoomCapacity is the number of participants every supported game needs
const RoomCapacity = 2

// RoomMember represents a participant's membership in a room
type RoomMember struct {
	ParticipantID ParticipantID
	JoinedAt      time.Time
}

// Room pairs participants who stake on a match
type Room struct {
	ID       RoomID
	GameKind GameKind
	Stake    Amount
	FeeBps   int
	Privacy  Privacy
	// JoinCodeHash is the bcrypt hash of a private room's join code
	JoinCodeHash string
	Rules        map[string]string
	Status       RoomStatus
	OwnerID      ParticipantID
	Members      []RoomMember // In join order
	Capacity     int

	// CurrentMatch is set while a spawned match belongs to the room
	CurrentMatch MatchID
	// MatchSeq counts matches ever spawned by the room, keeping match ids deterministic
	MatchSeq int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetMember returns the member with the given participant ID, or nil if not found
func (r *Room) GetMember(id ParticipantID) *RoomMember {
	for i := range r.Members {
		if r.Members[i].ParticipantID == id {
			return &r.Members[i]
		}
	}
	return nil
}

// IsMember reports whether the participant is in the room
func (r *Room) IsMember(id ParticipantID) bool {
	return r.GetMember(id) != nil
}

// MemberIDs returns the member identities in join order
func (r *Room) MemberIDs() []ParticipantID {
	ids := make([]ParticipantID, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.ParticipantID
	}
	return ids
}

// IsFull reports whether the room has reached capacity
func (r *Room) IsFull() bool {
	return len(r.Members) >= r.Capacity
}

// MatchIDFor derives the id of a room's nth match
func MatchIDFor(roomID RoomID, seq int) MatchID {
	return MatchID(fmt.Sprintf("%s-%d", roomID, seq))
}

// Fill marks a room that just reached capacity and assigns the id of the
// match it will spawn
func (r *Room) Fill(now time.Time) MatchID {
	r.MatchSeq++
	r.Status = RoomStatusFull
	r.CurrentMatch = MatchIDFor(r.ID, r.MatchSeq)
	r.UpdatedAt = now
	return r.CurrentMatch
}

// Clone returns a deep copy that shares no mutable state with r
func (r *Room) Clone() *Room {
	c := *r
	c.Members = slices.Clone(r.Members)
	if r.Rules != nil {
		c.Rules = make(map[string]string, len(r.Rules))
		for k, v := range r.Rules {
			c.Rules[k] = v
		}
	}
	return &c
}

// RoomFilter selects rooms for listing
type RoomFilter struct {
	GameKind       GameKind   // Empty matches any
	Stake          Amount     // Zero matches any
	Status         RoomStatus // Empty matches any
	IncludePrivate bool
	Page           int // 1-based
	Limit          int
}

// Matches reports whether the room passes every set criterion
func (f RoomFilter) Matches(r *Room) bool {
	if f.GameKind != "" && r.GameKind != f.GameKind {
		return false
	}
	if f.Stake != 0 && r.Stake != f.Stake {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.IncludePrivate && r.Privacy == PrivacyPrivate {
		return false
	}
	return true
}

// Offset returns how many matching rooms precede the requested page
func (f RoomFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Paginate sorts rooms newest first and returns the requested page
func (f RoomFilter) Paginate(rooms []*Room) []*Room {
	slices.SortFunc(rooms, func(a, b *Room) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID > b.ID {
			return -1
		}
		if a.ID < b.ID {
			return 1
		}
		return 0
	})
	offset := f.Offset()
	if offset >= len(rooms) {
		return []*Room{}
	}
	end := len(rooms)
	if f.Limit > 0 && offset+f.Limit < end {
		end = offset + f.Limit
	}
	return rooms[offset:end]
}
