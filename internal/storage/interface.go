package storage

import (
	"context"

	"github.com/mcoot/stakegame/internal/model"
)

// Mutation functions receive a private copy of the stored entity and
// modify it in place. Returning an error aborts the update and leaves the
// stored entity untouched. A mutation may run more than once when a backend
// retries an optimistic transaction, so it must not have side effects that
// are unsafe to repeat.
type (
	RoomMutation   func(room *model.Room) error
	MatchMutation  func(match *model.Match) error
	EscrowMutation func(record *model.EscrowRecord) error
)

// Storage defines the interface for data persistence.
//
// Every Update method is a single atomic conditional update scoped to one
// entity: concurrent updates to the same entity are serialized, updates to
// different entities do not contend.
type Storage interface {
	// Participant operations
	SaveParticipant(ctx context.Context, participant *model.Participant) error
	GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error)

	// Room operations
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	RoomExists(ctx context.Context, id model.RoomID) (bool, error)
	ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)
	UpdateRoom(ctx context.Context, id model.RoomID, fn RoomMutation) (*model.Room, error)

	// Match operations. CreateMatch is a no-op returning false if the id exists.
	CreateMatch(ctx context.Context, match *model.Match) (bool, error)
	GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error)
	ListMatches(ctx context.Context, filter model.MatchFilter) ([]*model.Match, error)
	UpdateMatch(ctx context.Context, id model.MatchID, fn MatchMutation) (*model.Match, error)

	// Escrow operations, keyed by match. CreateEscrow is a no-op returning
	// false if a record for the match exists.
	CreateEscrow(ctx context.Context, record *model.EscrowRecord) (bool, error)
	GetEscrow(ctx context.Context, matchID model.MatchID) (*model.EscrowRecord, error)
	UpdateEscrow(ctx context.Context, matchID model.MatchID, fn EscrowMutation) (*model.EscrowRecord, error)
}
