package memory

import (
	"context"
	"sync"

	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/storage"
)

// cloner is satisfied by entity pointers that can deep copy themselves
type cloner[T any] interface {
	Clone() T
}

// cell holds one entity behind its own lock, so updates to different
// entities never contend
type cell[T cloner[T]] struct {
	mu    sync.Mutex
	value T
}

func (c *cell[T]) get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value.Clone()
}

func (c *cell[T]) update(fn func(T) error) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	working := c.value.Clone()
	if err := fn(working); err != nil {
		var zero T
		return zero, err
	}
	c.value = working
	return working.Clone(), nil
}

// Storage is an in-memory implementation of the storage interface.
// The top-level lock only guards the maps; entity state is guarded per cell.
type Storage struct {
	mu sync.RWMutex

	participants map[model.ParticipantID]*model.Participant
	rooms        map[model.RoomID]*cell[*model.Room]
	matches      map[model.MatchID]*cell[*model.Match]
	escrows      map[model.MatchID]*cell[*model.EscrowRecord]
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		participants: make(map[model.ParticipantID]*model.Participant),
		rooms:        make(map[model.RoomID]*cell[*model.Room]),
		matches:      make(map[model.MatchID]*cell[*model.Match]),
		escrows:      make(map[model.MatchID]*cell[*model.EscrowRecord]),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Participant operations

func (s *Storage) SaveParticipant(ctx context.Context, participant *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *participant
	s.participants[p.ID] = &p
	return nil
}

func (s *Storage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, model.ErrParticipantNotFound
	}
	out := *p
	return &out, nil
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = &cell[*model.Room]{value: room.Clone()}
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	c, ok := s.roomCell(id)
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return c.get(), nil
}

func (s *Storage) RoomExists(ctx context.Context, id model.RoomID) (bool, error) {
	_, ok := s.roomCell(id)
	return ok, nil
}

func (s *Storage) ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	s.mu.RLock()
	cells := make([]*cell[*model.Room], 0, len(s.rooms))
	for _, c := range s.rooms {
		cells = append(cells, c)
	}
	s.mu.RUnlock()

	rooms := make([]*model.Room, 0, len(cells))
	for _, c := range cells {
		room := c.get()
		if filter.Matches(room) {
			rooms = append(rooms, room)
		}
	}
	return filter.Paginate(rooms), nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.RoomMutation) (*model.Room, error) {
	c, ok := s.roomCell(id)
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return c.update(fn)
}

func (s *Storage) roomCell(id model.RoomID) (*cell[*model.Room], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rooms[id]
	return c, ok
}

// Match operations

func (s *Storage) CreateMatch(ctx context.Context, match *model.Match) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[match.ID]; exists {
		return false, nil
	}
	s.matches[match.ID] = &cell[*model.Match]{value: match.Clone()}
	return true, nil
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	c, ok := s.matchCell(id)
	if !ok {
		return nil, model.ErrMatchNotFound
	}
	return c.get(), nil
}

func (s *Storage) ListMatches(ctx context.Context, filter model.MatchFilter) ([]*model.Match, error) {
	s.mu.RLock()
	cells := make([]*cell[*model.Match], 0, len(s.matches))
	for _, c := range s.matches {
		cells = append(cells, c)
	}
	s.mu.RUnlock()

	var matches []*model.Match
	for _, c := range cells {
		match := c.get()
		if filter.Matches(match) {
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (s *Storage) UpdateMatch(ctx context.Context, id model.MatchID, fn storage.MatchMutation) (*model.Match, error) {
	c, ok := s.matchCell(id)
	if !ok {
		return nil, model.ErrMatchNotFound
	}
	return c.update(fn)
}

func (s *Storage) matchCell(id model.MatchID) (*cell[*model.Match], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.matches[id]
	return c, ok
}

// Escrow operations

func (s *Storage) CreateEscrow(ctx context.Context, record *model.EscrowRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.escrows[record.MatchID]; exists {
		return false, nil
	}
	s.escrows[record.MatchID] = &cell[*model.EscrowRecord]{value: record.Clone()}
	return true, nil
}

func (s *Storage) GetEscrow(ctx context.Context, matchID model.MatchID) (*model.EscrowRecord, error) {
	c, ok := s.escrowCell(matchID)
	if !ok {
		return nil, model.ErrEscrowNotFound
	}
	return c.get(), nil
}

func (s *Storage) UpdateEscrow(ctx context.Context, matchID model.MatchID, fn storage.EscrowMutation) (*model.EscrowRecord, error) {
	c, ok := s.escrowCell(matchID)
	if !ok {
		return nil, model.ErrEscrowNotFound
	}
	return c.update(fn)
}

func (s *Storage) escrowCell(matchID model.MatchID) (*cell[*model.EscrowRecord], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.escrows[matchID]
	return c, ok
}
