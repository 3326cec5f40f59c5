// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/storage"
)

// Suite runs the shared storage conformance tests against a backend
type Suite struct {
	suite.Suite

	// NewStorage returns a fresh, empty backend for each test
	NewStorage func() storage.Storage

	Storage storage.Storage
	Ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.Storage = s.NewStorage()
	s.Ctx = context.Background()
}

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newRoom(id model.RoomID, created time.Time) *model.Room {
	return &model.Room{
		ID:       id,
		GameKind: model.GameRockPaperScissors,
		Stake:    model.AmountFromUnits(5),
		FeeBps:   100,
		Privacy:  model.PrivacyPublic,
		Status:   model.RoomStatusWaiting,
		OwnerID:  "alice",
		Members: []model.RoomMember{
			{ParticipantID: "alice", JoinedAt: created},
		},
		Capacity:  model.RoomCapacity,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newMatch(id model.MatchID) *model.Match {
	return &model.Match{
		ID:        id,
		RoomID:    "ROOM01",
		GameKind:  model.GameRockPaperScissors,
		Players:   []model.ParticipantID{"alice", "bob"},
		Status:    model.MatchStatusActive,
		Round:     1,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func newEscrow(matchID model.MatchID) *model.EscrowRecord {
	return &model.EscrowRecord{
		ID:             "escrow-" + string(matchID),
		MatchID:        matchID,
		StakePerPlayer: 100,
		FeeBps:         100,
		Pot:            200,
		OriginalPot:    200,
		Contributors:   []model.ParticipantID{"alice", "bob"},
		State:          model.EscrowStateInitialized,
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
	}
}

// Participant tests

func (s *Suite) TestSaveAndGetParticipant() {
	p := &model.Participant{ID: "alice", DisplayName: "Alice", CreatedAt: baseTime}
	s.Require().NoError(s.Storage.SaveParticipant(s.Ctx, p))

	got, err := s.Storage.GetParticipant(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("Alice", got.DisplayName)
}

func (s *Suite) TestGetParticipantNotFound() {
	_, err := s.Storage.GetParticipant(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrParticipantNotFound)
}

// Room tests

func (s *Suite) TestCreateAndGetRoom() {
	room := newRoom("ROOM01", baseTime)
	room.Rules = map[string]string{"best_of": "1"}
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))

	got, err := s.Storage.GetRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Equal(room.Stake, got.Stake)
	s.Equal(model.RoomStatusWaiting, got.Status)
	s.Equal([]model.ParticipantID{"alice"}, got.MemberIDs())
	s.Equal("1", got.Rules["best_of"])

	exists, err := s.Storage.RoomExists(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.Storage.GetRoom(s.Ctx, "NOPE")
	s.ErrorIs(err, model.ErrRoomNotFound)

	exists, err := s.Storage.RoomExists(s.Ctx, "NOPE")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *Suite) TestUpdateRoom() {
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, newRoom("ROOM01", baseTime)))

	updated, err := s.Storage.UpdateRoom(s.Ctx, "ROOM01", func(r *model.Room) error {
		r.Members = append(r.Members, model.RoomMember{ParticipantID: "bob", JoinedAt: baseTime})
		r.Status = model.RoomStatusFull
		return nil
	})
	s.Require().NoError(err)
	s.Equal(model.RoomStatusFull, updated.Status)

	got, err := s.Storage.GetRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Len(got.Members, 2)
}

func (s *Suite) TestUpdateRoomAbortLeavesStateUntouched() {
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, newRoom("ROOM01", baseTime)))

	_, err := s.Storage.UpdateRoom(s.Ctx, "ROOM01", func(r *model.Room) error {
		r.Status = model.RoomStatusCancelled
		return model.ErrRoomLocked
	})
	s.ErrorIs(err, model.ErrRoomLocked)

	got, err := s.Storage.GetRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusWaiting, got.Status)
}

func (s *Suite) TestUpdateRoomNotFound() {
	_, err := s.Storage.UpdateRoom(s.Ctx, "NOPE", func(r *model.Room) error { return nil })
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestUpdateRoomSerializesConcurrentWriters() {
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, newRoom("ROOM01", baseTime)))

	const writers = 8
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Storage.UpdateRoom(s.Ctx, "ROOM01", func(r *model.Room) error {
				r.MatchSeq++
				r.Members = append(r.Members, model.RoomMember{ParticipantID: model.ParticipantID(fmt.Sprintf("p%d", i))})
				return nil
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	got, err := s.Storage.GetRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Equal(writers-int(failures.Load()), got.MatchSeq)
	s.Len(got.Members, 1+got.MatchSeq)
}

func (s *Suite) TestListRooms() {
	first := newRoom("AAAAAA", baseTime)
	second := newRoom("BBBBBB", baseTime.Add(time.Minute))
	second.GameKind = model.GameTicTacToe
	private := newRoom("CCCCCC", baseTime.Add(2*time.Minute))
	private.Privacy = model.PrivacyPrivate
	full := newRoom("DDDDDD", baseTime.Add(3*time.Minute))
	full.Status = model.RoomStatusFull
	for _, r := range []*model.Room{first, second, private, full} {
		s.Require().NoError(s.Storage.CreateRoom(s.Ctx, r))
	}

	rooms, err := s.Storage.ListRooms(s.Ctx, model.RoomFilter{Status: model.RoomStatusWaiting, Page: 1, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(rooms, 2)
	s.Equal(model.RoomID("BBBBBB"), rooms[0].ID, "newest first")
	s.Equal(model.RoomID("AAAAAA"), rooms[1].ID)

	rooms, err = s.Storage.ListRooms(s.Ctx, model.RoomFilter{GameKind: model.GameRockPaperScissors, IncludePrivate: true, Page: 1, Limit: 10})
	s.Require().NoError(err)
	s.Len(rooms, 3)

	rooms, err = s.Storage.ListRooms(s.Ctx, model.RoomFilter{IncludePrivate: true, Page: 2, Limit: 3})
	s.Require().NoError(err)
	s.Require().Len(rooms, 1)
	s.Equal(model.RoomID("AAAAAA"), rooms[0].ID)
}

// Match tests

func (s *Suite) TestCreateMatchIsIdempotent() {
	created, err := s.Storage.CreateMatch(s.Ctx, newMatch("ROOM01-1"))
	s.Require().NoError(err)
	s.True(created)

	again := newMatch("ROOM01-1")
	again.Status = model.MatchStatusCancelled
	created, err = s.Storage.CreateMatch(s.Ctx, again)
	s.Require().NoError(err)
	s.False(created)

	got, err := s.Storage.GetMatch(s.Ctx, "ROOM01-1")
	s.Require().NoError(err)
	s.Equal(model.MatchStatusActive, got.Status)
}

func (s *Suite) TestGetMatchNotFound() {
	_, err := s.Storage.GetMatch(s.Ctx, "nope")
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestUpdateMatchRoundTripsCommits() {
	_, err := s.Storage.CreateMatch(s.Ctx, newMatch("ROOM01-1"))
	s.Require().NoError(err)

	deadline := baseTime.Add(time.Minute)
	_, err = s.Storage.UpdateMatch(s.Ctx, "ROOM01-1", func(m *model.Match) error {
		m.Commits = append(m.Commits, model.CommitEntry{ParticipantID: "alice", Hash: []byte{1, 2, 3}, CommittedAt: baseTime})
		m.RevealDeadline = &deadline
		m.Started = true
		return nil
	})
	s.Require().NoError(err)

	got, err := s.Storage.GetMatch(s.Ctx, "ROOM01-1")
	s.Require().NoError(err)
	s.Require().NotNil(got.GetCommit("alice"))
	s.Equal([]byte{1, 2, 3}, got.GetCommit("alice").Hash)
	s.Require().NotNil(got.RevealDeadline)
	s.True(deadline.Equal(*got.RevealDeadline))
	s.True(got.Started)
}

func (s *Suite) TestUpdateMatchCompareAndSwapWinsOnce() {
	_, err := s.Storage.CreateMatch(s.Ctx, newMatch("ROOM01-1"))
	s.Require().NoError(err)

	const callers = 10
	var wg sync.WaitGroup
	var wins atomic.Int32
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Storage.UpdateMatch(s.Ctx, "ROOM01-1", func(m *model.Match) error {
				if m.Status.Terminal() {
					return model.ErrMatchClosed
				}
				m.Status = model.MatchStatusFinished
				return nil
			})
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, model.ErrMatchClosed) {
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
}

func (s *Suite) TestListMatches() {
	past := baseTime.Add(-time.Minute)
	future := baseTime.Add(time.Minute)

	expired := newMatch("m-expired")
	expired.RevealDeadline = &past
	pending := newMatch("m-pending")
	pending.RevealDeadline = &future
	commitExpired := newMatch("m-commit-expired")
	commitExpired.CommitDeadline = &past
	// The reveal deadline replaced a commit deadline that is still recorded
	revealing := newMatch("m-revealing")
	revealing.CommitDeadline = &past
	revealing.RevealDeadline = &future
	unsettled := newMatch("m-unsettled")
	unsettled.Status = model.MatchStatusFinished
	settled := newMatch("m-settled")
	settled.Status = model.MatchStatusCancelled
	settled.Settled = true
	for _, m := range []*model.Match{expired, pending, commitExpired, revealing, unsettled, settled} {
		_, err := s.Storage.CreateMatch(s.Ctx, m)
		s.Require().NoError(err)
	}

	matches, err := s.Storage.ListMatches(s.Ctx, model.MatchFilter{Status: model.MatchStatusActive, DeadlineBefore: baseTime})
	s.Require().NoError(err)
	ids := make([]model.MatchID, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	s.ElementsMatch([]model.MatchID{"m-expired", "m-commit-expired"}, ids)

	matches, err = s.Storage.ListMatches(s.Ctx, model.MatchFilter{Unsettled: true})
	s.Require().NoError(err)
	s.Require().Len(matches, 1)
	s.Equal(model.MatchID("m-unsettled"), matches[0].ID)
}

// Escrow tests

func (s *Suite) TestCreateEscrowIsIdempotent() {
	created, err := s.Storage.CreateEscrow(s.Ctx, newEscrow("ROOM01-1"))
	s.Require().NoError(err)
	s.True(created)

	again := newEscrow("ROOM01-1")
	again.Pot = 999
	created, err = s.Storage.CreateEscrow(s.Ctx, again)
	s.Require().NoError(err)
	s.False(created)

	got, err := s.Storage.GetEscrow(s.Ctx, "ROOM01-1")
	s.Require().NoError(err)
	s.Equal(model.Amount(200), got.Pot)
	s.Equal([]model.ParticipantID{"alice", "bob"}, got.Contributors)
}

func (s *Suite) TestGetEscrowNotFound() {
	_, err := s.Storage.GetEscrow(s.Ctx, "nope")
	s.ErrorIs(err, model.ErrEscrowNotFound)
}

func (s *Suite) TestUpdateEscrowStoresSettlement() {
	_, err := s.Storage.CreateEscrow(s.Ctx, newEscrow("ROOM01-1"))
	s.Require().NoError(err)

	_, err = s.Storage.UpdateEscrow(s.Ctx, "ROOM01-1", func(e *model.EscrowRecord) error {
		e.State = model.EscrowStateResolved
		e.Pot = 0
		e.Settlement = &model.Settlement{
			ID:        "settle-1",
			Kind:      model.SettlementPayout,
			Winner:    "alice",
			Payout:    198,
			Fee:       2,
			Transfers: []model.Transfer{{To: "alice", Amount: 198}},
		}
		return nil
	})
	s.Require().NoError(err)

	got, err := s.Storage.GetEscrow(s.Ctx, "ROOM01-1")
	s.Require().NoError(err)
	s.Equal(model.EscrowStateResolved, got.State)
	s.Equal(model.Amount(0), got.Pot)
	s.Require().NotNil(got.Settlement)
	s.Equal(model.Amount(198), got.Settlement.Payout)
	s.Equal([]model.Transfer{{To: "alice", Amount: 198}}, got.Settlement.Transfers)
}
