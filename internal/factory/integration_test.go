package factory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/stakegame/internal/broadcast"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/commitment"
	"github.com/mcoot/stakegame/internal/services/room"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp(s.T())
	s.ctx = context.Background()
}

func (s *IntegrationSuite) guest(name string) model.ParticipantID {
	session, err := s.app.AuthService.CreateGuest(s.ctx, name)
	s.Require().NoError(err)
	return session.ParticipantID
}

// fill creates a public room and joins a second member, spawning the match
func (s *IntegrationSuite) fill(kind model.GameKind, stake model.Amount) (*model.Room, model.ParticipantID, model.ParticipantID) {
	alice := s.guest("Alice")
	bob := s.guest("Bob")

	r, err := s.app.RoomController.CreateRoom(s.ctx, alice, room.CreateParams{
		GameKind: kind,
		Stake:    stake,
		Privacy:  model.PrivacyPublic,
	})
	s.Require().NoError(err)
	s.Equal(model.RoomStatusWaiting, r.Status)

	r, err = s.app.RoomController.JoinRoom(s.ctx, r.ID, bob, "")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusFull, r.Status)
	s.Require().NotEmpty(r.CurrentMatch)
	return r, alice, bob
}

func (s *IntegrationSuite) roomStatus(id model.RoomID) model.RoomStatus {
	r, err := s.app.RoomController.GetRoom(s.ctx, id)
	s.Require().NoError(err)
	return r.Status
}

func (s *IntegrationSuite) nextEvent(client *broadcast.Client) model.Event {
	select {
	case frame, ok := <-client.Events():
		s.Require().True(ok, "subscription closed")
		var event model.Event
		s.Require().NoError(json.Unmarshal(frame.Data, &event))
		s.Equal(frame.Event, string(event.Type))
		return event
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for event")
		return model.Event{}
	}
}

// Test: room fills, commit-reveal decides, escrow pays the winner and
// subscribers see every transition in order
func (s *IntegrationSuite) TestRockPaperScissorsPayout() {
	r, alice, bob := s.fill(model.GameRockPaperScissors, 100)
	matchID := r.CurrentMatch

	client, err := s.app.Coordinator.Subscribe(matchID, "spectator")
	s.Require().NoError(err)

	record, err := s.app.Ledger.Get(s.ctx, matchID)
	s.Require().NoError(err)
	s.Equal(model.Amount(200), record.Pot)
	s.Equal(model.EscrowStateInitialized, record.State)

	_, err = s.app.MatchController.SubmitCommit(s.ctx, matchID, alice, commitment.Hash(model.RPSRock, "alice-salt"))
	s.Require().NoError(err)
	s.Equal(model.RoomStatusInGame, s.roomStatus(r.ID))

	_, err = s.app.MatchController.SubmitCommit(s.ctx, matchID, bob, commitment.Hash(model.RPSScissors, "bob-salt"))
	s.Require().NoError(err)
	_, err = s.app.MatchController.SubmitReveal(s.ctx, matchID, alice, model.RPSRock, "alice-salt")
	s.Require().NoError(err)
	final, err := s.app.MatchController.SubmitReveal(s.ctx, matchID, bob, model.RPSScissors, "bob-salt")
	s.Require().NoError(err)

	s.Equal(model.MatchStatusFinished, final.Status)
	s.Equal(alice, final.Winner)
	s.Equal(model.RoomStatusFinished, s.roomStatus(r.ID))

	record, err = s.app.Ledger.Get(s.ctx, matchID)
	s.Require().NoError(err)
	s.Equal(model.EscrowStateResolved, record.State)
	s.Equal(model.Amount(0), record.Pot)

	settlements := s.app.Sink.Settlements()
	s.Require().Len(settlements, 1)
	s.Equal(model.SettlementPayout, settlements[0].Kind)
	s.Equal(model.Amount(198), settlements[0].Payout)
	s.Equal(model.Amount(2), settlements[0].Fee)

	for _, want := range []model.EventType{
		model.EventCommitSubmitted,
		model.EventCommitSubmitted,
		model.EventRevealSubmitted,
		model.EventRevealSubmitted,
		model.EventMatchFinished,
	} {
		s.Equal(want, s.nextEvent(client).Type)
	}
}

// Test: leaving a FULL room refunds the unstarted match and reopens the room
func (s *IntegrationSuite) TestLeaveFullRoomRefunds() {
	r, _, bob := s.fill(model.GameTicTacToe, 7)
	matchID := r.CurrentMatch

	r, err := s.app.RoomController.LeaveRoom(s.ctx, r.ID, bob)
	s.Require().NoError(err)
	s.Equal(model.RoomStatusWaiting, r.Status)
	s.Empty(r.CurrentMatch)
	s.Len(r.Members, 1)

	m, err := s.app.MatchController.GetMatch(s.ctx, matchID)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusCancelled, m.Status)
	s.Equal(model.EndReasonLeftRoom, m.EndReason)

	record, err := s.app.Ledger.Get(s.ctx, matchID)
	s.Require().NoError(err)
	s.Equal(model.EscrowStateRefunded, record.State)

	// A new member spawns a fresh match with its own escrow
	carol := s.guest("Carol")
	r, err = s.app.RoomController.JoinRoom(s.ctx, r.ID, carol, "")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusFull, r.Status)
	s.NotEqual(matchID, r.CurrentMatch)
}

// Test: a participant who never reveals forfeits when the mock clock passes
// the reveal deadline
func (s *IntegrationSuite) TestRevealTimeoutForfeits() {
	r, alice, bob := s.fill(model.GameRockPaperScissors, 10)
	matchID := r.CurrentMatch

	_, err := s.app.MatchController.SubmitCommit(s.ctx, matchID, alice, commitment.Hash(model.RPSPaper, "a"))
	s.Require().NoError(err)
	_, err = s.app.MatchController.SubmitCommit(s.ctx, matchID, bob, commitment.Hash(model.RPSRock, "b"))
	s.Require().NoError(err)
	_, err = s.app.MatchController.SubmitReveal(s.ctx, matchID, alice, model.RPSPaper, "a")
	s.Require().NoError(err)

	s.app.MockClock.Advance(DefaultSettings().Match.RevealTimeout).MustWait(s.ctx)

	m, err := s.app.MatchController.GetMatch(s.ctx, matchID)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusFinished, m.Status)
	s.Equal(alice, m.Winner)
	s.Equal(bob, m.ForfeitedBy)
	s.Equal(model.EndReasonRevealTimeout, m.EndReason)
	s.Equal(model.RoomStatusFinished, s.roomStatus(r.ID))
}

// Test: the sweeper cleans up hubs whose subscribers have gone
func (s *IntegrationSuite) TestSweeperCleansEmptyHubs() {
	r, _, _ := s.fill(model.GameRockPaperScissors, 10)

	client, err := s.app.Coordinator.Subscribe(r.CurrentMatch, "spectator")
	s.Require().NoError(err)
	s.Equal(1, s.app.Coordinator.HubCount())

	s.app.Coordinator.Unsubscribe(client)
	s.app.Sweeper.RunOnce(s.ctx)

	s.Equal(0, s.app.Coordinator.HubCount())
}
