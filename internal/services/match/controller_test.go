package match

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/stakegame/internal/dependencies/mocks"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/commitment"
	"github.com/mcoot/stakegame/internal/services/escrow"
	"github.com/mcoot/stakegame/internal/services/evaluator"
	"github.com/mcoot/stakegame/internal/settlement"
	"github.com/mcoot/stakegame/internal/storage/memory"
	"github.com/mcoot/stakegame/internal/testutil"
)

const (
	commitTimeout = 20 * time.Second
	revealTimeout = 30 * time.Second
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
	// onPublish runs after an event is recorded
	onPublish func(model.Event)
}

func (p *recordingPublisher) Publish(matchID model.MatchID, event model.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	hook := p.onPublish
	p.mu.Unlock()
	if hook != nil {
		hook(event)
	}
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]model.EventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

type recordingHooks struct {
	mu      sync.Mutex
	started []model.MatchID
	ended   map[model.MatchID]model.MatchStatus
}

func (h *recordingHooks) MatchStarted(ctx context.Context, roomID model.RoomID, matchID model.MatchID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, matchID)
	return nil
}

func (h *recordingHooks) MatchEnded(ctx context.Context, roomID model.RoomID, matchID model.MatchID, status model.MatchStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended[matchID] = status
	return nil
}

// countingLedger counts settlement attempts made by the orchestrator
type countingLedger struct {
	escrow.LedgerInterface
	settlements     atomic.Int32
	afterInitialize func()
}

func (l *countingLedger) Initialize(ctx context.Context, matchID model.MatchID, stake model.Amount, feeBps int, contributors []model.ParticipantID) (*model.EscrowRecord, error) {
	record, err := l.LedgerInterface.Initialize(ctx, matchID, stake, feeBps, contributors)
	if err == nil && l.afterInitialize != nil {
		hook := l.afterInitialize
		l.afterInitialize = nil
		hook()
	}
	return record, err
}

func (l *countingLedger) Resolve(ctx context.Context, matchID model.MatchID, winner model.ParticipantID) (*model.Settlement, error) {
	l.settlements.Add(1)
	return l.LedgerInterface.Resolve(ctx, matchID, winner)
}

func (l *countingLedger) Refund(ctx context.Context, matchID model.MatchID) (*model.Settlement, error) {
	l.settlements.Add(1)
	return l.LedgerInterface.Refund(ctx, matchID)
}

type ControllerSuite struct {
	suite.Suite
	storage    *memory.Storage
	clock      *quartz.Mock
	ledger     *countingLedger
	publisher  *recordingPublisher
	hooks      *recordingHooks
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.storage = memory.New()
	logger := testutil.NopLogger()
	s.clock = mocks.NewMockClock(s.T(), mocks.DefaultTime)
	random := mocks.NewMockRandom()
	s.ledger = &countingLedger{
		LedgerInterface: escrow.NewLedger(s.storage, settlement.NewLogSink(logger), s.clock, random, "0xescrow", logger),
	}
	s.publisher = &recordingPublisher{}
	s.hooks = &recordingHooks{ended: make(map[model.MatchID]model.MatchStatus)}

	cfg := DefaultConfig()
	cfg.CommitTimeout = commitTimeout
	cfg.RevealTimeout = revealTimeout
	cfg.MaxDrawRounds = 3
	s.controller = NewController(s.storage, s.ledger, evaluator.DefaultRegistry(), s.publisher, s.clock, cfg, logger)
	s.controller.SetRoomHooks(s.hooks)
	s.ctx = context.Background()
}

func (s *ControllerSuite) TearDownTest() {
	s.controller.Stop()
}

// filledRoom returns ROOM01 as it is stored right after alice and bob fill it
func (s *ControllerSuite) filledRoom(kind model.GameKind, stake model.Amount) *model.Room {
	room := &model.Room{
		ID:       "ROOM01",
		GameKind: kind,
		Stake:    stake,
		FeeBps:   100,
		Status:   model.RoomStatusWaiting,
		OwnerID:  "alice",
		Members:  []model.RoomMember{{ParticipantID: "alice"}, {ParticipantID: "bob"}},
		Capacity: model.RoomCapacity,
	}
	room.Fill(s.clock.Now())
	return room
}

func (s *ControllerSuite) spawn(kind model.GameKind, stake model.Amount) *model.Match {
	match, err := s.controller.Spawn(s.ctx, s.filledRoom(kind, stake))
	s.Require().NoError(err)
	return match
}

func (s *ControllerSuite) commit(id model.MatchID, who model.ParticipantID, move model.RPSMove, salt string) {
	_, err := s.controller.SubmitCommit(s.ctx, id, who, commitment.Hash(move, salt))
	s.Require().NoError(err)
}

func (s *ControllerSuite) escrowState(id model.MatchID) model.EscrowState {
	record, err := s.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	return record.State
}

// Spawn tests

func (s *ControllerSuite) TestSpawnCreatesMatchAndEscrow() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	s.Equal(model.MatchID("ROOM01-1"), match.ID)
	s.Equal(model.MatchStatusActive, match.Status)
	s.Equal([]model.ParticipantID{"alice", "bob"}, match.Players)

	record, err := s.ledger.Get(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(model.EscrowStateInitialized, record.State)
	s.Equal(model.Amount(10), record.Pot)
}

func (s *ControllerSuite) TestSpawnIsIdempotent() {
	first := s.spawn(model.GameRockPaperScissors, 5)
	second := s.spawn(model.GameRockPaperScissors, 5)

	s.Equal(first.ID, second.ID)
	s.Equal(first.CreatedAt, second.CreatedAt)
}

func (s *ControllerSuite) TestSpawnRejectsMatchHeldByOtherPlayers() {
	s.spawn(model.GameRockPaperScissors, 5)

	other := s.filledRoom(model.GameRockPaperScissors, 5)
	other.Members[1].ParticipantID = "carol"
	_, err := s.controller.Spawn(s.ctx, other)
	s.ErrorIs(err, model.ErrConflict)

	stored, err := s.controller.GetMatch(s.ctx, "ROOM01-1")
	s.Require().NoError(err)
	s.Equal([]model.ParticipantID{"alice", "bob"}, stored.Players)
	record, err := s.ledger.Get(s.ctx, "ROOM01-1")
	s.Require().NoError(err)
	s.Equal([]model.ParticipantID{"alice", "bob"}, record.Contributors)
}

func (s *ControllerSuite) TestSpawnRejectsUnsupportedGame() {
	_, err := s.controller.Spawn(s.ctx, &model.Room{ID: "ROOM02", GameKind: "poker", Stake: 5, MatchSeq: 1})
	s.ErrorIs(err, model.ErrUnsupportedGame)
}

// Commit-reveal tests

func (s *ControllerSuite) TestRockBeatsScissorsPaysWinner() {
	match := s.spawn(model.GameRockPaperScissors, 100)

	s.commit(match.ID, "alice", model.RPSRock, "saltA")
	s.commit(match.ID, "bob", model.RPSScissors, "saltB")

	_, err := s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "saltA")
	s.Require().NoError(err)
	final, err := s.controller.SubmitReveal(s.ctx, match.ID, "bob", model.RPSScissors, "saltB")
	s.Require().NoError(err)

	s.Equal(model.MatchStatusFinished, final.Status)
	s.Equal(model.ParticipantID("alice"), final.Winner)
	s.Equal(model.EndReasonDecisive, final.EndReason)
	s.True(final.Settled)
	s.NotEmpty(final.SettlementID)

	record, err := s.ledger.Get(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(model.EscrowStateResolved, record.State)
	s.Equal(model.Amount(2), record.Settlement.Fee)
	s.Equal(model.Amount(198), record.Settlement.Payout)
	s.Equal(final.SettlementID, record.Settlement.ID)

	s.Equal([]model.MatchID{match.ID}, s.hooks.started)
	s.Equal(model.MatchStatusFinished, s.hooks.ended[match.ID])
	s.Equal(0, s.controller.PendingTimers())
	s.Equal([]model.EventType{
		model.EventCommitSubmitted,
		model.EventCommitSubmitted,
		model.EventRevealSubmitted,
		model.EventRevealSubmitted,
		model.EventMatchFinished,
	}, s.publisher.types())
}

func (s *ControllerSuite) TestHashMismatchForfeitsToOpponent() {
	match := s.spawn(model.GameRockPaperScissors, 100)

	s.commit(match.ID, "alice", model.RPSRock, "saltA")
	s.commit(match.ID, "bob", model.RPSScissors, "saltB")

	_, err := s.controller.SubmitReveal(s.ctx, match.ID, "bob", model.RPSPaper, "saltB")
	s.ErrorIs(err, model.ErrHashMismatch)
	s.ErrorIs(err, model.ErrProtocolViolation)

	final, err := s.controller.GetMatch(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusFinished, final.Status)
	s.Equal(model.ParticipantID("alice"), final.Winner)
	s.Equal(model.ParticipantID("bob"), final.ForfeitedBy)
	s.Equal(model.EndReasonHashMismatch, final.EndReason)
	s.Equal(model.EscrowStateResolved, s.escrowState(match.ID))

	// No second chance, even with the honest move
	_, err = s.controller.SubmitReveal(s.ctx, match.ID, "bob", model.RPSScissors, "saltB")
	s.ErrorIs(err, model.ErrMatchClosed)
}

func (s *ControllerSuite) TestCommitErrors() {
	match := s.spawn(model.GameRockPaperScissors, 5)
	s.commit(match.ID, "alice", model.RPSRock, "salt")

	_, err := s.controller.SubmitCommit(s.ctx, match.ID, "alice", commitment.Hash(model.RPSPaper, "other"))
	s.ErrorIs(err, model.ErrDuplicateCommit)

	_, err = s.controller.SubmitCommit(s.ctx, match.ID, "mallory", commitment.Hash(model.RPSPaper, "x"))
	s.ErrorIs(err, model.ErrNotMember)

	_, err = s.controller.SubmitCommit(s.ctx, match.ID, "bob", []byte("short"))
	s.ErrorIs(err, model.ErrInvalidCommit)

	_, err = s.controller.SubmitCommit(s.ctx, "missing", "bob", commitment.Hash(model.RPSPaper, "x"))
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *ControllerSuite) TestRevealErrors() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	_, err := s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "salt")
	s.ErrorIs(err, model.ErrNoCommit)

	s.commit(match.ID, "alice", model.RPSRock, "salt")
	_, err = s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "salt")
	s.ErrorIs(err, model.ErrNotYetRevealable)

	s.commit(match.ID, "bob", model.RPSPaper, "pepper")
	_, err = s.controller.SubmitReveal(s.ctx, match.ID, "alice", "lizard", "salt")
	s.ErrorIs(err, model.ErrInvalidMove)
	_, err = s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "")
	s.ErrorIs(err, model.ErrInvalidRequest)

	_, err = s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "salt")
	s.Require().NoError(err)
	_, err = s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "salt")
	s.ErrorIs(err, model.ErrAlreadyRevealed)
}

func (s *ControllerSuite) TestDrawOpensNewRound() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	s.commit(match.ID, "alice", model.RPSRock, "a1")
	s.commit(match.ID, "bob", model.RPSRock, "b1")
	_, err := s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "a1")
	s.Require().NoError(err)
	updated, err := s.controller.SubmitReveal(s.ctx, match.ID, "bob", model.RPSRock, "b1")
	s.Require().NoError(err)

	s.Equal(model.MatchStatusActive, updated.Status)
	s.Equal(2, updated.Round)
	s.Empty(updated.Commits)
	s.Nil(updated.RevealDeadline)
	s.Require().Len(updated.Rounds, 1)
	s.Equal(1, updated.Rounds[0].Round)
	s.Equal(0, s.controller.PendingTimers())
	s.Contains(s.publisher.types(), model.EventRoundDrawn)

	// Both can commit again in the new round
	s.commit(match.ID, "alice", model.RPSPaper, "a2")
	s.commit(match.ID, "bob", model.RPSRock, "b2")
	_, err = s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSPaper, "a2")
	s.Require().NoError(err)
	final, err := s.controller.SubmitReveal(s.ctx, match.ID, "bob", model.RPSRock, "b2")
	s.Require().NoError(err)
	s.Equal(model.ParticipantID("alice"), final.Winner)
}

func (s *ControllerSuite) TestDrawLimitRefunds() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	var final *model.Match
	for range 3 {
		s.commit(match.ID, "alice", model.RPSPaper, "a")
		s.commit(match.ID, "bob", model.RPSPaper, "b")
		_, err := s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSPaper, "a")
		s.Require().NoError(err)
		final, err = s.controller.SubmitReveal(s.ctx, match.ID, "bob", model.RPSPaper, "b")
		s.Require().NoError(err)
	}

	s.Equal(model.MatchStatusCancelled, final.Status)
	s.Equal(model.EndReasonDrawLimit, final.EndReason)
	s.Len(final.Rounds, 3)
	s.Equal(model.EscrowStateRefunded, s.escrowState(match.ID))
	s.Equal(model.MatchStatusCancelled, s.hooks.ended[match.ID])
}

// Reveal timeout tests

func (s *ControllerSuite) TestRevealTimeoutAwardsRevealer() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	s.commit(match.ID, "alice", model.RPSRock, "a")
	s.commit(match.ID, "bob", model.RPSPaper, "b")
	s.Equal(1, s.controller.PendingTimers())

	_, err := s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "a")
	s.Require().NoError(err)

	s.clock.Advance(revealTimeout).MustWait(s.ctx)

	final, err := s.controller.GetMatch(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusFinished, final.Status)
	s.Equal(model.ParticipantID("alice"), final.Winner)
	s.Equal(model.ParticipantID("bob"), final.ForfeitedBy)
	s.Equal(model.EndReasonRevealTimeout, final.EndReason)
	s.True(final.Settled)
	s.Equal(model.EscrowStateResolved, s.escrowState(match.ID))
}

func (s *ControllerSuite) TestRevealTimeoutWithoutRevealsRefunds() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	s.commit(match.ID, "alice", model.RPSRock, "a")
	s.commit(match.ID, "bob", model.RPSPaper, "b")

	s.clock.Advance(revealTimeout).MustWait(s.ctx)

	final, err := s.controller.GetMatch(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusCancelled, final.Status)
	s.Equal(model.EndReasonNoReveal, final.EndReason)
	s.Equal(model.EscrowStateRefunded, s.escrowState(match.ID))
}

func (s *ControllerSuite) TestExpireBeforeDeadlineIsNoop() {
	match := s.spawn(model.GameRockPaperScissors, 5)
	s.commit(match.ID, "alice", model.RPSRock, "a")
	s.Require().NoError(s.controller.ExpireDeadline(s.ctx, match.ID))
	s.commit(match.ID, "bob", model.RPSPaper, "b")

	s.Require().NoError(s.controller.ExpireDeadline(s.ctx, match.ID))

	current, _ := s.controller.GetMatch(s.ctx, match.ID)
	s.Equal(model.MatchStatusActive, current.Status)
	s.Equal(int32(0), s.ledger.settlements.Load())
}

// Commit deadline tests

func (s *ControllerSuite) TestCommitTimeoutAwardsSoleCommitter() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	s.commit(match.ID, "alice", model.RPSRock, "a")
	current, err := s.controller.GetMatch(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Require().NotNil(current.CommitDeadline)
	s.Equal(s.clock.Now().Add(commitTimeout), *current.CommitDeadline)
	s.Nil(current.RevealDeadline)
	s.Equal(1, s.controller.PendingTimers())

	s.clock.Advance(commitTimeout).MustWait(s.ctx)

	final, err := s.controller.GetMatch(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusFinished, final.Status)
	s.Equal(model.ParticipantID("alice"), final.Winner)
	s.Equal(model.ParticipantID("bob"), final.ForfeitedBy)
	s.Equal(model.EndReasonCommitTimeout, final.EndReason)
	s.Nil(final.CommitDeadline)
	s.True(final.Settled)
	s.Equal(model.EscrowStateResolved, s.escrowState(match.ID))
	s.Equal(model.MatchStatusFinished, s.hooks.ended[match.ID])
	s.Equal(0, s.controller.PendingTimers())

	_, err = s.controller.SubmitCommit(s.ctx, match.ID, "bob", commitment.Hash(model.RPSPaper, "b"))
	s.ErrorIs(err, model.ErrMatchClosed)
}

func (s *ControllerSuite) TestSecondCommitReplacesCommitDeadline() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	s.commit(match.ID, "alice", model.RPSRock, "a")
	s.clock.Advance(commitTimeout / 2).MustWait(s.ctx)
	s.commit(match.ID, "bob", model.RPSPaper, "b")

	current, err := s.controller.GetMatch(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Nil(current.CommitDeadline)
	s.Require().NotNil(current.RevealDeadline)
	s.Equal(1, s.controller.PendingTimers())

	// The first commit's deadline passes without effect
	s.clock.Advance(commitTimeout / 2).MustWait(s.ctx)
	current, _ = s.controller.GetMatch(s.ctx, match.ID)
	s.Equal(model.MatchStatusActive, current.Status)

	s.clock.Advance(revealTimeout - commitTimeout/2).MustWait(s.ctx)
	final, _ := s.controller.GetMatch(s.ctx, match.ID)
	s.Equal(model.MatchStatusCancelled, final.Status)
	s.Equal(model.EndReasonNoReveal, final.EndReason)
}

func (s *ControllerSuite) TestDrawKeepsNextRoundDeadline() {
	match := s.spawn(model.GameRockPaperScissors, 5)

	s.commit(match.ID, "alice", model.RPSRock, "a1")
	s.commit(match.ID, "bob", model.RPSRock, "b1")
	_, err := s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "a1")
	s.Require().NoError(err)

	// alice commits to round 2 after the draw is stored but before the
	// reveal that drew it has finished
	s.publisher.onPublish = func(e model.Event) {
		if e.Type != model.EventRevealSubmitted || e.ParticipantID != "bob" {
			return
		}
		s.publisher.onPublish = nil
		s.commit(match.ID, "alice", model.RPSPaper, "a2")
	}
	drawn, err := s.controller.SubmitReveal(s.ctx, match.ID, "bob", model.RPSRock, "b1")
	s.Require().NoError(err)
	s.Equal(2, drawn.Round)
	s.Equal(1, s.controller.PendingTimers())

	s.clock.Advance(commitTimeout).MustWait(s.ctx)

	final, err := s.controller.GetMatch(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusFinished, final.Status)
	s.Equal(model.ParticipantID("alice"), final.Winner)
	s.Equal(model.EndReasonCommitTimeout, final.EndReason)
}

func (s *ControllerSuite) TestSweepExpiresOverdueCommitDeadline() {
	match := s.spawn(model.GameRockPaperScissors, 5)
	_, err := s.storage.UpdateMatch(s.ctx, match.ID, func(m *model.Match) error {
		past := s.clock.Now().Add(-time.Second)
		m.Commits = []model.CommitEntry{{ParticipantID: "bob"}}
		m.CommitDeadline = &past
		return nil
	})
	s.Require().NoError(err)

	expired, err := s.controller.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, expired)

	final, _ := s.controller.GetMatch(s.ctx, match.ID)
	s.Equal(model.MatchStatusFinished, final.Status)
	s.Equal(model.ParticipantID("bob"), final.Winner)
	s.Equal(model.EndReasonCommitTimeout, final.EndReason)
}

func (s *ControllerSuite) TestConcurrentTerminalTriggersSettleOnce() {
	match := s.spawn(model.GameRockPaperScissors, 100)
	s.commit(match.ID, "alice", model.RPSRock, "a")
	s.commit(match.ID, "bob", model.RPSScissors, "b")
	_, err := s.controller.SubmitReveal(s.ctx, match.ID, "alice", model.RPSRock, "a")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				_, err = s.controller.SubmitReveal(s.ctx, match.ID, "bob", model.RPSScissors, "b")
			case 1:
				_, err = s.controller.CancelMatch(s.ctx, match.ID)
			default:
				err = s.controller.ExpireDeadline(s.ctx, match.ID)
			}
			if err != nil && !errors.Is(err, model.ErrMatchClosed) && !errors.Is(err, model.ErrAlreadyRevealed) {
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), s.ledger.settlements.Load())
	final, _ := s.controller.GetMatch(s.ctx, match.ID)
	s.True(final.Status.Terminal())
	s.True(final.Settled)
}

// Direct-move tests

func (s *ControllerSuite) TestTicTacToeWinResolves() {
	match := s.spawn(model.GameTicTacToe, 5)

	moves := []struct {
		who  model.ParticipantID
		cell int
	}{{"alice", 0}, {"bob", 3}, {"alice", 1}, {"bob", 4}, {"alice", 2}}

	var final *model.Match
	for _, m := range moves {
		payload, _ := json.Marshal(map[string]any{"type": "place", "cell": m.cell})
		var err error
		final, err = s.controller.SubmitMove(s.ctx, match.ID, m.who, payload)
		s.Require().NoError(err)
	}

	s.Equal(model.MatchStatusFinished, final.Status)
	s.Equal(model.ParticipantID("alice"), final.Winner)
	s.Len(final.Moves, 5)
	s.Equal(model.EscrowStateResolved, s.escrowState(match.ID))
	s.Equal([]model.MatchID{match.ID}, s.hooks.started)

	_, err := s.controller.SubmitMove(s.ctx, match.ID, "bob", json.RawMessage(`{"type":"place","cell":8}`))
	s.ErrorIs(err, model.ErrMatchClosed)
}

func (s *ControllerSuite) TestDirectMoveDrawRefunds() {
	match := s.spawn(model.GameChess, 5)

	_, err := s.controller.SubmitMove(s.ctx, match.ID, "alice", json.RawMessage(`{"type":"offer_draw"}`))
	s.Require().NoError(err)
	final, err := s.controller.SubmitMove(s.ctx, match.ID, "bob", json.RawMessage(`{"type":"accept_draw"}`))
	s.Require().NoError(err)

	s.Equal(model.MatchStatusFinished, final.Status)
	s.Empty(final.Winner)
	s.Equal(model.EndReasonDraw, final.EndReason)
	s.Equal(model.EscrowStateRefunded, s.escrowState(match.ID))
}

func (s *ControllerSuite) TestResignationRecordsForfeit() {
	match := s.spawn(model.GameCheckers, 5)

	final, err := s.controller.SubmitMove(s.ctx, match.ID, "alice", json.RawMessage(`{"type":"resign"}`))
	s.Require().NoError(err)

	s.Equal(model.ParticipantID("bob"), final.Winner)
	s.Equal(model.ParticipantID("alice"), final.ForfeitedBy)
	s.Equal(model.EndReasonResigned, final.EndReason)
}

func (s *ControllerSuite) TestWrongDiscipline() {
	rps := s.spawn(model.GameRockPaperScissors, 5)
	_, err := s.controller.SubmitMove(s.ctx, rps.ID, "alice", json.RawMessage(`{"type":"resign"}`))
	s.ErrorIs(err, model.ErrWrongDiscipline)
}

// Cancellation tests

func (s *ControllerSuite) TestCancelUnstartedRefundsWithoutRoomHook() {
	room := s.filledRoom(model.GameTicTacToe, 5)
	match, err := s.controller.Spawn(s.ctx, room)
	s.Require().NoError(err)

	s.Require().NoError(s.controller.CancelUnstarted(s.ctx, room))
	s.Require().NoError(s.controller.CancelUnstarted(s.ctx, room))

	final, _ := s.controller.GetMatch(s.ctx, match.ID)
	s.Equal(model.MatchStatusCancelled, final.Status)
	s.Equal(model.EndReasonLeftRoom, final.EndReason)
	s.Equal(model.EscrowStateRefunded, s.escrowState(match.ID))
	s.Empty(s.hooks.ended)
	s.Equal(int32(1), s.ledger.settlements.Load())
}

func (s *ControllerSuite) TestCancelUnstartedRejectsStartedMatch() {
	room := s.filledRoom(model.GameTicTacToe, 5)
	match, err := s.controller.Spawn(s.ctx, room)
	s.Require().NoError(err)
	_, err = s.controller.SubmitMove(s.ctx, match.ID, "alice", json.RawMessage(`{"type":"place","cell":4}`))
	s.Require().NoError(err)

	s.ErrorIs(s.controller.CancelUnstarted(s.ctx, room), model.ErrRoomLocked)
	s.Equal(model.EscrowStateActive, s.escrowState(match.ID))
}

func (s *ControllerSuite) TestCancelBeforeSpawnClosesTheFill() {
	room := s.filledRoom(model.GameRockPaperScissors, 5)

	s.Require().NoError(s.controller.CancelUnstarted(s.ctx, room))

	stored, err := s.controller.GetMatch(s.ctx, room.CurrentMatch)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusCancelled, stored.Status)
	s.Equal(model.EndReasonLeftRoom, stored.EndReason)
	s.True(stored.Settled)
	s.Empty(stored.SettlementID)

	// The spawn for that fill runs late and opens nothing
	_, err = s.controller.Spawn(s.ctx, room)
	s.ErrorIs(err, model.ErrMatchClosed)
	_, err = s.ledger.Get(s.ctx, room.CurrentMatch)
	s.ErrorIs(err, model.ErrEscrowNotFound)
}

func (s *ControllerSuite) TestCancelDuringSpawnRefundsItsEscrow() {
	room := s.filledRoom(model.GameRockPaperScissors, 5)
	s.ledger.afterInitialize = func() {
		s.Require().NoError(s.controller.CancelUnstarted(s.ctx, room))
	}

	_, err := s.controller.Spawn(s.ctx, room)
	s.ErrorIs(err, model.ErrMatchClosed)

	stored, err := s.controller.GetMatch(s.ctx, room.CurrentMatch)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusCancelled, stored.Status)
	s.True(stored.Settled)
	s.NotEmpty(stored.SettlementID)
	s.Equal(model.EscrowStateRefunded, s.escrowState(room.CurrentMatch))
}

func (s *ControllerSuite) TestAdminCancelRefunds() {
	match := s.spawn(model.GameTicTacToe, 5)

	final, err := s.controller.CancelMatch(s.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(model.EndReasonAdmin, final.EndReason)
	s.Equal(model.EscrowStateRefunded, s.escrowState(match.ID))
	s.Equal(model.MatchStatusCancelled, s.hooks.ended[match.ID])

	_, err = s.controller.CancelMatch(s.ctx, match.ID)
	s.ErrorIs(err, model.ErrMatchClosed)
}

// Sweep tests

func (s *ControllerSuite) TestSweepExpiresOverdueMatches() {
	match := s.spawn(model.GameRockPaperScissors, 5)
	// A deadline persisted by a process that has since died, with no timer armed
	_, err := s.storage.UpdateMatch(s.ctx, match.ID, func(m *model.Match) error {
		past := s.clock.Now().Add(-time.Second)
		m.Commits = []model.CommitEntry{{ParticipantID: "alice"}, {ParticipantID: "bob"}}
		m.RevealDeadline = &past
		return nil
	})
	s.Require().NoError(err)

	expired, err := s.controller.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, expired)

	final, _ := s.controller.GetMatch(s.ctx, match.ID)
	s.Equal(model.MatchStatusCancelled, final.Status)
	s.Equal(model.EndReasonNoReveal, final.EndReason)
}

func (s *ControllerSuite) TestRestoreTimers() {
	match := s.spawn(model.GameRockPaperScissors, 5)
	_, err := s.storage.UpdateMatch(s.ctx, match.ID, func(m *model.Match) error {
		deadline := s.clock.Now().Add(5 * time.Second)
		m.Commits = []model.CommitEntry{{ParticipantID: "alice"}, {ParticipantID: "bob"}}
		m.RevealDeadline = &deadline
		return nil
	})
	s.Require().NoError(err)

	armed, err := s.controller.RestoreTimers(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, armed)

	s.clock.Advance(5 * time.Second).MustWait(s.ctx)

	final, _ := s.controller.GetMatch(s.ctx, match.ID)
	s.Equal(model.MatchStatusCancelled, final.Status)
}

func (s *ControllerSuite) TestReconcileSettlesAbandonedTerminalMatch() {
	match := s.spawn(model.GameTicTacToe, 5)
	// Simulate a crash after the terminal transition but before settlement
	_, err := s.storage.UpdateMatch(s.ctx, match.ID, func(m *model.Match) error {
		finish(m, "bob", "", model.EndReasonDecisive, s.clock.Now())
		return nil
	})
	s.Require().NoError(err)

	settled, err := s.controller.ReconcileSettlements(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, settled)

	final, _ := s.controller.GetMatch(s.ctx, match.ID)
	s.True(final.Settled)
	s.Equal(model.EscrowStateResolved, s.escrowState(match.ID))
	s.Equal(model.MatchStatusFinished, s.hooks.ended[match.ID])

	settled, err = s.controller.ReconcileSettlements(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, settled)
}

func (s *ControllerSuite) TestReconcileSpawnsMissingMatchForFilledRoom() {
	// The fill was stored but the process died before spawning
	room := s.filledRoom(model.GameRockPaperScissors, 5)
	room.Privacy = model.PrivacyPrivate
	s.Require().NoError(s.storage.CreateRoom(s.ctx, room))

	spawned, err := s.controller.ReconcileFills(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, spawned)

	match, err := s.controller.GetMatch(s.ctx, room.CurrentMatch)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusActive, match.Status)
	s.Equal(room.MemberIDs(), match.Players)
	record, err := s.ledger.Get(s.ctx, room.CurrentMatch)
	s.Require().NoError(err)
	s.Equal(room.MemberIDs(), record.Contributors)

	spawned, err = s.controller.ReconcileFills(s.ctx)
	s.Require().NoError(err)
	s.Zero(spawned)
}
