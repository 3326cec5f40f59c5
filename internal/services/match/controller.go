package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mcoot/stakegame/internal/dependencies/clock"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/commitment"
	"github.com/mcoot/stakegame/internal/services/escrow"
	"github.com/mcoot/stakegame/internal/services/evaluator"
	"github.com/mcoot/stakegame/internal/storage"
)

// Publisher receives match events for fan-out to subscribers.
// Publish must not block.
type Publisher interface {
	Publish(matchID model.MatchID, event model.Event)
}

// RoomHooks lets the room registry follow its match's lifecycle
type RoomHooks interface {
	MatchStarted(ctx context.Context, roomID model.RoomID, matchID model.MatchID) error
	MatchEnded(ctx context.Context, roomID model.RoomID, matchID model.MatchID, status model.MatchStatus) error
}

// Config holds orchestrator settings
type Config struct {
	// CommitTimeout runs from a round's first commit; zero disables it
	CommitTimeout time.Duration
	RevealTimeout time.Duration
	// MaxDrawRounds caps consecutive drawn commit-reveal rounds before the match is refunded
	MaxDrawRounds int
	// SweepParallelism bounds concurrent expirations during a sweep
	SweepParallelism int
}

// DefaultConfig returns sensible defaults for the orchestrator
func DefaultConfig() Config {
	return Config{
		CommitTimeout:    60 * time.Second,
		RevealTimeout:    60 * time.Second,
		MaxDrawRounds:    10,
		SweepParallelism: 8,
	}
}

// errUnchanged aborts a match update that turned out to be a no-op
var errUnchanged = errors.New("match unchanged")

// Controller runs the match state machine and drives escrow settlement
type Controller struct {
	storage    storage.Storage
	ledger     escrow.LedgerInterface
	evaluators *evaluator.Registry
	publisher  Publisher
	rooms      RoomHooks
	clock      clock.Clock
	cfg        Config
	logger     *slog.Logger

	timersMu sync.Mutex
	timers   map[model.MatchID]*roundTimer
}

// NewController creates a new match Controller
func NewController(
	storage storage.Storage,
	ledger escrow.LedgerInterface,
	evaluators *evaluator.Registry,
	publisher Publisher,
	clock clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	if cfg.SweepParallelism <= 0 {
		cfg.SweepParallelism = 1
	}
	return &Controller{
		storage:    storage,
		ledger:     ledger,
		evaluators: evaluators,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
		timers:     make(map[model.MatchID]*roundTimer),
	}
}

// SetRoomHooks wires the room registry, which itself depends on the controller
func (c *Controller) SetRoomHooks(rooms RoomHooks) {
	c.rooms = rooms
}

// Spawn creates the match and its escrow for a room whose fill has been
// committed. It only writes what is missing, so repeating it for the same
// fill returns the existing match. A match id held by other players
// reports model.ErrConflict; a fill cancelled before its spawn ran reports
// model.ErrMatchClosed.
func (c *Controller) Spawn(ctx context.Context, room *model.Room) (*model.Match, error) {
	if !c.evaluators.Supports(room.GameKind) {
		return nil, model.ErrUnsupportedGame
	}

	matchID := room.CurrentMatch
	if matchID == "" {
		matchID = model.MatchIDFor(room.ID, room.MatchSeq)
	}
	players := room.MemberIDs()

	existing, err := c.storage.GetMatch(ctx, matchID)
	if err == nil {
		return c.checkSpawned(ctx, existing, players)
	}
	if !errors.Is(err, model.ErrMatchNotFound) {
		return nil, err
	}

	if _, err := c.ledger.Initialize(ctx, matchID, room.Stake, room.FeeBps, players); err != nil {
		return nil, fmt.Errorf("failed to initialize escrow: %w", err)
	}

	now := c.clock.Now()
	match := &model.Match{
		ID:        matchID,
		RoomID:    room.ID,
		GameKind:  room.GameKind,
		Players:   players,
		Status:    model.MatchStatusActive,
		Round:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := c.storage.CreateMatch(ctx, match)
	if err != nil {
		c.logger.Error("failed to save match",
			slog.String("match_id", string(matchID)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if !created {
		existing, err := c.storage.GetMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		return c.checkSpawned(ctx, existing, players)
	}

	c.logger.Info("match created",
		slog.String("match_id", string(matchID)),
		slog.String("room_id", string(room.ID)),
		slog.String("game_kind", string(room.GameKind)),
	)
	return match, nil
}

// checkSpawned vets a match already stored under a fill's id
func (c *Controller) checkSpawned(ctx context.Context, m *model.Match, players []model.ParticipantID) (*model.Match, error) {
	if !slices.Equal(m.Players, players) {
		c.logger.Error("match id held by other players",
			slog.String("match_id", string(m.ID)),
			slog.Any("players", m.Players),
			slog.Any("requested", players),
		)
		return nil, fmt.Errorf("%w: match %s belongs to other players", model.ErrConflict, m.ID)
	}
	if m.Status.Terminal() {
		// The fill was cancelled first; refund whatever this spawn opened
		if _, err := c.settle(ctx, m); err != nil {
			c.logger.Error("failed to settle cancelled fill",
				slog.String("match_id", string(m.ID)),
				slog.String("error", err.Error()),
			)
		}
		return nil, model.ErrMatchClosed
	}
	return m, nil
}

// GetMatch retrieves a match by ID
func (c *Controller) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	return c.storage.GetMatch(ctx, id)
}

// checkPlayable validates the preconditions shared by every submission
func checkPlayable(m *model.Match, participant model.ParticipantID, discipline model.Discipline) error {
	if m.Status.Terminal() {
		return model.ErrMatchClosed
	}
	if !m.IsPlayer(participant) {
		return model.ErrNotMember
	}
	if m.GameKind.Discipline() != discipline {
		return model.ErrWrongDiscipline
	}
	return nil
}

// markStarted records the first play and reports whether this call did so
func markStarted(m *model.Match) bool {
	if m.Started {
		return false
	}
	m.Started = true
	return true
}

// finish moves an active match to FINISHED. Winner is empty for a draw.
func finish(m *model.Match, winner, forfeitedBy model.ParticipantID, reason model.EndReason, now time.Time) {
	m.Status = model.MatchStatusFinished
	m.Winner = winner
	m.ForfeitedBy = forfeitedBy
	m.EndReason = reason
	m.CommitDeadline = nil
	m.RevealDeadline = nil
	m.UpdatedAt = now
	m.FinishedAt = &now
}

// cancel moves an active match to CANCELLED
func cancel(m *model.Match, reason model.EndReason, now time.Time) {
	m.Status = model.MatchStatusCancelled
	m.Winner = ""
	m.EndReason = reason
	m.CommitDeadline = nil
	m.RevealDeadline = nil
	m.UpdatedAt = now
	m.FinishedAt = &now
}

// SubmitMove appends a move to a direct-move match and evaluates it
func (c *Controller) SubmitMove(ctx context.Context, id model.MatchID, participant model.ParticipantID, move json.RawMessage) (*model.Match, error) {
	var started, ended bool
	var seq int

	match, err := c.storage.UpdateMatch(ctx, id, func(m *model.Match) error {
		started, ended = false, false
		if err := checkPlayable(m, participant, model.DisciplineDirect); err != nil {
			return err
		}
		ev, err := c.evaluators.Get(m.GameKind)
		if err != nil {
			return err
		}
		if v, ok := ev.(evaluator.MoveValidator); ok {
			if err := v.ValidateMove(m, participant, move); err != nil {
				return err
			}
		}

		now := c.clock.Now()
		seq = len(m.Moves) + 1
		m.Moves = append(m.Moves, model.Move{
			Seq:           seq,
			ParticipantID: participant,
			Payload:       move,
			SubmittedAt:   now,
		})
		m.UpdatedAt = now
		started = markStarted(m)

		switch outcome := ev.Evaluate(m); outcome.Kind {
		case evaluator.OutcomeDecisive:
			var forfeitedBy model.ParticipantID
			if outcome.Reason == model.EndReasonResigned {
				forfeitedBy = m.Opponent(outcome.Winner)
			}
			finish(m, outcome.Winner, forfeitedBy, outcome.Reason, now)
			ended = true
		case evaluator.OutcomeDraw:
			finish(m, "", "", model.EndReasonDraw, now)
			ended = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if started {
		c.onStarted(ctx, match)
	}
	c.publish(match, model.EventMoveSubmitted, participant, model.MoveSubmittedPayload{Seq: seq, Move: move})
	if ended {
		match = c.closeOut(ctx, match, true)
	}
	return match, nil
}

// SubmitCommit records a participant's binding commitment for the current round
func (c *Controller) SubmitCommit(ctx context.Context, id model.MatchID, participant model.ParticipantID, hash []byte) (*model.Match, error) {
	if len(hash) != commitment.HashLength {
		return nil, model.ErrInvalidCommit
	}

	var started, armed bool
	match, err := c.storage.UpdateMatch(ctx, id, func(m *model.Match) error {
		started, armed = false, false
		if err := checkPlayable(m, participant, model.DisciplineCommitReveal); err != nil {
			return err
		}
		if m.GetCommit(participant) != nil {
			return model.ErrDuplicateCommit
		}

		now := c.clock.Now()
		m.Commits = append(m.Commits, model.CommitEntry{
			ParticipantID: participant,
			Hash:          hash,
			CommittedAt:   now,
		})
		m.UpdatedAt = now
		started = markStarted(m)

		if m.BothCommitted() {
			deadline := now.Add(c.cfg.RevealTimeout)
			m.CommitDeadline = nil
			m.RevealDeadline = &deadline
			armed = true
		} else if m.CommitDeadline == nil && c.cfg.CommitTimeout > 0 {
			deadline := now.Add(c.cfg.CommitTimeout)
			m.CommitDeadline = &deadline
			armed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if started {
		c.onStarted(ctx, match)
	}
	if armed {
		phase := phaseCommit
		if match.RevealDeadline != nil {
			phase = phaseReveal
		}
		c.arm(match.ID, match.Round, phase, *match.Deadline())
	}
	c.publish(match, model.EventCommitSubmitted, participant, model.CommitSubmittedPayload{
		Round:         match.Round,
		BothCommitted: match.BothCommitted(),
	})
	return match, nil
}

// SubmitReveal opens a participant's commitment. A reveal that does not
// match the commitment forfeits the match to the opponent and returns
// ErrHashMismatch; there is no retry.
func (c *Controller) SubmitReveal(ctx context.Context, id model.MatchID, participant model.ParticipantID, move model.RPSMove, salt string) (*model.Match, error) {
	if !move.Valid() {
		return nil, fmt.Errorf("%w: unknown move %q", model.ErrInvalidMove, move)
	}
	if salt == "" || len(salt) > commitment.MaxSaltLength {
		return nil, fmt.Errorf("%w: salt must be 1 to %d bytes", model.ErrInvalidRequest, commitment.MaxSaltLength)
	}

	var mismatch, drawn, ended bool
	var round int
	match, err := c.storage.UpdateMatch(ctx, id, func(m *model.Match) error {
		mismatch, drawn, ended = false, false, false
		if err := checkPlayable(m, participant, model.DisciplineCommitReveal); err != nil {
			return err
		}
		commit := m.GetCommit(participant)
		if commit == nil {
			return model.ErrNoCommit
		}
		if !m.BothCommitted() {
			return model.ErrNotYetRevealable
		}
		if commit.Revealed() {
			return model.ErrAlreadyRevealed
		}

		now := c.clock.Now()
		round = m.Round
		if !commitment.Verify(commit.Hash, move, salt) {
			mismatch, ended = true, true
			finish(m, m.Opponent(participant), participant, model.EndReasonHashMismatch, now)
			return nil
		}

		commit.Move = move
		commit.Salt = salt
		commit.RevealedAt = &now
		m.UpdatedAt = now

		ev, err := c.evaluators.Get(m.GameKind)
		if err != nil {
			return err
		}
		switch outcome := ev.Evaluate(m); outcome.Kind {
		case evaluator.OutcomeDecisive:
			finish(m, outcome.Winner, "", outcome.Reason, now)
			ended = true
		case evaluator.OutcomeDraw:
			drawn = true
			m.Rounds = append(m.Rounds, model.RoundResult{Round: m.Round, Commits: m.Commits})
			m.Commits = nil
			m.CommitDeadline = nil
			m.RevealDeadline = nil
			if c.cfg.MaxDrawRounds > 0 && len(m.Rounds) >= c.cfg.MaxDrawRounds {
				cancel(m, model.EndReasonDrawLimit, now)
				ended = true
			} else {
				m.Round++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if mismatch {
		c.logger.Warn("reveal did not match commitment",
			slog.String("match_id", string(id)),
			slog.String("participant_id", string(participant)),
		)
		c.closeOut(ctx, match, true)
		return nil, model.ErrHashMismatch
	}

	c.publish(match, model.EventRevealSubmitted, participant, model.RevealSubmittedPayload{Round: round, Move: move})
	if drawn {
		c.disarm(match.ID, round)
		c.publish(match, model.EventRoundDrawn, "", model.RoundDrawnPayload{Round: round, NextRound: round + 1})
	}
	if ended {
		match = c.closeOut(ctx, match, true)
	}
	return match, nil
}

// ExpireDeadline resolves a match whose commit or reveal deadline has
// passed. At the commit deadline the sole committer wins. At the reveal
// deadline the sole revealer wins, and if nobody revealed the match is
// cancelled and refunded. It is a no-op for closed matches and matches
// still inside their window.
func (c *Controller) ExpireDeadline(ctx context.Context, id model.MatchID) error {
	var expired string
	match, err := c.storage.UpdateMatch(ctx, id, func(m *model.Match) error {
		if m.Status.Terminal() {
			return errUnchanged
		}
		now := c.clock.Now()

		switch {
		case m.RevealDeadline != nil:
			if now.Before(*m.RevealDeadline) {
				return errUnchanged
			}
			expired = "reveal"
			revealed := m.RevealedCommits()
			switch len(revealed) {
			case 0:
				cancel(m, model.EndReasonNoReveal, now)
			case 1:
				winner := revealed[0].ParticipantID
				finish(m, winner, m.Opponent(winner), model.EndReasonRevealTimeout, now)
			default:
				return errUnchanged
			}
		case m.CommitDeadline != nil:
			if now.Before(*m.CommitDeadline) {
				return errUnchanged
			}
			expired = "commit"
			switch len(m.Commits) {
			case 0:
				cancel(m, model.EndReasonNoReveal, now)
			case 1:
				winner := m.Commits[0].ParticipantID
				finish(m, winner, m.Opponent(winner), model.EndReasonCommitTimeout, now)
			default:
				return errUnchanged
			}
		default:
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Info("match deadline expired",
		slog.String("match_id", string(id)),
		slog.String("deadline", expired),
		slog.String("status", string(match.Status)),
		slog.String("winner", string(match.Winner)),
	)
	c.closeOut(ctx, match, true)
	return nil
}

// CancelUnstarted cancels and refunds the room's current match while nobody
// has played it. It is used by the room registry while it holds the room,
// so the room is not notified. A fill whose spawn has not run yet gets a
// cancelled match recorded in its place. Repeating the call after success
// is a no-op.
func (c *Controller) CancelUnstarted(ctx context.Context, room *model.Room) error {
	match, err := c.cancelUnstarted(ctx, room.CurrentMatch)
	if errors.Is(err, model.ErrMatchNotFound) {
		match, err = c.cancelUnspawned(ctx, room)
	}
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	c.closeOut(ctx, match, false)
	return nil
}

func (c *Controller) cancelUnstarted(ctx context.Context, id model.MatchID) (*model.Match, error) {
	return c.storage.UpdateMatch(ctx, id, func(m *model.Match) error {
		if m.Status == model.MatchStatusCancelled && m.EndReason == model.EndReasonLeftRoom {
			return errUnchanged
		}
		if m.Status.Terminal() {
			return model.ErrMatchClosed
		}
		if m.Started {
			return model.ErrRoomLocked
		}
		cancel(m, model.EndReasonLeftRoom, c.clock.Now())
		return nil
	})
}

// cancelUnspawned stores the fill's match already cancelled, so a Spawn
// that runs later finds it closed
func (c *Controller) cancelUnspawned(ctx context.Context, room *model.Room) (*model.Match, error) {
	now := c.clock.Now()
	match := &model.Match{
		ID:        room.CurrentMatch,
		RoomID:    room.ID,
		GameKind:  room.GameKind,
		Players:   room.MemberIDs(),
		Round:     1,
		CreatedAt: now,
	}
	cancel(match, model.EndReasonLeftRoom, now)

	created, err := c.storage.CreateMatch(ctx, match)
	if err != nil {
		return nil, err
	}
	if !created {
		// Spawn got there first
		return c.cancelUnstarted(ctx, room.CurrentMatch)
	}
	return match, nil
}

// CancelMatch is the administrative override: it cancels an active match
// and refunds both stakes
func (c *Controller) CancelMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	match, err := c.storage.UpdateMatch(ctx, id, func(m *model.Match) error {
		if m.Status.Terminal() {
			return model.ErrMatchClosed
		}
		cancel(m, model.EndReasonAdmin, c.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Warn("match cancelled by administrator", slog.String("match_id", string(id)))
	return c.closeOut(ctx, match, true), nil
}

// onStarted activates the escrow and moves the room into play
func (c *Controller) onStarted(ctx context.Context, m *model.Match) {
	if err := c.ledger.Activate(ctx, m.ID); err != nil && !errors.Is(err, model.ErrAlreadyClosed) {
		c.logger.Error("failed to activate escrow",
			slog.String("match_id", string(m.ID)),
			slog.String("error", err.Error()),
		)
	}
	if c.rooms == nil {
		return
	}
	if err := c.rooms.MatchStarted(ctx, m.RoomID, m.ID); err != nil {
		c.logger.Error("failed to mark room in game",
			slog.String("room_id", string(m.RoomID)),
			slog.String("match_id", string(m.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// closeOut runs after the caller won the terminal transition: it settles
// the escrow, updates the room and announces the result. Failures are
// logged and left for ReconcileSettlements.
func (c *Controller) closeOut(ctx context.Context, m *model.Match, notifyRoom bool) *model.Match {
	c.disarm(m.ID, anyRound)

	if settled, err := c.settle(ctx, m); err != nil {
		c.logger.Error("failed to settle match",
			slog.String("match_id", string(m.ID)),
			slog.String("error", err.Error()),
		)
	} else {
		m = settled
	}

	if notifyRoom {
		c.notifyRoomEnded(ctx, m)
	}

	eventType := model.EventMatchFinished
	if m.Status == model.MatchStatusCancelled {
		eventType = model.EventMatchCancelled
	}
	c.publish(m, eventType, "", model.MatchEndedPayload{
		Status:      m.Status,
		Winner:      m.Winner,
		ForfeitedBy: m.ForfeitedBy,
		Reason:      m.EndReason,
	})

	c.logger.Info("match ended",
		slog.String("match_id", string(m.ID)),
		slog.String("status", string(m.Status)),
		slog.String("winner", string(m.Winner)),
		slog.String("reason", string(m.EndReason)),
	)
	return m
}

// settle closes the escrow for a terminal match and annotates the match.
// A decisive finish pays the winner; anything else refunds.
func (c *Controller) settle(ctx context.Context, m *model.Match) (*model.Match, error) {
	var st *model.Settlement
	var err error
	if m.Status == model.MatchStatusFinished && m.Winner != "" {
		st, err = c.ledger.Resolve(ctx, m.ID, m.Winner)
	} else {
		st, err = c.ledger.Refund(ctx, m.ID)
	}
	if errors.Is(err, model.ErrEscrowNotFound) && m.Status == model.MatchStatusCancelled {
		// Cancelled before its escrow was opened
		err = nil
	}
	if errors.Is(err, model.ErrAlreadyClosed) {
		record, getErr := c.ledger.Get(ctx, m.ID)
		if getErr != nil {
			return nil, getErr
		}
		st, err = record.Settlement, nil
	}
	if err != nil {
		return nil, err
	}

	return c.storage.UpdateMatch(ctx, m.ID, func(stored *model.Match) error {
		stored.Settled = true
		if st != nil {
			stored.SettlementID = st.ID
		}
		return nil
	})
}

func (c *Controller) notifyRoomEnded(ctx context.Context, m *model.Match) {
	if c.rooms == nil {
		return
	}
	if err := c.rooms.MatchEnded(ctx, m.RoomID, m.ID, m.Status); err != nil {
		c.logger.Error("failed to close room",
			slog.String("room_id", string(m.RoomID)),
			slog.String("match_id", string(m.ID)),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) publish(m *model.Match, eventType model.EventType, participant model.ParticipantID, payload any) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(m.ID, model.Event{
		Type:          eventType,
		Timestamp:     c.clock.Now(),
		MatchID:       m.ID,
		RoomID:        m.RoomID,
		ParticipantID: participant,
		Payload:       payload,
	})
}

// ControllerInterface defines the match operations used by the API and room registry
type ControllerInterface interface {
	Spawn(ctx context.Context, room *model.Room) (*model.Match, error)
	GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error)
	SubmitMove(ctx context.Context, id model.MatchID, participant model.ParticipantID, move json.RawMessage) (*model.Match, error)
	SubmitCommit(ctx context.Context, id model.MatchID, participant model.ParticipantID, hash []byte) (*model.Match, error)
	SubmitReveal(ctx context.Context, id model.MatchID, participant model.ParticipantID, move model.RPSMove, salt string) (*model.Match, error)
	CancelUnstarted(ctx context.Context, room *model.Room) error
	CancelMatch(ctx context.Context, id model.MatchID) (*model.Match, error)
}

// Ensure Controller implements ControllerInterface
var _ ControllerInterface = (*Controller)(nil)
