package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/stakegame/internal/dependencies/clock"
	"github.com/mcoot/stakegame/internal/dependencies/random"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/storage"
)

const (
	// RoomCodeLength is the length of generated room codes
	RoomCodeLength = 6
	// MinJoinCodeLength is the shortest accepted private room join code
	MinJoinCodeLength = 4
	// MaxJoinCodeLength is bcrypt's input limit
	MaxJoinCodeLength = 72

	maxCodeAttempts = 16
	defaultLimit    = 20
	maxLimit        = 100
)

// errUnchanged aborts a room update that turned out to be a no-op
var errUnchanged = errors.New("room unchanged")

// MatchSpawner creates and cancels the match belonging to a room.
// Spawn runs once the fill is stored; CancelUnstarted runs while the
// leave's room update is in progress.
type MatchSpawner interface {
	Spawn(ctx context.Context, room *model.Room) (*model.Match, error)
	CancelUnstarted(ctx context.Context, room *model.Room) error
}

// Config holds room registry settings
type Config struct {
	DefaultFeeBps int
	// JoinCodeCost is the bcrypt cost for private room join codes
	JoinCodeCost int
}

// DefaultConfig returns sensible defaults for the room registry
func DefaultConfig() Config {
	return Config{
		DefaultFeeBps: 100,
		JoinCodeCost:  bcrypt.DefaultCost,
	}
}

// CreateParams describes a new room
type CreateParams struct {
	GameKind model.GameKind
	Stake    model.Amount
	// FeeBps overrides the default admin fee when set
	FeeBps   *int
	Privacy  model.Privacy
	JoinCode string // Private rooms only
	Rules    map[string]string
}

// Controller manages the room lifecycle and membership
type Controller struct {
	storage storage.Storage
	matches MatchSpawner
	clock   clock.Clock
	random  random.Random
	cfg     Config
	logger  *slog.Logger
}

// NewController creates a new room Controller
func NewController(
	storage storage.Storage,
	matches MatchSpawner,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage: storage,
		matches: matches,
		clock:   clock,
		random:  random,
		cfg:     cfg,
		logger:  logger,
	}
}

func (c *Controller) validate(params CreateParams) (int, error) {
	if !params.GameKind.Valid() {
		return 0, fmt.Errorf("%w: %q", model.ErrUnsupportedGame, params.GameKind)
	}
	if params.Stake <= 0 || params.Stake > model.MaxStake {
		return 0, model.ErrInvalidStake
	}

	feeBps := c.cfg.DefaultFeeBps
	if params.FeeBps != nil {
		feeBps = *params.FeeBps
	}
	if feeBps < 0 || feeBps > model.MaxFeeBps {
		return 0, model.ErrInvalidFee
	}

	switch params.Privacy {
	case model.PrivacyPublic:
		if params.JoinCode != "" {
			return 0, fmt.Errorf("%w: public rooms do not take a join code", model.ErrInvalidRequest)
		}
	case model.PrivacyPrivate:
		if len(params.JoinCode) < MinJoinCodeLength || len(params.JoinCode) > MaxJoinCodeLength {
			return 0, fmt.Errorf("%w: join code must be %d to %d characters", model.ErrInvalidRequest, MinJoinCodeLength, MaxJoinCodeLength)
		}
	default:
		return 0, fmt.Errorf("%w: unknown privacy %q", model.ErrInvalidRequest, params.Privacy)
	}
	return feeBps, nil
}

// CreateRoom creates a new room with the owner as its only member
func (c *Controller) CreateRoom(ctx context.Context, owner model.ParticipantID, params CreateParams) (*model.Room, error) {
	if params.Privacy == "" {
		params.Privacy = model.PrivacyPublic
	}
	feeBps, err := c.validate(params)
	if err != nil {
		return nil, err
	}

	var joinCodeHash string
	if params.Privacy == model.PrivacyPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.JoinCode), c.cfg.JoinCodeCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash join code: %w", err)
		}
		joinCodeHash = string(hash)
	}

	id, err := c.newRoomID(ctx)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	room := &model.Room{
		ID:           id,
		GameKind:     params.GameKind,
		Stake:        params.Stake,
		FeeBps:       feeBps,
		Privacy:      params.Privacy,
		JoinCodeHash: joinCodeHash,
		Rules:        maps.Clone(params.Rules),
		Status:       model.RoomStatusWaiting,
		OwnerID:      owner,
		Members: []model.RoomMember{
			{ParticipantID: owner, JoinedAt: now},
		},
		Capacity:  model.RoomCapacity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.storage.CreateRoom(ctx, room); err != nil {
		c.logger.Error("failed to save room",
			slog.String("room_id", string(id)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.Info("room created",
		slog.String("room_id", string(id)),
		slog.String("owner_id", string(owner)),
		slog.String("game_kind", string(room.GameKind)),
		slog.String("stake", room.Stake.String()),
	)
	return room, nil
}

// newRoomID generates a room code not yet in use
func (c *Controller) newRoomID(ctx context.Context) (model.RoomID, error) {
	for range maxCodeAttempts {
		id := model.RoomID(c.random.String(RoomCodeLength, random.RoomCodeAlphabet))
		exists, err := c.storage.RoomExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a room code", model.ErrUnavailable)
}

// GetRoom retrieves a room by ID
func (c *Controller) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	return c.storage.GetRoom(ctx, id)
}

// ListRooms returns a page of rooms, newest first. Without a status filter
// only rooms that can be joined are listed.
func (c *Controller) ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	if filter.Status == "" {
		filter.Status = model.RoomStatusWaiting
	}
	filter.Page, filter.Limit = NormalizePage(filter.Page, filter.Limit)
	return c.storage.ListRooms(ctx, filter)
}

// NormalizePage clamps pagination to page >= 1 and limit in 1..100,
// defaulting the limit to 20
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// JoinRoom adds a participant to a room. The member whose join fills the
// room spawns its match and escrow once that fill is stored, so a join that
// loses a race never writes them. A spawn that fails after the fill is
// logged and left to the sweeper.
func (c *Controller) JoinRoom(ctx context.Context, id model.RoomID, participant model.ParticipantID, joinCode string) (*model.Room, error) {
	current, err := c.storage.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	// The hash never changes, so the slow comparison stays outside the update
	if current.Privacy == model.PrivacyPrivate && !current.IsMember(participant) {
		if bcrypt.CompareHashAndPassword([]byte(current.JoinCodeHash), []byte(joinCode)) != nil {
			return nil, model.ErrInvalidJoinCode
		}
	}

	var filled bool
	room, err := c.storage.UpdateRoom(ctx, id, func(r *model.Room) error {
		filled = false
		if r.IsMember(participant) {
			return model.ErrAlreadyMember
		}
		if r.Status.Terminal() {
			return model.ErrRoomNotJoinable
		}
		if r.IsFull() {
			return model.ErrRoomFull
		}
		if r.Status != model.RoomStatusWaiting {
			return model.ErrRoomNotJoinable
		}

		now := c.clock.Now()
		r.Members = append(r.Members, model.RoomMember{ParticipantID: participant, JoinedAt: now})
		r.UpdatedAt = now

		if r.IsFull() {
			r.Fill(now)
			filled = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("participant joined room",
		slog.String("room_id", string(id)),
		slog.String("participant_id", string(participant)),
	)
	if !filled {
		return room, nil
	}

	if _, err := c.matches.Spawn(ctx, room); err != nil {
		c.logger.Error("failed to spawn match for filled room",
			slog.String("room_id", string(id)),
			slog.String("match_id", string(room.CurrentMatch)),
			slog.String("error", err.Error()),
		)
		return room, nil
	}
	c.logger.Info("room filled",
		slog.String("room_id", string(id)),
		slog.String("match_id", string(room.CurrentMatch)),
	)
	return room, nil
}

// LeaveRoom removes a participant. Leaving a FULL room cancels and refunds
// its unstarted match and reopens the room; once play has started the
// room is locked.
func (c *Controller) LeaveRoom(ctx context.Context, id model.RoomID, participant model.ParticipantID) (*model.Room, error) {
	var cancelledMatch model.MatchID
	room, err := c.storage.UpdateRoom(ctx, id, func(r *model.Room) error {
		cancelledMatch = ""
		if !r.IsMember(participant) {
			return model.ErrNotMember
		}

		switch r.Status {
		case model.RoomStatusWaiting:
		case model.RoomStatusFull:
			if err := c.matches.CancelUnstarted(ctx, r); err != nil {
				if errors.Is(err, model.ErrMatchClosed) {
					return model.ErrRoomLocked
				}
				return err
			}
			cancelledMatch = r.CurrentMatch
			r.CurrentMatch = ""
			r.Status = model.RoomStatusWaiting
		default:
			return model.ErrRoomLocked
		}

		for i, m := range r.Members {
			if m.ParticipantID == participant {
				r.Members = append(r.Members[:i], r.Members[i+1:]...)
				break
			}
		}

		if len(r.Members) == 0 {
			r.Status = model.RoomStatusCancelled
		} else if r.OwnerID == participant {
			r.OwnerID = r.Members[0].ParticipantID
		}
		r.UpdatedAt = c.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	attrs := []any{
		slog.String("room_id", string(id)),
		slog.String("participant_id", string(participant)),
		slog.String("status", string(room.Status)),
	}
	if cancelledMatch != "" {
		attrs = append(attrs, slog.String("cancelled_match_id", string(cancelledMatch)))
	}
	c.logger.Info("participant left room", attrs...)
	return room, nil
}

// CancelRoom cancels a room before it fills. Only the owner may cancel.
func (c *Controller) CancelRoom(ctx context.Context, id model.RoomID, participant model.ParticipantID) (*model.Room, error) {
	room, err := c.storage.UpdateRoom(ctx, id, func(r *model.Room) error {
		if r.OwnerID != participant {
			return model.ErrNotOwner
		}
		if r.Status != model.RoomStatusWaiting {
			return model.ErrRoomLocked
		}
		r.Status = model.RoomStatusCancelled
		r.UpdatedAt = c.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("room cancelled", slog.String("room_id", string(id)))
	return room, nil
}

// MatchStarted moves a FULL room into play once its match records the first action
func (c *Controller) MatchStarted(ctx context.Context, roomID model.RoomID, matchID model.MatchID) error {
	_, err := c.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if r.CurrentMatch != matchID || r.Status != model.RoomStatusFull {
			return errUnchanged
		}
		r.Status = model.RoomStatusInGame
		r.UpdatedAt = c.clock.Now()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// MatchEnded closes the room to follow its match's terminal status
func (c *Controller) MatchEnded(ctx context.Context, roomID model.RoomID, matchID model.MatchID, status model.MatchStatus) error {
	room, err := c.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if r.CurrentMatch != matchID || r.Status.Terminal() {
			return errUnchanged
		}
		if status == model.MatchStatusFinished {
			r.Status = model.RoomStatusFinished
		} else {
			r.Status = model.RoomStatusCancelled
		}
		r.UpdatedAt = c.clock.Now()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Info("room closed",
		slog.String("room_id", string(roomID)),
		slog.String("match_id", string(matchID)),
		slog.String("status", string(room.Status)),
	)
	return nil
}

// ControllerInterface defines the room operations used by the API
type ControllerInterface interface {
	CreateRoom(ctx context.Context, owner model.ParticipantID, params CreateParams) (*model.Room, error)
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)
	JoinRoom(ctx context.Context, id model.RoomID, participant model.ParticipantID, joinCode string) (*model.Room, error)
	LeaveRoom(ctx context.Context, id model.RoomID, participant model.ParticipantID) (*model.Room, error)
	CancelRoom(ctx context.Context, id model.RoomID, participant model.ParticipantID) (*model.Room, error)
	MatchStarted(ctx context.Context, roomID model.RoomID, matchID model.MatchID) error
	MatchEnded(ctx context.Context, roomID model.RoomID, matchID model.MatchID, status model.MatchStatus) error
}

// Ensure Controller implements ControllerInterface
var _ ControllerInterface = (*Controller)(nil)
