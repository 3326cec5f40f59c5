package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/stakegame/internal/dependencies/clock"
	"github.com/mcoot/stakegame/internal/dependencies/mocks"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/commitment"
	"github.com/mcoot/stakegame/internal/services/escrow"
	"github.com/mcoot/stakegame/internal/services/evaluator"
	"github.com/mcoot/stakegame/internal/services/match"
	"github.com/mcoot/stakegame/internal/storage"
	redisstore "github.com/mcoot/stakegame/internal/storage/redis"
	"github.com/mcoot/stakegame/internal/testutil"
)

// stallingStorage parks the first room update that adds stallFor, after its
// mutation ran but before the write, until release is closed
type stallingStorage struct {
	storage.Storage
	stallFor model.ParticipantID
	stalled  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (s *stallingStorage) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.RoomMutation) (*model.Room, error) {
	return s.Storage.UpdateRoom(ctx, id, func(r *model.Room) error {
		err := fn(r)
		if err == nil && r.IsMember(s.stallFor) {
			s.once.Do(func() {
				close(s.stalled)
				<-s.release
			})
		}
		return err
	})
}

// countingSpawner counts the spawns the registry asks for
type countingSpawner struct {
	MatchSpawner
	spawns atomic.Int32
}

func (c *countingSpawner) Spawn(ctx context.Context, room *model.Room) (*model.Match, error) {
	c.spawns.Add(1)
	return c.MatchSpawner.Spawn(ctx, room)
}

type redisFixture struct {
	store   *redisstore.Storage
	ledger  *escrow.Ledger
	matches *match.Controller
	spawner *countingSpawner
	rooms   *Controller
	clock   clock.Clock
}

// newRedisFixture wires the registry and orchestrator over miniredis. When
// wrap is set, only the registry sees the wrapped storage.
func newRedisFixture(t *testing.T, wrap func(storage.Storage) storage.Storage) *redisFixture {
	t.Helper()

	mini := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := redisstore.DefaultConfig()
	cfg.Retry.Backoff = time.Millisecond
	cfg.Retry.Attempts = 50
	store := redisstore.NewWithClient(client, cfg)

	logger := testutil.NopLogger()
	clk := clock.New()
	random := mocks.NewMockRandom()
	ledger := escrow.NewLedger(store, nil, clk, random, "", logger)
	matches := match.NewController(store, ledger, evaluator.DefaultRegistry(), nil, clk, match.DefaultConfig(), logger)
	t.Cleanup(matches.Stop)

	var registryStore storage.Storage = store
	if wrap != nil {
		registryStore = wrap(store)
	}
	roomCfg := DefaultConfig()
	roomCfg.JoinCodeCost = bcrypt.MinCost
	spawner := &countingSpawner{MatchSpawner: matches}
	rooms := NewController(registryStore, spawner, clk, random, roomCfg, logger)
	matches.SetRoomHooks(rooms)

	return &redisFixture{
		store:   store,
		ledger:  ledger,
		matches: matches,
		spawner: spawner,
		rooms:   rooms,
		clock:   clk,
	}
}

// requireAgreement checks that the room, its match and its escrow name the
// same participants in the same order
func (f *redisFixture) requireAgreement(t *testing.T, ctx context.Context, id model.RoomID) *model.Room {
	t.Helper()

	room, err := f.rooms.GetRoom(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.RoomStatusFull, room.Status)
	require.NotEmpty(t, room.CurrentMatch)

	m, err := f.matches.GetMatch(ctx, room.CurrentMatch)
	require.NoError(t, err)
	record, err := f.ledger.Get(ctx, room.CurrentMatch)
	require.NoError(t, err)

	assert.Equal(t, room.MemberIDs(), m.Players)
	assert.Equal(t, room.MemberIDs(), record.Contributors)
	return room
}

func TestConcurrentJoinsAgreeOnRedis(t *testing.T) {
	ctx := context.Background()
	f := newRedisFixture(t, nil)

	room, err := f.rooms.CreateRoom(ctx, "alice", CreateParams{GameKind: model.GameRockPaperScissors, Stake: 5})
	require.NoError(t, err)

	var succeeded atomic.Int32
	var winner atomic.Value
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			who := model.ParticipantID(fmt.Sprintf("p%d", i))
			_, err := f.rooms.JoinRoom(ctx, room.ID, who, "")
			switch {
			case err == nil:
				succeeded.Add(1)
				winner.Store(who)
			case errors.Is(err, model.ErrRoomFull), errors.Is(err, model.ErrRoomNotJoinable):
			default:
				t.Errorf("unexpected join error for %s: %v", who, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(1), f.spawner.spawns.Load())

	final := f.requireAgreement(t, ctx, room.ID)
	joined := winner.Load().(model.ParticipantID)
	assert.Equal(t, []model.ParticipantID{"alice", joined}, final.MemberIDs())

	// The member who got in can play the match
	_, err = f.matches.SubmitCommit(ctx, final.CurrentMatch, joined, commitment.Hash(model.RPSRock, "salt"))
	assert.NoError(t, err)
}

func TestJoinThatLosesTheFillWritesNoMatchOnRedis(t *testing.T) {
	ctx := context.Background()
	var stalling *stallingStorage
	f := newRedisFixture(t, func(s storage.Storage) storage.Storage {
		stalling = &stallingStorage{
			Storage:  s,
			stallFor: "slow",
			stalled:  make(chan struct{}),
			release:  make(chan struct{}),
		}
		return stalling
	})

	room, err := f.rooms.CreateRoom(ctx, "alice", CreateParams{GameKind: model.GameRockPaperScissors, Stake: 5})
	require.NoError(t, err)

	slowErr := make(chan error, 1)
	go func() {
		_, err := f.rooms.JoinRoom(ctx, room.ID, "slow", "")
		slowErr <- err
	}()

	// slow has read the room and added itself, but not written yet
	<-stalling.stalled
	fast, err := f.rooms.JoinRoom(ctx, room.ID, "fast", "")
	require.NoError(t, err)
	assert.Equal(t, []model.ParticipantID{"alice", "fast"}, fast.MemberIDs())
	close(stalling.release)

	assert.ErrorIs(t, <-slowErr, model.ErrRoomFull)
	assert.Equal(t, int32(1), f.spawner.spawns.Load())

	final := f.requireAgreement(t, ctx, room.ID)
	assert.Equal(t, []model.ParticipantID{"alice", "fast"}, final.MemberIDs())

	_, err = f.matches.SubmitCommit(ctx, final.CurrentMatch, "slow", commitment.Hash(model.RPSRock, "salt"))
	assert.ErrorIs(t, err, model.ErrNotMember)
	_, err = f.matches.SubmitCommit(ctx, final.CurrentMatch, "fast", commitment.Hash(model.RPSRock, "salt"))
	assert.NoError(t, err)
}

func TestLeaveBeforeSpawnLeavesNoOpenEscrowOnRedis(t *testing.T) {
	ctx := context.Background()
	f := newRedisFixture(t, nil)

	room, err := f.rooms.CreateRoom(ctx, "alice", CreateParams{GameKind: model.GameChess, Stake: 5})
	require.NoError(t, err)

	// A fill stored by a process that died before spawning
	filled, err := f.store.UpdateRoom(ctx, room.ID, func(r *model.Room) error {
		r.Members = append(r.Members, model.RoomMember{ParticipantID: "bob", JoinedAt: f.clock.Now()})
		r.Fill(f.clock.Now())
		return nil
	})
	require.NoError(t, err)

	left, err := f.rooms.LeaveRoom(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusWaiting, left.Status)
	assert.Empty(t, left.CurrentMatch)

	// The sweeper skips the reopened room, and a late spawn opens nothing
	spawned, err := f.matches.ReconcileFills(ctx)
	require.NoError(t, err)
	assert.Zero(t, spawned)
	_, err = f.matches.Spawn(ctx, filled)
	assert.ErrorIs(t, err, model.ErrMatchClosed)
	_, err = f.ledger.Get(ctx, filled.CurrentMatch)
	assert.ErrorIs(t, err, model.ErrEscrowNotFound)
}
