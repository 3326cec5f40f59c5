package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Updates are optimistic transactions: WATCH the entity key, apply the
// mutation, and commit with MULTI/EXEC. A lost race is retried.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Client exposes the underlying client so other components can share the pool
func (s *Storage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// classify marks errors that are worth retrying
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, redis.ErrPoolTimeout) {
		return fmt.Errorf("%w: %w", storage.ErrTransient, err)
	}
	return err
}

func getJSON[T any](ctx context.Context, c redis.Cmdable, key string, notFound error) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, classify(err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// updateJSON runs fn against the entity stored under key inside a WATCH
// transaction. extra queues additional writes in the same MULTI block.
func updateJSON[T any](
	ctx context.Context,
	s *Storage,
	key string,
	notFound error,
	fn func(*T) error,
	ttl func(*T) time.Duration,
	extra func(pipe redis.Pipeliner, v *T),
) (*T, error) {
	var result *T
	err := s.cfg.Retry.Do(ctx, func() error {
		return classify(s.client.Watch(ctx, func(tx *redis.Tx) error {
			v, err := getJSON[T](ctx, tx, key, notFound)
			if err != nil {
				return err
			}
			if err := fn(v); err != nil {
				return err
			}
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, ttl(v))
				if extra != nil {
					extra(pipe, v)
				}
				return nil
			})
			if err != nil {
				return err
			}
			result = v
			return nil
		}, key))
	})
	return result, err
}

// setIfAbsent stores v under key unless the key already exists
func (s *Storage) setIfAbsent(ctx context.Context, key string, v any, extra func(pipe redis.Pipeliner)) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, err
	}

	var created bool
	err = s.cfg.Retry.Do(ctx, func() error {
		return classify(s.client.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if exists > 0 {
				created = false
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				if extra != nil {
					extra(pipe)
				}
				return nil
			})
			if err != nil {
				return err
			}
			created = true
			return nil
		}, key))
	})
	return created, err
}

func noTTL[T any](*T) time.Duration { return 0 }

// Participant operations

func (s *Storage) SaveParticipant(ctx context.Context, participant *model.Participant) error {
	data, err := json.Marshal(participant)
	if err != nil {
		return err
	}
	return s.cfg.Retry.Do(ctx, func() error {
		return classify(s.client.Set(ctx, participantKey(participant.ID), data, s.cfg.ParticipantTTL).Err())
	})
}

func (s *Storage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	var p *model.Participant
	err := s.cfg.Retry.Do(ctx, func() error {
		var err error
		p, err = getJSON[model.Participant](ctx, s.client, participantKey(id), model.ErrParticipantNotFound)
		return err
	})
	return p, err
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	// Pipeline keeps the room and its index entry together
	return s.cfg.Retry.Do(ctx, func() error {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey(room.ID), data, 0)
			pipe.SAdd(ctx, roomIndexKey(), string(room.ID))
			return nil
		})
		return classify(err)
	})
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	var room *model.Room
	err := s.cfg.Retry.Do(ctx, func() error {
		var err error
		room, err = getJSON[model.Room](ctx, s.client, roomKey(id), model.ErrRoomNotFound)
		return err
	})
	return room, err
}

func (s *Storage) RoomExists(ctx context.Context, id model.RoomID) (bool, error) {
	var exists int64
	err := s.cfg.Retry.Do(ctx, func() error {
		var err error
		exists, err = s.client.Exists(ctx, roomKey(id)).Result()
		return classify(err)
	})
	return exists > 0, err
}

func (s *Storage) ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	ids, err := s.client.SMembers(ctx, roomIndexKey()).Result()
	if err != nil {
		return nil, classify(err)
	}
	if len(ids) == 0 {
		return []*model.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(model.RoomID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify(err)
	}

	var expired []any
	rooms := make([]*model.Room, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var room model.Room
		if err := json.Unmarshal([]byte(raw), &room); err != nil {
			return nil, err
		}
		if filter.Matches(&room) {
			rooms = append(rooms, &room)
		}
	}

	// Rooms that expired since they were indexed
	if len(expired) > 0 {
		s.client.SRem(ctx, roomIndexKey(), expired...)
	}

	return filter.Paginate(rooms), nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.RoomMutation) (*model.Room, error) {
	return updateJSON(ctx, s, roomKey(id), model.ErrRoomNotFound, fn, func(r *model.Room) time.Duration {
		if r.Status.Terminal() {
			return s.cfg.ClosedTTL
		}
		return 0
	}, nil)
}

// Match operations

func (s *Storage) CreateMatch(ctx context.Context, match *model.Match) (bool, error) {
	return s.setIfAbsent(ctx, matchKey(match.ID), match, func(pipe redis.Pipeliner) {
		pipe.SAdd(ctx, openMatchIndexKey(), string(match.ID))
	})
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	var match *model.Match
	err := s.cfg.Retry.Do(ctx, func() error {
		var err error
		match, err = getJSON[model.Match](ctx, s.client, matchKey(id), model.ErrMatchNotFound)
		return err
	})
	return match, err
}

// ListMatches scans matches that are active or awaiting settlement; settled
// terminal matches are dropped from the index.
func (s *Storage) ListMatches(ctx context.Context, filter model.MatchFilter) ([]*model.Match, error) {
	ids, err := s.client.SMembers(ctx, openMatchIndexKey()).Result()
	if err != nil {
		return nil, classify(err)
	}

	var matches []*model.Match
	for _, id := range ids {
		match, err := getJSON[model.Match](ctx, s.client, matchKey(model.MatchID(id)), model.ErrMatchNotFound)
		if errors.Is(err, model.ErrMatchNotFound) {
			s.client.SRem(ctx, openMatchIndexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Matches(match) {
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (s *Storage) UpdateMatch(ctx context.Context, id model.MatchID, fn storage.MatchMutation) (*model.Match, error) {
	return updateJSON(ctx, s, matchKey(id), model.ErrMatchNotFound, fn,
		func(m *model.Match) time.Duration {
			if m.Status.Terminal() && m.Settled {
				return s.cfg.ClosedTTL
			}
			return 0
		},
		func(pipe redis.Pipeliner, m *model.Match) {
			if m.Status.Terminal() && m.Settled {
				pipe.SRem(ctx, openMatchIndexKey(), string(m.ID))
			}
		})
}

// Escrow operations

func (s *Storage) CreateEscrow(ctx context.Context, record *model.EscrowRecord) (bool, error) {
	return s.setIfAbsent(ctx, escrowKey(record.MatchID), record, nil)
}

func (s *Storage) GetEscrow(ctx context.Context, matchID model.MatchID) (*model.EscrowRecord, error) {
	var record *model.EscrowRecord
	err := s.cfg.Retry.Do(ctx, func() error {
		var err error
		record, err = getJSON[model.EscrowRecord](ctx, s.client, escrowKey(matchID), model.ErrEscrowNotFound)
		return err
	})
	return record, err
}

func (s *Storage) UpdateEscrow(ctx context.Context, matchID model.MatchID, fn storage.EscrowMutation) (*model.EscrowRecord, error) {
	return updateJSON(ctx, s, escrowKey(matchID), model.ErrEscrowNotFound, fn, noTTL[model.EscrowRecord], nil)
}
