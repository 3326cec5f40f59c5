package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mcoot/stakegame/internal/broadcast"
	"github.com/mcoot/stakegame/internal/config"
	"github.com/mcoot/stakegame/internal/dependencies/clock"
	"github.com/mcoot/stakegame/internal/dependencies/random"
	"github.com/mcoot/stakegame/internal/services/auth"
	"github.com/mcoot/stakegame/internal/services/escrow"
	"github.com/mcoot/stakegame/internal/services/evaluator"
	"github.com/mcoot/stakegame/internal/services/match"
	"github.com/mcoot/stakegame/internal/services/room"
	"github.com/mcoot/stakegame/internal/services/sweeper"
	"github.com/mcoot/stakegame/internal/settlement"
	"github.com/mcoot/stakegame/internal/storage"
	"github.com/mcoot/stakegame/internal/storage/memory"
	"github.com/mcoot/stakegame/internal/storage/postgres"
	redisstorage "github.com/mcoot/stakegame/internal/storage/redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Sink            settlement.Sink
	Ledger          *escrow.Ledger
	MatchController *match.Controller
	RoomController  *room.Controller
	AuthService     *auth.Service
	Coordinator     *broadcast.Coordinator
	Sweeper         *sweeper.Sweeper

	closers []io.Closer
}

// Settings are the tunables passed down to the services
type Settings struct {
	Auth    auth.Config
	Room    room.Config
	Match   match.Config
	Sweeper sweeper.Config
	// ContractAddress is quoted in deposit intents
	ContractAddress string
}

// DefaultSettings returns every service's defaults
func DefaultSettings() Settings {
	return Settings{
		Auth:    auth.DefaultConfig(),
		Room:    room.DefaultConfig(),
		Match:   match.DefaultConfig(),
		Sweeper: sweeper.DefaultConfig(),
	}
}

// SettingsFrom maps the process configuration onto service settings
func SettingsFrom(cfg config.Config) Settings {
	s := DefaultSettings()
	s.Room.DefaultFeeBps = cfg.DefaultFeeBps
	s.Match.CommitTimeout = cfg.CommitTimeout
	s.Match.RevealTimeout = cfg.RevealTimeout
	s.Match.MaxDrawRounds = cfg.MaxDrawRounds
	s.Sweeper.Interval = cfg.SweepInterval
	s.ContractAddress = cfg.EscrowContractAddress
	return s
}

// New creates a new application with all dependencies wired from the
// process configuration. Close releases the connections it opened.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	store, redisClient, storeCloser, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}
	if storeCloser != nil {
		closers = append(closers, storeCloser)
	}

	sink, sinkClosers, err := newSink(ctx, cfg, redisClient, logger)
	closers = append(closers, sinkClosers...)
	if err != nil {
		closeAll()
		return nil, err
	}

	app, err := newWithDependencies(store, sink, clock.New(), random.New(), SettingsFrom(cfg), logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	app.closers = closers
	return app, nil
}

func newStorage(cfg config.Config) (storage.Storage, *goredis.Client, io.Closer, error) {
	switch cfg.StorageType {
	case "", config.StorageTypeMemory:
		return memory.New(), nil, nil, nil
	case config.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		store, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, store.Client(), store, nil
	case config.StorageTypePostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = cfg.DatabaseURL
		store, err := postgres.New(pgCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, store, nil
	default:
		return nil, nil, nil, fmt.Errorf("invalid storage type %q", cfg.StorageType)
	}
}

// newSink builds the configured settlement sinks. The redis sink shares the
// storage pool when storage is redis and dials its own otherwise.
func newSink(ctx context.Context, cfg config.Config, redisClient *goredis.Client, logger *slog.Logger) (settlement.Sink, []io.Closer, error) {
	var sinks settlement.MultiSink
	var closers []io.Closer

	for _, name := range cfg.SettlementSinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, settlement.NewLogSink(logger))
		case config.SinkRedis:
			client := redisClient
			if client == nil {
				opts, err := goredis.ParseURL(cfg.RedisURL)
				if err != nil {
					return nil, closers, fmt.Errorf("invalid redis url for settlement sink: %w", err)
				}
				client = goredis.NewClient(opts)
				closers = append(closers, client)
			}
			sinks = append(sinks, settlement.NewRedisStreamSink(client, cfg.SettlementStream, 0))
		case config.SinkS3:
			client, err := settlement.NewS3Client(ctx, settlement.S3Config{
				Bucket:   cfg.S3Bucket,
				Prefix:   cfg.S3Prefix,
				Region:   cfg.S3Region,
				Endpoint: cfg.S3Endpoint,
			})
			if err != nil {
				return nil, closers, err
			}
			sinks = append(sinks, settlement.NewS3Sink(client, cfg.S3Bucket, cfg.S3Prefix))
		default:
			return nil, closers, fmt.Errorf("unknown settlement sink %q", name)
		}
	}

	if len(sinks) == 0 {
		return settlement.NewLogSink(logger), closers, nil
	}
	if len(sinks) == 1 {
		return sinks[0], closers, nil
	}
	return sinks, closers, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, sink settlement.Sink, clk clock.Clock, rnd random.Random, settings Settings, logger *slog.Logger) (*App, error) {
	coordinator := broadcast.NewCoordinator(logger)
	ledger := escrow.NewLedger(store, sink, clk, rnd, settings.ContractAddress, logger)
	matchController := match.NewController(store, ledger, evaluator.DefaultRegistry(), coordinator, clk, settings.Match, logger)
	roomController := room.NewController(store, matchController, clk, rnd, settings.Room, logger)
	matchController.SetRoomHooks(roomController)
	authService := auth.New(store, clk, rnd, settings.Auth, logger)

	sw, err := sweeper.New(matchController, coordinator, authService, settings.Sweeper, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweeper: %w", err)
	}

	return &App{
		Storage:         store,
		Clock:           clk,
		Random:          rnd,
		Sink:            sink,
		Ledger:          ledger,
		MatchController: matchController,
		RoomController:  roomController,
		AuthService:     authService,
		Coordinator:     coordinator,
		Sweeper:         sw,
	}, nil
}

// Close stops timers and the event fan-out, then closes every connection
func (a *App) Close() error {
	a.MatchController.Stop()
	a.Coordinator.Close()

	var errs []error
	if err := a.Sweeper.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
