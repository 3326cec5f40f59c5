package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// MatchSweeper is the part of the match orchestrator the sweeper drives
type MatchSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
	ReconcileSettlements(ctx context.Context) (int, error)
	ReconcileFills(ctx context.Context) (int, error)
}

// HubCleaner drops broadcast hubs that have no subscribers
type HubCleaner interface {
	CleanupEmptyHubs() int
}

// SessionCleaner drops expired identity sessions
type SessionCleaner interface {
	CleanExpiredSessions() int
}

// Config holds configuration for the sweeper
type Config struct {
	Interval    time.Duration
	StepTimeout time.Duration
}

// DefaultConfig returns default sweeper configuration
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Second,
		StepTimeout: 30 * time.Second,
	}
}

// Sweeper runs the periodic maintenance jobs: expiring deadlines the
// in-process timers missed, spawning matches for fills that never got one,
// settling terminal matches left unsettled and dropping idle hubs and
// sessions
type Sweeper struct {
	matches   MatchSweeper
	hubs      HubCleaner
	sessions  SessionCleaner
	cfg       Config
	logger    *slog.Logger
	scheduler gocron.Scheduler
}

// New creates a Sweeper. Nil cleaners are skipped.
func New(matches MatchSweeper, hubs HubCleaner, sessions SessionCleaner, cfg Config, logger *slog.Logger) (*Sweeper, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultConfig().StepTimeout
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Sweeper{
		matches:   matches,
		hubs:      hubs,
		sessions:  sessions,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "sweeper")),
		scheduler: scheduler,
	}, nil
}

// Start registers the sweep job and starts the scheduler. The job's
// storage calls are bounded by ctx.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() { s.RunOnce(ctx) }),
		gocron.WithName("sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.scheduler.Start()
	s.logger.Info("sweeper started", slog.Duration("interval", s.cfg.Interval))
	return nil
}

// Shutdown stops the scheduler, waiting for a running sweep to finish
func (s *Sweeper) Shutdown() error {
	return s.scheduler.Shutdown()
}

// RunOnce runs every sweep step once. A failing step is logged and does not
// stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.step(ctx, "expire_deadlines", s.matches.SweepExpired)
	s.step(ctx, "reconcile_fills", s.matches.ReconcileFills)
	s.step(ctx, "reconcile_settlements", s.matches.ReconcileSettlements)

	if s.hubs != nil {
		s.hubs.CleanupEmptyHubs()
	}
	if s.sessions != nil {
		if n := s.sessions.CleanExpiredSessions(); n > 0 {
			s.logger.Debug("expired sessions removed", slog.Int("count", n))
		}
	}
}

func (s *Sweeper) step(ctx context.Context, name string, fn func(context.Context) (int, error)) {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	n, err := fn(stepCtx)
	if err != nil {
		s.logger.Error("sweep step failed",
			slog.String("step", name),
			slog.Int("processed", n),
			slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("sweep step processed matches",
			slog.String("step", name),
			slog.Int("processed", n))
	}
}
