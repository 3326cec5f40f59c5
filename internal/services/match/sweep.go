package match

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/stakegame/internal/model"
)

// RestoreTimers re-arms deadline timers for active matches after a restart
func (c *Controller) RestoreTimers(ctx context.Context) (int, error) {
	matches, err := c.storage.ListMatches(ctx, model.MatchFilter{Status: model.MatchStatusActive})
	if err != nil {
		return 0, err
	}

	armed := 0
	for _, m := range matches {
		deadline := m.Deadline()
		if deadline == nil {
			continue
		}
		phase := phaseCommit
		if m.RevealDeadline != nil {
			phase = phaseReveal
		}
		c.arm(m.ID, m.Round, phase, *deadline)
		armed++
	}
	if armed > 0 {
		c.logger.Info("restored deadline timers", slog.Int("count", armed))
	}
	return armed, nil
}

// SweepExpired expires every active match whose commit or reveal deadline
// has passed. It backs up the in-process timers, which do not survive a
// restart.
func (c *Controller) SweepExpired(ctx context.Context) (int, error) {
	matches, err := c.storage.ListMatches(ctx, model.MatchFilter{
		Status:         model.MatchStatusActive,
		DeadlineBefore: c.clock.Now(),
	})
	if err != nil {
		return 0, err
	}

	var expired atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.SweepParallelism)
	for _, m := range matches {
		g.Go(func() error {
			if err := c.ExpireDeadline(gctx, m.ID); err != nil {
				return err
			}
			expired.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(expired.Load()), err
}

// ReconcileSettlements settles terminal matches whose escrow was left open,
// e.g. by a crash between the terminal transition and settlement
func (c *Controller) ReconcileSettlements(ctx context.Context) (int, error) {
	matches, err := c.storage.ListMatches(ctx, model.MatchFilter{Unsettled: true})
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, m := range matches {
		updated, err := c.settle(ctx, m)
		if err != nil {
			c.logger.Error("failed to reconcile settlement",
				slog.String("match_id", string(m.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		// A match cancelled by leaving the room was handled by the room itself
		if updated.EndReason != model.EndReasonLeftRoom {
			c.notifyRoomEnded(ctx, updated)
		}
		settled++
	}
	if settled > 0 {
		c.logger.Info("reconciled settlements", slog.Int("count", settled))
	}
	return settled, nil
}

// ReconcileFills spawns the match of every FULL room whose fill committed
// but whose spawn never completed, e.g. after a crash between the two
func (c *Controller) ReconcileFills(ctx context.Context) (int, error) {
	rooms, err := c.storage.ListRooms(ctx, model.RoomFilter{
		Status:         model.RoomStatusFull,
		IncludePrivate: true,
	})
	if err != nil {
		return 0, err
	}

	spawned := 0
	for _, room := range rooms {
		if room.CurrentMatch == "" {
			continue
		}
		_, err := c.storage.GetMatch(ctx, room.CurrentMatch)
		if err == nil {
			continue
		}
		if errors.Is(err, model.ErrMatchNotFound) {
			_, err = c.Spawn(ctx, room)
		}
		if err != nil {
			c.logger.Error("failed to reconcile room fill",
				slog.String("room_id", string(room.ID)),
				slog.String("match_id", string(room.CurrentMatch)),
				slog.String("error", err.Error()),
			)
			continue
		}
		spawned++
	}
	if spawned > 0 {
		c.logger.Info("reconciled room fills", slog.Int("count", spawned))
	}
	return spawned, nil
}
