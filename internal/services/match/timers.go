package match

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/quartz"

	"github.com/mcoot/stakegame/internal/model"
)

const expiryTimeout = 10 * time.Second

// anyRound disarms a match's timer whichever round it belongs to
const anyRound = 0

// timerPhase orders the deadlines within a round
type timerPhase int

const (
	phaseCommit timerPhase = iota
	phaseReveal
)

// roundTimer is the deadline timer of one round of a match
type roundTimer struct {
	round int
	phase timerPhase
	timer *quartz.Timer
}

// supersedes reports whether t belongs to the same or a later stage of the
// match than other
func (t *roundTimer) supersedes(other *roundTimer) bool {
	if t.round != other.round {
		return t.round > other.round
	}
	return t.phase >= other.phase
}

// arm schedules deadline expiry for a round. It replaces a timer from an
// earlier round or phase and leaves a later one alone.
func (c *Controller) arm(id model.MatchID, round int, phase timerPhase, deadline time.Time) {
	d := deadline.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	entry := &roundTimer{round: round, phase: phase}

	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if current, ok := c.timers[id]; ok {
		if !entry.supersedes(current) {
			return
		}
		current.timer.Stop()
	}
	entry.timer = c.clock.AfterFunc(d, func() { c.fire(id, entry) }, "match", "deadline")
	c.timers[id] = entry
}

func (c *Controller) fire(id model.MatchID, entry *roundTimer) {
	c.timersMu.Lock()
	if c.timers[id] == entry {
		delete(c.timers, id)
	}
	c.timersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
	defer cancel()
	if err := c.ExpireDeadline(ctx, id); err != nil {
		c.logger.Error("failed to expire deadline",
			slog.String("match_id", string(id)),
			slog.Int("round", entry.round),
			slog.String("error", err.Error()),
		)
	}
}

// disarm cancels a match's pending timer if it belongs to round
func (c *Controller) disarm(id model.MatchID, round int) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if t, ok := c.timers[id]; ok && (round == anyRound || t.round == round) {
		t.timer.Stop()
		delete(c.timers, id)
	}
}

// PendingTimers returns the number of armed deadline timers
func (c *Controller) PendingTimers() int {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	return len(c.timers)
}

// Stop cancels every pending timer. Deadlines stay persisted, so a
// restarted process picks them up in RestoreTimers or the next sweep.
func (c *Controller) Stop() {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	for id, t := range c.timers {
		t.timer.Stop()
		delete(c.timers, id)
	}
}
