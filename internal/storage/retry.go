package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"

	"github.com/mcoot/stakegame/internal/dependencies/clock"
	"github.com/mcoot/stakegame/internal/model"
)

// ErrTransient marks a backend failure that may succeed on retry, such as
// losing an optimistic transaction race. Backends wrap their own transient
// errors with it.
var ErrTransient = errors.New("transient storage failure")

// RetryPolicy bounds internal retries of transient storage failures
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration // Multiplied by the attempt number
	// Clock times the waits between attempts; nil uses the system clock
	Clock clock.Clock
}

// DefaultRetryPolicy returns the retry policy used by the backends
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 5,
		Backoff:  20 * time.Millisecond,
	}
}

// Do runs fn until it succeeds, fails permanently, or the attempts are used
// up. Exhausted retries are reported as model.ErrUnavailable.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	var last error
	operation := func() error {
		last = fn()
		if last != nil && !IsTransient(last) {
			return backoff.Permanent(last)
		}
		return last
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: p.Backoff}, uint64(attempts-1)), ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, nil, &clockTimer{clock: clk})
	switch {
	case err == nil:
		return nil
	case last != nil && !IsTransient(last):
		return last
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", model.ErrUnavailable, ctx.Err())
	default:
		return fmt.Errorf("%w: %w", model.ErrUnavailable, last)
	}
}

// linearBackOff waits step, 2·step, 3·step and so on
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.step * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// clockTimer runs backoff waits on a quartz clock
type clockTimer struct {
	clock quartz.Clock
	timer *quartz.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.NewTimer(d, "storage", "retry")
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
