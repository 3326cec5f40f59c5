package mocks

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
)

// DefaultTime is the start time for mock clocks in tests
var DefaultTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// NewMockClock creates a quartz mock clock set to the given time.
// Timers created on it only fire when the test advances the clock.
func NewMockClock(tb testing.TB, t time.Time) *quartz.Mock {
	tb.Helper()
	mock := quartz.NewMock(tb)
	mock.Set(t).MustWait(context.Background())
	return mock
}
