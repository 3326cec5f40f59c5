package factory

import (
	"context"
	"sync"
	"testing"

	"github.com/coder/quartz"

	"github.com/mcoot/stakegame/internal/dependencies/mocks"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/storage/memory"
	"github.com/mcoot/stakegame/internal/testutil"
)

// TestApp wraps App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *quartz.Mock
	MockRandom *mocks.MockRandom
	Sink       *RecordingSink
}

// NewTestApp creates an App on in-memory storage with a mock clock and
// deterministic randomness. Timers only fire when the test advances the clock.
func NewTestApp(tb testing.TB) *TestApp {
	tb.Helper()
	mockClock := mocks.NewMockClock(tb, mocks.DefaultTime)
	mockRandom := mocks.NewMockRandom()
	sink := &RecordingSink{}

	settings := DefaultSettings()
	settings.ContractAddress = "0xescrow"

	app, err := newWithDependencies(memory.New(), sink, mockClock, mockRandom, settings, testutil.NopLogger())
	if err != nil {
		tb.Fatalf("failed to build test app: %v", err)
	}
	tb.Cleanup(func() { _ = app.Close() })

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Sink:       sink,
	}
}

// RecordingSink keeps every emitted settlement in memory
type RecordingSink struct {
	mu          sync.Mutex
	settlements []*model.Settlement
}

func (s *RecordingSink) Emit(ctx context.Context, st *model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements = append(s.settlements, st)
	return nil
}

// Settlements returns a copy of what has been emitted so far
func (s *RecordingSink) Settlements() []*model.Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Settlement, len(s.settlements))
	copy(out, s.settlements)
	return out
}
