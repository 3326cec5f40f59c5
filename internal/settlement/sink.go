// Package settlement delivers settlement intents to the external executor
// that moves the funds.
package settlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/stakegame/internal/model"
)

// Sink receives every settlement the escrow ledger produces. Delivery is
// at least once; executors deduplicate on Settlement.ID.
type Sink interface {
	Emit(ctx context.Context, s *model.Settlement) error
}

// LogSink writes settlements to the structured log
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs each settlement
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, st *model.Settlement) error {
	attrs := []any{
		slog.String("settlement_id", st.ID),
		slog.String("match_id", string(st.MatchID)),
		slog.String("kind", string(st.Kind)),
	}
	if st.Kind == model.SettlementPayout {
		attrs = append(attrs,
			slog.String("winner", string(st.Winner)),
			slog.String("payout", st.Payout.String()),
			slog.String("fee", st.Fee.String()),
		)
	}
	for i, t := range st.Transfers {
		attrs = append(attrs, slog.Group("transfer",
			slog.Int("index", i),
			slog.String("to", string(t.To)),
			slog.String("amount", t.Amount.String()),
		))
	}
	s.logger.InfoContext(ctx, "settlement emitted", attrs...)
	return nil
}

// MultiSink fans a settlement out to several sinks
type MultiSink []Sink

// Emit delivers to every sink, even if an earlier one fails
func (m MultiSink) Emit(ctx context.Context, st *model.Settlement) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Emit(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
