package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"slices"

	"github.com/mcoot/stakegame/internal/dependencies/clock"
	"github.com/mcoot/stakegame/internal/dependencies/random"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/settlement"
	"github.com/mcoot/stakegame/internal/storage"
)

const bpsDenominator = 10000

// ComputeFee splits a pot into the house fee and the winner's payout.
// The fee is floor(pot * feeBps / 10000), so fee + payout == pot.
func ComputeFee(pot model.Amount, feeBps int) (fee, payout model.Amount) {
	if pot <= 0 || feeBps <= 0 {
		return 0, pot
	}
	hi, lo := bits.Mul64(uint64(pot), uint64(feeBps))
	quo, _ := bits.Div64(hi, lo, bpsDenominator)
	fee = model.Amount(quo)
	return fee, pot - fee
}

// SplitRefund divides a pot between its contributors. With two
// contributors the first receives the odd remainder; a sole contributor
// receives everything.
func SplitRefund(pot model.Amount, contributors int) (first, second model.Amount) {
	if contributors < 2 {
		return pot, 0
	}
	second = pot / 2
	return pot - second, second
}

// Ledger tracks the pot of every match and closes it exactly once.
// It never moves funds; settlements are handed to the sink for an
// external executor.
type Ledger struct {
	storage         storage.Storage
	sink            settlement.Sink
	clock           clock.Clock
	random          random.Random
	contractAddress string
	logger          *slog.Logger
}

// NewLedger creates a new escrow Ledger
func NewLedger(
	storage storage.Storage,
	sink settlement.Sink,
	clock clock.Clock,
	random random.Random,
	contractAddress string,
	logger *slog.Logger,
) *Ledger {
	return &Ledger{
		storage:         storage,
		sink:            sink,
		clock:           clock,
		random:          random,
		contractAddress: contractAddress,
		logger:          logger,
	}
}

// Initialize opens the escrow for a match with pot = stake × contributors.
// Re-initializing with the same terms returns the stored record; an escrow
// already held under other terms reports model.ErrEscrowBound.
func (l *Ledger) Initialize(ctx context.Context, matchID model.MatchID, stakePerPlayer model.Amount, feeBps int, contributors []model.ParticipantID) (*model.EscrowRecord, error) {
	if stakePerPlayer <= 0 || stakePerPlayer > model.MaxStake {
		return nil, model.ErrInvalidStake
	}
	if feeBps < 0 || feeBps > model.MaxFeeBps {
		return nil, model.ErrInvalidFee
	}
	if len(contributors) == 0 || len(contributors) > model.RoomCapacity {
		return nil, fmt.Errorf("%w: escrow needs 1 or 2 contributors", model.ErrInvalidRequest)
	}
	if len(contributors) == 2 && contributors[0] == contributors[1] {
		return nil, fmt.Errorf("%w: contributors must be distinct", model.ErrInvalidRequest)
	}

	now := l.clock.Now()
	pot := stakePerPlayer * model.Amount(len(contributors))
	record := &model.EscrowRecord{
		ID:             l.random.UUID(),
		MatchID:        matchID,
		StakePerPlayer: stakePerPlayer,
		FeeBps:         feeBps,
		Pot:            pot,
		OriginalPot:    pot,
		Contributors:   append([]model.ParticipantID(nil), contributors...),
		State:          model.EscrowStateInitialized,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := l.storage.CreateEscrow(ctx, record)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := l.storage.GetEscrow(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(existing.Contributors, record.Contributors) ||
			existing.StakePerPlayer != stakePerPlayer ||
			existing.FeeBps != feeBps {
			l.logger.Error("escrow already held under other terms",
				slog.String("match_id", string(matchID)),
				slog.Any("contributors", existing.Contributors),
				slog.Any("requested", contributors),
			)
			return nil, model.ErrEscrowBound
		}
		return existing, nil
	}

	l.logger.Info("escrow initialized",
		slog.String("match_id", string(matchID)),
		slog.String("escrow_id", record.ID),
		slog.String("pot", pot.String()),
		slog.Int("fee_bps", feeBps),
	)
	return record, nil
}

// Get returns the escrow record for a match
func (l *Ledger) Get(ctx context.Context, matchID model.MatchID) (*model.EscrowRecord, error) {
	return l.storage.GetEscrow(ctx, matchID)
}

// Activate marks the stake as at risk once play starts. Activating an
// active escrow is a no-op.
func (l *Ledger) Activate(ctx context.Context, matchID model.MatchID) error {
	_, err := l.storage.UpdateEscrow(ctx, matchID, func(e *model.EscrowRecord) error {
		switch e.State {
		case model.EscrowStateInitialized:
			e.State = model.EscrowStateActive
			e.UpdatedAt = l.clock.Now()
			return nil
		case model.EscrowStateActive:
			return nil
		default:
			return model.ErrAlreadyClosed
		}
	})
	return err
}

// Resolve pays the pot minus the house fee to the winner
func (l *Ledger) Resolve(ctx context.Context, matchID model.MatchID, winner model.ParticipantID) (*model.Settlement, error) {
	var st *model.Settlement
	record, err := l.storage.UpdateEscrow(ctx, matchID, func(e *model.EscrowRecord) error {
		if !e.State.Open() {
			return model.ErrAlreadyClosed
		}
		if !e.IsContributor(winner) {
			return model.ErrUnknownWinner
		}

		now := l.clock.Now()
		fee, payout := ComputeFee(e.Pot, e.FeeBps)
		st = &model.Settlement{
			ID:        l.random.UUID(),
			EscrowID:  e.ID,
			MatchID:   e.MatchID,
			Kind:      model.SettlementPayout,
			Winner:    winner,
			Payout:    payout,
			Fee:       fee,
			Transfers: []model.Transfer{{To: winner, Amount: payout}},
			CreatedAt: now,
		}
		e.Close(model.EscrowStateResolved, st, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("escrow resolved",
		slog.String("match_id", string(matchID)),
		slog.String("winner", string(winner)),
		slog.String("payout", st.Payout.String()),
		slog.String("fee", st.Fee.String()),
	)
	l.emit(ctx, record.Settlement)
	return st, nil
}

// Refund returns the pot to its contributors without a fee
func (l *Ledger) Refund(ctx context.Context, matchID model.MatchID) (*model.Settlement, error) {
	var st *model.Settlement
	record, err := l.storage.UpdateEscrow(ctx, matchID, func(e *model.EscrowRecord) error {
		if !e.State.Open() {
			return model.ErrAlreadyClosed
		}

		now := l.clock.Now()
		first, second := SplitRefund(e.Pot, len(e.Contributors))
		transfers := []model.Transfer{{To: e.Contributors[0], Amount: first}}
		if len(e.Contributors) > 1 {
			transfers = append(transfers, model.Transfer{To: e.Contributors[1], Amount: second})
		}
		st = &model.Settlement{
			ID:        l.random.UUID(),
			EscrowID:  e.ID,
			MatchID:   e.MatchID,
			Kind:      model.SettlementRefund,
			Transfers: transfers,
			CreatedAt: now,
		}
		e.Close(model.EscrowStateRefunded, st, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("escrow refunded",
		slog.String("match_id", string(matchID)),
		slog.Int("transfers", len(st.Transfers)),
	)
	l.emit(ctx, record.Settlement)
	return st, nil
}

// RecordExecution stores the transaction reference reported by the
// settlement executor. Repeating the same reference is a no-op.
func (l *Ledger) RecordExecution(ctx context.Context, matchID model.MatchID, txRef string) (*model.EscrowRecord, error) {
	if txRef == "" {
		return nil, fmt.Errorf("%w: transaction reference is required", model.ErrInvalidRequest)
	}
	return l.storage.UpdateEscrow(ctx, matchID, func(e *model.EscrowRecord) error {
		var ref *string
		switch e.State {
		case model.EscrowStateResolved:
			ref = &e.PayoutTxRef
		case model.EscrowStateRefunded:
			ref = &e.RefundTxRef
		default:
			return fmt.Errorf("%w: escrow has not been settled", model.ErrConflict)
		}
		if *ref != "" && *ref != txRef {
			return fmt.Errorf("%w: execution already recorded", model.ErrAlreadyClosed)
		}
		*ref = txRef
		e.UpdatedAt = l.clock.Now()
		return nil
	})
}

// DepositIntent returns the payment instruction a contributor uses to fund their stake
func (l *Ledger) DepositIntent(ctx context.Context, matchID model.MatchID, participant model.ParticipantID) (*model.DepositIntent, error) {
	record, err := l.storage.GetEscrow(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !record.IsContributor(participant) {
		return nil, model.ErrNotMember
	}
	if !record.State.Open() {
		return nil, model.ErrAlreadyClosed
	}
	return &model.DepositIntent{
		MatchID: matchID,
		To:      l.contractAddress,
		Amount:  record.StakePerPlayer,
		Payload: fmt.Sprintf("deposit:%s:%s", matchID, participant),
	}, nil
}

func (l *Ledger) emit(ctx context.Context, st *model.Settlement) {
	if l.sink == nil || st == nil {
		return
	}
	if err := l.sink.Emit(ctx, st); err != nil {
		// The settlement stays on the record for the executor to poll
		l.logger.Warn("failed to emit settlement",
			slog.String("match_id", string(st.MatchID)),
			slog.String("settlement_id", st.ID),
			slog.Any("error", err),
		)
	}
}

// LedgerInterface defines the escrow operations used by other components
type LedgerInterface interface {
	Initialize(ctx context.Context, matchID model.MatchID, stakePerPlayer model.Amount, feeBps int, contributors []model.ParticipantID) (*model.EscrowRecord, error)
	Get(ctx context.Context, matchID model.MatchID) (*model.EscrowRecord, error)
	Activate(ctx context.Context, matchID model.MatchID) error
	Resolve(ctx context.Context, matchID model.MatchID, winner model.ParticipantID) (*model.Settlement, error)
	Refund(ctx context.Context, matchID model.MatchID) (*model.Settlement, error)
	RecordExecution(ctx context.Context, matchID model.MatchID, txRef string) (*model.EscrowRecord, error)
	DepositIntent(ctx context.Context, matchID model.MatchID, participant model.ParticipantID) (*model.DepositIntent, error)
}

// Ensure Ledger implements LedgerInterface
var _ LedgerInterface = (*Ledger)(nil)
