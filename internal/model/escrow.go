package model

import (
	"slices"
	"time"
)

// EscrowState tracks the accounting lifecycle of a match's pot
type EscrowState string

const (
	EscrowStateInitialized EscrowState = "INITIALIZED"
	EscrowStateActive      EscrowState = "ACTIVE"
	EscrowStateResolved    EscrowState = "RESOLVED"
	EscrowStateRefunded    EscrowState = "REFUNDED"
)

// Open reports whether the escrow can still be resolved or refunded
func (s EscrowState) Open() bool {
	return s == EscrowStateInitialized || s == EscrowStateActive
}

// MaxFeeBps is the largest admin fee, 100%
const MaxFeeBps = 10000

// EscrowRecord holds the pot for one match until it is settled
type EscrowRecord struct {
	ID             string
	MatchID        MatchID
	StakePerPlayer Amount
	FeeBps         int
	// Pot is fixed at initialization and zeroed on settlement
	Pot         Amount
	OriginalPot Amount
	// Contributors are the staking participants in join order
	Contributors []ParticipantID
	State        EscrowState
	Settlement   *Settlement

	// References reported back by the settlement executor
	PayoutTxRef string
	RefundTxRef string

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// IsContributor reports whether the participant staked into this escrow
func (e *EscrowRecord) IsContributor(id ParticipantID) bool {
	return slices.Contains(e.Contributors, id)
}

// Close records the settlement and zeroes the pot
func (e *EscrowRecord) Close(state EscrowState, st *Settlement, at time.Time) {
	e.State = state
	e.Settlement = st
	e.Pot = 0
	e.UpdatedAt = at
	e.ClosedAt = &at
}

// Clone returns a deep copy that shares no mutable state with e
func (e *EscrowRecord) Clone() *EscrowRecord {
	c := *e
	c.Contributors = slices.Clone(e.Contributors)
	if e.Settlement != nil {
		s := *e.Settlement
		s.Transfers = slices.Clone(e.Settlement.Transfers)
		c.Settlement = &s
	}
	if e.ClosedAt != nil {
		t := *e.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// SettlementKind distinguishes a payout to a winner from a refund
type SettlementKind string

const (
	SettlementPayout SettlementKind = "payout"
	SettlementRefund SettlementKind = "refund"
)

// Transfer is one value movement the settlement executor must perform
type Transfer struct {
	To     ParticipantID
	Amount Amount
}

// Settlement is the intent emitted to the external settlement executor.
// ID is stable so the executor can deduplicate redeliveries.
type Settlement struct {
	ID        string
	EscrowID  string
	MatchID   MatchID
	Kind      SettlementKind
	Winner    ParticipantID // Payout only
	Payout    Amount        // Payout only
	Fee       Amount        // Payout only
	Transfers []Transfer
	CreatedAt time.Time
}

// DepositIntent tells a participant how to fund their stake
type DepositIntent struct {
	MatchID MatchID
	To      string
	Amount  Amount
	Payload string
}
