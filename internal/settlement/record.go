package settlement

import (
	"time"

	"github.com/mcoot/stakegame/internal/model"
)

// Record is the wire form of a settlement shared by the stream and archive sinks
type Record struct {
	ID        string           `json:"id"`
	EscrowID  string           `json:"escrow_id"`
	MatchID   string           `json:"match_id"`
	Kind      string           `json:"kind"`
	Winner    string           `json:"winner,omitempty"`
	Payout    *model.Amount    `json:"payout,omitempty"`
	Fee       *model.Amount    `json:"fee,omitempty"`
	Transfers []TransferRecord `json:"transfers"`
	CreatedAt time.Time        `json:"created_at"`
}

// TransferRecord is one value movement in a Record
type TransferRecord struct {
	To     string       `json:"to"`
	Amount model.Amount `json:"amount"`
}

func toRecord(st *model.Settlement) Record {
	r := Record{
		ID:        st.ID,
		EscrowID:  st.EscrowID,
		MatchID:   string(st.MatchID),
		Kind:      string(st.Kind),
		Transfers: make([]TransferRecord, len(st.Transfers)),
		CreatedAt: st.CreatedAt,
	}
	if st.Kind == model.SettlementPayout {
		payout, fee := st.Payout, st.Fee
		r.Winner = string(st.Winner)
		r.Payout = &payout
		r.Fee = &fee
	}
	for i, t := range st.Transfers {
		r.Transfers[i] = TransferRecord{To: string(t.To), Amount: t.Amount}
	}
	return r
}
