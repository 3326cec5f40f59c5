package response

import (
	"encoding/json"
	"time"

	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/auth"
	"github.com/mcoot/stakegame/internal/services/commitment"
)

// Participant represents a participant in API responses
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParticipantFromModel converts a model.Participant to a response Participant
func ParticipantFromModel(p *model.Participant) Participant {
	return Participant{
		ID:          string(p.ID),
		DisplayName: p.DisplayName,
		CreatedAt:   p.CreatedAt,
	}
}

// AuthResponse is the response for identity creation
type AuthResponse struct {
	Participant Participant `json:"participant"`
	Token       string      `json:"token"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		Participant: ParticipantFromModel(&s.Participant),
		Token:       s.Token,
		ExpiresAt:   s.ExpiresAt,
	}
}

// RoomMember represents a room member
type RoomMember struct {
	ParticipantID string    `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at"`
	IsOwner       bool      `json:"is_owner"`
}

// Room represents a room in API responses. The join code hash is never
// exposed.
type Room struct {
	ID           string            `json:"id"`
	GameKind     string            `json:"game_kind"`
	Stake        model.Amount      `json:"stake"`
	FeeBps       int               `json:"fee_bps"`
	Privacy      string            `json:"privacy"`
	Rules        map[string]string `json:"rules,omitempty"`
	Status       string            `json:"status"`
	OwnerID      string            `json:"owner_id"`
	Members      []RoomMember      `json:"members"`
	Capacity     int               `json:"capacity"`
	CurrentMatch *string           `json:"current_match"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RoomFromModel converts model.Room
func RoomFromModel(r *model.Room) Room {
	members := make([]RoomMember, len(r.Members))
	for i, m := range r.Members {
		members[i] = RoomMember{
			ParticipantID: string(m.ParticipantID),
			JoinedAt:      m.JoinedAt,
			IsOwner:       m.ParticipantID == r.OwnerID,
		}
	}

	var currentMatch *string
	if r.CurrentMatch != "" {
		m := string(r.CurrentMatch)
		currentMatch = &m
	}

	return Room{
		ID:           string(r.ID),
		GameKind:     string(r.GameKind),
		Stake:        r.Stake,
		FeeBps:       r.FeeBps,
		Privacy:      string(r.Privacy),
		Rules:        r.Rules,
		Status:       string(r.Status),
		OwnerID:      string(r.OwnerID),
		Members:      members,
		Capacity:     r.Capacity,
		CurrentMatch: currentMatch,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// RoomList is a page of rooms
type RoomList struct {
	Rooms []Room `json:"rooms"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// RoomListFromModel converts a page of rooms
func RoomListFromModel(rooms []*model.Room, page, limit int) RoomList {
	list := RoomList{Rooms: make([]Room, len(rooms)), Page: page, Limit: limit}
	for i, r := range rooms {
		list.Rooms[i] = RoomFromModel(r)
	}
	return list
}

// Move represents a direct move
type Move struct {
	Seq           int             `json:"seq"`
	ParticipantID string          `json:"participant_id"`
	Move          json.RawMessage `json:"move"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

// Commit represents one participant's commitment in a round. The hash is
// only shown once every commitment of the round is open, and a move only
// once its own commitment is open.
type Commit struct {
	ParticipantID string     `json:"participant_id"`
	CommittedAt   time.Time  `json:"committed_at"`
	Revealed      bool       `json:"revealed"`
	Hash          string     `json:"hash,omitempty"`
	Move          string     `json:"move,omitempty"`
	Salt          string     `json:"salt,omitempty"`
	RevealedAt    *time.Time `json:"revealed_at,omitempty"`
}

// Round is an archived commit-reveal round
type Round struct {
	Round   int      `json:"round"`
	Commits []Commit `json:"commits"`
}

// Match represents a match in API responses
type Match struct {
	ID             string     `json:"id"`
	RoomID         string     `json:"room_id"`
	GameKind       string     `json:"game_kind"`
	Discipline     string     `json:"discipline"`
	Players        []string   `json:"players"`
	Status         string     `json:"status"`
	Moves          []Move     `json:"moves,omitempty"`
	Round          int        `json:"round,omitempty"`
	Commits        []Commit   `json:"commits,omitempty"`
	Rounds         []Round    `json:"rounds,omitempty"`
	CommitDeadline *time.Time `json:"commit_deadline,omitempty"`
	RevealDeadline *time.Time `json:"reveal_deadline,omitempty"`
	Started        bool       `json:"started"`
	Winner         *string    `json:"winner"`
	ForfeitedBy    string     `json:"forfeited_by,omitempty"`
	EndReason      string     `json:"end_reason,omitempty"`
	Settled        bool       `json:"settled"`
	SettlementID   string     `json:"settlement_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// MatchFromModel converts model.Match, withholding commitment details that
// are still secret
func MatchFromModel(m *model.Match) Match {
	players := make([]string, len(m.Players))
	for i, p := range m.Players {
		players[i] = string(p)
	}

	moves := make([]Move, len(m.Moves))
	for i, mv := range m.Moves {
		moves[i] = Move{
			Seq:           mv.Seq,
			ParticipantID: string(mv.ParticipantID),
			Move:          mv.Payload,
			SubmittedAt:   mv.SubmittedAt,
		}
	}

	rounds := make([]Round, len(m.Rounds))
	for i, r := range m.Rounds {
		rounds[i] = Round{Round: r.Round, Commits: commitsFromModel(r.Commits, len(m.Players))}
	}

	var winner *string
	if m.Winner != "" {
		w := string(m.Winner)
		winner = &w
	}

	resp := Match{
		ID:             string(m.ID),
		RoomID:         string(m.RoomID),
		GameKind:       string(m.GameKind),
		Discipline:     string(m.GameKind.Discipline()),
		Players:        players,
		Status:         string(m.Status),
		Moves:          moves,
		Commits:        commitsFromModel(m.Commits, len(m.Players)),
		Rounds:         rounds,
		CommitDeadline: m.CommitDeadline,
		RevealDeadline: m.RevealDeadline,
		Started:        m.Started,
		Winner:         winner,
		ForfeitedBy:    string(m.ForfeitedBy),
		EndReason:      string(m.EndReason),
		Settled:        m.Settled,
		SettlementID:   m.SettlementID,
		CreatedAt:      m.CreatedAt,
		FinishedAt:     m.FinishedAt,
	}
	if m.GameKind.Discipline() == model.DisciplineCommitReveal {
		resp.Round = m.Round
	}
	return resp
}

func commitsFromModel(commits []model.CommitEntry, players int) []Commit {
	allOpen := len(commits) == players
	for _, c := range commits {
		allOpen = allOpen && c.Revealed()
	}

	out := make([]Commit, len(commits))
	for i, c := range commits {
		out[i] = Commit{
			ParticipantID: string(c.ParticipantID),
			CommittedAt:   c.CommittedAt,
			Revealed:      c.Revealed(),
		}
		if c.Revealed() {
			out[i].Move = string(c.Move)
			out[i].RevealedAt = c.RevealedAt
		}
		if allOpen {
			out[i].Hash = commitment.Encode(c.Hash)
			out[i].Salt = c.Salt
		}
	}
	return out
}

// Transfer is one value movement in a settlement
type Transfer struct {
	To     string       `json:"to"`
	Amount model.Amount `json:"amount"`
}

// Settlement represents a settlement intent
type Settlement struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	Winner    string        `json:"winner,omitempty"`
	Payout    *model.Amount `json:"payout,omitempty"`
	Fee       *model.Amount `json:"fee,omitempty"`
	Transfers []Transfer    `json:"transfers"`
	CreatedAt time.Time     `json:"created_at"`
}

// SettlementFromModel converts model.Settlement
func SettlementFromModel(s *model.Settlement) Settlement {
	transfers := make([]Transfer, len(s.Transfers))
	for i, t := range s.Transfers {
		transfers[i] = Transfer{To: string(t.To), Amount: t.Amount}
	}
	resp := Settlement{
		ID:        s.ID,
		Kind:      string(s.Kind),
		Winner:    string(s.Winner),
		Transfers: transfers,
		CreatedAt: s.CreatedAt,
	}
	if s.Kind == model.SettlementPayout {
		payout, fee := s.Payout, s.Fee
		resp.Payout = &payout
		resp.Fee = &fee
	}
	return resp
}

// Escrow represents an escrow record
type Escrow struct {
	ID             string       `json:"id"`
	MatchID        string       `json:"match_id"`
	State          string       `json:"state"`
	StakePerPlayer model.Amount `json:"stake_per_player"`
	FeeBps         int          `json:"fee_bps"`
	Pot            model.Amount `json:"pot"`
	OriginalPot    model.Amount `json:"original_pot"`
	Contributors   []string     `json:"contributors"`
	Settlement     *Settlement  `json:"settlement,omitempty"`
	PayoutTxRef    string       `json:"payout_tx_ref,omitempty"`
	RefundTxRef    string       `json:"refund_tx_ref,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
}

// EscrowFromModel converts model.EscrowRecord
func EscrowFromModel(e *model.EscrowRecord) Escrow {
	contributors := make([]string, len(e.Contributors))
	for i, c := range e.Contributors {
		contributors[i] = string(c)
	}
	var settlement *Settlement
	if e.Settlement != nil {
		s := SettlementFromModel(e.Settlement)
		settlement = &s
	}
	return Escrow{
		ID:             e.ID,
		MatchID:        string(e.MatchID),
		State:          string(e.State),
		StakePerPlayer: e.StakePerPlayer,
		FeeBps:         e.FeeBps,
		Pot:            e.Pot,
		OriginalPot:    e.OriginalPot,
		Contributors:   contributors,
		Settlement:     settlement,
		PayoutTxRef:    e.PayoutTxRef,
		RefundTxRef:    e.RefundTxRef,
		CreatedAt:      e.CreatedAt,
		ClosedAt:       e.ClosedAt,
	}
}

// DepositIntent tells a participant how to fund their stake
type DepositIntent struct {
	MatchID string       `json:"match_id"`
	To      string       `json:"to"`
	Amount  model.Amount `json:"amount"`
	// AmountNano is the amount in indivisible units
	AmountNano int64  `json:"amount_nano"`
	Payload    string `json:"payload"`
}

// DepositIntentFromModel converts model.DepositIntent
func DepositIntentFromModel(d *model.DepositIntent) DepositIntent {
	return DepositIntent{
		MatchID:    string(d.MatchID),
		To:         d.To,
		Amount:     d.Amount,
		AmountNano: d.Amount.Nano(),
		Payload:    d.Payload,
	}
}

// Health is the health check response
type Health struct {
	Status string `json:"status"`
	// Hubs is the number of matches with live subscribers
	Hubs int `json:"hubs"`
}
