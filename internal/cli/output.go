package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mcoot/stakegame/internal/api/response"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(w io.Writer, format string) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Participant:
		o.printParticipant(v)
	case response.AuthResponse:
		o.printParticipant(v.Participant)
		fmt.Fprintf(o.w, "Token: %s\n", v.Token)
		fmt.Fprintf(o.w, "Expires: %s\n", v.ExpiresAt.Format("2006-01-02 15:04:05"))
	case response.Room:
		o.printRoom(v)
	case response.RoomList:
		o.printRoomList(v)
	case response.Match:
		o.printMatch(v)
	case response.Escrow:
		o.printEscrow(v)
	case response.DepositIntent:
		fmt.Fprintf(o.w, "Send %s to %s\n", v.Amount, v.To)
		fmt.Fprintf(o.w, "Payload: %s\n", v.Payload)
	case CommitResult:
		o.printMatch(v.Match)
		fmt.Fprintf(o.w, "\nCommitted %s (salt saved for reveal)\n", v.Move)
	case response.Health:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
		fmt.Fprintf(o.w, "Live matches: %d\n", v.Hubs)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// CommitResult is the match after a commit plus the secret that was committed
type CommitResult struct {
	Match response.Match `json:"match"`
	Move  string         `json:"move"`
	Salt  string         `json:"salt"`
	Hash  string         `json:"hash"`
}

func (o *Output) printParticipant(p response.Participant) {
	fmt.Fprintf(o.w, "Participant: %s (%s)\n", p.DisplayName, p.ID)
}

func (o *Output) printRoom(r response.Room) {
	fmt.Fprintf(o.w, "Room: %s\n", r.ID)
	fmt.Fprintf(o.w, "Game: %s\n", r.GameKind)
	fmt.Fprintf(o.w, "Stake: %s (fee %d bps)\n", r.Stake, r.FeeBps)
	fmt.Fprintf(o.w, "Status: %s\n", r.Status)
	fmt.Fprintf(o.w, "Privacy: %s\n", r.Privacy)
	if r.CurrentMatch != nil {
		fmt.Fprintf(o.w, "Current Match: %s\n", *r.CurrentMatch)
	}
	fmt.Fprintf(o.w, "Members (%d/%d):\n", len(r.Members), r.Capacity)
	for _, m := range r.Members {
		owner := ""
		if m.IsOwner {
			owner = " [owner]"
		}
		fmt.Fprintf(o.w, "  - %s%s\n", m.ParticipantID, owner)
	}
}

func (o *Output) printRoomList(l response.RoomList) {
	if len(l.Rooms) == 0 {
		fmt.Fprintln(o.w, "No rooms")
		return
	}
	fmt.Fprintf(o.w, "%-10s %-10s %-14s %-10s %s\n", "ID", "GAME", "STAKE", "STATUS", "MEMBERS")
	for _, r := range l.Rooms {
		fmt.Fprintf(o.w, "%-10s %-10s %-14s %-10s %d/%d\n", r.ID, r.GameKind, r.Stake, r.Status, len(r.Members), r.Capacity)
	}
	fmt.Fprintf(o.w, "Page %d (limit %d)\n", l.Page, l.Limit)
}

func (o *Output) printMatch(m response.Match) {
	fmt.Fprintf(o.w, "Match: %s (room %s)\n", m.ID, m.RoomID)
	fmt.Fprintf(o.w, "Game: %s [%s]\n", m.GameKind, m.Discipline)
	fmt.Fprintf(o.w, "Players: %s\n", strings.Join(m.Players, ", "))
	fmt.Fprintf(o.w, "Status: %s\n", m.Status)

	if len(m.Moves) > 0 {
		fmt.Fprintln(o.w, "Moves:")
		for _, mv := range m.Moves {
			fmt.Fprintf(o.w, "  %d. %s %s\n", mv.Seq, mv.ParticipantID, string(mv.Move))
		}
	}

	if m.Round > 0 && m.Status == "ACTIVE" {
		fmt.Fprintf(o.w, "Round: %d\n", m.Round)
		for _, c := range m.Commits {
			state := "committed"
			if c.Revealed {
				state = "revealed " + c.Move
			}
			fmt.Fprintf(o.w, "  - %s: %s\n", c.ParticipantID, state)
		}
		if m.CommitDeadline != nil {
			fmt.Fprintf(o.w, "Commit by: %s\n", m.CommitDeadline.Format("2006-01-02 15:04:05"))
		}
		if m.RevealDeadline != nil {
			fmt.Fprintf(o.w, "Reveal by: %s\n", m.RevealDeadline.Format("2006-01-02 15:04:05"))
		}
	}
	for _, r := range m.Rounds {
		moves := make([]string, len(r.Commits))
		for i, c := range r.Commits {
			move := c.Move
			if move == "" {
				move = "?"
			}
			moves[i] = c.ParticipantID + "=" + move
		}
		fmt.Fprintf(o.w, "Round %d: %s\n", r.Round, strings.Join(moves, " "))
	}

	if m.Winner != nil {
		fmt.Fprintf(o.w, "Winner: %s\n", *m.Winner)
	}
	if m.ForfeitedBy != "" {
		fmt.Fprintf(o.w, "Forfeited by: %s\n", m.ForfeitedBy)
	}
	if m.EndReason != "" {
		fmt.Fprintf(o.w, "Reason: %s\n", m.EndReason)
	}
}

func (o *Output) printEscrow(e response.Escrow) {
	fmt.Fprintf(o.w, "Escrow: %s (match %s)\n", e.ID, e.MatchID)
	fmt.Fprintf(o.w, "State: %s\n", e.State)
	fmt.Fprintf(o.w, "Pot: %s of %s\n", e.Pot, e.OriginalPot)
	fmt.Fprintf(o.w, "Contributors: %s\n", strings.Join(e.Contributors, ", "))
	if s := e.Settlement; s != nil {
		fmt.Fprintf(o.w, "Settlement: %s (%s)\n", s.ID, s.Kind)
		if s.Payout != nil && s.Fee != nil {
			fmt.Fprintf(o.w, "  Winner %s receives %s, fee %s\n", s.Winner, *s.Payout, *s.Fee)
		}
		for _, t := range s.Transfers {
			fmt.Fprintf(o.w, "  -> %s: %s\n", t.To, t.Amount)
		}
	}
	if e.PayoutTxRef != "" {
		fmt.Fprintf(o.w, "Payout tx: %s\n", e.PayoutTxRef)
	}
	if e.RefundTxRef != "" {
		fmt.Fprintf(o.w, "Refund tx: %s\n", e.RefundTxRef)
	}
}
