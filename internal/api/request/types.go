package request

import (
	"encoding/json"

	"github.com/mcoot/stakegame/internal/model"
)

// CreateGuestRequest is the request body for creating a guest participant
type CreateGuestRequest struct {
	DisplayName string `json:"display_name"`
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	GameKind model.GameKind    `json:"game_kind"`
	Stake    model.Amount      `json:"stake"`
	FeeBps   *int              `json:"fee_bps,omitempty"`
	Privacy  model.Privacy     `json:"privacy,omitempty"`
	JoinCode string            `json:"join_code,omitempty"`
	Rules    map[string]string `json:"rules,omitempty"`
}

// JoinRoomRequest is the request body for joining a room
type JoinRoomRequest struct {
	JoinCode string `json:"join_code,omitempty"`
}

// MoveRequest is the request body for a direct-move submission
type MoveRequest struct {
	Move json.RawMessage `json:"move"`
}

// CommitRequest is the request body for a commit, the hex sha256 of move||salt
type CommitRequest struct {
	Hash string `json:"hash"`
}

// RevealRequest is the request body for opening a commit
type RevealRequest struct {
	Move model.RPSMove `json:"move"`
	Salt string        `json:"salt"`
}

// RecordExecutionRequest reports the executor's transaction reference
type RecordExecutionRequest struct {
	TxRef string `json:"tx_ref"`
}
