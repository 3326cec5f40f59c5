package redis

import (
	"fmt"

	"github.com/mcoot/stakegame/internal/model"
)

// Key prefix for all stakegame data
const keyPrefix = "stakegame"

// participantKey returns the Redis key for a Participant
func participantKey(id model.ParticipantID) string {
	return fmt.Sprintf("%s:participant:%s", keyPrefix, id)
}

// roomKey returns the Redis key for a Room
func roomKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, id)
}

// roomIndexKey returns the Redis key for the SET of all room ids
func roomIndexKey() string {
	return fmt.Sprintf("%s:idx:rooms", keyPrefix)
}

// matchKey returns the Redis key for a Match
func matchKey(id model.MatchID) string {
	return fmt.Sprintf("%s:match:%s", keyPrefix, id)
}

// openMatchIndexKey returns the Redis key for the SET of matches that are
// active or still awaiting settlement
func openMatchIndexKey() string {
	return fmt.Sprintf("%s:idx:open_matches", keyPrefix)
}

// escrowKey returns the Redis key for the EscrowRecord of a match
func escrowKey(matchID model.MatchID) string {
	return fmt.Sprintf("%s:escrow:%s", keyPrefix, matchID)
}
