// Package commitment implements the binding hash used by commit-reveal games.
//
// A commitment is sha256(move || salt), exchanged as lowercase hex.
package commitment

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mcoot/stakegame/internal/dependencies/random"
	"github.com/mcoot/stakegame/internal/model"
)

// HashLength is the size of a commitment digest
const HashLength = sha256.Size

// SaltLength is the number of hex characters in a generated salt
const SaltLength = 32

// MaxSaltLength bounds salts accepted on reveal
const MaxSaltLength = 256

// Hash returns the commitment digest for a move and salt
func Hash(move model.RPSMove, salt string) []byte {
	h := sha256.New()
	h.Write([]byte(move))
	h.Write([]byte(salt))
	return h.Sum(nil)
}

// Verify reports whether move and salt open the commitment
func Verify(commit []byte, move model.RPSMove, salt string) bool {
	return subtle.ConstantTimeCompare(commit, Hash(move, salt)) == 1
}

// Encode renders a digest as hex
func Encode(digest []byte) string {
	return hex.EncodeToString(digest)
}

// Decode parses a hex digest, rejecting anything that is not a sha256 sum
func Decode(s string) ([]byte, error) {
	digest, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x"))
	if err != nil || len(digest) != HashLength {
		return nil, fmt.Errorf("%w: expected %d hex-encoded bytes", model.ErrInvalidCommit, HashLength)
	}
	return digest, nil
}

// NewSalt returns a fresh random salt
func NewSalt(r random.Random) string {
	return r.String(SaltLength, random.HexAlphabet)
}
