package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewMatchID generates a fresh opaque match identifier.
func NewMatchID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// TurnID formats a turn's identifier from its match and the seq of the
// turn_emitted event that carries it, per the scheme spec.md names as
// acceptable: match_id + ":" + seq.
func TurnID(matchID string, seq int64) string {
	return fmt.Sprintf("%s:%d", matchID, seq)
}

// EventID formats a MatchEvent's own identifier the same way, since each
// event is one-to-one with the seq that names it.
func EventID(matchID string, seq int64) string {
	return fmt.Sprintf("%s:%d", matchID, seq)
}
