package deliberation

import (
	"context"

	"github.com/wbarena/arena/internal/core"
)

// EventSink is the narrow interface the engine needs from the Event Log
// (C7): reserve the next sequence number for a match, then append the
// event at that sequence. Splitting reservation from append lets the
// engine compute a turn_id (match_id:seq) before building the event data
// that embeds it, without the log needing to know about turn ids at all.
type EventSink interface {
	ReserveSeq(ctx context.Context, matchID string) (int64, error)
	Append(ctx context.Context, evt core.MatchEvent) error
}
