// Package storage provides the relational persistence layer (spec.md §6
// "Persisted state layout"): matches, their append-only events,
// judging_scores, and blind_mapping. It has no knowledge of the
// deliberation engine or the event log's sequencing rules — those live in
// internal/eventlog and internal/judging, which call through this
// package's narrow Storage interface.
package storage

import (
	"context"

	"github.com/wbarena/arena/internal/core"
)

// Storage is the persistence surface every higher-level store composes.
type Storage interface {
	Initialize(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	CreateMatch(ctx context.Context, m *core.Match) error
	GetMatch(ctx context.Context, matchID string) (*core.Match, error)
	UpdateMatchStatus(ctx context.Context, matchID string, status core.MatchStatus, canonHashA, canonHashB, errMsg string) error
	ListMatches(ctx context.Context, limit, offset int) ([]core.MatchSummary, error)

	// NextSeq atomically allocates and returns the next seq for matchID,
	// starting at 1. Appends are serialized per match by this call.
	NextSeq(ctx context.Context, matchID string) (int64, error)
	AppendEvent(ctx context.Context, evt core.MatchEvent) error
	ListEvents(ctx context.Context, matchID string, afterSeq int64) ([]core.MatchEvent, error)

	GetBlindMapping(ctx context.Context, matchID string) (map[string]core.TeamID, error)
	SaveBlindMapping(ctx context.Context, matchID string, mapping map[string]core.TeamID) error

	SaveJudgingScore(ctx context.Context, rec core.JudgingScoreRecord, matchID string) error
	ListJudgingScores(ctx context.Context, matchID string) ([]core.JudgingScoreRecord, error)
}
