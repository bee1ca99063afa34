// Package judging implements the Judging Store (C10): deterministic blind
// labeling of a match's two teams, score submission, weighted-total
// scoring, and mapping reveal (spec.md §4.9).
package judging

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/storage"
)

// WorldOne and WorldTwo are the two neutral blind labels a match's real
// teams are mapped to.
const (
	WorldOne = "WORLD-1"
	WorldTwo = "WORLD-2"
)

// Store provides blind-mapping assignment and score persistence.
type Store struct {
	storage storage.Storage
}

// New constructs a judging Store backed by storage.
func New(store storage.Storage) *Store {
	return &Store{storage: store}
}

// BlindMapping returns the match's {blind_id: team_id} assignment,
// assigning and persisting one on first request. The assignment is
// pseudo-random but deterministic per match_id, so repeated calls for the
// same match always return the same mapping even before it is persisted.
func (s *Store) BlindMapping(ctx context.Context, matchID string) (map[string]core.TeamID, error) {
	existing, err := s.storage.GetBlindMapping(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("get blind mapping: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	mapping := assign(matchID)
	if err := s.storage.SaveBlindMapping(ctx, matchID, mapping); err != nil {
		return nil, fmt.Errorf("save blind mapping: %w", err)
	}
	return mapping, nil
}

// assign derives a coin flip from sha256(match_id) so the same match_id
// always assigns the same way, without needing the mapping to already be
// persisted to reproduce it.
func assign(matchID string) map[string]core.TeamID {
	sum := sha256.Sum256([]byte(matchID))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	if rng.Intn(2) == 0 {
		return map[string]core.TeamID{WorldOne: core.TeamA, WorldTwo: core.TeamB}
	}
	return map[string]core.TeamID{WorldOne: core.TeamB, WorldTwo: core.TeamA}
}

// SubmitScore records one judge's scorecard for a blind entry. Scores are
// stored as-is; the weighted total is a read-side computation
// (core.JudgingScores.WeightedTotal).
func (s *Store) SubmitScore(ctx context.Context, matchID string, rec core.JudgingScoreRecord) error {
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}
	if err := s.storage.SaveJudgingScore(ctx, rec, matchID); err != nil {
		return fmt.Errorf("submit score: %w", err)
	}
	return nil
}

// Scores returns every submitted scorecard for matchID.
func (s *Store) Scores(ctx context.Context, matchID string) ([]core.JudgingScoreRecord, error) {
	recs, err := s.storage.ListJudgingScores(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return recs, nil
}

// Reveal returns the {blind_id: team_id} mapping for a match, requiring
// that it already exist (i.e. a judging package was previously requested).
func (s *Store) Reveal(ctx context.Context, matchID string) (map[string]core.TeamID, error) {
	mapping, err := s.storage.GetBlindMapping(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("get blind mapping: %w", err)
	}
	if mapping == nil {
		return nil, fmt.Errorf("no blind mapping exists for match %s", matchID)
	}
	return mapping, nil
}
