package judging

import (
	"context"
	"testing"

	"github.com/wbarena/arena/internal/core"
)

type fakeStorage struct {
	mappings map[string]map[string]core.TeamID
	scores   map[string][]core.JudgingScoreRecord
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{mappings: make(map[string]map[string]core.TeamID), scores: make(map[string][]core.JudgingScoreRecord)}
}

func (f *fakeStorage) Initialize(ctx context.Context) error { return nil }
func (f *fakeStorage) Close() error                         { return nil }
func (f *fakeStorage) Ping(ctx context.Context) error        { return nil }
func (f *fakeStorage) CreateMatch(ctx context.Context, m *core.Match) error { return nil }
func (f *fakeStorage) GetMatch(ctx context.Context, matchID string) (*core.Match, error) {
	return nil, nil
}
func (f *fakeStorage) UpdateMatchStatus(ctx context.Context, matchID string, status core.MatchStatus, canonHashA, canonHashB, errMsg string) error {
	return nil
}
func (f *fakeStorage) ListMatches(ctx context.Context, limit, offset int) ([]core.MatchSummary, error) {
	return nil, nil
}
func (f *fakeStorage) NextSeq(ctx context.Context, matchID string) (int64, error) { return 0, nil }
func (f *fakeStorage) AppendEvent(ctx context.Context, evt core.MatchEvent) error { return nil }
func (f *fakeStorage) ListEvents(ctx context.Context, matchID string, afterSeq int64) ([]core.MatchEvent, error) {
	return nil, nil
}
func (f *fakeStorage) GetBlindMapping(ctx context.Context, matchID string) (map[string]core.TeamID, error) {
	return f.mappings[matchID], nil
}
func (f *fakeStorage) SaveBlindMapping(ctx context.Context, matchID string, mapping map[string]core.TeamID) error {
	f.mappings[matchID] = mapping
	return nil
}
func (f *fakeStorage) SaveJudgingScore(ctx context.Context, rec core.JudgingScoreRecord, matchID string) error {
	f.scores[matchID] = append(f.scores[matchID], rec)
	return nil
}
func (f *fakeStorage) ListJudgingScores(ctx context.Context, matchID string) ([]core.JudgingScoreRecord, error) {
	return f.scores[matchID], nil
}

func TestBlindMappingIsDeterministicAndPersisted(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	store := New(fs)

	m1, err := store.BlindMapping(ctx, "match-1")
	if err != nil {
		t.Fatalf("blind mapping: %v", err)
	}
	if len(m1) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m1))
	}

	fresh := New(fs)
	m2, err := fresh.BlindMapping(ctx, "match-1")
	if err != nil {
		t.Fatalf("blind mapping: %v", err)
	}
	if m1[WorldOne] != m2[WorldOne] || m1[WorldTwo] != m2[WorldTwo] {
		t.Fatalf("mapping not stable across calls: %+v vs %+v", m1, m2)
	}
}

func TestBlindMappingDiffersAcrossMatchesOnAverage(t *testing.T) {
	fs := newFakeStorage()
	store := New(fs)
	ctx := context.Background()

	sawAOne := false
	sawBOne := false
	for i := 0; i < 50; i++ {
		matchID := "match-" + string(rune('a'+i))
		m, err := store.BlindMapping(ctx, matchID)
		if err != nil {
			t.Fatalf("blind mapping: %v", err)
		}
		if m[WorldOne] == core.TeamA {
			sawAOne = true
		} else {
			sawBOne = true
		}
	}
	if !sawAOne || !sawBOne {
		t.Fatal("expected both assignment directions to occur across many matches")
	}
}

func TestSubmitAndListScores(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	store := New(fs)

	rec := core.JudgingScoreRecord{
		Judge:   "judge-1",
		BlindID: WorldOne,
		Scores:  core.JudgingScores{Narrative: 5, Visual: 4, Originality: 3, Coherence: 5, Feasibility: 4},
	}
	if err := store.SubmitScore(ctx, "match-1", rec); err != nil {
		t.Fatalf("submit score: %v", err)
	}

	scores, err := store.Scores(ctx, "match-1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	if scores[0].SubmittedAt.IsZero() {
		t.Errorf("expected submitted_at to be defaulted")
	}
	if got := scores[0].Scores.WeightedTotal(); got <= 0 {
		t.Errorf("expected a positive weighted total, got %v", got)
	}
}

func TestRevealRequiresExistingMapping(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	store := New(fs)

	if _, err := store.Reveal(ctx, "no-such-match"); err == nil {
		t.Fatal("expected an error revealing a mapping that was never assigned")
	}

	if _, err := store.BlindMapping(ctx, "match-1"); err != nil {
		t.Fatalf("blind mapping: %v", err)
	}
	mapping, err := store.Reveal(ctx, "match-1")
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if len(mapping) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(mapping))
	}
}
