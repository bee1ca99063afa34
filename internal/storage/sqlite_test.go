package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wbarena/arena/internal/core"
)

func TestSQLiteStorage(t *testing.T) {
	ctx := context.Background()

	tmpDir, err := os.MkdirTemp("", "wbarena-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	challenge := core.Challenge{Seed: 99, Tier: 2, BiomeSetting: "tidal flats", Inhabitants: "coral tenders", TwistConstraint: "no writing"}
	match := &core.Match{
		ID:        "match-1",
		Seed:      99,
		Tier:      2,
		Status:    core.MatchRunning,
		CreatedAt: time.Now(),
		Challenge: &challenge,
	}

	t.Run("CreateAndGetMatch", func(t *testing.T) {
		if err := store.CreateMatch(ctx, match); err != nil {
			t.Fatalf("create match: %v", err)
		}

		got, err := store.GetMatch(ctx, match.ID)
		if err != nil {
			t.Fatalf("get match: %v", err)
		}
		if got == nil {
			t.Fatal("match not found")
		}
		if got.ID != match.ID {
			t.Errorf("ID mismatch: got %s, want %s", got.ID, match.ID)
		}
		if got.Challenge == nil || got.Challenge.BiomeSetting != challenge.BiomeSetting {
			t.Errorf("challenge not round-tripped: got %+v", got.Challenge)
		}
	})

	t.Run("UpdateMatchStatus", func(t *testing.T) {
		if err := store.UpdateMatchStatus(ctx, match.ID, core.MatchCompleted, "hash-a", "hash-b", ""); err != nil {
			t.Fatalf("update match status: %v", err)
		}

		got, err := store.GetMatch(ctx, match.ID)
		if err != nil {
			t.Fatalf("get match: %v", err)
		}
		if got.Status != core.MatchCompleted {
			t.Errorf("status not updated: got %s", got.Status)
		}
		if got.CanonHashA != "hash-a" || got.CanonHashB != "hash-b" {
			t.Errorf("canon hashes not updated: got %s / %s", got.CanonHashA, got.CanonHashB)
		}
		if got.CompletedAt == nil {
			t.Error("expected completed_at to be set")
		}
	})

	t.Run("NextSeqAllocatesSequentially", func(t *testing.T) {
		first, err := store.NextSeq(ctx, match.ID)
		if err != nil {
			t.Fatalf("next seq: %v", err)
		}
		second, err := store.NextSeq(ctx, match.ID)
		if err != nil {
			t.Fatalf("next seq: %v", err)
		}
		if second != first+1 {
			t.Errorf("expected sequential seqs, got %d then %d", first, second)
		}
	})

	t.Run("AppendAndListEvents", func(t *testing.T) {
		team := core.TeamA
		evt := core.MatchEvent{
			ID:      core.EventID(match.ID, 1),
			Seq:     1,
			Ts:      time.Now(),
			MatchID: match.ID,
			TeamID:  &team,
			Type:    core.EventCanonInitialized,
			Data:    map[string]interface{}{"canon_hash": "deadbeef"},
		}
		if err := store.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append event: %v", err)
		}

		events, err := store.ListEvents(ctx, match.ID, 0)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		if events[0].Type != core.EventCanonInitialized {
			t.Errorf("wrong event type: got %s", events[0].Type)
		}
		if events[0].TeamID == nil || *events[0].TeamID != core.TeamA {
			t.Errorf("team id not round-tripped")
		}
		if events[0].Data["canon_hash"] != "deadbeef" {
			t.Errorf("data not round-tripped: got %+v", events[0].Data)
		}

		after, err := store.ListEvents(ctx, match.ID, 1)
		if err != nil {
			t.Fatalf("list events after seq 1: %v", err)
		}
		if len(after) != 0 {
			t.Errorf("expected no events after seq 1, got %d", len(after))
		}
	})

	t.Run("BlindMapping", func(t *testing.T) {
		mapping := map[string]core.TeamID{"WORLD-1": core.TeamA, "WORLD-2": core.TeamB}
		if err := store.SaveBlindMapping(ctx, match.ID, mapping); err != nil {
			t.Fatalf("save blind mapping: %v", err)
		}

		got, err := store.GetBlindMapping(ctx, match.ID)
		if err != nil {
			t.Fatalf("get blind mapping: %v", err)
		}
		if got["WORLD-1"] != core.TeamA || got["WORLD-2"] != core.TeamB {
			t.Errorf("blind mapping mismatch: got %+v", got)
		}
	})

	t.Run("JudgingScores", func(t *testing.T) {
		rec := core.JudgingScoreRecord{
			Judge:   "judge-1",
			BlindID: "WORLD-1",
			Scores: core.JudgingScores{
				Narrative: 4, Visual: 5, Originality: 3, Coherence: 4, Feasibility: 5,
			},
			Notes:       "strong worldbuilding",
			SubmittedAt: time.Now(),
		}
		if err := store.SaveJudgingScore(ctx, rec, match.ID); err != nil {
			t.Fatalf("save judging score: %v", err)
		}

		scores, err := store.ListJudgingScores(ctx, match.ID)
		if err != nil {
			t.Fatalf("list judging scores: %v", err)
		}
		if len(scores) != 1 {
			t.Fatalf("expected 1 score, got %d", len(scores))
		}
		if scores[0].Scores.WeightedTotal() != rec.Scores.WeightedTotal() {
			t.Errorf("weighted total mismatch: got %v", scores[0].Scores.WeightedTotal())
		}

		// Re-submitting the same judge/blind_id updates rather than duplicates.
		rec.Scores.Narrative = 5
		if err := store.SaveJudgingScore(ctx, rec, match.ID); err != nil {
			t.Fatalf("resubmit judging score: %v", err)
		}
		scores, err = store.ListJudgingScores(ctx, match.ID)
		if err != nil {
			t.Fatalf("list judging scores: %v", err)
		}
		if len(scores) != 1 {
			t.Fatalf("expected resubmission to update in place, got %d rows", len(scores))
		}
		if scores[0].Scores.Narrative != 5 {
			t.Errorf("expected updated narrative score, got %d", scores[0].Scores.Narrative)
		}
	})

	t.Run("ListMatches", func(t *testing.T) {
		matches, err := store.ListMatches(ctx, 10, 0)
		if err != nil {
			t.Fatalf("list matches: %v", err)
		}
		if len(matches) != 1 {
			t.Errorf("expected 1 match, got %d", len(matches))
		}
	})

	t.Run("GetNonexistentMatch", func(t *testing.T) {
		got, err := store.GetMatch(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Error("expected nil for nonexistent match")
		}
	})
}
