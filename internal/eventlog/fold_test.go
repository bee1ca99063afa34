package eventlog

import (
	"testing"

	"github.com/wbarena/arena/internal/canon"
	"github.com/wbarena/arena/internal/challenge"
	"github.com/wbarena/arena/internal/core"
)

func TestFoldCanonReplaysPatchesInOrder(t *testing.T) {
	team := core.TeamA
	chal := challenge.Generate(1, 1)
	placeholder := canon.Placeholder(core.TeamA, chal)

	placeholderMap, err := toMap(placeholder)
	if err != nil {
		t.Fatalf("marshal placeholder: %v", err)
	}

	events := []core.MatchEvent{
		{TeamID: &team, Type: core.EventCanonInitialized, Data: map[string]interface{}{"canon": placeholderMap}},
		{TeamID: &team, Type: core.EventCanonPatchApplied, Data: map[string]interface{}{
			"patch": core.Patch{{Op: core.PatchReplace, Path: "/world_name", Value: "Azure Reach"}},
		}},
	}

	got, ok, err := FoldCanon(events, core.TeamA)
	if err != nil {
		t.Fatalf("fold canon: %v", err)
	}
	if !ok {
		t.Fatal("expected a folded canon")
	}
	if got.WorldName != "Azure Reach" {
		t.Errorf("expected patched world name, got %q", got.WorldName)
	}
}

func TestFoldCanonMissingInitializationReturnsFalse(t *testing.T) {
	_, ok, err := FoldCanon(nil, core.TeamA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no canon without a canon_initialized event")
	}
}

func TestFoldPromptPackReturnsLatest(t *testing.T) {
	team := core.TeamB
	events := []core.MatchEvent{
		{TeamID: &team, Type: core.EventPromptPackGenerated, Data: map[string]interface{}{
			"prompt_pack": core.PromptPack{HeroImage: core.PromptSpec{Title: "first", Prompt: "p1"}},
		}},
		{TeamID: &team, Type: core.EventPromptPackGenerated, Data: map[string]interface{}{
			"prompt_pack": core.PromptPack{HeroImage: core.PromptSpec{Title: "second", Prompt: "p2"}},
		}},
	}

	pack, ok, err := FoldPromptPack(events, core.TeamB)
	if err != nil {
		t.Fatalf("fold prompt pack: %v", err)
	}
	if !ok {
		t.Fatal("expected a prompt pack")
	}
	if pack.HeroImage.Title != "second" {
		t.Errorf("expected the latest prompt pack to win, got %q", pack.HeroImage.Title)
	}
}
