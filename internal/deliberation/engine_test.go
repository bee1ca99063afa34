package deliberation

import (
	"context"
	"sync"
	"testing"

	"github.com/wbarena/arena/internal/canon"
	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/llm"
)

// memSink is a minimal in-memory EventSink fake for tests, matching the
// narrow-interface fake style of internal/engine/engine_test.go.
type memSink struct {
	mu     sync.Mutex
	seq    int64
	events []core.MatchEvent
}

func (s *memSink) ReserveSeq(ctx context.Context, matchID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *memSink) Append(ctx context.Context, evt core.MatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *memSink) eventsOfType(t core.MatchEventType) []core.MatchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MatchEvent
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestEngineRunCleanMatchCompletesAllPhases(t *testing.T) {
	ctx := context.Background()
	sink := &memSink{}
	challenge := core.Challenge{Seed: 42, Tier: 1, BiomeSetting: "salt flats", Inhabitants: "glassblowers", TwistConstraint: "no metal"}
	store := canon.NewStore()
	provider := llm.NewMockProvider()

	eng := NewEngine("match-1", core.TeamA, challenge, provider, store, sink)

	pack, err := eng.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	phaseStarted := sink.eventsOfType(core.EventPhaseStarted)
	if len(phaseStarted) != 5 {
		t.Errorf("expected 5 phase_started events, got %d", len(phaseStarted))
	}
	for i, evt := range phaseStarted {
		if got := evt.Data["phase"]; got != i+1 {
			t.Errorf("phase_started[%d] = %v, want %d", i, got, i+1)
		}
	}

	if len(sink.eventsOfType(core.EventCanonInitialized)) != 1 {
		t.Errorf("expected exactly one canon_initialized event")
	}
	if len(sink.eventsOfType(core.EventPromptPackGenerated)) != 1 {
		t.Errorf("expected exactly one prompt_pack_generated event")
	}
	if pack.HeroImage.Prompt == "" {
		t.Errorf("expected a non-empty hero image prompt")
	}

	turnFailed := sink.eventsOfType(core.EventTurnValidationFailed)
	if len(turnFailed) != 0 {
		t.Errorf("expected a clean run with the default mock provider to have no failed turns, got %d", len(turnFailed))
	}

	if store.Hash() == "" {
		t.Errorf("expected a non-empty final canon hash")
	}
}

func TestEngineRunAbandonsProposalOnPersistentProviderError(t *testing.T) {
	ctx := context.Background()
	sink := &memSink{}
	challenge := core.Challenge{Seed: 7, Tier: 1, BiomeSetting: "ice shelf", Inhabitants: "kite herders", TwistConstraint: "no fire"}
	store := canon.NewStore()
	provider := llm.NewMockProvider()

	// Make every call for the first Phase-1 PROPOSAL (Architect) fail with a
	// provider schema-violation error; the engine abandons that turn and
	// records turn_validation_failed.
	key := llm.InjectionKey(core.RoleArchitect, core.TurnProposal, 1, 1)
	provider.Inject(key, llm.Injection{
		Error: &llm.ProviderError{Kind: llm.ErrSchemaViolation, Message: "forced phase-restriction violation for test"},
	})

	eng := NewEngine("match-2", core.TeamA, challenge, provider, store, sink)
	if _, err := eng.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	failed := sink.eventsOfType(core.EventTurnValidationFailed)
	found := false
	for _, e := range failed {
		if e.Data["phase"] == 1 && e.Data["round"] == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a turn_validation_failed for phase 1 round 1, got events: %+v", failed)
	}
}

// TestEngineRunRepairsStructurallyInvalidTurnOnSecondAttempt exercises
// spec.md §8 scenario 4: the first adapter call for a slot returns a
// structurally invalid TurnOutput (missing speaker_role), the second
// attempt returns a valid one. Expected: exactly one turn_emitted for
// that slot, zero turn_validation_failed, and exactly one observable
// adapter retry.
func TestEngineRunRepairsStructurallyInvalidTurnOnSecondAttempt(t *testing.T) {
	ctx := context.Background()
	sink := &memSink{}
	challenge := core.Challenge{Seed: 99, Tier: 1, BiomeSetting: "canyon", Inhabitants: "stilt walkers", TwistConstraint: "no written language"}
	store := canon.NewStore()
	provider := llm.NewMockProvider()

	key := llm.InjectionKey(core.RoleArchitect, core.TurnProposal, 1, 1)
	provider.Inject(key, llm.Injection{MalformedAttempts: 1})

	eng := NewEngine("match-3", core.TeamA, challenge, provider, store, sink)
	if _, err := eng.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := provider.CallCount(key); got != 2 {
		t.Fatalf("expected exactly one adapter retry (2 calls) for %s, got %d", key, got)
	}

	var matchingEmitted []core.MatchEvent
	for _, e := range sink.eventsOfType(core.EventTurnEmitted) {
		if e.Data["phase"] != 1 || e.Data["round"] != 1 {
			continue
		}
		out, ok := e.Data["output"].(core.TurnOutput)
		if ok && out.SpeakerRole == core.RoleArchitect && out.TurnType == core.TurnProposal {
			matchingEmitted = append(matchingEmitted, e)
		}
	}
	if len(matchingEmitted) != 1 {
		t.Fatalf("expected exactly one turn_emitted for the repaired slot, got %d", len(matchingEmitted))
	}

	for _, e := range sink.eventsOfType(core.EventTurnValidationFailed) {
		if e.Data["phase"] == 1 && e.Data["round"] == 1 {
			t.Fatalf("expected no turn_validation_failed for the repaired slot, got %+v", e)
		}
	}
}
