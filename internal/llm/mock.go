package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/wbarena/arena/internal/core"
)

// Injection describes a deterministic provider-layer behavior override
// for one (role, turn_type, phase, round) call site, keyed by InjectionKey.
// This is how tests drive the scenarios spec.md §8 names: schema
// violation, timeout, and vote-tally shaping.
type Injection struct {
	// Error, if set, is returned instead of a generated TurnOutput.
	Error *ProviderError
	// ForceVote overrides the vote choice a VOTE turn produces.
	ForceVote core.VoteChoice
	// ForceAmendmentSummary overrides the amendment summary text an AMEND
	// vote carries, so tests can make two amenders share exact text.
	ForceAmendmentSummary string
	// StickyAttempts, if > 0, makes Error fire only for call attempts
	// numbered less than this value (0-indexed), then fall through to
	// normal generation — used to test repair-on-second-attempt.
	StickyAttempts int
	// MalformedAttempts, if > 0, makes the call attempts numbered less
	// than this value (0-indexed) return a structurally invalid
	// TurnOutput (missing speaker_role) instead of an error, so tests can
	// drive the engine's validator-triggered repair loop rather than the
	// adapter's transport-layer retries.
	MalformedAttempts int
}

// InjectionKey builds the fixture key an Injection is registered under.
func InjectionKey(role core.Role, turnType core.TurnType, phase, round int) string {
	return fmt.Sprintf("%s:%s:%d:%d", role, turnType, phase, round)
}

// MockProvider is the mandatory in-tree provider (spec.md §9): it
// produces deterministic fixture output parameterized by (role,
// turn_type, phase, round, attempt) with no network dependency, and
// supports deterministic error injection for tests. Determinism is
// grounded on original_source/apps/api/worldbuild_api/providers/mock.py's
// _stable_rng: canonical-JSON-encode the call parameters, SHA-256 digest,
// take the first 8 bytes as a uint64 seed.
type MockProvider struct {
	mu          sync.Mutex
	injections  map[string]Injection
	callCounter map[string]int
}

// NewMockProvider creates a mock provider with no injections configured.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		injections:  make(map[string]Injection),
		callCounter: make(map[string]int),
	}
}

func (m *MockProvider) Name() string    { return "mock" }
func (m *MockProvider) Available() bool { return true }

// Inject registers a deterministic behavior override for one call site.
func (m *MockProvider) Inject(key string, inj Injection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injections[key] = inj
}

// CallCount reports how many times GenerateTurn has been invoked for the
// given call-site key, so tests can observe adapter-level retries
// directly rather than inferring them from emitted events.
func (m *MockProvider) CallCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounter[key]
}

func (m *MockProvider) StartConversation(ctx context.Context, team core.TeamID, challenge core.Challenge, initialCanon core.Canon) (core.ConversationHandle, error) {
	return core.ConversationHandle{
		Provider: "mock",
		TeamID:   team,
		Data: map[string]interface{}{
			"match_seed": challenge.Seed,
			"team_id":    string(team),
			"challenge":  challenge,
			"turn_count": 0,
		},
	}, nil
}

func (m *MockProvider) GenerateTurn(ctx context.Context, handle core.ConversationHandle, spec core.TurnSpec) (core.TurnOutput, core.ConversationHandle, core.Usage, error) {
	attempt := 0
	if spec.Repair != nil {
		attempt = spec.Repair.Attempt
	}

	key := InjectionKey(spec.Role, spec.TurnType, spec.Phase, spec.Round)
	m.mu.Lock()
	inj, hasInjection := m.injections[key]
	m.callCounter[key]++
	m.mu.Unlock()

	if hasInjection && inj.Error != nil {
		if inj.StickyAttempts <= 0 || attempt < inj.StickyAttempts {
			errCopy := *inj.Error
			errCopy.Provider = "mock"
			return core.TurnOutput{}, handle, core.Usage{}, &errCopy
		}
	}

	seed := stableSeed("mock-llm", handle.Data["match_seed"], handle.TeamID, spec.Phase, spec.Round, spec.Role, spec.TurnType, attempt)
	rng := rand.New(rand.NewSource(int64(seed)))

	teamPrefix := "Azure"
	if handle.TeamID == core.TeamB {
		teamPrefix = "Cinder"
	}

	out := buildTurnOutput(rng, spec, teamPrefix, inj, hasInjection)
	if hasInjection && inj.MalformedAttempts > 0 && attempt < inj.MalformedAttempts {
		// Drop the required speaker_role to fail structural validation
		// (contracts.ValidateTurnOutput's "required" tag) while still
		// returning a successful adapter call, so the engine's own
		// repair loop — not the transport-layer retry — is what's
		// exercised.
		out.SpeakerRole = ""
	}

	newHandle := handle
	newData := make(map[string]interface{}, len(handle.Data))
	for k, v := range handle.Data {
		newData[k] = v
	}
	if n, ok := newData["turn_count"].(int); ok {
		newData["turn_count"] = n + 1
	} else {
		newData["turn_count"] = 1
	}
	newHandle.Data = newData

	return out, newHandle, core.Usage{InputTokens: 120, OutputTokens: 60}, nil
}

// GeneratePromptPack produces a deterministic fixture PromptPack derived
// only from the canon's own content, matching the neutral no-transcript
// call spec.md §4.8 describes.
func (m *MockProvider) GeneratePromptPack(ctx context.Context, c core.Canon) (core.PromptPack, core.Usage, error) {
	seed := stableSeed("mock-prompt-pack", c.WorldName)
	rng := rand.New(rand.NewSource(int64(seed)))

	pack := core.PromptPack{
		HeroImage: core.PromptSpec{
			Title:       "Hero Image",
			Prompt:      fmt.Sprintf("%s, %s, %s, cinematic establishing shot, %s", c.WorldName, c.AestheticMood, c.HeroImageDescription, adjectivePhrase(rng)),
			AspectRatio: "16:9",
		},
		InhabitantPortrait: core.PromptSpec{
			Title:       "Inhabitant Portrait",
			Prompt:      fmt.Sprintf("portrait of an inhabitant of %s: %s, culture: %s", c.WorldName, c.Inhabitants.Appearance, c.Inhabitants.CultureSnapshot),
			AspectRatio: "3:4",
		},
		TensionSnapshot: core.PromptSpec{
			Title:       "Tension Snapshot",
			Prompt:      fmt.Sprintf("a moment of %s in %s, stakes: %s", c.Tension.Conflict, c.WorldName, c.Tension.Stakes),
			AspectRatio: "16:9",
		},
	}
	for i, l := range c.Landmarks {
		if i >= 3 {
			break
		}
		pack.LandmarkTriptych[i] = core.PromptSpec{
			Title:       l.Name,
			Prompt:      fmt.Sprintf("%s: %s, significance: %s", l.Name, l.Description, l.Significance),
			AspectRatio: "4:5",
		}
	}
	return pack, core.Usage{InputTokens: 80, OutputTokens: 40}, nil
}

func buildTurnOutput(rng *rand.Rand, spec core.TurnSpec, teamPrefix string, inj Injection, hasInjection bool) core.TurnOutput {
	switch spec.TurnType {
	case core.TurnProposal:
		return proposalTurn(rng, spec, teamPrefix)
	case core.TurnObjection:
		return objectionTurn(rng, spec, teamPrefix)
	case core.TurnResponse:
		return responseTurn(rng, spec, teamPrefix)
	case core.TurnResolution:
		return resolutionTurn(rng, spec, teamPrefix, inj, hasInjection)
	case core.TurnVote:
		return voteTurn(rng, spec, inj, hasInjection)
	default:
		return core.TurnOutput{SpeakerRole: spec.Role, TurnType: spec.TurnType, Content: "no-op"}
	}
}

func proposalTurn(rng *rand.Rand, spec core.TurnSpec, teamPrefix string) core.TurnOutput {
	var patch core.Patch
	content := fmt.Sprintf("%s proposes a concrete refinement for phase %d, round %d: %s.",
		spec.Role, spec.Phase, spec.Round, adjectivePhrase(rng))
	if spec.Hint != "" {
		content += " " + spec.Hint
	}

	switch firstAllowed(spec.AllowedPatchPrefixes) {
	case "/world_name":
		patch = core.Patch{{Op: core.PatchReplace, Path: "/world_name", Value: fmt.Sprintf("%s %s", teamPrefix, adjectiveWord(rng))}}
	case "/landmarks":
		patch = core.Patch{{Op: core.PatchReplace, Path: "/landmarks/0/name", Value: fmt.Sprintf("The %s Spire", adjectiveWord(rng))}}
	case "/tension":
		patch = core.Patch{{Op: core.PatchReplace, Path: "/tension/conflict", Value: fmt.Sprintf("a dispute over %s", adjectivePhrase(rng))}}
	case "/":
		patch = core.Patch{{Op: core.PatchReplace, Path: "/hero_image_description", Value: fmt.Sprintf("a sweeping view touched by %s", adjectivePhrase(rng))}}
	}

	return core.TurnOutput{
		SpeakerRole: spec.Role,
		TurnType:    core.TurnProposal,
		Content:     content,
		CanonPatch:  patch,
	}
}

func objectionTurn(rng *rand.Rand, spec core.TurnSpec, teamPrefix string) core.TurnOutput {
	content := fmt.Sprintf(
		"This proposal leaves the %s's internal logic underspecified: it does not say how %s interacts with the rest of the setting, which risks contradicting work already committed in earlier phases of the %s deliberation.",
		adjectiveWord(rng), adjectivePhrase(rng), teamPrefix)
	return core.TurnOutput{SpeakerRole: core.RoleContrarian, TurnType: core.TurnObjection, Content: content}
}

func responseTurn(rng *rand.Rand, spec core.TurnSpec, teamPrefix string) core.TurnOutput {
	content := fmt.Sprintf(
		"Addressing that concern directly: the %s's role is load-bearing because %s, and it does not conflict with the %s's established tone; in fact it reinforces the stakes the team already agreed mattered most for this phase of %s's canon.",
		adjectiveWord(rng), adjectivePhrase(rng), adjectivePhrase(rng), teamPrefix)
	return core.TurnOutput{SpeakerRole: spec.Role, TurnType: core.TurnResponse, Content: content}
}

func resolutionTurn(rng *rand.Rand, spec core.TurnSpec, teamPrefix string, inj Injection, hasInjection bool) core.TurnOutput {
	refs := spec.ExpectedReferences
	refMention := "no prior turn"
	if len(refs) > 0 {
		refMention = refs[0]
	}
	tag := "resolves"
	if spec.Tiebreak {
		tag = "tie-breaks"
	}
	content := fmt.Sprintf(
		"Synthesizer %s the round, incorporating %s (ref %s) into a single agreed direction for %s's canon.",
		tag, adjectivePhrase(rng), refMention, teamPrefix)

	var patch core.Patch
	switch firstAllowed(spec.AllowedPatchPrefixes) {
	case "/world_name":
		patch = core.Patch{{Op: core.PatchReplace, Path: "/governing_logic", Value: fmt.Sprintf("governed by %s", adjectivePhrase(rng))}}
	case "/landmarks":
		patch = core.Patch{{Op: core.PatchReplace, Path: "/landmarks/1/description", Value: adjectivePhrase(rng)}}
	case "/tension":
		patch = core.Patch{{Op: core.PatchReplace, Path: "/tension/stakes", Value: adjectivePhrase(rng)}}
	case "/":
		patch = core.Patch{{Op: core.PatchReplace, Path: "/aesthetic_mood", Value: adjectivePhrase(rng)}}
	}

	out := core.TurnOutput{
		SpeakerRole: core.RoleSynthesizer,
		TurnType:    core.TurnResolution,
		Content:     content,
		CanonPatch:  patch,
		References:  []string{refMention},
	}
	if spec.Tiebreak {
		// The tiebreak resolution's decision is binding and must be
		// ACCEPT or REJECT; the mock defaults to ACCEPT unless a test
		// injects a forced choice via ForceVote.
		choice := core.VoteAccept
		if hasInjection && inj.ForceVote != "" {
			choice = inj.ForceVote
		}
		out.Vote = &core.Vote{Choice: choice}
	}
	return out
}

func voteTurn(rng *rand.Rand, spec core.TurnSpec, inj Injection, hasInjection bool) core.TurnOutput {
	choice := core.VoteAccept
	summary := ""
	if hasInjection && inj.ForceVote != "" {
		choice = inj.ForceVote
		if choice == core.VoteAmend {
			summary = inj.ForceAmendmentSummary
			if summary == "" {
				summary = "tighten the wording for consistency"
			}
		}
	}
	return core.TurnOutput{
		SpeakerRole: spec.Role,
		TurnType:    core.TurnVote,
		Content:     fmt.Sprintf("%s votes %s.", spec.Role, choice),
		Vote:        &core.Vote{Choice: choice, AmendmentSummary: summary},
	}
}

func firstAllowed(prefixes []string) string {
	if len(prefixes) == 0 {
		return ""
	}
	return prefixes[0]
}

var adjectives = []string{
	"brine-worn", "half-remembered", "ash-gilded", "tide-bound", "quietly defiant",
	"lantern-lit", "unfinished", "load-bearing", "stubbornly communal", "wind-carved",
}

var nouns = []string{
	"the causeway", "the old foundries", "the migrating roofs", "the salt archives",
	"the second harvest", "the tide bells", "the mapmakers' guild",
}

func adjectiveWord(rng *rand.Rand) string {
	return adjectives[rng.Intn(len(adjectives))]
}

func adjectivePhrase(rng *rand.Rand) string {
	return fmt.Sprintf("%s %s", adjectives[rng.Intn(len(adjectives))], nouns[rng.Intn(len(nouns))])
}

// stableSeed canonically encodes parts and derives a uint64 seed from the
// first 8 bytes of its SHA-256 digest.
func stableSeed(parts ...interface{}) uint64 {
	b, _ := json.Marshal(parts)
	sum := sha256.Sum256(b)
	return binary.BigEndian.Uint64(sum[:8])
}
