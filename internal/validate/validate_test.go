package validate

import (
	"testing"

	"github.com/wbarena/arena/internal/core"
)

type fakeDryRunner struct {
	err error
}

func (f fakeDryRunner) DryRun(patch core.Patch, phase int) error { return f.err }

func baseSpec() core.TurnSpec {
	return core.TurnSpec{Role: core.RoleArchitect, TurnType: core.TurnProposal, Phase: 1, Round: 1}
}

func TestValidateAcceptsWellFormedProposal(t *testing.T) {
	out := core.TurnOutput{
		SpeakerRole: core.RoleArchitect,
		TurnType:    core.TurnProposal,
		Content:     "The Architect proposes naming the settlement after the tide bells that mark each harvest.",
		CanonPatch:  core.Patch{{Op: core.PatchReplace, Path: "/world_name", Value: "Tidebell"}},
	}
	errs := Validate(Input{Output: out, Spec: baseSpec(), Store: fakeDryRunner{}})
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateRejectsRoleMismatch(t *testing.T) {
	out := core.TurnOutput{
		SpeakerRole: core.RoleLorekeeper,
		TurnType:    core.TurnProposal,
		Content:     "a proposal from the wrong speaker",
	}
	errs := Validate(Input{Output: out, Spec: baseSpec(), Store: fakeDryRunner{}})
	if len(errs) == 0 {
		t.Fatal("expected a role-mismatch error")
	}
}

func TestValidateRejectsTrivialResponse(t *testing.T) {
	out := core.TurnOutput{SpeakerRole: core.RoleLorekeeper, TurnType: core.TurnResponse, Content: "agree"}
	spec := core.TurnSpec{Role: core.RoleLorekeeper, TurnType: core.TurnResponse, Phase: 1, Round: 1}
	errs := Validate(Input{Output: out, Spec: spec, Store: fakeDryRunner{}})
	found := false
	for _, e := range errs {
		if e == "RESPONSE is a trivial affirmation with no canon_patch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected trivial-affirmation rejection, got %v", errs)
	}
}

func TestValidateAcceptsResponseWithPatchRegardlessOfLength(t *testing.T) {
	out := core.TurnOutput{
		SpeakerRole: core.RoleLorekeeper,
		TurnType:    core.TurnResponse,
		Content:     "yes",
		CanonPatch:  core.Patch{{Op: core.PatchReplace, Path: "/world_name", Value: "x"}},
	}
	spec := core.TurnSpec{Role: core.RoleLorekeeper, TurnType: core.TurnResponse, Phase: 1, Round: 1}
	errs := Validate(Input{Output: out, Spec: spec, Store: fakeDryRunner{}})
	if len(errs) != 0 {
		t.Fatalf("expected no errors when a canon_patch is present, got %v", errs)
	}
}

func TestValidateRejectsShortObjection(t *testing.T) {
	out := core.TurnOutput{SpeakerRole: core.RoleContrarian, TurnType: core.TurnObjection, Content: "too short"}
	spec := core.TurnSpec{Role: core.RoleContrarian, TurnType: core.TurnObjection, Phase: 1, Round: 1}
	errs := Validate(Input{Output: out, Spec: spec, Store: fakeDryRunner{}})
	if len(errs) == 0 {
		t.Fatal("expected a length rejection")
	}
}

func TestValidateRejectsResolutionWithoutReference(t *testing.T) {
	out := core.TurnOutput{SpeakerRole: core.RoleSynthesizer, TurnType: core.TurnResolution, Content: "this resolves the round"}
	spec := core.TurnSpec{Role: core.RoleSynthesizer, TurnType: core.TurnResolution, Phase: 1, Round: 1}
	errs := Validate(Input{Output: out, Spec: spec, Store: fakeDryRunner{}})
	if len(errs) == 0 {
		t.Fatal("expected a missing-reference rejection")
	}
}

func TestValidateRejectsResolutionNotMentioningReference(t *testing.T) {
	out := core.TurnOutput{
		SpeakerRole: core.RoleSynthesizer, TurnType: core.TurnResolution,
		Content: "this resolves the round cleanly", References: []string{"m1:7"},
	}
	spec := core.TurnSpec{Role: core.RoleSynthesizer, TurnType: core.TurnResolution, Phase: 1, Round: 1}
	errs := Validate(Input{Output: out, Spec: spec, Store: fakeDryRunner{}})
	if len(errs) == 0 {
		t.Fatal("expected content to be required to mention the cited reference")
	}
}

func TestValidateRejectsSameProposerTwiceInARow(t *testing.T) {
	out := core.TurnOutput{
		SpeakerRole: core.RoleArchitect, TurnType: core.TurnProposal,
		Content: "another proposal from the same agent as before",
	}
	prior := core.RoleArchitect
	errs := Validate(Input{Output: out, Spec: baseSpec(), Store: fakeDryRunner{}, PriorProposerRole: &prior})
	if len(errs) == 0 {
		t.Fatal("expected a proposer-alternation rejection")
	}
}

func TestValidateDelegatesPhaseRestrictionToStore(t *testing.T) {
	out := core.TurnOutput{
		SpeakerRole: core.RoleArchitect, TurnType: core.TurnProposal,
		Content:    "a proposal that touches a path the store says is off-limits",
		CanonPatch: core.Patch{{Op: core.PatchReplace, Path: "/tension/conflict", Value: "x"}},
	}
	errs := Validate(Input{Output: out, Spec: baseSpec(), Store: fakeDryRunner{err: errRejectedPhase}})
	if len(errs) == 0 {
		t.Fatal("expected the store's phase rejection to surface")
	}
}

func TestValidateRejectsAmendVoteWithoutSummary(t *testing.T) {
	out := core.TurnOutput{
		SpeakerRole: core.RoleLorekeeper, TurnType: core.TurnVote,
		Content: "voting amend", Vote: &core.Vote{Choice: core.VoteAmend},
	}
	spec := core.TurnSpec{Role: core.RoleLorekeeper, TurnType: core.TurnVote, Phase: 2, Round: 1}
	errs := Validate(Input{Output: out, Spec: spec, Store: fakeDryRunner{}})
	if len(errs) == 0 {
		t.Fatal("expected an amend-without-summary rejection")
	}
}

var errRejectedPhase = fakeRejectError{}

type fakeRejectError struct{}

func (fakeRejectError) Error() string { return "path /tension/conflict not writable in phase 1" }
