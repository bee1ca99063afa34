// Package validate implements the Validator (C5): the eight discourse
// rules every parsed TurnOutput must satisfy before the Deliberation
// Engine (C6) accepts it and applies its canon_patch. A validator-layer
// rejection here is what drives the engine's bounded repair loop; it is
// distinct from the Provider Adapter's own transport-layer retries
// (internal/llm), which the engine never sees as validation failures.
package validate

import (
	"fmt"
	"strings"

	"github.com/wbarena/arena/internal/contracts"
	"github.com/wbarena/arena/internal/core"
)

// DryRunner is the subset of the Canon Store the Validator needs to check
// phase write restrictions without mutating live canon state.
type DryRunner interface {
	DryRun(patch core.Patch, phase int) error
}

// Input bundles everything the eight rules need to judge one turn.
type Input struct {
	Output core.TurnOutput
	Spec   core.TurnSpec
	Store  DryRunner

	// PriorProposerRole is the speaker_role of the immediately preceding
	// PROPOSAL turn within the same phase, nil if this is the phase's
	// first proposal.
	PriorProposerRole *core.Role
}

var trivialAffirmations = map[string]bool{
	"+1":           true,
	"agree":        true,
	"sounds good":  true,
	"yes":          true,
	"lgtm":         true,
}

// Validate runs all eight rules and returns every violation found; it does
// not short-circuit, so a repair attempt can see the full list at once.
func Validate(in Input) []string {
	var errs []string
	errs = append(errs, ruleSchema(in)...)
	errs = append(errs, ruleRoleTurnTypeConsistency(in)...)
	errs = append(errs, ruleResponseNoPureAgreement(in)...)
	errs = append(errs, ruleObjectionLength(in)...)
	errs = append(errs, ruleResolutionTraceability(in)...)
	errs = append(errs, ruleProposerAlternation(in)...)
	errs = append(errs, rulePhaseWriteRestriction(in)...)
	errs = append(errs, ruleVoteShape(in)...)
	return errs
}

// Rule 1: structural schema conformance.
func ruleSchema(in Input) []string {
	return contracts.ValidateTurnOutput(in.Output)
}

// Rule 2: the turn must actually be the role and turn type the scheduler
// asked for — a provider cannot silently switch roles.
func ruleRoleTurnTypeConsistency(in Input) []string {
	var errs []string
	if in.Output.SpeakerRole != in.Spec.Role {
		errs = append(errs, fmt.Sprintf("speaker_role %s does not match expected role %s", in.Output.SpeakerRole, in.Spec.Role))
	}
	if in.Output.TurnType != in.Spec.TurnType {
		errs = append(errs, fmt.Sprintf("turn_type %s does not match expected turn_type %s", in.Output.TurnType, in.Spec.TurnType))
	}
	return errs
}

// Rule 3: a RESPONSE must either change canon or substantively engage —
// bare agreement ("+1", "agree", ...) with no patch is rejected.
func ruleResponseNoPureAgreement(in Input) []string {
	if in.Output.TurnType != core.TurnResponse {
		return nil
	}
	if len(in.Output.CanonPatch) > 0 {
		return nil
	}
	content := strings.TrimSpace(in.Output.Content)
	if trivialAffirmations[strings.ToLower(content)] {
		return []string{"RESPONSE is a trivial affirmation with no canon_patch"}
	}
	if len(content) < 120 {
		return []string{fmt.Sprintf("RESPONSE without a canon_patch must have content of at least 120 characters, got %d", len(content))}
	}
	return nil
}

// Rule 4: the CONTRARIAN's OBJECTION must raise a substantive concern.
func ruleObjectionLength(in Input) []string {
	if in.Output.TurnType != core.TurnObjection {
		return nil
	}
	if len(strings.TrimSpace(in.Output.Content)) < 80 {
		return []string{fmt.Sprintf("OBJECTION content must be at least 80 characters, got %d", len(in.Output.Content))}
	}
	return nil
}

// Rule 5: the SYNTHESIZER's RESOLUTION must trace back to the turns it
// claims to resolve.
func ruleResolutionTraceability(in Input) []string {
	if in.Output.TurnType != core.TurnResolution {
		return nil
	}
	var errs []string
	if len(in.Output.References) == 0 {
		errs = append(errs, "RESOLUTION must cite at least one reference")
		return errs
	}
	lowered := strings.ToLower(in.Output.Content)
	mentioned := false
	for _, ref := range in.Output.References {
		if ref != "" && strings.Contains(lowered, strings.ToLower(ref)) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		errs = append(errs, "RESOLUTION content does not mention any cited reference id")
	}
	return errs
}

// Rule 6: within one phase, consecutive PROPOSAL turns must come from
// different roles — the same agent cannot propose twice in a row.
func ruleProposerAlternation(in Input) []string {
	if in.Output.TurnType != core.TurnProposal {
		return nil
	}
	if in.PriorProposerRole != nil && *in.PriorProposerRole == in.Output.SpeakerRole {
		return []string{fmt.Sprintf("role %s proposed twice in a row within the same phase", in.Output.SpeakerRole)}
	}
	return nil
}

// Rule 7: delegate phase write-restriction enforcement to the Canon Store
// so the allowed-path logic lives in exactly one place.
func rulePhaseWriteRestriction(in Input) []string {
	if len(in.Output.CanonPatch) == 0 || in.Store == nil {
		return nil
	}
	if err := in.Store.DryRun(in.Output.CanonPatch, in.Spec.Phase); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// Rule 8: a VOTE must carry a choice, and an AMEND vote must explain what
// it wants amended.
func ruleVoteShape(in Input) []string {
	if in.Output.TurnType != core.TurnVote {
		return nil
	}
	if in.Output.Vote == nil {
		return []string{"VOTE turn is missing a vote"}
	}
	var errs []string
	switch in.Output.Vote.Choice {
	case core.VoteAccept, core.VoteAmend, core.VoteReject:
	default:
		errs = append(errs, fmt.Sprintf("vote choice %q is not one of ACCEPT, AMEND, REJECT", in.Output.Vote.Choice))
	}
	if in.Output.Vote.Choice == core.VoteAmend && strings.TrimSpace(in.Output.Vote.AmendmentSummary) == "" {
		errs = append(errs, "AMEND vote requires a non-empty amendment_summary")
	}
	return errs
}
