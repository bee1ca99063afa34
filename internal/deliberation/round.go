package deliberation

import (
	"context"
	"fmt"

	"github.com/wbarena/arena/internal/canon"
	"github.com/wbarena/arena/internal/core"
)

// nextProposer returns the round's proposer, alternating Architect and
// Lorekeeper starting with Architect, and records it so the following
// round (and the validator's alternation rule) see the right prior role.
func (e *Engine) nextProposer() core.Role {
	role := core.RoleArchitect
	if e.lastProposer != nil && *e.lastProposer == core.RoleArchitect {
		role = core.RoleLorekeeper
	}
	e.lastProposer = &role
	return role
}

func otherBuilder(proposer core.Role) core.Role {
	if proposer == core.RoleArchitect {
		return core.RoleLorekeeper
	}
	return core.RoleArchitect
}

// runRound drives one round's substeps (spec.md §4.4): PROPOSAL,
// mandatory OBJECTION, three RESPONSEs in fixed order, RESOLUTION, VOTE
// by all four roles, then vote aggregation. It returns the hint to pass
// to the next round's PROPOSAL (non-empty only after a REJECT).
func (e *Engine) runRound(ctx context.Context, phase, round int, hint string) (string, error) {
	allowed := canon.AllowedPrefixes(phase)
	priorProposer := e.lastProposer
	proposer := e.nextProposer()

	proposalSpec := core.TurnSpec{
		Role: proposer, TurnType: core.TurnProposal, Phase: phase, Round: round,
		AllowedPatchPrefixes: allowed, Hint: hint,
	}
	proposalRes, err := e.runTurn(ctx, proposalSpec, priorProposer)
	if err != nil {
		return "", err
	}

	objectionSpec := core.TurnSpec{Role: core.RoleContrarian, TurnType: core.TurnObjection, Phase: phase, Round: round}
	objectionRes, err := e.runTurn(ctx, objectionSpec, nil)
	if err != nil {
		return "", err
	}

	responseOrder := []core.Role{otherBuilder(proposer), core.RoleContrarian, core.RoleSynthesizer}
	var responseTurnIDs []string
	for _, role := range responseOrder {
		spec := core.TurnSpec{Role: role, TurnType: core.TurnResponse, Phase: phase, Round: round}
		res, err := e.runTurn(ctx, spec, nil)
		if err != nil {
			return "", err
		}
		if res.Output != nil {
			responseTurnIDs = append(responseTurnIDs, res.TurnID)
		}
	}

	refs := collectRefs(proposalRes, objectionRes)
	refs = append(refs, responseTurnIDs...)

	resolutionSpec := core.TurnSpec{
		Role: core.RoleSynthesizer, TurnType: core.TurnResolution, Phase: phase, Round: round,
		AllowedPatchPrefixes: allowed, ExpectedReferences: refs,
	}
	resolutionRes, err := e.runTurn(ctx, resolutionSpec, nil)
	if err != nil {
		return "", err
	}

	if resolutionRes.Output == nil {
		// RESOLUTION failure collapses straight to the DEADLOCK tiebreak path.
		return e.tiebreak(ctx, phase, round, refs, nil)
	}

	votes, amendSummaries, voteTurnIDs, err := e.collectVotes(ctx, phase, round)
	if err != nil {
		return "", err
	}

	result, tally, amendText := tallyVotes(votes, amendSummaries)

	switch result {
	case core.ResultAccept:
		if err := e.applyResolutionPatch(ctx, phase, round, resolutionRes, tally, result); err != nil {
			return "", err
		}
		return "", nil
	case core.ResultAmend:
		_ = amendText // the synthesizer's own resolution patch is the authoritative amendment (spec.md §4.4).
		if err := e.applyResolutionPatch(ctx, phase, round, resolutionRes, tally, result); err != nil {
			return "", err
		}
		return "", nil
	case core.ResultReject:
		if err := e.emitVoteResult(ctx, phase, round, result, tally); err != nil {
			return "", err
		}
		_ = voteTurnIDs
		return fmt.Sprintf("the previous round's resolution was rejected (%s); address that gap directly", resolutionRes.TurnID), nil
	default: // DEADLOCK
		if err := e.emitVoteResult(ctx, phase, round, result, tally); err != nil {
			return "", err
		}
		return e.tiebreak(ctx, phase, round, refs, resolutionRes.Output)
	}
}

func collectRefs(results ...turnResult) []string {
	var refs []string
	for _, r := range results {
		if r.Output != nil {
			refs = append(refs, r.TurnID)
		}
	}
	return refs
}

// applyResolutionPatch applies the synthesizer's resolution patch (if any)
// under the phase's write restrictions and emits canon_patch_applied, then
// emits the round's vote_result.
func (e *Engine) applyResolutionPatch(ctx context.Context, phase, round int, res turnResult, tally map[core.VoteChoice]int, result core.VoteResult) error {
	if err := e.emitVoteResult(ctx, phase, round, result, tally); err != nil {
		return err
	}
	if res.Output == nil || len(res.Output.CanonPatch) == 0 {
		return nil
	}
	before, after, err := e.Store.Apply(res.Output.CanonPatch, phase)
	if err != nil {
		// A resolution whose patch the store rejects degrades to "no
		// mutation this round" rather than failing the match: the vote
		// already landed and is not replayed.
		return nil
	}
	return e.emitPatchApplied(ctx, phase, round, res.TurnID, res.Output.CanonPatch, before, after)
}

// collectVotes runs the VOTE substep for all four roles. A role whose vote
// turn is abandoned after the repair loop is recorded as REJECT (ABSTAIN,
// per spec.md §4.4's parenthetical).
func (e *Engine) collectVotes(ctx context.Context, phase, round int) (map[core.Role]core.VoteChoice, map[core.Role]string, map[core.Role]string, error) {
	votes := make(map[core.Role]core.VoteChoice, len(core.AllRoles))
	amendSummaries := make(map[core.Role]string, len(core.AllRoles))
	turnIDs := make(map[core.Role]string, len(core.AllRoles))
	for _, role := range core.AllRoles {
		spec := core.TurnSpec{Role: role, TurnType: core.TurnVote, Phase: phase, Round: round}
		res, err := e.runTurn(ctx, spec, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		turnIDs[role] = res.TurnID
		if res.Output != nil && res.Output.Vote != nil {
			votes[role] = res.Output.Vote.Choice
			amendSummaries[role] = res.Output.Vote.AmendmentSummary
		} else {
			votes[role] = core.VoteReject
		}
	}
	return votes, amendSummaries, turnIDs, nil
}

// tiebreak invokes a second binding SYNTHESIZER RESOLUTION with
// tiebreak=true after a DEADLOCK (or a failed first resolution), and
// applies its ACCEPT/REJECT decision directly with no further vote.
func (e *Engine) tiebreak(ctx context.Context, phase, round int, refs []string, firstAttempt *core.TurnOutput) (string, error) {
	allowed := canon.AllowedPrefixes(phase)
	spec := core.TurnSpec{
		Role: core.RoleSynthesizer, TurnType: core.TurnResolution, Phase: phase, Round: round,
		AllowedPatchPrefixes: allowed, ExpectedReferences: refs, Tiebreak: true,
	}
	res, err := e.runTurn(ctx, spec, nil)
	if err != nil {
		return "", err
	}

	result := core.ResultReject
	if res.Output != nil && res.Output.Vote != nil && res.Output.Vote.Choice == core.VoteAccept {
		result = core.ResultAccept
	}

	if err := e.emitVoteResult(ctx, phase, round, result, map[core.VoteChoice]int{}); err != nil {
		return "", err
	}
	if result == core.ResultAccept && res.Output != nil && len(res.Output.CanonPatch) > 0 {
		before, after, err := e.Store.Apply(res.Output.CanonPatch, phase)
		if err == nil {
			if err := e.emitPatchApplied(ctx, phase, round, res.TurnID, res.Output.CanonPatch, before, after); err != nil {
				return "", err
			}
		}
	}
	if result == core.ResultReject {
		return "the previous round deadlocked and the tiebreak rejected it; address that gap directly", nil
	}
	return "", nil
}
