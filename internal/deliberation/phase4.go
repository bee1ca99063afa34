package deliberation

import (
	"context"

	"github.com/wbarena/arena/internal/canon"
	"github.com/wbarena/arena/internal/core"
)

// runPhase4 drives Phase 4 ratification (spec.md §4.4): a single
// proposal/resolution from the SYNTHESIZER emitting the final canon,
// followed by a unanimous-ACCEPT vote from all four roles. One retry of
// the whole round is permitted; a second failure is ErrRatificationFailed.
func (e *Engine) runPhase4(ctx context.Context) error {
	if err := e.emit(ctx, core.EventPhaseStarted, map[string]interface{}{"phase": 4, "round_count": 1}); err != nil {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		ok, err := e.ratificationAttempt(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrRatificationFailed
}

func (e *Engine) ratificationAttempt(ctx context.Context) (bool, error) {
	allowed := canon.AllowedPrefixes(4)
	spec := core.TurnSpec{
		Role: core.RoleSynthesizer, TurnType: core.TurnResolution, Phase: 4, Round: 1,
		AllowedPatchPrefixes: allowed,
	}
	res, err := e.runTurn(ctx, spec, nil)
	if err != nil {
		return false, err
	}
	if res.Output == nil {
		return false, nil
	}

	if len(res.Output.CanonPatch) > 0 {
		before, after, applyErr := e.Store.Apply(res.Output.CanonPatch, 4)
		if applyErr != nil {
			return false, nil
		}
		if err := e.emitPatchApplied(ctx, 4, 1, res.TurnID, res.Output.CanonPatch, before, after); err != nil {
			return false, err
		}
	}

	votes, _, _, err := e.collectVotes(ctx, 4, 1)
	if err != nil {
		return false, err
	}
	tally := map[core.VoteChoice]int{}
	for _, choice := range votes {
		tally[choice]++
	}

	unanimous := tally[core.VoteAccept] == len(core.AllRoles)
	result := core.ResultReject
	if unanimous {
		result = core.ResultAccept
	}
	if err := e.emitVoteResult(ctx, 4, 1, result, tally); err != nil {
		return false, err
	}
	return unanimous, nil
}
