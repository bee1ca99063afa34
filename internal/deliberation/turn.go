package deliberation

import (
	"context"
	"errors"

	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/llm"
	"github.com/wbarena/arena/internal/validate"
)

// turnResult is the outcome of running one turn through the repair loop.
type turnResult struct {
	Output *core.TurnOutput
	TurnID string
}

// runTurn drives one turn spec through the adapter, the validator, and the
// bounded repair loop, then appends the resulting turn_emitted or
// turn_validation_failed event. A provider-layer error (already retried
// exhaustively by the adapter, internal/llm's retrying decorator) is
// treated identically to repair-loop exhaustion: the turn is abandoned
// without further engine-level repair attempts, since the transport layer
// already spent its own retry budget.
func (e *Engine) runTurn(ctx context.Context, spec core.TurnSpec, priorProposer *core.Role) (turnResult, error) {
	var priorOutput *core.TurnOutput
	var errs []string

	for attempt := 0; attempt <= repairBound; attempt++ {
		callSpec := spec
		if attempt > 0 {
			callSpec.Repair = &core.RepairContext{PriorOutput: priorOutput, Errors: errs, Attempt: attempt}
		}

		out, newHandle, _, err := e.Provider.GenerateTurn(ctx, e.handle, callSpec)
		if err != nil {
			var pe *llm.ProviderError
			if errors.As(err, &pe) {
				turnID, appendErr := e.emitTurnFailed(ctx, spec.Phase, spec.Round, []string{pe.Error()})
				return turnResult{TurnID: turnID}, appendErr
			}
			return turnResult{}, err
		}
		e.handle = newHandle

		verrs := validate.Validate(validate.Input{
			Output:            out,
			Spec:              spec,
			Store:             e.Store,
			PriorProposerRole: priorProposer,
		})
		if len(verrs) == 0 {
			turnID, appendErr := e.emitTurn(ctx, spec.Phase, spec.Round, out)
			if appendErr != nil {
				return turnResult{}, appendErr
			}
			return turnResult{Output: &out, TurnID: turnID}, nil
		}

		priorOutput = &out
		errs = verrs
	}

	turnID, appendErr := e.emitTurnFailed(ctx, spec.Phase, spec.Round, errs)
	return turnResult{TurnID: turnID}, appendErr
}
