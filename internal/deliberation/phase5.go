package deliberation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wbarena/arena/internal/contracts"
	"github.com/wbarena/arena/internal/core"
)

// runPhase5 is the neutral, transcript-free Phase-5 call (spec.md §4.8):
// generate the image-prompt pack from the final validated canon alone and
// emit prompt_pack_generated. A pack that fails structural validation is
// regenerated once before the engine gives up and returns an error.
func (e *Engine) runPhase5(ctx context.Context) (core.PromptPack, error) {
	if err := e.emit(ctx, core.EventPhaseStarted, map[string]interface{}{"phase": 5, "round_count": 1}); err != nil {
		return core.PromptPack{}, err
	}

	finalCanon, err := e.Store.Canon()
	if err != nil {
		return core.PromptPack{}, fmt.Errorf("read final canon: %w", err)
	}

	var pack core.PromptPack
	var packErrs []string
	for attempt := 0; attempt < 2; attempt++ {
		pack, _, err = e.Provider.GeneratePromptPack(ctx, finalCanon)
		if err != nil {
			return core.PromptPack{}, fmt.Errorf("generate prompt pack: %w", err)
		}
		if packErrs = contracts.ValidatePromptPack(pack); len(packErrs) == 0 {
			break
		}
	}
	if len(packErrs) > 0 {
		return core.PromptPack{}, fmt.Errorf("prompt pack failed validation: %s", strings.Join(packErrs, "; "))
	}

	if err := e.emit(ctx, core.EventPromptPackGenerated, map[string]interface{}{"prompt_pack": pack}); err != nil {
		return core.PromptPack{}, err
	}
	return pack, nil
}
