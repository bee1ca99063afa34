package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/wbarena/arena/internal/canon"
	"github.com/wbarena/arena/internal/core"
)

// FoldCanon reconstructs one team's current canon document by replaying
// its canon_initialized event followed by every canon_patch_applied event
// in seq order, per spec.md §9's "derived views are computed by folding
// the event log" design note. It returns false if the team has no
// canon_initialized event yet.
func FoldCanon(events []core.MatchEvent, team core.TeamID) (core.Canon, bool, error) {
	var doc map[string]interface{}
	for _, evt := range events {
		if evt.TeamID == nil || *evt.TeamID != team {
			continue
		}
		switch evt.Type {
		case core.EventCanonInitialized:
			canonData, ok := evt.Data["canon"]
			if !ok {
				continue
			}
			m, err := toMap(canonData)
			if err != nil {
				return core.Canon{}, false, fmt.Errorf("decode canon_initialized: %w", err)
			}
			doc = m
		case core.EventCanonPatchApplied:
			if doc == nil {
				continue
			}
			patchData, ok := evt.Data["patch"]
			if !ok {
				continue
			}
			var patch core.Patch
			if err := roundTrip(patchData, &patch); err != nil {
				return core.Canon{}, false, fmt.Errorf("decode canon_patch_applied: %w", err)
			}
			newDoc, err := canon.Apply(doc, patch)
			if err != nil {
				return core.Canon{}, false, fmt.Errorf("replay patch: %w", err)
			}
			doc = newDoc
		}
	}
	if doc == nil {
		return core.Canon{}, false, nil
	}

	var c core.Canon
	if err := roundTrip(doc, &c); err != nil {
		return core.Canon{}, false, fmt.Errorf("decode final canon: %w", err)
	}
	return c, true, nil
}

// FoldPromptPack returns the most recent prompt_pack_generated payload for
// team, if any.
func FoldPromptPack(events []core.MatchEvent, team core.TeamID) (core.PromptPack, bool, error) {
	var found *core.PromptPack
	for _, evt := range events {
		if evt.TeamID == nil || *evt.TeamID != team || evt.Type != core.EventPromptPackGenerated {
			continue
		}
		packData, ok := evt.Data["prompt_pack"]
		if !ok {
			continue
		}
		var pack core.PromptPack
		if err := roundTrip(packData, &pack); err != nil {
			return core.PromptPack{}, false, fmt.Errorf("decode prompt_pack_generated: %w", err)
		}
		found = &pack
	}
	if found == nil {
		return core.PromptPack{}, false, nil
	}
	return *found, true, nil
}

func toMap(v interface{}) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := roundTrip(v, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func roundTrip(v interface{}, out interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
