// Package contracts holds the structural schemas and validators for
// Canon, TurnOutput, MatchEvent, PromptPack, and patch ops (C1). It plays
// the role original_source/apps/api/worldbuild_api/contracts/*.py gives
// to Python's jsonschema + referencing: a single place every other
// component calls to check a value's shape before trusting it.
package contracts

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/wbarena/arena/internal/core"
)

var validate = validator.New()

// Validate runs struct-tag validation over any contract type and returns
// a flat list of human-readable errors, nil if the value is valid.
func Validate(value interface{}) []string {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
	}
	return out
}

// ValidateTurnOutput checks a TurnOutput against its structural contract.
func ValidateTurnOutput(t core.TurnOutput) []string {
	return Validate(t)
}

// ValidateCanon checks a Canon against its structural contract: every
// required field non-empty and exactly three landmarks. The canon store
// runs it on every phase-4 patch. The placeholder canon built by
// canon.Placeholder fills every field, so it already passes this check.
func ValidateCanon(c core.Canon) []string {
	return Validate(c)
}

// ValidatePromptPack checks a PromptPack against its structural contract.
func ValidatePromptPack(p core.PromptPack) []string {
	var errs []string
	errs = append(errs, Validate(p.HeroImage)...)
	for _, l := range p.LandmarkTriptych {
		errs = append(errs, Validate(l)...)
	}
	errs = append(errs, Validate(p.InhabitantPortrait)...)
	errs = append(errs, Validate(p.TensionSnapshot)...)
	return errs
}

// ValidateMatchEvent checks a MatchEvent's structural contract: the fields
// every event must carry regardless of type, before its type-specific
// data is interpreted by a caller.
func ValidateMatchEvent(e core.MatchEvent) []string {
	var errs []string
	if e.MatchID == "" {
		errs = append(errs, "match_id is required")
	}
	if e.Seq <= 0 {
		errs = append(errs, "seq must be positive")
	}
	if e.Type == "" {
		errs = append(errs, "type is required")
	}
	if e.Ts.IsZero() {
		errs = append(errs, "ts is required")
	}
	return errs
}

// ValidatePatch checks that every op in a patch names a supported kind and
// carries the fields RFC-6902 requires for that kind.
func ValidatePatch(patch core.Patch) []string {
	var errs []string
	for i, op := range patch {
		switch op.Op {
		case core.PatchAdd, core.PatchReplace:
			if op.Path == "" {
				errs = append(errs, fmt.Sprintf("op %d: %s requires path", i, op.Op))
			}
		case core.PatchRemove:
			if op.Path == "" {
				errs = append(errs, fmt.Sprintf("op %d: remove requires path", i))
			}
		case core.PatchMove, core.PatchCopy:
			if op.From == "" || op.Path == "" {
				errs = append(errs, fmt.Sprintf("op %d: %s requires from and path", i, op.Op))
			}
		case core.PatchTest:
			if op.Path == "" {
				errs = append(errs, fmt.Sprintf("op %d: test requires path", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("op %d: unsupported op %q", i, op.Op))
		}
	}
	return errs
}
