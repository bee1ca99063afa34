// Package llm implements the Provider Adapter (C4): a uniform interface
// over language-model providers, the per-(match,team) conversation
// handle, the structured-output contract, and the mandatory mock
// provider. Retry/backoff/error-taxonomy handling here generalizes
// provider/base.go's BaseProvider.ExecuteCommand from CLI subprocess
// execution to API-style calls.
package llm

import (
	"context"

	"github.com/wbarena/arena/internal/core"
)

// Provider is the uniform interface the Deliberation Engine calls
// through, regardless of which language model backs it.
type Provider interface {
	// Name is the provider's registry identifier (e.g. "mock", "openai").
	Name() string

	// Available reports whether the provider is currently usable
	// (credentials present, reachable, etc).
	Available() bool

	// StartConversation begins a new per-(match,team) dialogue and
	// returns an opaque handle the engine threads through every
	// subsequent GenerateTurn call for that team.
	StartConversation(ctx context.Context, team core.TeamID, challenge core.Challenge, initialCanon core.Canon) (core.ConversationHandle, error)

	// GenerateTurn produces one structured TurnOutput for the given
	// spec, returning the handle updated for the next call.
	GenerateTurn(ctx context.Context, handle core.ConversationHandle, spec core.TurnSpec) (core.TurnOutput, core.ConversationHandle, core.Usage, error)

	// GeneratePromptPack is the neutral Phase-5 call (spec.md §4.8): input
	// is the final validated canon only, with no conversation handle or
	// transcript, producing the image-prompt pack.
	GeneratePromptPack(ctx context.Context, canon core.Canon) (core.PromptPack, core.Usage, error)
}
