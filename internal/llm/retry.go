package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/wbarena/arena/internal/core"
)

// DefaultRetryBudget bounds adapter-layer retries: one initial attempt
// plus this many retries, matching the teacher's BaseProvider default of
// 2 retries (3 total attempts).
const DefaultRetryBudget = 2

// retrying wraps a Provider with exponential-backoff retry on the
// taxonomy errors spec.md §4.2 names as retriable, mirroring
// provider/base.go's ExecuteCommand loop.
type retrying struct {
	inner       Provider
	maxRetries  int
	backoffBase time.Duration
}

// WithRetries decorates p with a bounded exponential-backoff retry policy.
func WithRetries(p Provider, maxRetries int) Provider {
	if maxRetries < 0 {
		maxRetries = DefaultRetryBudget
	}
	return &retrying{inner: p, maxRetries: maxRetries, backoffBase: 250 * time.Millisecond}
}

func (r *retrying) Name() string    { return r.inner.Name() }
func (r *retrying) Available() bool { return r.inner.Available() }

func (r *retrying) StartConversation(ctx context.Context, team core.TeamID, challenge core.Challenge, initialCanon core.Canon) (core.ConversationHandle, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 && !r.wait(ctx, attempt) {
			return core.ConversationHandle{}, ctx.Err()
		}
		handle, err := r.inner.StartConversation(ctx, team, challenge, initialCanon)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		if !IsRetriable(err) {
			return core.ConversationHandle{}, err
		}
		slog.Warn("provider start_conversation failed, retrying",
			"provider", r.inner.Name(), "attempt", attempt+1, "error", err)
	}
	return core.ConversationHandle{}, fmt.Errorf("start_conversation exhausted %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retrying) GenerateTurn(ctx context.Context, handle core.ConversationHandle, spec core.TurnSpec) (core.TurnOutput, core.ConversationHandle, core.Usage, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 && !r.wait(ctx, attempt) {
			return core.TurnOutput{}, handle, core.Usage{}, ctx.Err()
		}
		out, newHandle, usage, err := r.inner.GenerateTurn(ctx, handle, spec)
		if err == nil {
			if attempt > 0 {
				slog.Info("generate_turn succeeded after retry", "provider", r.inner.Name(), "attempt", attempt+1)
			}
			return out, newHandle, usage, nil
		}
		lastErr = err
		if !IsRetriable(err) {
			return core.TurnOutput{}, handle, core.Usage{}, err
		}
		slog.Warn("generate_turn failed, retrying",
			"provider", r.inner.Name(), "role", spec.Role, "turn_type", spec.TurnType, "attempt", attempt+1, "error", err)
	}
	return core.TurnOutput{}, handle, core.Usage{}, fmt.Errorf("generate_turn exhausted %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retrying) GeneratePromptPack(ctx context.Context, canon core.Canon) (core.PromptPack, core.Usage, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 && !r.wait(ctx, attempt) {
			return core.PromptPack{}, core.Usage{}, ctx.Err()
		}
		pack, usage, err := r.inner.GeneratePromptPack(ctx, canon)
		if err == nil {
			return pack, usage, nil
		}
		lastErr = err
		if !IsRetriable(err) {
			return core.PromptPack{}, core.Usage{}, err
		}
		slog.Warn("generate_prompt_pack failed, retrying", "provider", r.inner.Name(), "attempt", attempt+1, "error", err)
	}
	return core.PromptPack{}, core.Usage{}, fmt.Errorf("generate_prompt_pack exhausted %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retrying) wait(ctx context.Context, attempt int) bool {
	backoff := time.Duration(math.Pow(2, float64(attempt))) * r.backoffBase
	select {
	case <-time.After(backoff):
		return true
	case <-ctx.Done():
		return false
	}
}
