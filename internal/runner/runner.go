// Package runner implements the Match Runner (C9): it creates matches,
// derives their challenge, launches one Deliberation Engine per team, and
// enforces the phase-barrier invariant that both teams finish phase P
// before either begins phase P+1 (spec.md §4.7, §5).
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/wbarena/arena/internal/canon"
	"github.com/wbarena/arena/internal/challenge"
	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/deliberation"
	"github.com/wbarena/arena/internal/eventlog"
	"github.com/wbarena/arena/internal/llm"
	"github.com/wbarena/arena/internal/storage"
)

// Runner owns match creation and pipeline execution.
type Runner struct {
	store    storage.Storage
	log      *eventlog.Log
	provider llm.Provider

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs a Runner. provider is the adapter used for every turn and
// for Phase 5 prompt-pack generation across both teams.
func New(store storage.Storage, log *eventlog.Log, provider llm.Provider) *Runner {
	return &Runner{store: store, log: log, provider: provider, cancels: make(map[string]context.CancelFunc)}
}

// Create allocates a match, persists its record, emits match_created and
// challenge_revealed, and starts the pipeline in the background. It
// returns as soon as the match record is durable; the pipeline runs
// concurrently (spec.md §4.7).
func (r *Runner) Create(ctx context.Context, seed *int64, tier int) (core.MatchSummary, error) {
	matchID := core.NewMatchID()
	resolvedSeed := int64(0)
	if seed != nil {
		resolvedSeed = *seed
	} else {
		resolvedSeed = rand.Int63()
	}

	chal := challenge.Generate(resolvedSeed, tier)
	now := time.Now()
	m := &core.Match{
		ID:        matchID,
		Seed:      resolvedSeed,
		Tier:      tier,
		Status:    core.MatchRunning,
		CreatedAt: now,
		Challenge: &chal,
	}
	if err := r.store.CreateMatch(ctx, m); err != nil {
		return core.MatchSummary{}, fmt.Errorf("create match: %w", err)
	}

	if err := r.emitMatch(ctx, matchID, nil, core.EventMatchCreated, map[string]interface{}{
		"seed": resolvedSeed, "tier": tier,
	}); err != nil {
		return core.MatchSummary{}, fmt.Errorf("emit match_created: %w", err)
	}

	if err := r.emitMatch(ctx, matchID, nil, core.EventChallengeRevealed, map[string]interface{}{
		"biome_setting":    chal.BiomeSetting,
		"inhabitants":      chal.Inhabitants,
		"twist_constraint": chal.TwistConstraint,
	}); err != nil {
		return core.MatchSummary{}, fmt.Errorf("emit challenge_revealed: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[matchID] = cancel
	r.mu.Unlock()

	go r.runPipeline(runCtx, matchID, chal)

	return core.MatchSummary{MatchID: matchID, Status: core.MatchRunning, Seed: resolvedSeed, Tier: tier, CreatedAt: now}, nil
}

// Cancel stops an in-flight match's pipeline; any in-flight provider calls
// are cancelled and the match transitions to match_failed with reason
// "cancelled" (spec.md §5).
func (r *Runner) Cancel(matchID string) {
	r.mu.Lock()
	cancel := r.cancels[matchID]
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runPipeline drives both team engines through phases 1-5 with phase
// barriers, then marks the match completed or failed.
func (r *Runner) runPipeline(ctx context.Context, matchID string, chal core.Challenge) {
	defer func() {
		r.mu.Lock()
		delete(r.cancels, matchID)
		r.mu.Unlock()
	}()

	storeA := canon.NewStore()
	storeB := canon.NewStore()
	engineA := deliberation.NewEngine(matchID, core.TeamA, chal, r.provider, storeA, r.log)
	engineB := deliberation.NewEngine(matchID, core.TeamB, chal, r.provider, storeB, r.log)

	if err := r.barrier(ctx, func(ctx context.Context) error { return engineA.InitCanon(ctx) },
		func(ctx context.Context) error { return engineB.InitCanon(ctx) }); err != nil {
		r.fail(ctx, matchID, err)
		return
	}

	for phase := 1; phase <= 4; phase++ {
		if err := r.barrier(ctx, func(ctx context.Context) error { return engineA.RunPhase(ctx, phase) },
			func(ctx context.Context) error { return engineB.RunPhase(ctx, phase) }); err != nil {
			r.fail(ctx, matchID, err)
			return
		}
	}

	var packA, packB core.PromptPack
	if err := r.barrier(ctx,
		func(ctx context.Context) error {
			pack, err := engineA.RunPhase5(ctx)
			packA = pack
			return err
		},
		func(ctx context.Context) error {
			pack, err := engineB.RunPhase5(ctx)
			packB = pack
			return err
		}); err != nil {
		r.fail(ctx, matchID, err)
		return
	}
	_ = packA
	_ = packB

	hashA, hashB := storeA.Hash(), storeB.Hash()
	if err := r.store.UpdateMatchStatus(ctx, matchID, core.MatchCompleted, hashA, hashB, ""); err != nil {
		slog.Error("failed to persist match completion", "match_id", matchID, "error", err)
	}
	if err := r.emitMatch(ctx, matchID, nil, core.EventMatchCompleted, map[string]interface{}{
		"canon_hash_a": hashA, "canon_hash_b": hashB,
	}); err != nil {
		slog.Error("failed to emit match_completed", "match_id", matchID, "error", err)
	}
}

// barrier runs fnA and fnB concurrently and waits for both. It returns the
// first non-nil error, if any, after both have finished.
func (r *Runner) barrier(ctx context.Context, fnA, fnB func(context.Context) error) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = fnA(ctx) }()
	go func() { defer wg.Done(); errs[1] = fnB(ctx) }()
	wg.Wait()
	if errs[0] != nil {
		return errs[0]
	}
	return errs[1]
}

func (r *Runner) fail(ctx context.Context, matchID string, cause error) {
	reason := cause.Error()
	if ctx.Err() != nil {
		reason = "cancelled"
	}
	if err := r.store.UpdateMatchStatus(context.Background(), matchID, core.MatchFailed, "", "", reason); err != nil {
		slog.Error("failed to persist match failure", "match_id", matchID, "error", err)
	}
	if err := r.emitMatch(context.Background(), matchID, nil, core.EventMatchFailed, map[string]interface{}{
		"error": reason,
	}); err != nil {
		slog.Error("failed to emit match_failed", "match_id", matchID, "error", err)
	}
}

func (r *Runner) emitMatch(ctx context.Context, matchID string, team *core.TeamID, eventType core.MatchEventType, data map[string]interface{}) error {
	seq, err := r.log.ReserveSeq(ctx, matchID)
	if err != nil {
		return err
	}
	evt := core.MatchEvent{
		ID:      core.EventID(matchID, seq),
		Seq:     seq,
		Ts:      time.Now(),
		MatchID: matchID,
		TeamID:  team,
		Type:    eventType,
		Data:    data,
	}
	return r.log.Append(ctx, evt)
}
