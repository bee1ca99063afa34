// Package deliberation implements the Deliberation Engine (C6): the
// per-team finite state machine that drives a team's four fixed agents
// through phases 1-5, invoking the Provider Adapter, the Validator, the
// bounded repair loop, vote aggregation, and canon mutation, emitting
// events for every step along the way.
package deliberation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wbarena/arena/internal/canon"
	"github.com/wbarena/arena/internal/contracts"
	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/llm"
)

// ErrRatificationFailed is returned by Run when Phase 4 fails unanimous
// ACCEPT ratification twice, per spec.md §7's "ratification_failed" kind.
var ErrRatificationFailed = errors.New("ratification_failed")

// repairBound is the number of extra attempts the engine makes after a
// turn fails validation (2 repairs, 3 total calls per turn).
const repairBound = 2

// roundCounts gives the fixed round count for phases 1-3; phase 4 always
// runs exactly one ratification round and is handled separately.
var roundCounts = map[int]int{1: 3, 2: 4, 3: 2}

// Engine drives one team's deliberation through a single match.
type Engine struct {
	MatchID   string
	Team      core.TeamID
	Challenge core.Challenge
	Provider  llm.Provider
	Store     *canon.Store
	Sink      EventSink

	handle       core.ConversationHandle
	lastProposer *core.Role
}

// NewEngine constructs an engine for one team of one match.
func NewEngine(matchID string, team core.TeamID, challenge core.Challenge, provider llm.Provider, store *canon.Store, sink EventSink) *Engine {
	return &Engine{
		MatchID:   matchID,
		Team:      team,
		Challenge: challenge,
		Provider:  provider,
		Store:     store,
		Sink:      sink,
	}
}

// Run drives the team through phases 1-5 to completion. It returns
// ErrRatificationFailed if Phase 4 never achieves unanimous ACCEPT after
// its one permitted repeat; any other non-nil error is a fatal runner-
// level failure (context cancellation, sink I/O failure).
func (e *Engine) Run(ctx context.Context) (core.PromptPack, error) {
	if err := e.initCanon(ctx); err != nil {
		return core.PromptPack{}, fmt.Errorf("init canon: %w", err)
	}

	for phase := 1; phase <= 3; phase++ {
		if err := e.runPhase(ctx, phase); err != nil {
			return core.PromptPack{}, err
		}
	}

	if err := e.runPhase4(ctx); err != nil {
		return core.PromptPack{}, err
	}

	return e.runPhase5(ctx)
}

// InitCanon performs Phase 0 canon initialization on its own, so the Match
// Runner (C9) can barrier it across both teams before starting Phase 1.
func (e *Engine) InitCanon(ctx context.Context) error {
	return e.initCanon(ctx)
}

// RunPhase drives phases 1 through 4 to completion, so the Match Runner
// can run one phase at a time across both teams and barrier between them
// (spec.md §5's phase-barrier invariant). Phase 5 is handled separately by
// RunPhase5 because it returns a PromptPack rather than an error alone.
func (e *Engine) RunPhase(ctx context.Context, phase int) error {
	if phase >= 1 && phase <= 3 {
		return e.runPhase(ctx, phase)
	}
	if phase == 4 {
		return e.runPhase4(ctx)
	}
	return fmt.Errorf("unsupported phase %d for RunPhase", phase)
}

// RunPhase5 runs Phase 5 prompt-pack generation for this team.
func (e *Engine) RunPhase5(ctx context.Context) (core.PromptPack, error) {
	return e.runPhase5(ctx)
}

func (e *Engine) initCanon(ctx context.Context) error {
	placeholder := canon.Placeholder(e.Team, e.Challenge)
	hash, err := e.Store.Init(placeholder)
	if err != nil {
		return err
	}
	handle, err := e.Provider.StartConversation(ctx, e.Team, e.Challenge, placeholder)
	if err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}
	e.handle = handle

	canonMap, err := canonAsMap(placeholder)
	if err != nil {
		return err
	}
	return e.emit(ctx, core.EventCanonInitialized, map[string]interface{}{
		"canon":      canonMap,
		"canon_hash": hash,
	})
}

func (e *Engine) runPhase(ctx context.Context, phase int) error {
	rounds := roundCounts[phase]
	if err := e.emit(ctx, core.EventPhaseStarted, map[string]interface{}{"phase": phase, "round_count": rounds}); err != nil {
		return err
	}
	e.lastProposer = nil

	hint := ""
	for round := 1; round <= rounds; round++ {
		nextHint, err := e.runRound(ctx, phase, round, hint)
		if err != nil {
			return err
		}
		hint = nextHint
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, eventType core.MatchEventType, data map[string]interface{}) error {
	seq, err := e.Sink.ReserveSeq(ctx, e.MatchID)
	if err != nil {
		return fmt.Errorf("reserve seq: %w", err)
	}
	team := e.Team
	evt := core.MatchEvent{
		ID:      core.EventID(e.MatchID, seq),
		Seq:     seq,
		Ts:      time.Now(),
		MatchID: e.MatchID,
		TeamID:  &team,
		Type:    eventType,
		Data:    data,
	}
	if errs := contracts.ValidateMatchEvent(evt); len(errs) > 0 {
		slog.Warn("emitting structurally incomplete event", "match_id", e.MatchID, "team", e.Team, "type", eventType, "errors", errs)
	}
	return e.Sink.Append(ctx, evt)
}

// emitTurn reserves a seq, derives that turn's id from it, and appends a
// turn_emitted event carrying the given output. It returns the turn id so
// later turns in the same round can reference it.
func (e *Engine) emitTurn(ctx context.Context, phase, round int, out core.TurnOutput) (string, error) {
	seq, err := e.Sink.ReserveSeq(ctx, e.MatchID)
	if err != nil {
		return "", fmt.Errorf("reserve seq: %w", err)
	}
	turnID := core.TurnID(e.MatchID, seq)
	team := e.Team
	evt := core.MatchEvent{
		ID:      core.EventID(e.MatchID, seq),
		Seq:     seq,
		Ts:      time.Now(),
		MatchID: e.MatchID,
		TeamID:  &team,
		Type:    core.EventTurnEmitted,
		Data: map[string]interface{}{
			"phase":   phase,
			"round":   round,
			"turn_id": turnID,
			"output":  out,
		},
	}
	return turnID, e.Sink.Append(ctx, evt)
}

// emitTurnFailed reserves a seq for an abandoned turn's record and appends
// turn_validation_failed with the final error list.
func (e *Engine) emitTurnFailed(ctx context.Context, phase, round int, errs []string) (string, error) {
	seq, err := e.Sink.ReserveSeq(ctx, e.MatchID)
	if err != nil {
		return "", fmt.Errorf("reserve seq: %w", err)
	}
	turnID := core.TurnID(e.MatchID, seq)
	team := e.Team
	evt := core.MatchEvent{
		ID:      core.EventID(e.MatchID, seq),
		Seq:     seq,
		Ts:      time.Now(),
		MatchID: e.MatchID,
		TeamID:  &team,
		Type:    core.EventTurnValidationFailed,
		Data: map[string]interface{}{
			"phase":   phase,
			"round":   round,
			"turn_id": turnID,
			"errors":  errs,
		},
	}
	return turnID, e.Sink.Append(ctx, evt)
}

func (e *Engine) emitPatchApplied(ctx context.Context, phase, round int, turnID string, patch core.Patch, before, after string) error {
	return e.emit(ctx, core.EventCanonPatchApplied, map[string]interface{}{
		"phase":             phase,
		"round":             round,
		"turn_id":           turnID,
		"patch":             patch,
		"canon_before_hash": before,
		"canon_after_hash":  after,
	})
}

func (e *Engine) emitVoteResult(ctx context.Context, phase, round int, result core.VoteResult, tally map[core.VoteChoice]int) error {
	return e.emit(ctx, core.EventVoteResult, map[string]interface{}{
		"phase":  phase,
		"round":  round,
		"result": result,
		"tally":  tally,
	})
}

func canonAsMap(c core.Canon) (map[string]interface{}, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
