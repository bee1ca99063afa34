// Package handlers provides the HTTP/JSON API (spec.md §6): match
// creation and listing, event replay/streaming, artifact retrieval, and
// judging, following internal/config and web/handlers' json/jsonError
// conventions.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/eventlog"
	"github.com/wbarena/arena/internal/hub"
	"github.com/wbarena/arena/internal/judging"
	"github.com/wbarena/arena/internal/runner"
	"github.com/wbarena/arena/internal/storage"
)

// Handler holds dependencies for the HTTP API.
type Handler struct {
	store   storage.Storage
	log     *eventlog.Log
	hub     *hub.Hub
	runner  *runner.Runner
	judging *judging.Store
}

// New constructs a Handler.
func New(store storage.Storage, log *eventlog.Log, h *hub.Hub, r *runner.Runner, j *judging.Store) *Handler {
	return &Handler{store: store, log: log, hub: h, runner: r, judging: j}
}

// RegisterRoutes registers every route on mux using Go 1.22+ pattern
// routing, grounded on web/handlers/handlers.go's RegisterRoutes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /matches", h.handleCreateMatch)
	mux.HandleFunc("GET /matches", h.handleListMatches)
	mux.HandleFunc("GET /matches/{id}", h.handleGetMatch)
	mux.HandleFunc("GET /matches/{id}/events", h.handleMatchEventStream)
	mux.HandleFunc("GET /matches/{id}/artifacts", h.handleMatchArtifacts)
	mux.HandleFunc("GET /matches/{id}/judging/blind", h.handleJudgingBlind)
	mux.HandleFunc("POST /matches/{id}/judging/scores", h.handleSubmitJudgingScore)
	mux.HandleFunc("GET /matches/{id}/judging/scores", h.handleListJudgingScores)
	mux.HandleFunc("GET /matches/{id}/judging/reveal", h.handleJudgingReveal)
	mux.HandleFunc("GET /health", h.handleHealth)
}

type createMatchRequest struct {
	Seed *int64 `json:"seed,omitempty"`
	Tier int    `json:"tier"`
}

func (h *Handler) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Tier < 1 || req.Tier > 3 {
		h.jsonError(w, "tier must be 1, 2, or 3", http.StatusBadRequest)
		return
	}

	summary, err := h.runner.Create(r.Context(), req.Seed, req.Tier)
	if err != nil {
		slog.Error("failed to create match", "error", err)
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.json(w, summary)
}

func (h *Handler) handleListMatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	summaries, err := h.store.ListMatches(r.Context(), limit, offset)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, summaries)
}

func (h *Handler) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := h.store.GetMatch(r.Context(), id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if m == nil {
		h.jsonError(w, "match not found", http.StatusNotFound)
		return
	}

	detail := core.MatchDetail{
		MatchSummary: core.MatchSummary{
			MatchID:     m.ID,
			Status:      m.Status,
			Seed:        m.Seed,
			Tier:        m.Tier,
			CreatedAt:   m.CreatedAt,
			CompletedAt: m.CompletedAt,
			Error:       m.Error,
		},
		Challenge:  m.Challenge,
		CanonHashA: m.CanonHashA,
		CanonHashB: m.CanonHashB,
	}
	h.json(w, detail)
}

// handleMatchEventStream serves /matches/{id}/events?after=N as Server-Sent
// Events: replay then live tail, grounded on web/handlers/streaming.go's
// SSE header and flush pattern, but driven by internal/hub's subscriber
// fan-out instead of polling storage.
func (h *Handler) handleMatchEventStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("streaming unsupported: ResponseWriter does not implement http.Flusher")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.hub.Subscribe(r.Context(), id, after)
	if err != nil {
		slog.Error("failed to subscribe to match events", "match_id", id, "error", err)
		h.sendSSEError(w, flusher, "failed to subscribe")
		return
	}
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case err, ok := <-sub.Errs:
			if ok {
				slog.Warn("match event stream dropped", "match_id", id, "error", err)
			}
			return
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			h.sendSSEEvent(w, flusher, evt)
			if evt.Type == core.EventMatchCompleted || evt.Type == core.EventMatchFailed {
				return
			}
		}
	}
}

func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, evt core.MatchEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("failed to marshal match event", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		return
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return
	}
	flusher.Flush()
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	w.Write([]byte("event: error\ndata: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}

type artifactEntry struct {
	Canon      core.Canon      `json:"canon"`
	PromptPack core.PromptPack `json:"prompt_pack"`
}

func (h *Handler) handleMatchArtifacts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := h.log.List(r.Context(), id, 0)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		h.jsonError(w, "match not found", http.StatusNotFound)
		return
	}

	canonA, hasA, err := eventlog.FoldCanon(events, core.TeamA)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	canonB, hasB, err := eventlog.FoldCanon(events, core.TeamB)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !hasA || !hasB {
		h.jsonError(w, "canon not yet initialized for both teams", http.StatusNotFound)
		return
	}
	packA, hasPackA, err := eventlog.FoldPromptPack(events, core.TeamA)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	packB, hasPackB, err := eventlog.FoldPromptPack(events, core.TeamB)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !hasPackA || !hasPackB {
		h.jsonError(w, "prompt pack not yet generated for both teams", http.StatusNotFound)
		return
	}

	h.json(w, map[string]artifactEntry{
		"team_a": {Canon: canonA, PromptPack: packA},
		"team_b": {Canon: canonB, PromptPack: packB},
	})
}

func (h *Handler) handleJudgingBlind(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := h.log.List(r.Context(), id, 0)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		h.jsonError(w, "match not found", http.StatusNotFound)
		return
	}

	mapping, err := h.judging.BlindMapping(r.Context(), id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	pkg := core.BlindJudgingPackage{}
	for blindID, team := range mapping {
		c, hasCanon, err := eventlog.FoldCanon(events, team)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		pack, hasPack, err := eventlog.FoldPromptPack(events, team)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !hasCanon || !hasPack {
			h.jsonError(w, "match not yet complete enough for judging", http.StatusNotFound)
			return
		}
		pkg.Entries = append(pkg.Entries, core.BlindJudgingEntry{BlindID: blindID, Canon: c, PromptPack: pack})
	}

	h.json(w, pkg)
}

type submitScoreRequest struct {
	Judge   string             `json:"judge"`
	BlindID string             `json:"blind_id"`
	Scores  core.JudgingScores `json:"scores"`
	Notes   string             `json:"notes,omitempty"`
}

func (h *Handler) handleSubmitJudgingScore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req submitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec := core.JudgingScoreRecord{
		Judge:       req.Judge,
		BlindID:     req.BlindID,
		Scores:      req.Scores,
		Notes:       req.Notes,
		SubmittedAt: time.Now(),
	}
	if err := h.judging.SubmitScore(r.Context(), id, rec); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, rec)
}

func (h *Handler) handleListJudgingScores(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	scores, err := h.judging.Scores(r.Context(), id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, scores)
}

func (h *Handler) handleJudgingReveal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mapping, err := h.judging.Reveal(r.Context(), id)
	if err != nil {
		h.jsonError(w, "judging package not yet requested for this match", http.StatusNotFound)
		return
	}
	h.json(w, mapping)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.json(w, map[string]string{"status": "ok"})
}

func (h *Handler) json(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
