package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/eventlog"
	"github.com/wbarena/arena/internal/hub"
	"github.com/wbarena/arena/internal/judging"
	"github.com/wbarena/arena/internal/llm"
	"github.com/wbarena/arena/internal/runner"
	"github.com/wbarena/arena/internal/storage"
)

func setupTestHandler(t *testing.T) (*Handler, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "wbarena-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	store, err := storage.NewSQLiteStorage(tmpDir + "/test.db")
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}
	if err := store.Initialize(context.Background()); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to initialize storage: %v", err)
	}

	log := eventlog.New(store, nil)
	h := hub.New(log)
	log.SetNotifier(h)
	provider := llm.NewMockProvider()
	r := runner.New(store, log, provider)
	j := judging.New(store)

	handler := New(store, log, h, r, j)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return handler, cleanup
}

func TestHandleHealth(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %+v", body)
	}
}

func TestHandleCreateAndGetMatch(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/matches", strings.NewReader(`{"seed": 42, "tier": 1}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary core.MatchSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.MatchID == "" {
		t.Fatal("expected a match id")
	}
	if summary.Seed != 42 {
		t.Errorf("expected seed 42, got %d", summary.Seed)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/matches/"+summary.MatchID, nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
	var detail core.MatchDetail
	if err := json.Unmarshal(getRec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.MatchID != summary.MatchID {
		t.Errorf("match id mismatch: got %s, want %s", detail.MatchID, summary.MatchID)
	}
}

func TestHandleCreateMatchRejectsInvalidTier(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/matches", strings.NewReader(`{"tier": 9}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetMatchNotFound(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/matches/does-not-exist", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleArtifactsWaitsForCompletion(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	createReq := httptest.NewRequest(http.MethodPost, "/matches", strings.NewReader(`{"seed": 7, "tier": 1}`))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)

	var summary core.MatchSummary
	if err := json.Unmarshal(createRec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	var artifactsRec *httptest.ResponseRecorder
	for time.Now().Before(deadline) {
		artifactsReq := httptest.NewRequest(http.MethodGet, "/matches/"+summary.MatchID+"/artifacts", nil)
		artifactsRec = httptest.NewRecorder()
		mux.ServeHTTP(artifactsRec, artifactsReq)
		if artifactsRec.Code == http.StatusOK {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if artifactsRec.Code != http.StatusOK {
		t.Fatalf("expected artifacts to eventually be available, last code %d: %s", artifactsRec.Code, artifactsRec.Body.String())
	}

	var artifacts map[string]artifactEntry
	if err := json.Unmarshal(artifactsRec.Body.Bytes(), &artifacts); err != nil {
		t.Fatalf("decode artifacts: %v", err)
	}
	if artifacts["team_a"].Canon.WorldName == "" {
		t.Error("expected team_a canon to have a world name")
	}
	if artifacts["team_b"].PromptPack.HeroImage.Prompt == "" {
		t.Error("expected team_b prompt pack to have a hero image prompt")
	}
}
