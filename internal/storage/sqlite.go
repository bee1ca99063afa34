package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wbarena/arena/internal/core"
)

// SQLiteStorage implements Storage using SQLite (spec.md §6's matches /
// events / judging_scores / blind_mapping tables), grounded on
// internal/storage/sqlite.go's database/sql + go-sqlite3 pattern.
type SQLiteStorage struct {
	db   *sql.DB
	path string

	seqMu   sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewSQLiteStorage opens (creating if needed) the SQLite database at path.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *SQLiteStorage) Initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		tier INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		challenge_json TEXT,
		canon_hash_a TEXT,
		canon_hash_b TEXT,
		error TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME,
		seq_counter INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		match_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		ts DATETIME NOT NULL,
		team_id TEXT,
		type TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (match_id, seq),
		FOREIGN KEY (match_id) REFERENCES matches(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS judging_scores (
		match_id TEXT NOT NULL,
		judge TEXT NOT NULL,
		blind_id TEXT NOT NULL,
		narrative INTEGER NOT NULL,
		visual INTEGER NOT NULL,
		originality INTEGER NOT NULL,
		coherence INTEGER NOT NULL,
		feasibility INTEGER NOT NULL,
		notes TEXT,
		submitted_at DATETIME NOT NULL,
		PRIMARY KEY (match_id, judge, blind_id),
		FOREIGN KEY (match_id) REFERENCES matches(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS blind_mapping (
		match_id TEXT PRIMARY KEY,
		world1_team TEXT NOT NULL,
		world2_team TEXT NOT NULL,
		FOREIGN KEY (match_id) REFERENCES matches(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_matches_created_at ON matches(created_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error { return s.db.Close() }

func (s *SQLiteStorage) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStorage) CreateMatch(ctx context.Context, m *core.Match) error {
	challengeJSON, err := json.Marshal(m.Challenge)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matches (id, seed, tier, status, challenge_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Seed, m.Tier, m.Status, string(challengeJSON), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetMatch(ctx context.Context, matchID string) (*core.Match, error) {
	var m core.Match
	var challengeJSON sql.NullString
	var canonHashA, canonHashB, errMsg sql.NullString
	var completedAt sql.NullTime

	row := s.db.QueryRowContext(ctx, `
		SELECT id, seed, tier, status, challenge_json, canon_hash_a, canon_hash_b, error, created_at, completed_at
		FROM matches WHERE id = ?`, matchID)
	if err := row.Scan(&m.ID, &m.Seed, &m.Tier, &m.Status, &challengeJSON, &canonHashA, &canonHashB, &errMsg, &m.CreatedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get match: %w", err)
	}

	if challengeJSON.Valid && challengeJSON.String != "" && challengeJSON.String != "null" {
		var c core.Challenge
		if err := json.Unmarshal([]byte(challengeJSON.String), &c); err != nil {
			return nil, fmt.Errorf("unmarshal challenge: %w", err)
		}
		m.Challenge = &c
	}
	m.CanonHashA = canonHashA.String
	m.CanonHashB = canonHashB.String
	m.Error = errMsg.String
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	return &m, nil
}

func (s *SQLiteStorage) UpdateMatchStatus(ctx context.Context, matchID string, status core.MatchStatus, canonHashA, canonHashB, errMsg string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE matches SET status = ?, canon_hash_a = ?, canon_hash_b = ?, error = ?, completed_at = ?
		WHERE id = ?`, status, canonHashA, canonHashB, errMsg, now, matchID)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListMatches(ctx context.Context, limit, offset int) ([]core.MatchSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, seed, tier, created_at, completed_at, error
		FROM matches ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []core.MatchSummary
	for rows.Next() {
		var sum core.MatchSummary
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&sum.MatchID, &sum.Status, &sum.Seed, &sum.Tier, &sum.CreatedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("scan match summary: %w", err)
		}
		if completedAt.Valid {
			sum.CompletedAt = &completedAt.Time
		}
		sum.Error = errMsg.String
		out = append(out, sum)
	}
	return out, nil
}

// NextSeq atomically allocates the next seq for matchID. SQLite serializes
// writers at the connection/driver level, but a per-match in-process mutex
// additionally guarantees the read-modify-write below is not interleaved
// by two goroutines on the same process, matching spec.md §4.5's
// single-writer-per-match rule.
func (s *SQLiteStorage) NextSeq(ctx context.Context, matchID string) (int64, error) {
	lock := s.matchLock(matchID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE matches SET seq_counter = seq_counter + 1 WHERE id = ?`, matchID); err != nil {
		return 0, fmt.Errorf("increment seq_counter: %w", err)
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT seq_counter FROM matches WHERE id = ?`, matchID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read seq_counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seq allocation: %w", err)
	}
	return seq, nil
}

func (s *SQLiteStorage) matchLock(matchID string) *sync.Mutex {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	l, ok := s.locks[matchID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[matchID] = l
	}
	return l
}

func (s *SQLiteStorage) AppendEvent(ctx context.Context, evt core.MatchEvent) error {
	dataJSON, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	var teamID sql.NullString
	if evt.TeamID != nil {
		teamID = sql.NullString{String: string(*evt.TeamID), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (match_id, seq, id, ts, team_id, type, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.MatchID, evt.Seq, evt.ID, evt.Ts, teamID, evt.Type, string(dataJSON))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListEvents(ctx context.Context, matchID string, afterSeq int64) ([]core.MatchEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, seq, id, ts, team_id, type, data
		FROM events WHERE match_id = ? AND seq > ? ORDER BY seq ASC`, matchID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []core.MatchEvent
	for rows.Next() {
		var evt core.MatchEvent
		var teamID sql.NullString
		var dataJSON string
		if err := rows.Scan(&evt.MatchID, &evt.Seq, &evt.ID, &evt.Ts, &teamID, &evt.Type, &dataJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if teamID.Valid {
			t := core.TeamID(teamID.String)
			evt.TeamID = &t
		}
		if err := json.Unmarshal([]byte(dataJSON), &evt.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		out = append(out, evt)
	}
	return out, nil
}

func (s *SQLiteStorage) GetBlindMapping(ctx context.Context, matchID string) (map[string]core.TeamID, error) {
	var world1, world2 string
	err := s.db.QueryRowContext(ctx, `SELECT world1_team, world2_team FROM blind_mapping WHERE match_id = ?`, matchID).Scan(&world1, &world2)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get blind mapping: %w", err)
	}
	return map[string]core.TeamID{"WORLD-1": core.TeamID(world1), "WORLD-2": core.TeamID(world2)}, nil
}

func (s *SQLiteStorage) SaveBlindMapping(ctx context.Context, matchID string, mapping map[string]core.TeamID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blind_mapping (match_id, world1_team, world2_team) VALUES (?, ?, ?)
		ON CONFLICT(match_id) DO NOTHING`,
		matchID, string(mapping["WORLD-1"]), string(mapping["WORLD-2"]))
	if err != nil {
		return fmt.Errorf("save blind mapping: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveJudgingScore(ctx context.Context, rec core.JudgingScoreRecord, matchID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO judging_scores (match_id, judge, blind_id, narrative, visual, originality, coherence, feasibility, notes, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id, judge, blind_id) DO UPDATE SET
			narrative=excluded.narrative, visual=excluded.visual, originality=excluded.originality,
			coherence=excluded.coherence, feasibility=excluded.feasibility, notes=excluded.notes,
			submitted_at=excluded.submitted_at`,
		matchID, rec.Judge, rec.BlindID, rec.Scores.Narrative, rec.Scores.Visual, rec.Scores.Originality,
		rec.Scores.Coherence, rec.Scores.Feasibility, rec.Notes, rec.SubmittedAt)
	if err != nil {
		return fmt.Errorf("save judging score: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListJudgingScores(ctx context.Context, matchID string) ([]core.JudgingScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT judge, blind_id, narrative, visual, originality, coherence, feasibility, notes, submitted_at
		FROM judging_scores WHERE match_id = ?`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list judging scores: %w", err)
	}
	defer rows.Close()

	var out []core.JudgingScoreRecord
	for rows.Next() {
		var rec core.JudgingScoreRecord
		var notes sql.NullString
		if err := rows.Scan(&rec.Judge, &rec.BlindID, &rec.Scores.Narrative, &rec.Scores.Visual,
			&rec.Scores.Originality, &rec.Scores.Coherence, &rec.Scores.Feasibility, &notes, &rec.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan judging score: %w", err)
		}
		rec.Notes = notes.String
		out = append(out, rec)
	}
	return out, nil
}

// DefaultDBPath returns the default database path, overridden in practice
// by the WBA_DB_PATH environment variable (internal/config).
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wbarena.db"
	}
	return filepath.Join(home, ".wbarena", "wbarena.db")
}
