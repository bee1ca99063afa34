package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/wbarena/arena/internal/core"
)

type fakeStorage struct {
	events map[string][]core.MatchEvent
	seqs   map[string]int64
	match  map[string]*core.Match
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		events: make(map[string][]core.MatchEvent),
		seqs:   make(map[string]int64),
		match:  make(map[string]*core.Match),
	}
}

func (f *fakeStorage) Initialize(ctx context.Context) error { return nil }
func (f *fakeStorage) Close() error                         { return nil }
func (f *fakeStorage) Ping(ctx context.Context) error        { return nil }

func (f *fakeStorage) CreateMatch(ctx context.Context, m *core.Match) error {
	f.match[m.ID] = m
	return nil
}
func (f *fakeStorage) GetMatch(ctx context.Context, matchID string) (*core.Match, error) {
	return f.match[matchID], nil
}
func (f *fakeStorage) UpdateMatchStatus(ctx context.Context, matchID string, status core.MatchStatus, canonHashA, canonHashB, errMsg string) error {
	return nil
}
func (f *fakeStorage) ListMatches(ctx context.Context, limit, offset int) ([]core.MatchSummary, error) {
	return nil, nil
}

func (f *fakeStorage) NextSeq(ctx context.Context, matchID string) (int64, error) {
	f.seqs[matchID]++
	return f.seqs[matchID], nil
}
func (f *fakeStorage) AppendEvent(ctx context.Context, evt core.MatchEvent) error {
	f.events[evt.MatchID] = append(f.events[evt.MatchID], evt)
	return nil
}
func (f *fakeStorage) ListEvents(ctx context.Context, matchID string, afterSeq int64) ([]core.MatchEvent, error) {
	var out []core.MatchEvent
	for _, e := range f.events[matchID] {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStorage) GetBlindMapping(ctx context.Context, matchID string) (map[string]core.TeamID, error) {
	return nil, nil
}
func (f *fakeStorage) SaveBlindMapping(ctx context.Context, matchID string, mapping map[string]core.TeamID) error {
	return nil
}
func (f *fakeStorage) SaveJudgingScore(ctx context.Context, rec core.JudgingScoreRecord, matchID string) error {
	return nil
}
func (f *fakeStorage) ListJudgingScores(ctx context.Context, matchID string) ([]core.JudgingScoreRecord, error) {
	return nil, nil
}

type recordingNotifier struct {
	published []core.MatchEvent
}

func (n *recordingNotifier) Publish(evt core.MatchEvent) {
	n.published = append(n.published, evt)
}

func TestLogAppendPersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	notifier := &recordingNotifier{}
	log := New(fs, notifier)

	seq, err := log.ReserveSeq(ctx, "match-1")
	if err != nil {
		t.Fatalf("reserve seq: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected first seq to be 1, got %d", seq)
	}

	evt := core.MatchEvent{MatchID: "match-1", Seq: seq, Ts: time.Now(), Type: core.EventMatchCreated, Data: map[string]interface{}{}}
	if err := log.Append(ctx, evt); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := log.List(ctx, "match-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
	if len(notifier.published) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.published))
	}
}

func TestLogListOrderingAfterSeq(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	log := New(fs, nil)

	for i := 0; i < 3; i++ {
		seq, _ := log.ReserveSeq(ctx, "match-1")
		_ = log.Append(ctx, core.MatchEvent{MatchID: "match-1", Seq: seq, Type: core.EventTurnEmitted})
	}

	events, err := log.List(ctx, "match-1", 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after seq 1, got %d", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected ordering: %+v", events)
	}
}
