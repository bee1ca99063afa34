// Package eventlog implements the durable, monotonic, gap-free per-match
// event log (C7). It is a thin layer over internal/storage that satisfies
// internal/deliberation.EventSink and additionally notifies a subscriber
// fan-out (internal/hub) on every successful append, so live streaming and
// durable persistence never drift apart.
package eventlog

import (
	"context"
	"fmt"

	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/storage"
)

// Notifier is implemented by internal/hub; the event log calls it
// synchronously after each durable append so delivery to live subscribers
// can never race ahead of persistence.
type Notifier interface {
	Publish(evt core.MatchEvent)
}

// Log is the append-only event log for all matches, backed by storage.
type Log struct {
	store    storage.Storage
	notifier Notifier
}

// New constructs a Log. notifier may be nil, in which case appends are
// persisted but nothing is published live (useful in tests).
func New(store storage.Storage, notifier Notifier) *Log {
	return &Log{store: store, notifier: notifier}
}

// SetNotifier attaches a notifier after construction, for the common
// construction-order cycle where the hub's replay-on-subscribe needs a
// *Log but the Log's publish-on-append needs the hub.
func (l *Log) SetNotifier(notifier Notifier) {
	l.notifier = notifier
}

// ReserveSeq allocates the next seq for matchID, satisfying
// internal/deliberation.EventSink.
func (l *Log) ReserveSeq(ctx context.Context, matchID string) (int64, error) {
	seq, err := l.store.NextSeq(ctx, matchID)
	if err != nil {
		return 0, fmt.Errorf("reserve seq: %w", err)
	}
	return seq, nil
}

// Append persists evt and, on success, publishes it to live subscribers.
// evt.Seq must already have been assigned by ReserveSeq.
func (l *Log) Append(ctx context.Context, evt core.MatchEvent) error {
	if err := l.store.AppendEvent(ctx, evt); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if l.notifier != nil {
		l.notifier.Publish(evt)
	}
	return nil
}

// List returns every event for matchID with seq strictly greater than
// afterSeq, ordered by seq ascending — spec.md §4.5's list(match_id,
// afterSeq) query, used both for replay and for the artifacts/events API.
func (l *Log) List(ctx context.Context, matchID string, afterSeq int64) ([]core.MatchEvent, error) {
	events, err := l.store.ListEvents(ctx, matchID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Get returns the match summary record, spec.md §4.5's get(match_id) query.
func (l *Log) Get(ctx context.Context, matchID string) (*core.Match, error) {
	m, err := l.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}
