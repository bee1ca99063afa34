// Package hub implements the Match Hub (C8): a per-match subscriber
// registry that fans out newly appended events to live listeners and lets
// a new subscriber replay everything after a given seq before joining the
// live tail, with no gap (spec.md §4.6). Producers are never blocked: a
// subscriber whose buffer fills is dropped with a "slow consumer" signal
// rather than backpressuring the engine that is publishing.
package hub

import (
	"context"
	"sync"

	"github.com/wbarena/arena/internal/core"
	"github.com/wbarena/arena/internal/eventlog"
)

// subscriberBuffer bounds how many events a subscriber can lag behind the
// live tail before it is dropped as a slow consumer.
const subscriberBuffer = 256

// ErrSlowConsumer is sent on Subscription.Errs when a subscriber's buffer
// overflowed; the caller is expected to reconnect with after=lastSeenSeq.
var ErrSlowConsumer = slowConsumerError{}

type slowConsumerError struct{}

func (slowConsumerError) Error() string { return "slow consumer: buffer full, dropped" }

// Subscription is a live view into one match's event stream.
type Subscription struct {
	Events <-chan core.MatchEvent
	Errs   <-chan error

	hub     *Hub
	matchID string
	id      uint64
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.matchID, s.id)
}

type subscriber struct {
	id     uint64
	events chan core.MatchEvent
	errs   chan error
	mu     sync.Mutex
	closed bool
}

func (s *subscriber) deliver(evt core.MatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- evt:
	default:
		s.fail(ErrSlowConsumer)
	}
}

// fail must be called with s.mu held.
func (s *subscriber) fail(err error) {
	if s.closed {
		return
	}
	s.closed = true
	select {
	case s.errs <- err:
	default:
	}
	close(s.events)
}

// Hub fans out events across all matches. One Hub instance serves a process.
type Hub struct {
	log *eventlog.Log

	mu      sync.Mutex
	nextID  uint64
	subs    map[string]map[uint64]*subscriber
}

// New constructs a Hub backed by log for replay on subscribe.
func New(log *eventlog.Log) *Hub {
	return &Hub{log: log, subs: make(map[string]map[uint64]*subscriber)}
}

// Publish is called by internal/eventlog after every durable append; it
// never blocks on a slow subscriber.
func (h *Hub) Publish(evt core.MatchEvent) {
	h.mu.Lock()
	subs := h.subs[evt.MatchID]
	targets := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.deliver(evt)
	}
}

// Subscribe replays every persisted event with seq > afterSeq, then
// delivers newly published events for matchID until the returned
// Subscription is closed or the subscriber is dropped for falling behind.
// The subscriber is registered before replay is read, so an event
// published between registration and the replay read may be delivered
// twice (once via Publish, once via replay); delivery is at-least-once by
// design and callers dedupe by seq, per spec.md §4.6.
func (h *Hub) Subscribe(ctx context.Context, matchID string, afterSeq int64) (*Subscription, error) {
	sub := &subscriber{
		events: make(chan core.MatchEvent, subscriberBuffer),
		errs:   make(chan error, 1),
	}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	if h.subs[matchID] == nil {
		h.subs[matchID] = make(map[uint64]*subscriber)
	}
	h.subs[matchID][sub.id] = sub
	h.mu.Unlock()

	replay, err := h.log.List(ctx, matchID, afterSeq)
	if err != nil {
		h.unsubscribe(matchID, sub.id)
		return nil, err
	}
	for _, evt := range replay {
		sub.deliver(evt)
	}

	return &Subscription{Events: sub.events, Errs: sub.errs, hub: h, matchID: matchID, id: sub.id}, nil
}

func (h *Hub) unsubscribe(matchID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[matchID]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.subs, matchID)
		}
	}
}
