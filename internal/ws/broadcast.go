package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alesut/pixel-agents/internal/log"
	"github.com/alesut/pixel-agents/internal/session"
)

// Message is one event as delivered to a subscriber.
type Message struct {
	Seq   uint64
	Event session.Event
}

// Subscription is one observer's queue. Its channel is closed when the
// subscriber unsubscribes, falls too far behind, or the broadcaster closes.
type Subscription struct {
	ID string

	ch     chan Message
	seq    uint64 // guarded by Broadcaster.mu
	closed bool   // guarded by Broadcaster.mu
}

func (s *Subscription) Events() <-chan Message {
	return s.ch
}

// Broadcaster fans events out to subscribers without ever blocking the
// publisher. Each subscriber has a bounded queue; a subscriber whose queue
// is full is dropped and must subscribe again, which hands it a fresh
// snapshot.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool

	dropLog *rate.Limiter
	dropped int // since the last drop log line, guarded by mu
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		subs:    make(map[*Subscription]struct{}),
		buffer:  buffer,
		dropLog: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Subscribe registers a new subscriber whose first message is a
// resyncSnapshot of snap. Callers must take snap from the same serialized
// context that publishes events, so nothing falls between the snapshot and
// the first live event.
func (b *Broadcaster) Subscribe(snap *session.Snapshot) *Subscription {
	if snap == nil {
		snap = session.NewSnapshot()
	}
	sub := &Subscription{
		ID: uuid.NewString(),
		ch: make(chan Message, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.deliverLocked(sub, session.ResyncEvent(snap))
	log.Debug().Str("subscriber", sub.ID).Int("agents", len(snap.AgentIDs)).Msg("subscriber attached")
	return sub
}

// Resync queues a fresh snapshot to an existing subscriber.
func (b *Broadcaster) Resync(sub *Subscription, snap *session.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	b.deliverLocked(sub, session.ResyncEvent(snap))
}

// Publish delivers ev to every subscriber.
func (b *Broadcaster) Publish(ev session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		b.deliverLocked(sub, ev)
	}
}

// deliverLocked enqueues ev or, if the queue is full, drops the subscriber.
// Caller must hold b.mu.
func (b *Broadcaster) deliverLocked(sub *Subscription, ev session.Event) {
	select {
	case sub.ch <- Message{Seq: sub.seq + 1, Event: ev}:
		sub.seq++
	default:
		b.removeLocked(sub)
		b.dropped++
		if b.dropLog.Allow() {
			log.Warn().
				Str("subscriber", sub.ID).
				Int("dropped", b.dropped).
				Msg("subscriber too slow, disconnecting")
			b.dropped = 0
		}
	}
}

// Unsubscribe removes sub and closes its channel. Safe to call more than
// once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Broadcaster) removeLocked(sub *Subscription) {
	delete(b.subs, sub)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscriber. Later subscriptions are closed at once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		b.removeLocked(sub)
	}
}
