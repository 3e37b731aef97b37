package ws

import (
	"testing"

	"github.com/alesut/pixel-agents/internal/session"
)

func recv(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	default:
		t.Fatal("no message queued")
		return Message{}
	}
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	b := NewBroadcaster(8)
	snap := session.NewSnapshot()
	snap.AgentIDs = []int{1}
	snap.PerAgent[1] = session.AgentSnapshot{Status: session.Active, ActiveTools: []session.ActiveTool{}}

	sub := b.Subscribe(snap)
	b.Publish(session.Event{Type: session.ToolsCleared, AgentID: 1})

	first := recv(t, sub)
	if first.Seq != 1 || first.Event.Type != session.ResyncSnapshot {
		t.Fatalf("first message = %+v, want resync with seq 1", first)
	}
	if first.Event.Snapshot != snap {
		t.Errorf("snapshot not passed through")
	}

	second := recv(t, sub)
	if second.Seq != 2 || second.Event.Type != session.ToolsCleared {
		t.Errorf("second message = %+v, want toolsCleared with seq 2", second)
	}
}

func TestSubscribeNilSnapshot(t *testing.T) {
	b := NewBroadcaster(8)
	sub := b.Subscribe(nil)

	msg := recv(t, sub)
	if msg.Event.Snapshot == nil || msg.Event.Snapshot.AgentIDs == nil || msg.Event.Snapshot.PerAgent == nil {
		t.Fatalf("expected empty non-nil snapshot, got %+v", msg.Event.Snapshot)
	}
}

func TestPublishFansOut(t *testing.T) {
	b := NewBroadcaster(8)
	a := b.Subscribe(nil)
	c := b.Subscribe(nil)
	recv(t, a)
	recv(t, c)

	ev := session.Event{Type: session.StatusChanged, AgentID: 3, Status: session.Active}
	b.Publish(ev)

	for _, sub := range []*Subscription{a, c} {
		if got := recv(t, sub); got.Event != ev {
			t.Errorf("subscriber %s got %+v", sub.ID, got.Event)
		}
	}
	if a.ID == c.ID {
		t.Error("subscription IDs should be unique")
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster(2)
	slow := b.Subscribe(nil) // snapshot occupies one slot
	fast := b.Subscribe(nil)
	recv(t, fast)

	b.Publish(session.Event{Type: session.SessionCreated, AgentID: 1})
	recv(t, fast)
	b.Publish(session.Event{Type: session.SessionCreated, AgentID: 2})
	recv(t, fast)

	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	// The queued messages are still readable, then the channel is closed.
	n := 0
	for range slow.Events() {
		n++
	}
	if n != 2 {
		t.Errorf("slow subscriber drained %d messages, want 2", n)
	}

	// The survivor keeps receiving.
	b.Publish(session.Event{Type: session.SessionCreated, AgentID: 3})
	if got := recv(t, fast); got.Event.AgentID != 3 {
		t.Errorf("fast subscriber got %+v", got.Event)
	}
}

func TestResync(t *testing.T) {
	b := NewBroadcaster(8)
	sub := b.Subscribe(nil)
	recv(t, sub)

	snap := session.NewSnapshot()
	snap.AgentIDs = []int{4}
	b.Resync(sub, snap)

	msg := recv(t, sub)
	if msg.Seq != 2 || msg.Event.Type != session.ResyncSnapshot || msg.Event.Snapshot != snap {
		t.Errorf("resync message = %+v", msg)
	}

	b.Unsubscribe(sub)
	b.Resync(sub, snap) // no-op, no panic
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(8)
	sub := b.Subscribe(nil)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", b.SubscriberCount())
	}
	recv(t, sub)
	if _, ok := <-sub.Events(); ok {
		t.Error("channel should be closed")
	}
}

func TestCloseDropsEveryone(t *testing.T) {
	b := NewBroadcaster(8)
	sub := b.Subscribe(nil)
	recv(t, sub)

	b.Close()
	if _, ok := <-sub.Events(); ok {
		t.Error("channel should be closed after Close")
	}
	b.Publish(session.Event{Type: session.SessionCreated, AgentID: 1})

	late := b.Subscribe(nil)
	if _, ok := <-late.Events(); ok {
		t.Error("subscription after Close should be closed")
	}
	b.Unsubscribe(late)
}
