package session

import (
	"reflect"
	"testing"
)

// A view that follows every event from the start must end up equal to a
// view seeded from a snapshot taken at the end.
func TestViewConvergesWithSnapshot(t *testing.T) {
	live := NewView()
	emit := Emitter(live.Apply)

	r := NewRegistry(nil)
	live.Apply(ResyncEvent(r.Snapshot()))

	a, _ := r.Register("/a", true, emit)
	b, _ := r.Register("/b", true, emit)

	a.SetStatus(Active, emit)
	a.StartTool("1", ToolInfo{Name: "shell", StatusText: "Running: go test"}, emit)
	a.StartTool("2", ToolInfo{Name: "apply_patch", StatusText: "Editing files"}, emit)
	b.SetStatus(Active, emit)
	b.StartTool("3", ToolInfo{Name: "open", StatusText: "Reading web content"}, emit)
	a.FinishTool("1", emit)
	b.ClearTools(emit)
	b.SetStatus(Waiting, emit)

	late := NewView()
	late.Apply(ResyncEvent(r.Snapshot()))

	if !reflect.DeepEqual(live.Snapshot(), late.Snapshot()) {
		t.Errorf("live view %+v differs from late view %+v", live.Snapshot(), late.Snapshot())
	}
	if !reflect.DeepEqual(live.Snapshot(), r.Snapshot()) {
		t.Errorf("live view %+v differs from registry %+v", live.Snapshot(), r.Snapshot())
	}
}

func TestViewResyncReplaces(t *testing.T) {
	v := NewView()
	v.Apply(Event{Type: SessionCreated, AgentID: 9})
	v.Apply(Event{Type: ToolStarted, AgentID: 9, ToolID: "a"})

	snap := NewSnapshot()
	snap.AgentIDs = []int{1}
	snap.PerAgent[1] = AgentSnapshot{Status: Active, ActiveTools: []ActiveTool{}}
	v.Apply(ResyncEvent(snap))

	if ids := v.AgentIDs(); !reflect.DeepEqual(ids, []int{1}) {
		t.Errorf("AgentIDs() = %v, want [1]", ids)
	}
	a, ok := v.Agent(1)
	if !ok || a.Status != Active {
		t.Errorf("Agent(1) = %+v, %v", a, ok)
	}
}

func TestViewIgnoresDuplicateToolStart(t *testing.T) {
	v := NewView()
	ev := Event{Type: ToolStarted, AgentID: 1, ToolID: "a", ToolName: "shell"}
	v.Apply(ev)
	v.Apply(ev)
	a, _ := v.Agent(1)
	if len(a.ActiveTools) != 1 {
		t.Errorf("ActiveTools len = %d, want 1", len(a.ActiveTools))
	}
}
