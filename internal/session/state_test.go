package session

import (
	"encoding/json"
	"testing"
)

type recorder struct {
	events []Event
}

func (r *recorder) emit(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func equalTypes(a, b []EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStatusMarshalJSON(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{Waiting, `"waiting"`},
		{Active, `"active"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.status)
		if err != nil {
			t.Errorf("Marshal(%v) error: %v", tt.status, err)
			continue
		}
		if string(data) != tt.expected {
			t.Errorf("Marshal(%v) = %s, want %s", tt.status, data, tt.expected)
		}
	}
}

func TestStatusUnmarshalJSON(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`"active"`), &s); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if s != Active {
		t.Errorf("Unmarshal = %v, want active", s)
	}
	if err := json.Unmarshal([]byte(`"sleeping"`), &s); err == nil {
		t.Error("Unmarshal of unknown status should fail")
	}
}

func TestNewSessionStateIsWaiting(t *testing.T) {
	s := NewSessionState("/tmp/a.jsonl", 3)
	if s.Status != Waiting {
		t.Errorf("Status = %v, want waiting", s.Status)
	}
	if s.ToolCount() != 0 {
		t.Errorf("ToolCount() = %d, want 0", s.ToolCount())
	}
	if s.AgentID != 3 || s.Path != "/tmp/a.jsonl" {
		t.Errorf("unexpected identity: %+v", s)
	}
}

func TestStartToolDuplicate(t *testing.T) {
	s := NewSessionState("p", 1)
	var r recorder

	if !s.StartTool("c1", ToolInfo{Name: "exec_command", StatusText: "Running: ls"}, r.emit) {
		t.Fatal("first StartTool returned false")
	}
	if s.StartTool("c1", ToolInfo{Name: "other", StatusText: "x"}, r.emit) {
		t.Error("duplicate StartTool returned true")
	}
	if len(r.events) != 1 {
		t.Fatalf("got %d events, want 1", len(r.events))
	}
	ev := r.events[0]
	if ev.Type != ToolStarted || ev.ToolID != "c1" || ev.StatusText != "Running: ls" || ev.ToolName != "exec_command" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if tools := s.ActiveTools(); tools[0].Name != "exec_command" {
		t.Errorf("duplicate start overwrote tool info: %+v", tools[0])
	}
}

func TestFinishToolUnknown(t *testing.T) {
	s := NewSessionState("p", 1)
	var r recorder
	if s.FinishTool("missing", r.emit) {
		t.Error("FinishTool on unknown id returned true")
	}
	if len(r.events) != 0 {
		t.Errorf("got %d events, want 0", len(r.events))
	}
}

func TestActiveToolsOrder(t *testing.T) {
	s := NewSessionState("p", 1)
	for _, id := range []string{"a", "b", "c", "d"} {
		s.StartTool(id, ToolInfo{Name: id}, nil)
	}
	s.FinishTool("b", nil)

	got := s.ActiveTools()
	want := []string{"a", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("ActiveTools() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ToolID != want[i] {
			t.Errorf("ActiveTools()[%d] = %s, want %s", i, got[i].ToolID, want[i])
		}
	}
}

func TestClearToolsOnlyEmitsWhenNonEmpty(t *testing.T) {
	s := NewSessionState("p", 1)
	var r recorder

	if s.ClearTools(r.emit) {
		t.Error("ClearTools on empty set returned true")
	}
	s.StartTool("a", ToolInfo{}, nil)
	if !s.ClearTools(r.emit) {
		t.Error("ClearTools on non-empty set returned false")
	}
	if !equalTypes(r.types(), []EventType{ToolsCleared}) {
		t.Errorf("events = %v, want [toolsCleared]", r.types())
	}
	if s.HasTool("a") {
		t.Error("tool survived ClearTools")
	}
}

func TestSetStatusTransitionGated(t *testing.T) {
	s := NewSessionState("p", 1)
	var r recorder

	s.SetStatus(Waiting, r.emit)
	s.SetStatus(Active, r.emit)
	s.SetStatus(Active, r.emit)
	s.SetStatus(Waiting, r.emit)

	if !equalTypes(r.types(), []EventType{StatusChanged, StatusChanged}) {
		t.Fatalf("events = %v, want two statusChanged", r.types())
	}
	if r.events[0].Status != Active || r.events[1].Status != Waiting {
		t.Errorf("statuses = %v, %v", r.events[0].Status, r.events[1].Status)
	}
}

func TestReset(t *testing.T) {
	s := NewSessionState("p", 1)
	s.Offset = 120
	s.Partial = []byte(`{"type":`)
	s.StartTool("a", ToolInfo{}, nil)
	s.SetStatus(Active, nil)

	var r recorder
	s.Reset(r.emit)

	if s.Offset != 0 || s.Partial != nil {
		t.Errorf("Offset=%d Partial=%q, want 0 and nil", s.Offset, s.Partial)
	}
	if s.Status != Waiting || s.ToolCount() != 0 {
		t.Errorf("Status=%v tools=%d after Reset", s.Status, s.ToolCount())
	}
	if !equalTypes(r.types(), []EventType{ToolsCleared, StatusChanged}) {
		t.Errorf("events = %v, want [toolsCleared statusChanged]", r.types())
	}

	// A reset of an already idle state is silent.
	r.events = nil
	s.Reset(r.emit)
	if len(r.events) != 0 {
		t.Errorf("idle Reset emitted %v", r.types())
	}
}

func TestAnnounce(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*SessionState)
		want  []EventType
	}{
		{
			name:  "waiting",
			setup: func(*SessionState) {},
			want:  []EventType{SessionCreated},
		},
		{
			name:  "active without tools",
			setup: func(s *SessionState) { s.SetStatus(Active, nil) },
			want:  []EventType{SessionCreated, StatusChanged},
		},
		{
			name: "active with tools",
			setup: func(s *SessionState) {
				s.StartTool("a", ToolInfo{Name: "x"}, nil)
				s.StartTool("b", ToolInfo{Name: "y"}, nil)
				s.SetStatus(Active, nil)
			},
			want: []EventType{SessionCreated, StatusChanged, ToolStarted, ToolStarted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSessionState("p", 7)
			tt.setup(s)
			var r recorder
			s.Announce(r.emit)
			if !equalTypes(r.types(), tt.want) {
				t.Errorf("events = %v, want %v", r.types(), tt.want)
			}
			for _, ev := range r.events {
				if ev.AgentID != 7 {
					t.Errorf("event %s has AgentID %d, want 7", ev.Type, ev.AgentID)
				}
			}
		})
	}
}

func TestNilEmitterIsSilent(t *testing.T) {
	s := NewSessionState("p", 1)
	s.StartTool("a", ToolInfo{}, nil)
	s.SetStatus(Active, nil)
	s.FinishTool("a", nil)
	s.Announce(nil)
}

func TestSnapshotJSON(t *testing.T) {
	s := NewSessionState("p", 2)
	s.StartTool("call_1", ToolInfo{Name: "apply_patch", StatusText: "Editing files"}, nil)
	s.SetStatus(Active, nil)

	snap := NewSnapshot()
	snap.AgentIDs = append(snap.AgentIDs, 2)
	snap.PerAgent[2] = s.Snapshot()

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"agentIds":[2],"perAgent":{"2":{"status":"active","activeTools":[{"toolId":"call_1","name":"apply_patch","statusText":"Editing files"}]}}}`
	if string(data) != want {
		t.Errorf("Marshal(snapshot) =\n%s\nwant\n%s", data, want)
	}
}
