package ws

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/alesut/pixel-agents/internal/session"
)

func TestEncodeEventWireShape(t *testing.T) {
	tests := []struct {
		name string
		ev   session.Event
		want string
	}{
		{"sessionCreated", session.Event{Type: session.SessionCreated, AgentID: 1},
			`{"type":"sessionCreated","seq":3,"payload":{"agentId":1}}`},
		{"statusChanged", session.Event{Type: session.StatusChanged, AgentID: 1, Status: session.Active},
			`{"type":"statusChanged","seq":3,"payload":{"agentId":1,"status":"active"}}`},
		{"toolStarted", session.Event{Type: session.ToolStarted, AgentID: 2, ToolID: "call_9", ToolName: "exec_command", StatusText: "Running: ls"},
			`{"type":"toolStarted","seq":3,"payload":{"agentId":2,"toolId":"call_9","name":"exec_command","statusText":"Running: ls"}}`},
		{"toolFinished", session.Event{Type: session.ToolFinished, AgentID: 2, ToolID: "call_9"},
			`{"type":"toolFinished","seq":3,"payload":{"agentId":2,"toolId":"call_9"}}`},
		{"toolsCleared", session.Event{Type: session.ToolsCleared, AgentID: 2},
			`{"type":"toolsCleared","seq":3,"payload":{"agentId":2}}`},
		{"empty resync", session.Event{Type: session.ResyncSnapshot},
			`{"type":"resyncSnapshot","seq":3,"payload":{"agentIds":[],"perAgent":{}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeEvent(3, tt.ev)
			if err != nil {
				t.Fatalf("EncodeEvent: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}

			ev, seq, err := DecodeEvent(got)
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if seq != 3 {
				t.Errorf("seq = %d, want 3", seq)
			}
			if ev.Type != tt.ev.Type || ev.AgentID != tt.ev.AgentID || ev.ToolID != tt.ev.ToolID ||
				ev.ToolName != tt.ev.ToolName || ev.StatusText != tt.ev.StatusText || ev.Status != tt.ev.Status {
				t.Errorf("decoded %+v, want %+v", ev, tt.ev)
			}
		})
	}
}

func TestResyncSnapshotRoundTrip(t *testing.T) {
	snap := session.NewSnapshot()
	snap.AgentIDs = []int{1, 2}
	snap.PerAgent[1] = session.AgentSnapshot{Status: session.Waiting, ActiveTools: []session.ActiveTool{}}
	snap.PerAgent[2] = session.AgentSnapshot{
		Status: session.Active,
		ActiveTools: []session.ActiveTool{
			{ToolID: "a", ToolInfo: session.ToolInfo{Name: "apply_patch", StatusText: "Editing files"}},
			{ToolID: "b", ToolInfo: session.ToolInfo{Name: "open", StatusText: "Opening page"}},
		},
	}

	data, err := EncodeEvent(1, session.ResyncEvent(snap))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"perAgent":{"1":{"status":"waiting","activeTools":[]}`) {
		t.Errorf("unexpected snapshot encoding: %s", data)
	}

	ev, _, err := DecodeEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ev.Snapshot, snap) {
		t.Errorf("decoded snapshot = %+v, want %+v", ev.Snapshot, snap)
	}
}

func TestEncodeUnknownEvent(t *testing.T) {
	if _, err := EncodeEvent(1, session.Event{Type: "bogus"}); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestDecodeEventErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"not json", `nope`, "invalid character"},
		{"unknown type", `{"type":"bogus","seq":1}`, "unknown message type"},
		{"bad payload", `{"type":"toolStarted","seq":1,"payload":{"agentId":"x"}}`, "decoding toolStarted"},
		{"server error", string(encodeError("monitor stopped")), "server error: monitor stopped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeEvent([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestHealthPayloadJSON(t *testing.T) {
	data, err := json.Marshal(HealthPayload{Status: StatusDegraded, DegradedSessions: []int{2}})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["status"] != "degraded" {
		t.Errorf("status = %v", m["status"])
	}
	if _, ok := m["processes"]; ok {
		t.Error("empty processes should be omitted")
	}
}
