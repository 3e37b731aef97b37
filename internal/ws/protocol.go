package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alesut/pixel-agents/internal/session"
)

// ErrServer wraps the message of an error frame sent by the server.
var ErrServer = errors.New("server error")

type MessageType string

const (
	MsgSessionCreated MessageType = MessageType(session.SessionCreated)
	MsgStatusChanged  MessageType = MessageType(session.StatusChanged)
	MsgToolStarted    MessageType = MessageType(session.ToolStarted)
	MsgToolFinished   MessageType = MessageType(session.ToolFinished)
	MsgToolsCleared   MessageType = MessageType(session.ToolsCleared)
	MsgResyncSnapshot MessageType = MessageType(session.ResyncSnapshot)
	MsgError          MessageType = "error"
)

// Client-to-server requests.
const (
	ClientResync MessageType = "resync"
	ClientRescan MessageType = "rescan"
)

// WSMessage is the envelope of every frame. Seq counts messages per
// subscriber, starting at 1 with the initial snapshot.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SessionCreatedPayload struct {
	AgentID int `json:"agentId"`
}

type StatusChangedPayload struct {
	AgentID int            `json:"agentId"`
	Status  session.Status `json:"status"`
}

type ToolStartedPayload struct {
	AgentID    int    `json:"agentId"`
	ToolID     string `json:"toolId"`
	Name       string `json:"name"`
	StatusText string `json:"statusText"`
}

type ToolFinishedPayload struct {
	AgentID int    `json:"agentId"`
	ToolID  string `json:"toolId"`
}

type ToolsClearedPayload struct {
	AgentID int `json:"agentId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ClientMessage is what a WebSocket client may send.
type ClientMessage struct {
	Type MessageType `json:"type"`
}

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// HealthPayload is served by /api/health.
type HealthPayload struct {
	Status           HealthStatus     `json:"status"`
	ProjectRoot      string           `json:"projectRoot"`
	SessionsRoot     string           `json:"sessionsRoot"`
	Ticks            uint64           `json:"ticks"`
	LastTick         time.Time        `json:"lastTick"`
	LastTickDuration time.Duration    `json:"lastTickDurationNs"`
	Sessions         int              `json:"sessions"`
	Subscribers      int              `json:"subscribers"`
	Lines            uint64           `json:"lines"`
	MalformedLines   uint64           `json:"malformedLines"`
	Truncations      uint64           `json:"truncations"`
	Panics           uint64           `json:"panics"`
	DiscoverFailures int              `json:"discoverFailures"`
	DegradedSessions []int            `json:"degradedSessions,omitempty"`
	LastError        string           `json:"lastError,omitempty"`
	Processes        []ProcessPayload `json:"processes,omitempty"`
}

// ProcessPayload describes a live agent CLI process in the project.
type ProcessPayload struct {
	PID        int       `json:"pid"`
	WorkingDir string    `json:"workingDir"`
	StartTime  time.Time `json:"startTime"`
	CmdLine    string    `json:"cmdLine"`
}

// EncodeEvent renders ev as a wire frame.
func EncodeEvent(seq uint64, ev session.Event) ([]byte, error) {
	var payload any
	switch ev.Type {
	case session.SessionCreated:
		payload = SessionCreatedPayload{AgentID: ev.AgentID}
	case session.StatusChanged:
		payload = StatusChangedPayload{AgentID: ev.AgentID, Status: ev.Status}
	case session.ToolStarted:
		payload = ToolStartedPayload{AgentID: ev.AgentID, ToolID: ev.ToolID, Name: ev.ToolName, StatusText: ev.StatusText}
	case session.ToolFinished:
		payload = ToolFinishedPayload{AgentID: ev.AgentID, ToolID: ev.ToolID}
	case session.ToolsCleared:
		payload = ToolsClearedPayload{AgentID: ev.AgentID}
	case session.ResyncSnapshot:
		snap := ev.Snapshot
		if snap == nil {
			snap = session.NewSnapshot()
		}
		payload = snap
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: MessageType(ev.Type), Seq: seq, Payload: raw})
}

// DecodeEvent parses a frame produced by EncodeEvent.
func DecodeEvent(data []byte) (session.Event, uint64, error) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return session.Event{}, 0, err
	}

	ev := session.Event{Type: session.EventType(msg.Type)}
	var err error
	switch msg.Type {
	case MsgSessionCreated:
		var p SessionCreatedPayload
		err = json.Unmarshal(msg.Payload, &p)
		ev.AgentID = p.AgentID
	case MsgStatusChanged:
		var p StatusChangedPayload
		err = json.Unmarshal(msg.Payload, &p)
		ev.AgentID, ev.Status = p.AgentID, p.Status
	case MsgToolStarted:
		var p ToolStartedPayload
		err = json.Unmarshal(msg.Payload, &p)
		ev.AgentID, ev.ToolID, ev.ToolName, ev.StatusText = p.AgentID, p.ToolID, p.Name, p.StatusText
	case MsgToolFinished:
		var p ToolFinishedPayload
		err = json.Unmarshal(msg.Payload, &p)
		ev.AgentID, ev.ToolID = p.AgentID, p.ToolID
	case MsgToolsCleared:
		var p ToolsClearedPayload
		err = json.Unmarshal(msg.Payload, &p)
		ev.AgentID = p.AgentID
	case MsgResyncSnapshot:
		snap := session.NewSnapshot()
		err = json.Unmarshal(msg.Payload, snap)
		ev.Snapshot = snap
	case MsgError:
		var p ErrorPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return session.Event{}, msg.Seq, fmt.Errorf("%w: %s", ErrServer, p.Message)
		}
		return session.Event{}, msg.Seq, ErrServer
	default:
		return session.Event{}, msg.Seq, fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err != nil {
		return session.Event{}, msg.Seq, fmt.Errorf("decoding %s payload: %w", msg.Type, err)
	}
	return ev, msg.Seq, nil
}

func encodeError(message string) []byte {
	raw, _ := json.Marshal(ErrorPayload{Message: message})
	data, _ := json.Marshal(WSMessage{Type: MsgError, Payload: raw})
	return data
}
