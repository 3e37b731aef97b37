package session

import (
	"encoding/json"
	"fmt"
)

type Status int

const (
	Waiting Status = iota
	Active
)

var statusNames = map[Status]string{
	Waiting: "waiting",
	Active:  "active",
}

var statusFromName = map[string]Status{
	"waiting": Waiting,
	"active":  Active,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, ok := statusFromName[n]
	if !ok {
		return fmt.Errorf("unknown status %q", n)
	}
	*s = v
	return nil
}

// ToolInfo describes an in-flight tool call.
type ToolInfo struct {
	Name       string `json:"name"`
	StatusText string `json:"statusText"`
}

// ActiveTool is a ToolInfo paired with the call ID it was started under.
type ActiveTool struct {
	ToolID string `json:"toolId"`
	ToolInfo
}

// SessionState is the reconstructed state of one transcript file. It is
// owned by the monitor loop and never touched from other goroutines.
type SessionState struct {
	Path    string
	AgentID int

	// Offset is the number of bytes consumed from the file. Partial holds
	// the unterminated tail of the last read.
	Offset  int64
	Partial []byte

	Status Status

	tools map[string]ToolInfo
	order []string
}

func NewSessionState(path string, agentID int) *SessionState {
	return &SessionState{
		Path:    path,
		AgentID: agentID,
		Status:  Waiting,
		tools:   make(map[string]ToolInfo),
	}
}

// ActiveTools returns the in-flight tools in the order they started.
func (s *SessionState) ActiveTools() []ActiveTool {
	out := make([]ActiveTool, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, ActiveTool{ToolID: id, ToolInfo: s.tools[id]})
	}
	return out
}

func (s *SessionState) ToolCount() int {
	return len(s.order)
}

func (s *SessionState) HasTool(callID string) bool {
	_, ok := s.tools[callID]
	return ok
}

// StartTool registers a tool under callID and emits toolStarted. It
// reports false, emitting nothing, when callID is already active.
func (s *SessionState) StartTool(callID string, info ToolInfo, emit Emitter) bool {
	if _, ok := s.tools[callID]; ok {
		return false
	}
	s.tools[callID] = info
	s.order = append(s.order, callID)
	emit.emit(Event{
		Type:       ToolStarted,
		AgentID:    s.AgentID,
		ToolID:     callID,
		ToolName:   info.Name,
		StatusText: info.StatusText,
	})
	return true
}

// FinishTool removes callID and emits toolFinished if it was active.
func (s *SessionState) FinishTool(callID string, emit Emitter) bool {
	if _, ok := s.tools[callID]; !ok {
		return false
	}
	delete(s.tools, callID)
	for i, id := range s.order {
		if id == callID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	emit.emit(Event{Type: ToolFinished, AgentID: s.AgentID, ToolID: callID})
	return true
}

// ClearTools drops every active tool. toolsCleared is only emitted when
// there was something to clear.
func (s *SessionState) ClearTools(emit Emitter) bool {
	if len(s.order) == 0 {
		return false
	}
	clear(s.tools)
	s.order = s.order[:0]
	emit.emit(Event{Type: ToolsCleared, AgentID: s.AgentID})
	return true
}

// SetStatus changes the status, emitting statusChanged only on a transition.
func (s *SessionState) SetStatus(status Status, emit Emitter) bool {
	if s.Status == status {
		return false
	}
	s.Status = status
	emit.emit(Event{Type: StatusChanged, AgentID: s.AgentID, Status: status})
	return true
}

// Reset returns the state to that of a never-read file after truncation.
// Observers are told about the cleared tools and the forced waiting status
// so that replaying the file from byte 0 converges their view.
func (s *SessionState) Reset(emit Emitter) {
	s.Offset = 0
	s.Partial = nil
	s.ClearTools(emit)
	s.SetStatus(Waiting, emit)
}

func (s *SessionState) Snapshot() AgentSnapshot {
	return AgentSnapshot{Status: s.Status, ActiveTools: s.ActiveTools()}
}

// Announce emits the events an observer needs to learn about a session
// that was hydrated silently: sessionCreated, then the non-initial status,
// then each active tool.
func (s *SessionState) Announce(emit Emitter) {
	emit.emit(Event{Type: SessionCreated, AgentID: s.AgentID})
	if s.Status != Waiting {
		emit.emit(Event{Type: StatusChanged, AgentID: s.AgentID, Status: s.Status})
	}
	for _, t := range s.ActiveTools() {
		emit.emit(Event{
			Type:       ToolStarted,
			AgentID:    s.AgentID,
			ToolID:     t.ToolID,
			ToolName:   t.Name,
			StatusText: t.StatusText,
		})
	}
}
