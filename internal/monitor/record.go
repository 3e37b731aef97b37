package monitor

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/alesut/pixel-agents/internal/session"
)

// Rollout lines are wrapped in a {type, payload} envelope. Only the subset
// below changes agent state; everything else is skipped.
const (
	recordResponseItem = "response_item"
	recordEventMsg     = "event_msg"
	recordTurnContext  = "turn_context"

	itemFunctionCall       = "function_call"
	itemFunctionCallOutput = "function_call_output"
	eventTaskStarted       = "task_started"
	eventTaskComplete      = "task_complete"
)

// fallbackToolName is used when a function_call carries no string name.
const fallbackToolName = "Tool"

var errNotObject = errors.New("record is not a JSON object")

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// payloadFields covers every payload field any recognized record reads.
// Fields stay raw so a value of the wrong JSON type degrades to "absent"
// instead of failing the whole line.
type payloadFields struct {
	Type      json.RawMessage `json:"type"`
	CallID    json.RawMessage `json:"call_id"`
	Name      json.RawMessage `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Cwd       json.RawMessage `json:"cwd"`
}

// record is one recognized rollout line. Each variant knows how to fold
// itself into a session.
type record interface {
	apply(s *session.SessionState, emit session.Emitter)
}

type functionCall struct {
	callID    string
	name      string
	arguments string
}

func (r functionCall) apply(s *session.SessionState, emit session.Emitter) {
	if !s.HasTool(r.callID) {
		s.StartTool(r.callID, session.ToolInfo{
			Name:       r.name,
			StatusText: FormatToolStatus(r.name, r.arguments),
		}, emit)
	}
	s.SetStatus(session.Active, emit)
}

type functionCallOutput struct {
	callID string
}

func (r functionCallOutput) apply(s *session.SessionState, emit session.Emitter) {
	s.FinishTool(r.callID, emit)
	if s.ToolCount() == 0 {
		s.SetStatus(session.Waiting, emit)
	}
}

type taskStarted struct{}

func (taskStarted) apply(s *session.SessionState, emit session.Emitter) {
	s.SetStatus(session.Active, emit)
}

type taskComplete struct{}

func (taskComplete) apply(s *session.SessionState, emit session.Emitter) {
	s.ClearTools(emit)
	s.SetStatus(session.Waiting, emit)
}

// turnContext carries the session's working directory. It has no effect on
// agent state; the project matcher reads it.
type turnContext struct {
	cwd string
}

func (turnContext) apply(*session.SessionState, session.Emitter) {}

// decodeRecord parses one line. It returns an error only when the line is
// not a JSON object, and a nil record for well-formed lines that are not
// recognized or lack a required field.
func decodeRecord(line []byte) (record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, errNotObject
	}
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}

	var p payloadFields
	if len(env.Payload) == 0 || env.Payload[0] != '{' || json.Unmarshal(env.Payload, &p) != nil {
		return nil, nil
	}

	switch env.Type {
	case recordResponseItem:
		switch rawString(p.Type) {
		case itemFunctionCall:
			callID := rawString(p.CallID)
			if callID == "" {
				return nil, nil
			}
			name, ok := stringValue(p.Name)
			if !ok {
				name = fallbackToolName
			}
			return functionCall{callID: callID, name: name, arguments: rawString(p.Arguments)}, nil
		case itemFunctionCallOutput:
			callID := rawString(p.CallID)
			if callID == "" {
				return nil, nil
			}
			return functionCallOutput{callID: callID}, nil
		}
	case recordEventMsg:
		switch rawString(p.Type) {
		case eventTaskStarted:
			return taskStarted{}, nil
		case eventTaskComplete:
			return taskComplete{}, nil
		}
	case recordTurnContext:
		return turnContext{cwd: rawString(p.Cwd)}, nil
	}
	return nil, nil
}

func stringValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func rawString(raw json.RawMessage) string {
	s, _ := stringValue(raw)
	return s
}

// processLine decodes line and applies it to s. It reports whether the line
// was malformed.
func processLine(s *session.SessionState, line []byte, emit session.Emitter) bool {
	rec, err := decodeRecord(line)
	if err != nil {
		return true
	}
	if rec != nil {
		rec.apply(s, emit)
	}
	return false
}
