package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alesut/pixel-agents/internal/session"
)

// rollout builds one transcript line (without the trailing newline).
func rollout(t testing.TB, typ string, payload map[string]any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"type": typ, "payload": payload})
	require.NoError(t, err)
	return string(data)
}

func callLine(t testing.TB, callID, name, arguments string) string {
	return rollout(t, "response_item", map[string]any{
		"type":      "function_call",
		"call_id":   callID,
		"name":      name,
		"arguments": arguments,
	})
}

func outputLine(t testing.TB, callID string) string {
	return rollout(t, "response_item", map[string]any{
		"type":    "function_call_output",
		"call_id": callID,
		"output":  "ok",
	})
}

func taskStartedLine(t testing.TB) string {
	return rollout(t, "event_msg", map[string]any{"type": "task_started"})
}

func taskCompleteLine(t testing.TB) string {
	return rollout(t, "event_msg", map[string]any{"type": "task_complete"})
}

func turnContextLine(t testing.TB, cwd string) string {
	return rollout(t, "turn_context", map[string]any{"cwd": cwd, "model": "gpt-5-codex"})
}

func joinLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func appendFile(t testing.TB, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

type recorder struct {
	events []session.Event
}

func (r *recorder) emit(ev session.Event) { r.events = append(r.events, ev) }

func (r *recorder) types() []session.EventType {
	out := make([]session.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

func toolIDs(s *session.SessionState) []string {
	ids := []string{}
	for _, t := range s.ActiveTools() {
		ids = append(ids, t.ToolID)
	}
	return ids
}

// applyLines feeds complete lines straight through the record processor.
func applyLines(s *session.SessionState, emit session.Emitter, lines ...string) {
	for _, l := range lines {
		processLine(s, []byte(l), emit)
	}
}
