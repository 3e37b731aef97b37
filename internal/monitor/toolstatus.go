package monitor

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// maxStatusCommand is the longest command, in runes, shown in a
// "Running: ..." status before it is cut and suffixed with an ellipsis.
const maxStatusCommand = 56

const mcpPrefix = "mcp__"

// FormatToolStatus renders the one-line status shown while a tool call is
// in flight. arguments is the call's JSON-encoded argument object.
func FormatToolStatus(name, arguments string) string {
	switch name {
	case "exec_command", "shell", "local_shell":
		if cmd := commandFromArguments(arguments); cmd != "" {
			return "Running: " + shortStatus(cmd)
		}
		return "Running command"
	case "write_stdin":
		return "Reading command output"
	case "apply_patch":
		return "Editing files"
	case "search_query", "image_query", "web_search":
		return "Searching the web"
	case "open", "click", "find":
		return "Reading web content"
	case "mcp__playwright__browser_navigate", "mcp__playwright__browser_run_code":
		return "Working in browser"
	}
	if strings.HasPrefix(name, mcpPrefix) {
		return "Using " + strings.TrimPrefix(name, mcpPrefix)
	}
	return "Using " + name
}

// commandFromArguments pulls the command line out of an execution call's
// arguments. Codex writes either {"cmd": "..."} or {"command": [...]}.
func commandFromArguments(arguments string) string {
	var args struct {
		Cmd     json.RawMessage `json:"cmd"`
		Command json.RawMessage `json:"command"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ""
	}
	if cmd := commandText(args.Cmd); cmd != "" {
		return cmd
	}
	return commandText(args.Command)
}

func commandText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var argv []string
	if err := json.Unmarshal(raw, &argv); err == nil {
		return strings.TrimSpace(strings.Join(argv, " "))
	}
	return ""
}

func shortStatus(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxStatusCommand {
		return s
	}
	r := []rune(s)
	return string(r[:maxStatusCommand]) + "…"
}
