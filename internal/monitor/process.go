package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// AgentProcess is a running Codex CLI process.
type AgentProcess struct {
	PID        int       `json:"pid"`
	WorkingDir string    `json:"workingDir"`
	StartTime  time.Time `json:"startTime"`
	CmdLine    string    `json:"cmdLine"`
}

// DiscoverAgentProcesses lists Codex processes whose working directory is
// inside projectRoot. Processes that vanish or deny access mid-scan are
// skipped.
func DiscoverAgentProcesses(ctx context.Context, projectRoot string) ([]AgentProcess, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var results []AgentProcess
	for _, p := range procs {
		argv, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || !isCodexProcess(argv) {
			continue
		}
		cwd, err := p.CwdWithContext(ctx)
		if err != nil || !SameProject(cwd, projectRoot) {
			continue
		}

		var started time.Time
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			started = time.UnixMilli(ms)
		}

		results = append(results, AgentProcess{
			PID:        int(p.Pid),
			WorkingDir: cwd,
			StartTime:  started,
			CmdLine:    strings.Join(argv, " "),
		})
	}
	return results, nil
}

func isCodexProcess(argv []string) bool {
	if len(argv) == 0 {
		return false
	}

	exe := filepath.Base(argv[0])
	if exe == "codex" || exe == "codex.exe" {
		return true
	}

	// npm installs run the CLI under node.
	if exe == "node" || exe == "node.exe" {
		for _, arg := range argv[1:] {
			if strings.Contains(arg, "node_modules/.bin") {
				continue
			}
			if strings.Contains(arg, "@openai/codex") || filepath.Base(arg) == "codex" || filepath.Base(arg) == "codex.js" {
				return true
			}
		}
	}
	return false
}
