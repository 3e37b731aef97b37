package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type cwdEntry struct {
	cwd  string
	size int64 // file size when a scan found no cwd
}

// ProjectMatcher decides whether a session file belongs to the project by
// the working directory in its first turn_context record. Working
// directories are memoized per path for the life of the matcher.
type ProjectMatcher struct {
	root string
	memo map[string]cwdEntry
}

func NewProjectMatcher(projectRoot string) *ProjectMatcher {
	return &ProjectMatcher{
		root: normalizePath(projectRoot),
		memo: make(map[string]cwdEntry),
	}
}

func (m *ProjectMatcher) Root() string { return m.root }

// Match reports whether path's session ran inside the project. A file with
// no turn_context yet does not match; it is scanned again once it grows.
func (m *ProjectMatcher) Match(path string) (bool, error) {
	cwd, err := m.SessionCwd(path)
	if err != nil || cwd == "" {
		return false, err
	}
	return SameProject(cwd, m.root), nil
}

// SessionCwd returns the normalized working directory recorded in path, or
// "" if none has been written yet. A found cwd is memoized for the life of
// the process. A missing one is memoized only while the file keeps its size,
// since Codex writes turn_context after the session_meta line. Read errors
// are returned and not cached.
func (m *ProjectMatcher) SessionCwd(path string) (string, error) {
	e, cached := m.memo[path]
	if cached && e.cwd != "" {
		return e.cwd, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if cached && info.Size() == e.size {
		return "", nil
	}

	cwd, err := scanCwd(path)
	if err != nil {
		return "", err
	}
	if cwd != "" {
		cwd = normalizePath(cwd)
	}
	m.memo[path] = cwdEntry{cwd: cwd, size: info.Size()}
	return cwd, nil
}

func scanCwd(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if rec, _ := decodeRecord(line); rec != nil {
				if tc, ok := rec.(turnContext); ok && tc.cwd != "" {
					return tc.cwd, nil
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("scanning %s: %w", path, err)
		}
	}
}

func normalizePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// SameProject reports whether a and b are the same directory or one is an
// ancestor of the other. "/proj" matches "/proj/sub" but not "/project".
func SameProject(a, b string) bool {
	a, b = normalizePath(a), normalizePath(b)
	if a == b {
		return true
	}
	return isAncestor(a, b) || isAncestor(b, a)
}

func isAncestor(dir, p string) bool {
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
