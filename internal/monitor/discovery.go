package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const sessionFileExt = ".jsonl"

// Discovery finds the project's session files. Codex CLI stores them at:
//
//	$CODEX_HOME/sessions/YYYY/MM/DD/rollout-{timestamp}-{uuid}.jsonl
//
// Only today's directory and the previous daysBack days are listed.
type Discovery struct {
	root        string
	daysBack    int
	maxSessions int
	matcher     *ProjectMatcher
	now         func() time.Time
}

func NewDiscovery(sessionsRoot, projectRoot string, daysBack, maxSessions int) *Discovery {
	return &Discovery{
		root:        sessionsRoot,
		daysBack:    daysBack,
		maxSessions: maxSessions,
		matcher:     NewProjectMatcher(projectRoot),
		now:         time.Now,
	}
}

func (d *Discovery) Root() string { return d.root }

func (d *Discovery) ProjectRoot() string { return d.matcher.Root() }

// DateDirs returns the date directories that are listed, newest first.
// They need not exist.
func (d *Discovery) DateDirs() []string {
	now := d.now()
	dirs := make([]string, 0, d.daysBack+1)
	for i := 0; i <= d.daysBack; i++ {
		t := now.AddDate(0, 0, -i)
		dirs = append(dirs, filepath.Join(d.root, t.Format("2006"), t.Format("01"), t.Format("02")))
	}
	return dirs
}

type candidate struct {
	path    string
	modTime time.Time
}

// ListCandidateFiles returns every session file in the date directories,
// oldest modification first. Missing directories contribute nothing; other
// read errors are joined into the returned error alongside whatever could
// be listed.
func (d *Discovery) ListCandidateFiles() ([]string, error) {
	var (
		found []candidate
		errs  []error
	)
	for _, dir := range d.DateDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("listing %s: %w", dir, err))
			}
			continue
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), sessionFileExt) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue // removed since ReadDir
			}
			found = append(found, candidate{
				path:    filepath.Join(dir, entry.Name()),
				modTime: info.ModTime(),
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].modTime.Equal(found[j].modTime) {
			return found[i].path < found[j].path
		}
		return found[i].modTime.Before(found[j].modTime)
	})

	paths := make([]string, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	return paths, errors.Join(errs...)
}

// ProjectFiles returns the most recently modified candidates that belong to
// the project, at most maxSessions of them, oldest first.
func (d *Discovery) ProjectFiles() ([]string, error) {
	candidates, err := d.ListCandidateFiles()
	errs := []error{err}

	var matches []string
	for _, path := range candidates {
		ok, err := d.matcher.Match(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if ok {
			matches = append(matches, path)
		}
	}

	if d.maxSessions > 0 && len(matches) > d.maxSessions {
		matches = matches[len(matches)-d.maxSessions:]
	}
	return matches, errors.Join(errs...)
}
