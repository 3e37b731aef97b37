package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alesut/pixel-agents/internal/log"
)

// wakeDebounce coalesces bursts of writes (Codex flushes several lines per
// turn) into a single early tick.
const wakeDebounce = 250 * time.Millisecond

// dirWatcher watches the date directories and signals the monitor loop when
// a session file is written, so new lines show up before the next tick.
// Polling remains the source of truth; wake-ups only shorten the wait.
type dirWatcher struct {
	root    string
	watcher *fsnotify.Watcher
	watched map[string]bool // touched only by the monitor loop
	wake    chan struct{}
}

func newDirWatcher(root string) (*dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &dirWatcher{
		root:    filepath.Clean(root),
		watcher: w,
		watched: make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}, nil
}

// sync makes the watch set cover dirs. A date directory that does not exist
// yet is covered by its nearest existing ancestor under root, so its
// creation wakes the loop and the next sync watches it directly. Called on
// every pass, which also follows the rollover to a new day.
func (w *dirWatcher) sync(dirs []string) {
	want := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		target := w.watchTarget(dir)
		if target == "" {
			continue
		}
		want[target] = true
		if w.watched[target] {
			continue
		}
		if err := w.watcher.Add(target); err != nil {
			log.Debug().Err(err).Str("dir", target).Msg("watch session directory")
			delete(want, target)
			continue
		}
		w.watched[target] = true
		log.Debug().Str("dir", target).Msg("watching session directory")
	}
	for dir := range w.watched {
		if !want[dir] {
			w.watcher.Remove(dir)
			delete(w.watched, dir)
		}
	}
}

// watchTarget returns dir, or its deepest existing ancestor no higher than
// root, or "" when root itself is missing.
func (w *dirWatcher) watchTarget(dir string) string {
	dir = filepath.Clean(dir)
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		if dir == w.root {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir || !strings.HasPrefix(parent, w.root) {
			return ""
		}
		dir = parent
	}
}

// relevant reports whether ev can change what the next pass finds: a write
// to a session file, or a new directory on the way to a date directory.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	if strings.HasSuffix(ev.Name, sessionFileExt) {
		return true
	}
	if !ev.Has(fsnotify.Create) {
		return false
	}
	info, err := os.Stat(ev.Name)
	return err == nil && info.IsDir()
}

// run forwards debounced notifications to wake until ctx is done.
func (w *dirWatcher) run(ctx context.Context) {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			debounceTimer.Reset(wakeDebounce)

		case <-debounceTimer.C:
			select {
			case w.wake <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("fsnotify error")

		case <-ctx.Done():
			return
		}
	}
}

func (w *dirWatcher) close() error {
	return w.watcher.Close()
}
