package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchTarget(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2026", "05"), 0o755))
	w := &dirWatcher{root: root}

	tests := []struct {
		dir  string
		want string
	}{
		{filepath.Join(root, "2026", "05", "10"), filepath.Join(root, "2026", "05")},
		{filepath.Join(root, "2026", "06", "01"), filepath.Join(root, "2026")},
		{filepath.Join(root, "2027", "01", "01"), root},
		{filepath.Join(root, "2026", "05"), filepath.Join(root, "2026", "05")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.watchTarget(tt.dir), tt.dir)
	}

	missing := &dirWatcher{root: filepath.Join(root, "nope")}
	assert.Empty(t, missing.watchTarget(filepath.Join(root, "nope", "2026", "05", "10")))
}

func TestWatcherSyncFollowsNewDirectory(t *testing.T) {
	root := t.TempDir()
	w, err := newDirWatcher(root)
	require.NoError(t, err)
	defer w.close()

	today := filepath.Join(root, "2026", "05", "10")
	w.sync([]string{today})
	assert.Equal(t, map[string]bool{root: true}, w.watched)

	require.NoError(t, os.MkdirAll(today, 0o755))
	w.sync([]string{today})
	assert.Equal(t, map[string]bool{today: true}, w.watched)
}

func TestRelevantEvents(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "2026")
	require.NoError(t, os.Mkdir(sub, 0o755))
	plain := filepath.Join(dir, "notes.txt")
	writeFile(t, plain, "x")

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"session write", fsnotify.Event{Name: filepath.Join(dir, "a.jsonl"), Op: fsnotify.Write}, true},
		{"session create", fsnotify.Event{Name: filepath.Join(dir, "a.jsonl"), Op: fsnotify.Create}, true},
		{"session chmod", fsnotify.Event{Name: filepath.Join(dir, "a.jsonl"), Op: fsnotify.Chmod}, false},
		{"new directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, true},
		{"other file", fsnotify.Event{Name: plain, Op: fsnotify.Create}, false},
		{"vanished", fsnotify.Event{Name: filepath.Join(dir, "gone"), Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.ev))
		})
	}
}
