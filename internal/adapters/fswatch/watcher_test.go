package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })
	return w
}

func waitFor(t *testing.T, w *Watcher, want EventType, path string) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Type == want && ev.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s on %s", want, path)
		}
	}
}

func TestRouteFor_LongestPrefixWins(t *testing.T) {
	w := newTestWatcher(t)
	w.AddRoot("outer", string(filepath.Separator)+filepath.Join("logs"))
	w.AddRoot("inner", string(filepath.Separator)+filepath.Join("logs", "gemini"))

	id, ok := w.routeFor(string(filepath.Separator) + filepath.Join("logs", "gemini", "a.json"))
	require.True(t, ok)
	assert.Equal(t, "inner", id)

	id, ok = w.routeFor(string(filepath.Separator) + filepath.Join("logs", "claude", "b.jsonl"))
	require.True(t, ok)
	assert.Equal(t, "outer", id)
}

func TestRouteFor_ComponentBoundary(t *testing.T) {
	w := newTestWatcher(t)
	w.AddRoot("a", string(filepath.Separator)+filepath.Join("logs", "gem"))

	// "/logs/gemini" is not under "/logs/gem".
	_, ok := w.routeFor(string(filepath.Separator) + filepath.Join("logs", "gemini", "x.json"))
	assert.False(t, ok)
}

func TestRouteFor_RootItself(t *testing.T) {
	w := newTestWatcher(t)
	root := string(filepath.Separator) + "logs"
	w.AddRoot("a", root)

	id, ok := w.routeFor(root)
	require.True(t, ok)
	assert.Equal(t, "a", id)
}

func TestRouteFor_Unrouted(t *testing.T) {
	w := newTestWatcher(t)
	w.AddRoot("a", string(filepath.Separator)+"logs")
	_, ok := w.routeFor(string(filepath.Separator) + filepath.Join("tmp", "x"))
	assert.False(t, ok)
}

func TestWatcher_ChangedAndDeleted(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t)
	w.AddRoot("claude", root)
	w.Start()

	path := filepath.Join(root, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))
	ev := waitFor(t, w, Changed, path)
	assert.Equal(t, "claude", ev.SourceID)

	require.NoError(t, os.Remove(path))
	ev = waitFor(t, w, Deleted, path)
	assert.Equal(t, "claude", ev.SourceID)
}

func TestWatcher_NewDirectoryJoinsWatch(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t)
	w.AddRoot("claude", root)
	w.Start()

	sub := filepath.Join(root, "project")
	require.NoError(t, os.Mkdir(sub, 0755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "b.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))
	ev := waitFor(t, w, Changed, path)
	assert.Equal(t, "claude", ev.SourceID)
}

func TestWatcher_WriteBurstEmitsOnceWithFinalWrite(t *testing.T) {
	w := newTestWatcher(t)
	root := string(filepath.Separator) + "logs"
	w.AddRoot("claude", root)
	w.Start()

	// Two writes inside one debounce window: a truncate-then-write save.
	path := filepath.Join(root, "a.jsonl")
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})

	// The burst still produces a Changed after it quiesces, so the consumer
	// reads the file's final content rather than the first partial state.
	ev := waitFor(t, w, Changed, path)
	assert.Equal(t, "claude", ev.SourceID)

	// And exactly one: the two writes coalesce.
	select {
	case ev := <-w.Events():
		if ev.Type == Changed && ev.Path == path {
			t.Fatal("write burst emitted a second Changed")
		}
	case <-time.After(4 * debounceInterval):
	}
}

func TestWatcher_DeleteCancelsPendingChanged(t *testing.T) {
	w := newTestWatcher(t)
	root := string(filepath.Separator) + "logs"
	w.AddRoot("claude", root)
	w.Start()

	path := filepath.Join(root, "a.jsonl")
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Remove})

	waitFor(t, w, Deleted, path)

	// The armed Changed timer was cancelled by the delete.
	select {
	case ev := <-w.Events():
		if ev.Type == Changed && ev.Path == path {
			t.Fatal("Changed emitted for a deleted file")
		}
	case <-time.After(4 * debounceInterval):
	}
}

func TestWatcher_MissingRootIsNotFatal(t *testing.T) {
	w := newTestWatcher(t)
	w.AddRoot("claude", filepath.Join(t.TempDir(), "does-not-exist"))
	w.Start()
	// Watcher still runs and stops cleanly.
	assert.NoError(t, w.Stop())
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	w := newTestWatcher(t)
	w.Start()
	require.NoError(t, w.Stop())

	select {
	case _, open := <-w.Events():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "changed", Changed.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "error", WatchError.String())
}
