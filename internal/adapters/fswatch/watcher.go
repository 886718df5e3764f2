// Package fswatch turns raw fsnotify notifications into typed usage-log
// events routed to their owning source. It recursively watches every
// registered root directory, picks up directories created after startup,
// debounces editor write bursts, and attributes each path to the source with
// the longest matching watched root (most specific wins, so nested per-source
// directories under a shared parent resolve unambiguously).
package fswatch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType classifies a watcher event.
type EventType int

const (
	// Changed covers file creation and modification.
	Changed EventType = iota

	// Deleted covers removal and rename-away.
	Deleted

	// WatchError carries an OS-level notification failure. Never fatal.
	WatchError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	case WatchError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one typed filesystem notification. SourceID and Path are set for
// Changed and Deleted; Err is set for WatchError.
type Event struct {
	Type     EventType
	SourceID string
	Path     string
	Err      error
}

const debounceInterval = 50 * time.Millisecond

type route struct {
	dir      string // cleaned absolute directory, no trailing separator
	sourceID string
}

// Watcher subscribes to create/modify/delete notifications under every
// registered root and emits Events on a channel. Construct with New, register
// roots with AddRoot, then call Start once.
type Watcher struct {
	fw      *fsnotify.Watcher
	log     *slog.Logger
	events  chan Event
	pending chan Event // debounce timers deliver here; pump forwards
	done    chan struct{}

	mu      sync.Mutex
	routes  []route // sorted by descending dir length
	timers  map[string]*time.Timer
	stopped bool
}

// New creates a watcher. No directories are observed until AddRoot.
func New(log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fw:      fw,
		log:     log,
		events:  make(chan Event, 64),
		pending: make(chan Event, 64),
		done:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// AddRoot registers dir (recursively) as belonging to sourceID. A missing or
// unreadable directory is a logged warning, not an error: that subtree simply
// produces no events, and all other roots keep working.
func (w *Watcher) AddRoot(sourceID, dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		w.log.Warn("cannot resolve watch root", "source", sourceID, "dir", dir, "err", err)
		return
	}
	abs = filepath.Clean(abs)

	w.mu.Lock()
	w.routes = append(w.routes, route{dir: abs, sourceID: sourceID})
	sort.Slice(w.routes, func(i, j int) bool { return len(w.routes[i].dir) > len(w.routes[j].dir) })
	w.mu.Unlock()

	err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if info.IsDir() {
			return w.fw.Add(path)
		}
		return nil
	})
	if err != nil {
		w.log.Warn("cannot watch directory", "source", sourceID, "dir", abs, "err", err)
	}
}

// Events returns the typed event channel. Closed after Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start launches the event pump. Call at most once, after registering roots.
func (w *Watcher) Start() {
	go w.pump()
}

// Stop ends monitoring and closes the event channel. Safe to call multiple
// times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) pump() {
	defer close(w.events)

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.emit(Event{Type: WatchError, Err: err})

		case ev := <-w.pending:
			w.emit(ev)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	// New directories join the watch so files created inside them are seen.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.fw.Add(path); err != nil {
				w.log.Warn("cannot watch new directory", "dir", path, "err", err)
			}
			return
		}
	}

	sourceID, ok := w.routeFor(path)
	if !ok {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.cancelChanged(path)
		w.emit(Event{Type: Deleted, SourceID: sourceID, Path: path})
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	w.scheduleChanged(sourceID, path)
}

// scheduleChanged arms (or re-arms) the per-path debounce timer. Editors
// often fire several writes per save; the Changed event is emitted only
// after a full quiet interval, so the last write of a burst always wins and
// the consumer parses the final content.
func (w *Watcher) scheduleChanged(sourceID, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(debounceInterval)
		return
	}
	w.timers[path] = time.AfterFunc(debounceInterval, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.pending <- Event{Type: Changed, SourceID: sourceID, Path: path}:
		case <-w.done:
		}
	})
}

// cancelChanged drops a pending Changed for a path that just got deleted.
func (w *Watcher) cancelChanged(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

// routeFor attributes a path to the longest watched root that is a prefix of
// it on a path-component boundary.
func (w *Watcher) routeFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.routes {
		if path == r.dir {
			return r.sourceID, true
		}
		if strings.HasPrefix(path, r.dir+string(filepath.Separator)) {
			return r.sourceID, true
		}
	}
	return "", false
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}
