// Package app wires the cache store, watcher, and source adapters into the
// realtime coordinator. It owns one aggregate per source, performs the bulk
// startup load, applies watcher events incrementally, and publishes
// consolidated snapshots to any number of readers.
package app

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corey/tally/internal/adapters/boltcache"
	"github.com/corey/tally/internal/adapters/fswatch"
	"github.com/corey/tally/internal/domain/stats"
	"github.com/corey/tally/internal/ports"
)

// Config holds initialization parameters for the coordinator.
type Config struct {
	// Sources are the usage-log providers to aggregate. Required.
	Sources []ports.Source

	// CachePath is the bbolt database location. Required.
	CachePath string

	// Fingerprint enables content hashing in file identities. Slower
	// startup, but staleness detection survives size-and-mtime-preserving
	// rewrites.
	Fingerprint bool

	// Sink, when non-nil, receives the debounced full-corpus upload.
	Sink ports.UploadSink

	// UploadDebounce overrides the default quiescence interval.
	UploadDebounce time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// sourceState is one source's live state: the adapter plus the aggregate the
// event loop mutates. An aggregate is only ever mid-mutation while a single
// event is being applied under the coordinator mutex; readers never see that
// window because they read published snapshots.
type sourceState struct {
	src ports.Source
	agg *stats.AggregateView
}

// App is the realtime coordinator.
type App struct {
	log         *slog.Logger
	interner    *stats.ModelInterner
	store       *boltcache.Store
	watcher     *fswatch.Watcher
	sources     map[string]*sourceState
	fingerprint bool
	uploader    *uploadScheduler

	// mu guards the live aggregates during event application and snapshot
	// cloning. Events are applied one at a time by the event loop.
	mu sync.Mutex

	// pubMu serializes publishes: the event loop and the uploader's status
	// republish both call publish, and generation allocation plus the
	// snapshot swap must happen as one step or an older snapshot could
	// overwrite a newer one.
	pubMu  sync.Mutex
	snap   atomic.Pointer[Snapshot]
	gen    atomic.Uint64
	subsMu sync.Mutex
	subs   []chan struct{}

	// loggedErrs dedups parse-failure logging, once per distinct message.
	errMu      sync.Mutex
	loggedErrs map[string]struct{}

	wg      sync.WaitGroup
	stopped bool
}

// New creates the coordinator. The model interner is constructed here, lives
// for the process duration, and is shared by reference with the cache store
// (which persists and restores its table) and every contribution build.
func New(cfg Config) (*App, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	if cfg.CachePath == "" {
		return nil, fmt.Errorf("no cache path configured")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	interner := stats.NewModelInterner()
	a := &App{
		log:         log,
		interner:    interner,
		store:       boltcache.New(cfg.CachePath, interner, log),
		sources:     make(map[string]*sourceState, len(cfg.Sources)),
		fingerprint: cfg.Fingerprint,
		loggedErrs:  make(map[string]struct{}),
	}
	for _, src := range cfg.Sources {
		if _, dup := a.sources[src.ID()]; dup {
			return nil, fmt.Errorf("duplicate source id %q", src.ID())
		}
		a.sources[src.ID()] = &sourceState{
			src: src,
			agg: stats.NewAggregateView(src.ID()),
		}
	}

	if cfg.Sink != nil {
		a.uploader = newUploadScheduler(cfg.Sink, a.FullCorpus, cfg.UploadDebounce, log,
			func() { a.publish(false) })
	}
	return a, nil
}

// Start performs the bulk load, publishes the initial snapshot, and begins
// watching. It returns an error only when the watcher itself cannot be
// constructed; per-file and per-directory failures are logged and survived.
func (a *App) Start() error {
	for _, id := range a.sourceIDs() {
		a.loadSource(a.sources[id])
	}
	if err := a.store.Flush(); err != nil {
		a.log.Warn("cache flush failed", "err", err)
	}
	a.publish(true)

	watcher, err := fswatch.New(a.log)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	a.watcher = watcher
	for _, id := range a.sourceIDs() {
		for _, dir := range a.sources[id].src.WatchedDirectories() {
			watcher.AddRoot(id, dir)
		}
	}
	watcher.Start()

	a.wg.Add(1)
	go a.eventLoop()
	return nil
}

// Stop ends watching, drains the event loop, stops the uploader, and closes
// the cache. Safe to call after a failed Start.
func (a *App) Stop() error {
	if a.stopped {
		return nil
	}
	a.stopped = true

	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	a.wg.Wait()
	if a.uploader != nil {
		a.uploader.Stop()
	}
	if err := a.store.Flush(); err != nil {
		a.log.Warn("cache flush failed", "err", err)
	}
	return a.store.Close()
}

// ModelName resolves an interned model key for presentation.
func (a *App) ModelName(key stats.ModelKey) string {
	return a.interner.Name(key)
}

// LoadRecords loads the cached message records for one file on demand.
func (a *App) LoadRecords(sourceID, path string) ([]ports.NormalizedMessage, error) {
	return a.store.LoadRecords(boltcache.Key{SourceID: sourceID, Path: path})
}

// FullCorpus returns every cached message record across all sources in
// stable (source, path) order. This is the upload payload.
func (a *App) FullCorpus() ([]ports.NormalizedMessage, error) {
	var corpus []ports.NormalizedMessage
	for _, id := range a.sourceIDs() {
		paths, err := a.store.Paths(id)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			records, err := a.store.LoadRecords(boltcache.Key{SourceID: id, Path: path})
			if err != nil {
				return nil, err
			}
			corpus = append(corpus, records...)
		}
	}
	return corpus, nil
}

func (a *App) sourceIDs() []string {
	ids := make([]string, 0, len(a.sources))
	for id := range a.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// logParseErrOnce logs a parse failure once per distinct message, so a file
// that keeps failing the same way on every write does not spam the log.
func (a *App) logParseErrOnce(sourceID, path string, err error) {
	msg := err.Error()
	a.errMu.Lock()
	_, seen := a.loggedErrs[msg]
	if !seen {
		a.loggedErrs[msg] = struct{}{}
	}
	a.errMu.Unlock()
	if !seen {
		a.log.Warn("parse failed, file excluded from totals",
			"source", sourceID, "path", path, "err", err)
	}
}
