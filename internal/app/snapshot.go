package app

import (
	"time"

	"github.com/corey/tally/internal/domain/stats"
	"github.com/corey/tally/internal/ports"
)

// Snapshot is the consolidated state published to readers: one deep-copied
// aggregate per source plus the upload status. Snapshots are immutable once
// published — readers share them freely.
type Snapshot struct {
	Generation uint64
	TakenAt    time.Time
	Sources    map[string]*stats.AggregateView
	Upload     ports.UploadStatus
}

// Snapshot returns the latest published snapshot, or nil before the first
// publish. The slot is a single atomically-swapped cell: a new publish
// overwrites the previous value for all readers, readers never queue a
// backlog, and a slow reader simply sees one fewer intermediate state.
func (a *App) Snapshot() *Snapshot {
	return a.snap.Load()
}

// Subscribe returns a channel that receives a notification after each
// publish, plus a cancel func that unregisters it. Notifications coalesce: a
// reader that is behind gets exactly one pending signal, then reads the
// latest snapshot. Cancel is idempotent; callers must cancel when done or
// the subscription lives as long as the App.
func (a *App) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	a.subsMu.Lock()
	a.subs = append(a.subs, ch)
	a.subsMu.Unlock()

	cancel := func() {
		a.subsMu.Lock()
		defer a.subsMu.Unlock()
		for i, c := range a.subs {
			if c == ch {
				a.subs = append(a.subs[:i], a.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// publish clones every aggregate into a fresh snapshot and swaps it in.
// kickUpload distinguishes data changes (which schedule a debounced upload)
// from upload status changes (which must not re-trigger the uploader).
// Serialized by pubMu so generations stored in the slot never go backwards.
func (a *App) publish(kickUpload bool) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()

	snap := &Snapshot{
		Generation: a.gen.Add(1),
		TakenAt:    time.Now(),
		Sources:    make(map[string]*stats.AggregateView, len(a.sources)),
	}
	a.mu.Lock()
	for id, st := range a.sources {
		snap.Sources[id] = st.agg.Clone()
	}
	a.mu.Unlock()
	if a.uploader != nil {
		snap.Upload = a.uploader.CurrentStatus()
	}

	a.snap.Store(snap)

	a.subsMu.Lock()
	for _, ch := range a.subs {
		select {
		case ch <- struct{}{}:
		default: // subscriber already has a pending signal
		}
	}
	a.subsMu.Unlock()

	if kickUpload && a.uploader != nil {
		a.uploader.Kick()
	}
}
