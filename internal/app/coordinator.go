package app

import (
	"github.com/corey/tally/internal/adapters/boltcache"
	"github.com/corey/tally/internal/adapters/fswatch"
	"github.com/corey/tally/internal/domain/stats"
	"github.com/corey/tally/internal/ports"
)

// eventLoop is the single goroutine that applies watcher events to the live
// aggregates. One goroutine means contributions merge and unmerge in a
// strict order and the cache never races with itself.
func (a *App) eventLoop() {
	defer a.wg.Done()
	for ev := range a.watcher.Events() {
		switch ev.Type {
		case fswatch.Changed:
			a.handleChanged(ev.SourceID, ev.Path)
		case fswatch.Deleted:
			a.handleDeleted(ev.SourceID, ev.Path)
		case fswatch.WatchError:
			a.log.Warn("watcher error", "err", ev.Err)
		}
	}
}

// handleChanged re-parses one file and swaps its contribution: subtract the
// old, add the new. The identity is captured before parsing, so a file that
// changes mid-parse looks stale on its next event and gets parsed again
// rather than cached with a too-new identity.
func (a *App) handleChanged(sourceID, path string) {
	st, ok := a.sources[sourceID]
	if !ok {
		return
	}
	key := boltcache.Key{SourceID: sourceID, Path: path}

	old, err := a.store.GetUnchecked(key)
	if err != nil {
		a.log.Warn("cache read failed", "path", path, "err", err)
	}

	identity, err := boltcache.IdentityOf(path, a.fingerprint)
	if err != nil {
		// Stat failure usually means the file vanished between the event
		// and now; treat it as a delete.
		a.handleDeleted(sourceID, path)
		return
	}

	msgs, err := st.src.ParseFile(path)
	if err != nil {
		a.logParseErrOnce(sourceID, path, err)
		a.retract(st, key, old)
		a.publish(true)
		return
	}

	contrib := stats.FromRecords(st.src.Cardinality(), msgs, a.interner)

	a.mu.Lock()
	if old != nil && old.Contribution != nil {
		old.Contribution.UnmergeFrom(st.agg)
	}
	contrib.MergeInto(st.agg)
	a.mu.Unlock()

	entry := &boltcache.Entry{
		Identity:     identity,
		Contribution: contrib,
		SessionModel: sessionModel(msgs),
		Records:      msgs,
	}
	if err := a.store.Insert(key, entry); err != nil {
		a.log.Warn("cache write failed", "path", path, "err", err)
	}
	if err := a.store.Flush(); err != nil {
		a.log.Warn("cache flush failed", "err", err)
	}
	a.publish(true)
}

// handleDeleted subtracts a removed file's contribution and drops its cache
// entry. Unknown paths are a no-op.
func (a *App) handleDeleted(sourceID, path string) {
	st, ok := a.sources[sourceID]
	if !ok {
		return
	}
	key := boltcache.Key{SourceID: sourceID, Path: path}

	old, err := a.store.GetUnchecked(key)
	if err != nil {
		a.log.Warn("cache read failed", "path", path, "err", err)
		return
	}
	if old == nil {
		return
	}
	a.retract(st, key, old)
	a.publish(true)
}

// retract unmerges a cached contribution and removes its entry.
func (a *App) retract(st *sourceState, key boltcache.Key, old *boltcache.Entry) {
	if old == nil {
		return
	}
	if old.Contribution != nil {
		a.mu.Lock()
		old.Contribution.UnmergeFrom(st.agg)
		a.mu.Unlock()
	}
	if err := a.store.Remove(key); err != nil {
		a.log.Warn("cache remove failed", "path", key.Path, "err", err)
	}
}

// sessionModel picks the session-level model scalar: the first non-empty
// model across a file's records.
func sessionModel(msgs []ports.NormalizedMessage) string {
	for i := range msgs {
		if msgs[i].Model != "" {
			return msgs[i].Model
		}
	}
	return ""
}
