package app

import (
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/corey/tally/internal/adapters/boltcache"
	"github.com/corey/tally/internal/domain/stats"
)

// loadSource builds one source's aggregate from scratch: discover the
// current files, reuse every cache entry whose identity still matches, parse
// the rest in parallel, prune entries for files that no longer exist, then
// fold all contributions into a fresh aggregate. Runs before the watcher
// starts, so nothing else touches the aggregate.
func (a *App) loadSource(st *sourceState) {
	id := st.src.ID()

	files, err := st.src.DiscoverFiles()
	if err != nil {
		a.log.Warn("discovery failed", "source", id, "err", err)
		files = nil
	}

	cached, err := a.store.LoadHot(id)
	if err != nil {
		a.log.Warn("cache load failed, reparsing everything", "source", id, "err", err)
		cached = nil
	}

	var (
		mu       sync.Mutex
		reused   int
		contribs = make(map[string]*stats.Contribution, len(files))
	)
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, path := range files {
		path := path
		g.Go(func() error {
			key := boltcache.Key{SourceID: id, Path: path}

			identity, err := boltcache.IdentityOf(path, a.fingerprint)
			if err != nil {
				// Discovered but already gone; skip it.
				return nil
			}

			if entry, ok := cached[path]; ok && entry.Identity == identity {
				mu.Lock()
				reused++
				contribs[path] = entry.Contribution
				mu.Unlock()
				return nil
			}

			msgs, err := st.src.ParseFile(path)
			if err != nil {
				a.logParseErrOnce(id, path, err)
				if err := a.store.Remove(key); err != nil {
					a.log.Warn("cache remove failed", "path", path, "err", err)
				}
				return nil
			}

			contrib := stats.FromRecords(st.src.Cardinality(), msgs, a.interner)
			entry := &boltcache.Entry{
				Identity:     identity,
				Contribution: contrib,
				SessionModel: sessionModel(msgs),
				Records:      msgs,
			}
			if err := a.store.Insert(key, entry); err != nil {
				a.log.Warn("cache write failed", "path", path, "err", err)
			}

			mu.Lock()
			contribs[path] = contrib
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	live := make(map[string]bool, len(files))
	for _, path := range files {
		live[path] = true
	}
	if _, err := a.store.PruneDeleted(id, live); err != nil {
		a.log.Warn("cache prune failed", "source", id, "err", err)
	}

	// Fold in path order so equal inputs produce an identical aggregate.
	paths := make([]string, 0, len(contribs))
	for path := range contribs {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	agg := stats.NewAggregateView(id)
	for _, path := range paths {
		if c := contribs[path]; c != nil {
			c.MergeInto(agg)
		}
	}

	a.mu.Lock()
	st.agg = agg
	a.mu.Unlock()

	a.log.Info("source loaded",
		"source", id,
		"files", len(files),
		"reused", reused,
		"sessions", len(agg.BySession),
		"days", len(agg.ByDate))
}
