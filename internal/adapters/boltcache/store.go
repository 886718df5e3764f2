// Package boltcache implements the durable parse cache using bbolt (embedded
// B+ tree). Each source gets its own top-level bucket with two sub-buckets:
// "hot" (path -> binary identity + packed contribution, see encoding.go) and
// "cold" (path -> JSON message records). Writes are transactional — a crash
// mid-write cannot corrupt previously committed data.
//
// The store is a cache, not a system of record: any unreadable or
// wrong-version database is deleted and recreated empty, and the caller
// proceeds as if this were a cold start.
package boltcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/corey/tally/internal/domain/stats"
	"github.com/corey/tally/internal/ports"
	bolt "go.etcd.io/bbolt"
)

// formatVersion tags the hot encoding. Bump on any layout change; a mismatch
// invalidates the whole cache rather than risking a partial read.
const formatVersion = 1

var (
	bucketMeta = []byte("meta")
	bucketHot  = []byte("hot")
	bucketCold = []byte("cold")
	keyVersion = []byte("version")
	keyModels  = []byte("models")
)

// Key identifies one cache slot: a source and an absolute file path.
type Key struct {
	SourceID string
	Path     string
}

// Entry is one cached file: its identity at parse time, its packed
// contribution (hot, always resident), the optional session-level model
// scalar, and — only when loaded on demand — its full message records.
type Entry struct {
	Identity     Identity
	Contribution *stats.Contribution
	SessionModel string
	Records      []ports.NormalizedMessage
}

// Store is the bbolt-backed cache repository. The database is opened lazily
// on first use: the first caller pays the initialization cost, concurrent
// callers wait, later callers see the opened handle.
type Store struct {
	path     string
	interner *stats.ModelInterner
	log      *slog.Logger

	mu     sync.RWMutex
	db     *bolt.DB
	opened bool
}

// New creates a Store handle without touching the filesystem.
// The interner is the process-scoped model table; persisted contributions
// reference its keys, so the store restores the table into it on open.
func New(path string, interner *stats.ModelInterner, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: path, interner: interner, log: log}
}

// ensureOpen opens the database on first use. Corruption or a version
// mismatch is recovery, not failure: the file is removed and recreated empty.
func (s *Store) ensureOpen() (*bolt.DB, error) {
	s.mu.RLock()
	if s.opened {
		db := s.db
		s.mu.RUnlock()
		return db, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return s.db, nil
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	s.db = db
	s.opened = true
	return db, nil
}

func (s *Store) open() (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		s.log.Warn("cache unreadable, starting cold", "path", s.path, "err", err)
		return s.recreate()
	}

	ok, err := s.validate(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !ok {
		db.Close()
		return s.recreate()
	}
	return db, nil
}

// validate checks the version tag and restores the persisted model table.
// Returns false when the cache must be discarded.
func (s *Store) validate(db *bolt.DB) (bool, error) {
	valid := true
	err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		stored := meta.Get(keyVersion)
		if stored == nil {
			// Fresh database: stamp it.
			return meta.Put(keyVersion, []byte{formatVersion})
		}
		if len(stored) != 1 || stored[0] != formatVersion {
			s.log.Warn("cache format version mismatch, starting cold",
				"path", s.path, "have", stored, "want", formatVersion)
			valid = false
			return nil
		}
		if raw := meta.Get(keyModels); raw != nil {
			var names []string
			if err := json.Unmarshal(raw, &names); err != nil || !s.interner.Restore(names) {
				s.log.Warn("cache model table unusable, starting cold", "path", s.path)
				valid = false
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("validate cache: %w", err)
	}
	return valid, nil
}

func (s *Store) recreate() (*bolt.DB, error) {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale cache: %w", err)
	}
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("recreate cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		return meta.Put(keyVersion, []byte{formatVersion})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("stamp cache version: %w", err)
	}
	return db, nil
}

// Close closes the underlying database if it was ever opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.opened = false
	return s.db.Close()
}

// Get returns the cached entry only if its stored identity matches current.
// A stale or absent entry is a miss (nil, nil), never an error: the caller
// reparses. Records are not loaded.
func (s *Store) Get(key Key, current Identity) (*Entry, error) {
	entry, err := s.GetUnchecked(key)
	if err != nil || entry == nil {
		return nil, err
	}
	if entry.Identity != current {
		return nil, nil
	}
	return entry, nil
}

// GetUnchecked returns the stored entry regardless of staleness. Used on the
// incremental path, where the previous contribution must be subtracted even
// though the file has since changed. Records are not loaded.
func (s *Store) GetUnchecked(key Key) (*Entry, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = db.View(func(tx *bolt.Tx) error {
		hot := sourceBucket(tx, key.SourceID, bucketHot)
		if hot == nil {
			return nil
		}
		if v := hot.Get([]byte(key.Path)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	entry, err := decodeHot(raw)
	if err != nil {
		// One corrupt entry does not poison the cache: drop it and miss.
		s.log.Warn("corrupt cache entry dropped", "source", key.SourceID, "path", key.Path, "err", err)
		_ = s.Remove(key)
		return nil, nil
	}
	return entry, nil
}

// Insert replaces any existing entry at key. Hot and cold blobs are written
// in one transaction.
func (s *Store) Insert(key Key, entry *Entry) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	hotBlob, err := encodeHot(entry)
	if err != nil {
		return fmt.Errorf("encode hot entry: %w", err)
	}
	coldBlob, err := json.Marshal(entry.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	return db.Update(func(tx *bolt.Tx) error {
		src, err := tx.CreateBucketIfNotExists([]byte(key.SourceID))
		if err != nil {
			return err
		}
		hot, err := src.CreateBucketIfNotExists(bucketHot)
		if err != nil {
			return err
		}
		cold, err := src.CreateBucketIfNotExists(bucketCold)
		if err != nil {
			return err
		}
		if err := hot.Put([]byte(key.Path), hotBlob); err != nil {
			return err
		}
		return cold.Put([]byte(key.Path), coldBlob)
	})
}

// Remove deletes the entry at key. Removing an absent key is not an error.
func (s *Store) Remove(key Key) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		for _, sub := range [][]byte{bucketHot, bucketCold} {
			if b := sourceBucket(tx, key.SourceID, sub); b != nil {
				if err := b.Delete([]byte(key.Path)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// PruneDeleted removes every cached path for sourceID absent from live and
// returns the removed entries so the caller can subtract their contributions.
func (s *Store) PruneDeleted(sourceID string, live map[string]bool) (map[string]*Entry, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	removed := make(map[string]*Entry)
	err = db.Update(func(tx *bolt.Tx) error {
		hot := sourceBucket(tx, sourceID, bucketHot)
		if hot == nil {
			return nil
		}
		cold := sourceBucket(tx, sourceID, bucketCold)

		var dead [][]byte
		c := hot.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if live[string(k)] {
				continue
			}
			if entry, err := decodeHot(v); err == nil {
				removed[string(k)] = entry
			}
			dead = append(dead, append([]byte(nil), k...))
		}
		for _, k := range dead {
			if err := hot.Delete(k); err != nil {
				return err
			}
			if cold != nil {
				if err := cold.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// LoadHot returns every hot entry for a source, keyed by path. This is the
// startup fold: one pass over compact blobs, no cold reads, so startup cost
// scales with file count rather than message volume.
func (s *Store) LoadHot(sourceID string) (map[string]*Entry, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	entries := make(map[string]*Entry)
	err = db.View(func(tx *bolt.Tx) error {
		hot := sourceBucket(tx, sourceID, bucketHot)
		if hot == nil {
			return nil
		}
		return hot.ForEach(func(k, v []byte) error {
			entry, err := decodeHot(v)
			if err != nil {
				s.log.Warn("corrupt cache entry skipped", "source", sourceID, "path", string(k), "err", err)
				return nil
			}
			entries[string(k)] = entry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadRecords loads the cold message records for key on demand.
// Returns nil, nil when nothing is cached.
func (s *Store) LoadRecords(key Key) ([]ports.NormalizedMessage, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = db.View(func(tx *bolt.Tx) error {
		cold := sourceBucket(tx, key.SourceID, bucketCold)
		if cold == nil {
			return nil
		}
		if v := cold.Get([]byte(key.Path)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var records []ports.NormalizedMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// Paths returns every cached path for a source.
func (s *Store) Paths(sourceID string) ([]string, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	var paths []string
	err = db.View(func(tx *bolt.Tx) error {
		hot := sourceBucket(tx, sourceID, bucketHot)
		if hot == nil {
			return nil
		}
		return hot.ForEach(func(k, _ []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// Flush persists the current model table. Entry writes are already durable
// per transaction; the table is written here so the interner keys referenced
// by persisted contributions survive a restart. Fails soft at call sites.
func (s *Store) Flush() error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	names, err := json.Marshal(s.interner.Names())
	if err != nil {
		return fmt.Errorf("encode model table: %w", err)
	}
	return db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		return meta.Put(keyModels, names)
	})
}

func sourceBucket(tx *bolt.Tx, sourceID string, sub []byte) *bolt.Bucket {
	src := tx.Bucket([]byte(sourceID))
	if src == nil {
		return nil
	}
	return src.Bucket(sub)
}
