// Package agentdb implements ports.Source for agents that keep their history
// in a shared SQLite database rather than per-session files. The whole
// database is one parse unit spanning many sessions (MultiSession
// cardinality): any write to it re-reads the messages table and yields one
// contribution covering every session inside.
package agentdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/corey/tally/internal/ports"
	_ "modernc.org/sqlite"
)

// SourceID is the cache namespace and watcher routing key for this source.
const SourceID = "agentdb"

// Source reads a shared agent-history SQLite database.
type Source struct {
	dbPath string
}

// New creates a Source for the database at dbPath. An empty path resolves to
// the default ~/.agent/history.db.
func New(dbPath string) *Source {
	if dbPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dbPath = filepath.Join(home, ".agent", "history.db")
		}
	}
	return &Source{dbPath: dbPath}
}

// ID returns "agentdb".
func (s *Source) ID() string { return SourceID }

// Cardinality returns MultiSession: one file, many sessions.
func (s *Source) Cardinality() ports.Cardinality { return ports.MultiSession }

// WatchedDirectories returns the database's parent directory. SQLite writes
// through -wal/-shm siblings, so watching the file alone would miss updates.
func (s *Source) WatchedDirectories() []string {
	if s.dbPath == "" {
		return nil
	}
	return []string{filepath.Dir(s.dbPath)}
}

// DiscoverFiles returns the database path if it exists.
func (s *Source) DiscoverFiles() ([]string, error) {
	if s.dbPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.dbPath); os.IsNotExist(err) {
		return nil, nil
	}
	return []string{s.dbPath}, nil
}

// ParseFile reads the messages table into normalized records. Only the
// database file itself is parseable; sibling paths from the watched
// directory (-wal, -shm, unrelated files) are rejected so they stay out of
// the aggregate.
func (s *Source) ParseFile(path string) ([]ports.NormalizedMessage, error) {
	if path != s.dbPath {
		return nil, fmt.Errorf("not the history database: %s", path)
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT m.session_id,
		       COALESCE(s.title, ''),
		       COALESCE(m.created_at, 0),
		       COALESCE(m.model, ''),
		       COALESCE(m.input_tokens, 0),
		       COALESCE(m.output_tokens, 0),
		       COALESCE(m.cache_read_tokens, 0),
		       COALESCE(m.cache_write_tokens, 0),
		       COALESCE(m.tool_calls, 0),
		       COALESCE(m.cost_usd, 0)
		FROM messages m
		LEFT JOIN sessions s ON s.id = m.session_id
		ORDER BY m.created_at`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	var msgs []ports.NormalizedMessage
	for rows.Next() {
		var m ports.NormalizedMessage
		var createdAt int64
		if err := rows.Scan(&m.SessionID, &m.SessionName, &createdAt, &m.Model,
			&m.InputTokens, &m.OutputTokens, &m.CacheReadTokens,
			&m.CacheWriteTokens, &m.ToolCalls, &m.CostUSD); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if createdAt > 0 {
			m.Timestamp = time.Unix(createdAt, 0)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return msgs, nil
}
