// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. The aggregation core
// depends only on these interfaces, never on concrete vendor formats.
package ports

import "time"

// Source is the contract every usage-log provider implements. One adapter per
// AI coding tool (Claude Code, Gemini CLI, shared agent databases, ...).
// The core never interprets vendor file formats itself: it discovers, parses,
// and watches exclusively through this interface.
type Source interface {
	// ID returns the stable source identifier (e.g., "claude"). Used as the
	// cache namespace and the routing key for watcher events.
	ID() string

	// Cardinality declares how this source's files map to message records.
	// It selects which contribution representation the core packs per file.
	Cardinality() Cardinality

	// DiscoverFiles returns the absolute paths of every usage-log file this
	// source currently knows about. A missing root directory is not an
	// error — it returns an empty slice (the tool may not be installed).
	DiscoverFiles() ([]string, error)

	// ParseFile parses a single source file into normalized records.
	// Failures are source-specific errors; the core treats any failure as
	// "no contribution this round", logs it, and continues.
	ParseFile(path string) ([]NormalizedMessage, error)

	// WatchedDirectories returns the root directories to observe for
	// create/modify/delete events. Feeds the watcher's routing table.
	WatchedDirectories() []string
}

// Cardinality describes the file-to-record layout of a source.
type Cardinality int

const (
	// SingleMessage: each file holds exactly one message record.
	SingleMessage Cardinality = iota

	// SingleSession: each file holds many messages of one session.
	SingleSession

	// MultiSession: one file (e.g., a shared database) holds messages
	// spanning many independent sessions.
	MultiSession
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	switch c {
	case SingleMessage:
		return "single_message"
	case SingleSession:
		return "single_session"
	case MultiSession:
		return "multi_session"
	default:
		return "unknown"
	}
}

// NormalizedMessage is the canonical representation of one billable message,
// regardless of which tool produced it. Adapters populate what their source
// provides; absent fields stay zero.
type NormalizedMessage struct {
	// SessionID identifies the session this message belongs to.
	SessionID string `json:"session_id"`

	// SessionName is an optional human-readable session title. Some sources
	// state it once per file rather than per message.
	SessionName string `json:"session_name,omitempty"`

	// Timestamp is when the message was produced. Zero if unparseable.
	Timestamp time.Time `json:"timestamp"`

	// Model is the raw model identifier (e.g., "claude-opus-4-20250514").
	Model string `json:"model,omitempty"`

	// Token counts for this message.
	InputTokens      int64 `json:"input_tokens,omitempty"`
	OutputTokens     int64 `json:"output_tokens,omitempty"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`

	// ToolCalls is the number of tool invocations in this message.
	ToolCalls int `json:"tool_calls,omitempty"`

	// CostUSD is the estimated cost of this message in dollars.
	// Computed by the adapter from its pricing knowledge.
	CostUSD float64 `json:"cost_usd,omitempty"`
}

// TotalTokens returns the sum of all token counters.
func (m *NormalizedMessage) TotalTokens() int64 {
	return m.InputTokens + m.OutputTokens + m.CacheReadTokens + m.CacheWriteTokens
}
