// Package geminilog implements ports.Source for per-turn JSON usage logs as
// written by Gemini CLI style tools: one JSON document per file, one message
// each (SingleMessage cardinality). The simplest possible adapter — it exists
// because some tools log turns, not sessions.
package geminilog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corey/tally/internal/ports"
)

// SourceID is the cache namespace and watcher routing key for this source.
const SourceID = "gemini"

// Source reads one-message-per-file JSON usage logs.
type Source struct {
	root string
}

// New creates a Source rooted at dir. An empty dir resolves to the default
// ~/.gemini/usage.
func New(dir string) *Source {
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".gemini", "usage")
		}
	}
	return &Source{root: dir}
}

// ID returns "gemini".
func (s *Source) ID() string { return SourceID }

// Cardinality returns SingleMessage: one file, one record.
func (s *Source) Cardinality() ports.Cardinality { return ports.SingleMessage }

// WatchedDirectories returns the usage root.
func (s *Source) WatchedDirectories() []string {
	if s.root == "" {
		return nil
	}
	return []string{s.root}
}

// DiscoverFiles returns every .json turn log under the root.
func (s *Source) DiscoverFiles() ([]string, error) {
	if s.root == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

type turnLog struct {
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
	Tokens    struct {
		Input  int64 `json:"input"`
		Output int64 `json:"output"`
		Cached int64 `json:"cached"`
	} `json:"tokens"`
	ToolCalls int     `json:"tool_calls"`
	CostUSD   float64 `json:"cost_usd"`
}

// ParseFile parses one turn log into exactly one record.
func (s *Source) ParseFile(path string) ([]ports.NormalizedMessage, error) {
	if !strings.HasSuffix(path, ".json") {
		return nil, fmt.Errorf("not a turn log: %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var turn turnLog
	if err := json.Unmarshal(raw, &turn); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var ts time.Time
	if turn.Timestamp != "" {
		ts, _ = time.Parse(time.RFC3339, turn.Timestamp)
	}

	return []ports.NormalizedMessage{{
		SessionID:       turn.SessionID,
		Timestamp:       ts,
		Model:           turn.Model,
		InputTokens:     turn.Tokens.Input,
		OutputTokens:    turn.Tokens.Output,
		CacheReadTokens: turn.Tokens.Cached,
		ToolCalls:       turn.ToolCalls,
		CostUSD:         turn.CostUSD,
	}}, nil
}
