// Package claudelog implements ports.Source for Claude Code session logs.
//
// Claude Code writes one JSONL file per session under
// ~/.claude/projects/<project>/<session-id>.jsonl. The format is undocumented
// and changes across versions, so parsing is defensive: malformed lines are
// skipped, missing fields stay zero, and only assistant messages with usage
// data become records. One file is one session (SingleSession cardinality).
package claudelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corey/tally/internal/ports"
)

// SourceID is the cache namespace and watcher routing key for Claude Code.
const SourceID = "claude"

// Source reads Claude Code JSONL session logs.
type Source struct {
	root string
}

// New creates a Source rooted at dir. An empty dir resolves to the default
// ~/.claude/projects.
func New(dir string) *Source {
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".claude", "projects")
		}
	}
	return &Source{root: dir}
}

// ID returns "claude".
func (s *Source) ID() string { return SourceID }

// Cardinality returns SingleSession: one file, one session, many messages.
func (s *Source) Cardinality() ports.Cardinality { return ports.SingleSession }

// WatchedDirectories returns the projects root.
func (s *Source) WatchedDirectories() []string {
	if s.root == "" {
		return nil
	}
	return []string{s.root}
}

// DiscoverFiles returns every session log under the root. A missing root
// means Claude Code is not installed here: empty result, no error.
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
			return nil // skip inaccessible paths
		}
		if !info.IsDir() && strings.HasSuffix(path, ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// jsonlLine is the subset of the session log schema we consume.
type jsonlLine struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	Summary   string `json:"summary"`
	Message   struct {
		Model   string          `json:"model"`
		Content json.RawMessage `json:"content"`
		Usage   struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// ParseFile parses one session log into normalized records. Each assistant
// line with usage data becomes one record; summary lines name the session.
func (s *Source) ParseFile(path string) ([]ports.NormalizedMessage, error) {
	if !strings.HasSuffix(path, ".jsonl") {
		return nil, fmt.Errorf("not a session log: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Fallback session identity when lines omit sessionId.
	fileSession := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	var msgs []ports.NormalizedMessage
	var sessionName string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 10<<20)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line jsonlLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue // malformed line, not a malformed file
		}

		if line.Type == "summary" && line.Summary != "" {
			sessionName = line.Summary
			continue
		}
		if line.Type != "assistant" {
			continue
		}

		u := line.Message.Usage
		if u.InputTokens == 0 && u.OutputTokens == 0 &&
			u.CacheReadInputTokens == 0 && u.CacheCreationInputTokens == 0 {
			continue
		}

		sessionID := line.SessionID
		if sessionID == "" {
			sessionID = fileSession
		}

		var ts time.Time
		if line.Timestamp != "" {
			ts, _ = time.Parse(time.RFC3339, line.Timestamp)
		}

		msgs = append(msgs, ports.NormalizedMessage{
			SessionID:        sessionID,
			Timestamp:        ts,
			Model:            line.Message.Model,
			InputTokens:      u.InputTokens,
			OutputTokens:     u.OutputTokens,
			CacheReadTokens:  u.CacheReadInputTokens,
			CacheWriteTokens: u.CacheCreationInputTokens,
			ToolCalls:        countToolUses(line.Message.Content),
			CostUSD: costUSD(line.Message.Model, u.InputTokens, u.OutputTokens,
				u.CacheReadInputTokens, u.CacheCreationInputTokens),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	if sessionName != "" {
		for i := range msgs {
			msgs[i].SessionName = sessionName
		}
	}
	return msgs, nil
}

// countToolUses counts tool_use blocks in an assistant content array.
// Older logs use plain string content; that counts as zero.
func countToolUses(content json.RawMessage) int {
	if len(content) == 0 {
		return 0
	}
	var blocks []struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(content, &blocks); err != nil {
		return 0
	}
	n := 0
	for _, b := range blocks {
		if b.Type == "tool_use" {
			n++
		}
	}
	return n
}
