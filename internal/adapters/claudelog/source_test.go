package claudelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/tally/internal/ports"
)

const sampleLog = `{"type":"summary","summary":"refactor the parser"}
{"type":"user","sessionId":"sess-1","timestamp":"2026-03-10T09:00:00Z","message":{"content":"hello"}}
{"type":"assistant","sessionId":"sess-1","timestamp":"2026-03-10T09:00:05Z","message":{"model":"claude-opus-4","content":[{"type":"text","text":"hi"},{"type":"tool_use","name":"Read"},{"type":"tool_use","name":"Bash"}],"usage":{"input_tokens":1200,"output_tokens":340,"cache_read_input_tokens":5000,"cache_creation_input_tokens":800}}}
not json at all
{"type":"assistant","sessionId":"sess-1","timestamp":"2026-03-10T09:01:00Z","message":{"model":"claude-opus-4","content":"plain text","usage":{"input_tokens":0,"output_tokens":0,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}}
{"type":"assistant","sessionId":"sess-1","timestamp":"2026-03-10T09:02:00Z","message":{"model":"claude-sonnet-4","content":[{"type":"text","text":"done"}],"usage":{"input_tokens":50,"output_tokens":20,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}}
`

func writeLog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFile(t *testing.T) {
	src := New("/unused")
	path := writeLog(t, "sess-1.jsonl", sampleLog)

	msgs, err := src.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, msgs, 2) // zero-usage and non-assistant lines skipped

	first := msgs[0]
	assert.Equal(t, "sess-1", first.SessionID)
	assert.Equal(t, "refactor the parser", first.SessionName)
	assert.Equal(t, "claude-opus-4", first.Model)
	assert.Equal(t, int64(1200), first.InputTokens)
	assert.Equal(t, int64(340), first.OutputTokens)
	assert.Equal(t, int64(5000), first.CacheReadTokens)
	assert.Equal(t, int64(800), first.CacheWriteTokens)
	assert.Equal(t, 2, first.ToolCalls)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 5, 0, time.UTC), first.Timestamp.UTC())
	assert.Greater(t, first.CostUSD, 0.0)

	second := msgs[1]
	assert.Equal(t, "claude-sonnet-4", second.Model)
	assert.Equal(t, 0, second.ToolCalls)
	assert.Equal(t, "refactor the parser", second.SessionName)
}

func TestParseFile_SessionFromFilename(t *testing.T) {
	src := New("/unused")
	path := writeLog(t, "abc-123.jsonl",
		`{"type":"assistant","message":{"model":"claude-opus-4","usage":{"input_tokens":10,"output_tokens":5}}}`+"\n")

	msgs, err := src.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "abc-123", msgs[0].SessionID)
	assert.True(t, msgs[0].Timestamp.IsZero())
}

func TestParseFile_EmptyFile(t *testing.T) {
	src := New("/unused")
	path := writeLog(t, "empty.jsonl", "")

	msgs, err := src.ParseFile(path)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestParseFile_RejectsNonLog(t *testing.T) {
	src := New("/unused")
	_, err := src.ParseFile("/tmp/whatever.txt")
	assert.Error(t, err)
}

func TestDiscoverFiles(t *testing.T) {
	root := t.TempDir()
	proj := filepath.Join(root, "proj-a")
	require.NoError(t, os.Mkdir(proj, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(proj, "s1.jsonl"), []byte("{}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(proj, "notes.txt"), []byte("x"), 0644))

	src := New(root)
	files, err := src.DiscoverFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(proj, "s1.jsonl"), files[0])
}

func TestDiscoverFiles_MissingRoot(t *testing.T) {
	src := New(filepath.Join(t.TempDir(), "nope"))
	files, err := src.DiscoverFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSource_Contract(t *testing.T) {
	src := New("/logs")
	assert.Equal(t, "claude", src.ID())
	assert.Equal(t, ports.SingleSession, src.Cardinality())
	assert.Equal(t, []string{"/logs"}, src.WatchedDirectories())
}
