package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Claude.Enabled)
	assert.True(t, cfg.Gemini.Enabled)
	assert.False(t, cfg.AgentDB.Enabled)
	assert.NotEmpty(t, cfg.Cache.Path)
	assert.Equal(t, 30*time.Second, cfg.UploadDebounce())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  path: /var/lib/tally/tally.db
  fingerprint: true
claude:
  enabled: false
agentdb:
  enabled: true
  root: /data/history.db
upload:
  enabled: true
  endpoint: https://example.com/ingest
  debounce_seconds: 5
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tally/tally.db", cfg.Cache.Path)
	assert.True(t, cfg.Cache.Fingerprint)
	assert.False(t, cfg.Claude.Enabled)
	assert.True(t, cfg.AgentDB.Enabled)
	assert.Equal(t, "/data/history.db", cfg.AgentDB.Root)
	assert.True(t, cfg.Upload.Enabled)
	assert.Equal(t, 5*time.Second, cfg.UploadDebounce())
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache: ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
