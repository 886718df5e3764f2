package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type CacheConfig struct {
	Path        string `yaml:"path"`
	Fingerprint bool   `yaml:"fingerprint"`
}

type SourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root"`
}

type UploadConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	DebounceSeconds int    `yaml:"debounce_seconds"`
}

type Config struct {
	Cache   CacheConfig  `yaml:"cache"`
	Claude  SourceConfig `yaml:"claude"`
	Gemini  SourceConfig `yaml:"gemini"`
	AgentDB SourceConfig `yaml:"agentdb"`
	Upload  UploadConfig `yaml:"upload"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Cache: CacheConfig{
			Path: filepath.Join(homeDir, ".cache", "tally", "tally.db"),
		},
		Claude: SourceConfig{
			Enabled: true,
			Root:    filepath.Join(homeDir, ".claude", "projects"),
		},
		Gemini: SourceConfig{
			Enabled: true,
			Root:    filepath.Join(homeDir, ".gemini", "usage"),
		},
		AgentDB: SourceConfig{
			Enabled: false,
			Root:    filepath.Join(homeDir, ".agent", "history.db"),
		},
		Upload: UploadConfig{
			DebounceSeconds: 30,
		},
	}
}

func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "tally", "config.yaml")
}

func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) UploadDebounce() time.Duration {
	return time.Duration(c.Upload.DebounceSeconds) * time.Second
}
