package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corey/tally/internal/adapters/agentdb"
	"github.com/corey/tally/internal/adapters/claudelog"
	"github.com/corey/tally/internal/adapters/geminilog"
	"github.com/corey/tally/internal/adapters/httpsink"
	"github.com/corey/tally/internal/app"
	"github.com/corey/tally/internal/config"
	"github.com/corey/tally/internal/ports"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "tally — AI usage statistics",
	Long:  "Aggregates Claude, Gemini, and agent-database usage logs into per-day and per-session statistics, kept current by a filesystem watcher.",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(wipeCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildApp wires the enabled sources and the optional upload sink into a
// coordinator. withUpload is off for one-shot commands so that reading stats
// never triggers a network call.
func buildApp(cfg *config.Config, withUpload bool) (*app.App, error) {
	var sources []ports.Source
	if cfg.Claude.Enabled {
		sources = append(sources, claudelog.New(cfg.Claude.Root))
	}
	if cfg.Gemini.Enabled {
		sources = append(sources, geminilog.New(cfg.Gemini.Root))
	}
	if cfg.AgentDB.Enabled {
		sources = append(sources, agentdb.New(cfg.AgentDB.Root))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("all sources disabled in config")
	}

	appCfg := app.Config{
		Sources:     sources,
		CachePath:   cfg.Cache.Path,
		Fingerprint: cfg.Cache.Fingerprint,
	}
	if withUpload && cfg.Upload.Enabled && cfg.Upload.Endpoint != "" {
		appCfg.Sink = httpsink.New(cfg.Upload.Endpoint)
		appCfg.UploadDebounce = cfg.UploadDebounce()
	}
	return app.New(appCfg)
}
