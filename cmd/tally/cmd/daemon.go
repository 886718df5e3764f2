package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the watcher daemon",
	Long:  "Loads all sources, then keeps the statistics current as log files change. Runs until interrupted.",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	a, err := buildApp(cfg, true)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := a.Start(); err != nil {
		return err
	}

	snap := a.Snapshot()
	fmt.Printf("tally daemon started (generation %d, %d sources)\n", snap.Generation, len(snap.Sources))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nshutting down...")
	return a.Stop()
}
