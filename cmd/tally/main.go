// tally aggregates AI session usage logs into per-day and per-session
// statistics, kept current by a filesystem watcher and a persistent cache.
package main

import (
	"os"

	"github.com/corey/tally/cmd/tally/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
