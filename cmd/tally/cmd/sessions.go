package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/corey/tally/internal/app"
	"github.com/corey/tally/internal/domain/stats"
)

var (
	sessionsSource string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Per-session usage statistics, newest first",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsSource, "source", "", "Limit output to one source id")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum sessions per source (0 = all)")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, false)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}
	defer a.Stop()

	snap := a.Snapshot()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSESSION\tFIRST SEEN\tMSGS\tTOKENS\tMODELS\tCOST")
	for _, id := range sourceOrder(snap.Sources) {
		if sessionsSource != "" && id != sessionsSource {
			continue
		}
		agg := snap.Sources[id]
		for i, sid := range agg.SessionIDs() {
			if sessionsLimit > 0 && i >= sessionsLimit {
				break
			}
			sess := agg.BySession[sid]
			name := sess.DisplayName()
			if name == "" {
				name = sid
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t$%.2f\n",
				id, truncate(name, 48), firstSeenLabel(sess.FirstSeen()),
				sess.Messages, sess.TotalTokens(), modelLabel(a, sess.Models),
				sess.CostUSD())
		}
	}
	return w.Flush()
}

// modelLabel renders a session's model set, heaviest first.
func modelLabel(a *app.App, models map[stats.ModelKey]int64) string {
	if len(models) == 0 {
		return "-"
	}
	keys := make([]stats.ModelKey, 0, len(models))
	for k := range models {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if models[keys[i]] != models[keys[j]] {
			return models[keys[i]] > models[keys[j]]
		}
		return keys[i] < keys[j]
	})
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if name := a.ModelName(k); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func firstSeenLabel(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).Format("2006-01-02 15:04")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
