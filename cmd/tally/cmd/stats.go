package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/corey/tally/internal/domain/stats"
)

var statsSource string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Per-day usage statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsSource, "source", "", "Limit output to one source id")
}

func runStats(cmd *cobra.Command, args []string) error {
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
	fmt.Fprintln(w, "SOURCE\tDATE\tMSGS\tTOOLS\tIN\tOUT\tCACHE R\tCACHE W\tCOST")
	for _, id := range sourceOrder(snap.Sources) {
		if statsSource != "" && id != statsSource {
			continue
		}
		agg := snap.Sources[id]
		for _, date := range agg.Dates() {
			day := agg.ByDate[date]
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t$%.2f\n",
				id, date, day.Messages, day.ToolCalls,
				day.InputTokens, day.OutputTokens,
				day.CacheReadTokens, day.CacheWriteTokens,
				day.CostUSD())
		}
	}
	return w.Flush()
}

func sourceOrder(m map[string]*stats.AggregateView) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
