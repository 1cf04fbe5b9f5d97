package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/backdrop/internal/journal"
	"github.com/jmylchreest/backdrop/internal/settings"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

var (
	// Stats command flags
	statsRecent int
	statsJSON   bool
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the result journal",
	Long: `Show per-strategy run counts, failures, fallbacks and average processing
time from the result journal, optionally followed by the most recent results.

Examples:
  backdrop stats
  backdrop stats --recent 10`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVarP(&statsRecent, "recent", "n", 0, "also list the most recent results")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr())

	store, err := settings.New(logger, settings.Options{Path: configPath})
	if err != nil {
		return err
	}
	j, err := journal.Open(strategy.String(store, strategy.KeyJournalPath, journal.DefaultPath()))
	if err != nil {
		return err
	}
	defer j.Close()

	summary, err := j.Summary(ctx)
	if err != nil {
		return err
	}
	var recent []journal.Entry
	if statsRecent > 0 {
		if recent, err = j.Recent(ctx, statsRecent); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Journal string            `json:"journal"`
			Summary []journal.Summary `json:"summary"`
			Recent  []journal.Entry   `json:"recent,omitempty"`
		}{j.Path(), summary, recent})
	}

	if len(summary) == 0 {
		fmt.Fprintf(out, "No results recorded in %s\n", j.Path())
		return nil
	}

	table := NewTable([]string{"STRATEGY", "RUNS", "FAILURES", "FALLBACKS", "AVG MS", "LAST RUN"})
	for _, s := range summary {
		table.AddRow([]string{
			s.Strategy,
			strconv.Itoa(s.Runs),
			countLabel(s.Failures, color.RedString),
			countLabel(s.Fallbacks, color.YellowString),
			fmt.Sprintf("%.1f", s.AvgMs),
			s.LastRun.Local().Format(time.DateTime),
		})
	}
	fmt.Fprint(out, table.Render())

	if len(recent) > 0 {
		fmt.Fprintln(out)
		table = NewTable([]string{"TIME", "TRACK", "STRATEGIES", "ACCENT", "RENDER", "ERROR"})
		table.SetColumnMaxWidth(1, 32)
		table.SetColumnMaxWidth(5, 40)
		for _, e := range recent {
			table.AddRow([]string{
				e.CreatedAt.Local().Format(time.TimeOnly),
				e.TrackURI,
				strings.Join(e.Contributors, ","),
				e.AccentHex,
				e.RenderTier,
				e.Error,
			})
		}
		fmt.Fprint(out, table.Render())
	}
	return nil
}

// countLabel colours non-zero counts.
func countLabel(n int, paint func(string, ...any) string) string {
	if n == 0 {
		return "0"
	}
	return paint("%d", n)
}
