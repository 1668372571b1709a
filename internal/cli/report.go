package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"focustrack/internal/app"
	"focustrack/internal/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise time per task over recent days",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().Int("days", 7, "Number of days, ending today")
	reportCmd.Flags().String("to", "", "Last day of the report (YYYY-MM-DD, default today)")
}

func runReport(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	if days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	to, err := dayFlag(cmd, "to")
	if err != nil {
		return err
	}
	from := to.AddDate(0, 0, -(days - 1))

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		summary, err := a.Summary(ctx, from, to)
		if err != nil {
			return err
		}
		printReport(cmd, summary, types.DateKey(from), types.DateKey(to))
		return nil
	})
}

func printReport(cmd *cobra.Command, summary []types.TaskSummary, from, to string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report %s .. %s\n\n", from, to)

	var total int64
	for _, s := range summary {
		if s.RangeSeconds == 0 {
			continue
		}
		total += s.RangeSeconds
		fmt.Fprintf(out, "%4d  %-30s  %9s  (all time %s, %d%%)\n",
			s.ID, truncate(s.Title, 30), formatSeconds(s.RangeSeconds), formatSeconds(s.TimeSpent), s.PercentComplete)

		dates := make([]string, 0, len(s.ByDate))
		for d := range s.ByDate {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		for _, d := range dates {
			fmt.Fprintf(out, "        %s  %9s\n", d, formatSeconds(s.ByDate[d]))
		}
	}
	if total == 0 {
		fmt.Fprintln(out, "No time recorded.")
		return
	}
	fmt.Fprintf(out, "\nTotal %s\n", formatSeconds(total))
}
