package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reminderd/internal/analytics"
	"reminderd/internal/app"
	"reminderd/internal/reminder"
)

func addReports(topLevel *cobra.Command, g *globalOptions) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show totals and completion rate over the whole history.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTools(g, func(t *app.Tools) error {
				s := t.Analytics.Statistics(t.History.Entries())
				out := cmd.OutOrStdout()
				if g.JSON {
					return printJSON(out, s)
				}
				tbl := newTable("Metric", "Value")
				tbl.AddRow("total", s.Total)
				tbl.AddRow("completed", s.Completed)
				tbl.AddRow("dismissed", s.Dismissed)
				tbl.AddRow("snoozed", s.Snoozed)
				tbl.AddRow("overdue", s.Overdue)
				tbl.AddRow("completion rate", percent(s.CompletionRate))
				tbl.AddRow("overdue rate", percent(s.OverdueRate))
				for _, p := range reminder.Priorities {
					if n := s.ByPriority[p]; n > 0 {
						tbl.AddRow("priority "+priorityLabel(p), n)
					}
				}
				_, err := fmt.Fprintln(out, tbl)
				return err
			})
		},
	})

	var days int
	trends := &cobra.Command{
		Use:   "trends",
		Short: "Show per-day completions and the busiest hour and weekday.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTools(g, func(t *app.Tools) error {
				tr := t.Analytics.Trends(t.History.Entries(), days)
				out := cmd.OutOrStdout()
				if g.JSON {
					return printJSON(out, tr)
				}
				tbl := newTable("Date", "Completed", "Pending")
				for _, d := range tr.Days {
					tbl.AddRow(d.Date, d.Completed, d.Pending)
				}
				if _, err := fmt.Fprintln(out, tbl); err != nil {
					return err
				}
				peak, busiest := "-", "-"
				if tr.PeakHour >= 0 {
					peak = fmt.Sprintf("%02d:00", tr.PeakHour)
				}
				if tr.BusiestDay >= 0 {
					busiest = time.Weekday(tr.BusiestDay).String()
				}
				_, err := fmt.Fprintf(out, "\npeak hour: %s  busiest day: %s\n", peak, busiest)
				return err
			})
		},
	}
	trends.Flags().IntVar(&days, "days", analytics.DefaultTrendWindow, "window in days, today included")
	topLevel.AddCommand(trends)

	topLevel.AddCommand(&cobra.Command{
		Use:   "overdue",
		Short: "Show overdue counts, average lateness and likely reasons.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTools(g, func(t *app.Tools) error {
				o := t.Analytics.AnalyzeOverdue(t.History.Entries())
				out := cmd.OutOrStdout()
				if g.JSON {
					return printJSON(out, o)
				}
				if _, err := fmt.Fprintf(out, "overdue: %d  average: %.1f days\n", o.Count, o.AverageDays); err != nil {
					return err
				}
				if len(o.Reasons) == 0 {
					return nil
				}
				tbl := newTable("Reason", "Count")
				for _, r := range o.Reasons {
					tbl.AddRow(strings.ReplaceAll(string(r.Reason), "_", " "), r.Count)
				}
				_, err := fmt.Fprintln(out, tbl)
				return err
			})
		},
	})

	topLevel.AddCommand(&cobra.Command{
		Use:       "report weekly|monthly",
		Short:     "Summarise the trailing 7 or 30 days.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(analytics.PeriodWeekly), string(analytics.PeriodMonthly)},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := analytics.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			return withTools(g, func(t *app.Tools) error {
				r := t.Analytics.Report(t.History.Entries(), p)
				out := cmd.OutOrStdout()
				if g.JSON {
					return printJSON(out, r)
				}
				if _, err := fmt.Fprintf(out, "%s report %s .. %s\n", bold.Sprint(string(r.Period)),
					r.Start.In(t.Location).Format("2006-01-02"), r.End.In(t.Location).Format("2006-01-02")); err != nil {
					return err
				}
				tbl := newTable("Metric", "Value")
				tbl.AddRow("total", r.Total)
				actions := make([]string, 0, len(r.ByAction))
				for a := range r.ByAction {
					actions = append(actions, string(a))
				}
				sort.Strings(actions)
				for _, a := range actions {
					tbl.AddRow(actionLabel(reminder.Action(a)), r.ByAction[reminder.Action(a)])
				}
				tbl.AddRow("completion rate", percent(r.CompletionRate))
				tbl.AddRow("average per day", fmt.Sprintf("%.1f", r.AveragePerDay))
				if r.DominantPriority != "" {
					tbl.AddRow("dominant priority", priorityLabel(r.DominantPriority))
				}
				if r.ImprovementRate != nil {
					tbl.AddRow("vs all time", fmt.Sprintf("%+.1f pts", *r.ImprovementRate))
				}
				_, err := fmt.Fprintln(out, tbl)
				return err
			})
		},
	})
}
