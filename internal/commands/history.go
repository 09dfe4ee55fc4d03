package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reminderd/internal/app"
	"reminderd/internal/history"
	"reminderd/internal/reminder"
)

type historyFilter struct {
	Text     string
	Actions  []string
	Priority []string
	Bucket   string
	Limit    int
	Newest   bool
}

func (f *historyFilter) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Text, "search", "s", "", "match titles containing this text")
	cmd.Flags().StringSliceVarP(&f.Actions, "action", "a", nil, "completed, dismissed or snoozed (repeatable)")
	cmd.Flags().StringSliceVarP(&f.Priority, "priority", "p", nil, "high, medium, low or normal (repeatable)")
	cmd.Flags().StringVarP(&f.Bucket, "when", "w", "all", "all, today, yesterday, this_week or this_month")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 0, "maximum entries (0 means all)")
}

func (f *historyFilter) query() (history.Query, error) {
	b, err := history.ParseBucket(f.Bucket)
	if err != nil {
		return history.Query{}, err
	}
	q := history.Query{Text: f.Text, Bucket: b, Limit: f.Limit, Newest: f.Newest}
	for _, s := range f.Actions {
		a, err := parseAction(s)
		if err != nil {
			return history.Query{}, err
		}
		q.Actions = append(q.Actions, a)
	}
	for _, s := range f.Priority {
		q.Priorities = append(q.Priorities, reminder.ParsePriority(s))
	}
	return q, nil
}

// parseAction accepts the recorded action names and their verb forms.
func parseAction(s string) (reminder.Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete", "done":
		return reminder.ActionComplete, nil
	case "dismissed", "dismiss":
		return reminder.ActionDismiss, nil
	case "snoozed", "snooze":
		return reminder.ActionSnooze, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

func addHistory(topLevel *cobra.Command, g *globalOptions) {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, export and import the action history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	lf := &historyFilter{Newest: true}
	list := &cobra.Command{
		Use:   "list",
		Short: "List history entries, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := lf.query()
			if err != nil {
				return err
			}
			return withTools(g, func(t *app.Tools) error {
				entries := t.History.Query(q)
				out := cmd.OutOrStdout()
				if g.JSON {
					return printJSON(out, entries)
				}
				if len(entries) == 0 {
					_, err := fmt.Fprintln(out, faint.Sprint("no history"))
					return err
				}
				tbl := newTable("When", "Action", "Priority", "Title", "ID")
				for _, e := range entries {
					tbl.AddRow(stamp(e.Timestamp, t.Location), actionLabel(e.Action), priorityLabel(e.Priority), e.Title, faint.Sprint(e.ReminderID))
				}
				_, err := fmt.Fprintln(out, tbl)
				return err
			})
		},
	}
	lf.addFlags(list)
	cmd.AddCommand(list)

	var outPath string
	ef := &historyFilter{}
	export := &cobra.Command{
		Use:   "export",
		Short: "Write history as a JSON document.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ef.query()
			if err != nil {
				return err
			}
			return withTools(g, func(t *app.Tools) error {
				var w io.Writer = cmd.OutOrStdout()
				if outPath != "" && outPath != "-" {
					f, err := os.Create(outPath)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				if err := t.History.Export(w, &q); err != nil {
					return err
				}
				if outPath != "" && outPath != "-" {
					fmt.Fprintf(cmd.ErrOrStderr(), "exported to %s\n", outPath)
				}
				return nil
			})
		},
	}
	ef.addFlags(export)
	export.Flags().StringVarP(&outPath, "output", "o", "-", "file to write, - for stdout")
	cmd.AddCommand(export)

	var (
		replace  bool
		modeName string
	)
	imp := &cobra.Command{
		Use:   "import <file|->",
		Short: "Merge (or with --replace, overwrite) history from an export document.",
		Long:  "Merge (or with --replace, overwrite) history from an export document.\nStop the daemon first: a running daemon rewrites history on its next action.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if replace {
				modeName = "replace"
			}
			mode, err := history.ParseImportMode(modeName)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return withTools(g, func(t *app.Tools) error {
				n, err := t.History.Import(cmdContext(cmd), r, mode)
				if err != nil {
					return err
				}
				if g.JSON {
					return printJSON(cmd.OutOrStdout(), map[string]int{"imported": n, "total": t.History.Len()})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries (%d total)\n", n, t.History.Len())
				return err
			})
		},
	}
	imp.Flags().StringVar(&modeName, "mode", "merge", "merge or replace")
	imp.Flags().BoolVar(&replace, "replace", false, "shorthand for --mode replace")
	cmd.AddCommand(imp)

	topLevel.AddCommand(cmd)
}
