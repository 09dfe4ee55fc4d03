package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reminderd/internal/app"
	"reminderd/internal/presentation"
)

func addSnooze(topLevel *cobra.Command, g *globalOptions) {
	cmd := &cobra.Command{
		Use:   "snooze",
		Short: "Inspect the persisted snooze queue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snoozed reminders by due time.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTools(g, func(t *app.Tools) error {
				q, err := t.SnoozeQueue(cmdContext(cmd))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.JSON {
					return printJSON(out, q)
				}
				if len(q) == 0 {
					_, err := fmt.Fprintln(out, faint.Sprint("snooze queue is empty"))
					return err
				}
				now := time.Now()
				tbl := newTable("Due", "In", "Priority", "Title", "ID")
				for _, e := range q {
					in := "due"
					if d := e.DueAt.Sub(now); d > 0 {
						in = presentation.FormatDelay(d)
					}
					tbl.AddRow(stamp(e.DueAt, t.Location), in, priorityLabel(e.Snapshot.Priority), e.Snapshot.Title, faint.Sprint(e.ReminderID))
				}
				_, err = fmt.Fprintln(out, tbl)
				return err
			})
		},
	})
	topLevel.AddCommand(cmd)
}
