package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"reminderd/internal/reminder"
)

var (
	bold  = color.New(color.Bold)
	faint = color.New(color.Faint)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) *uitable.Table {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	hs := make([]any, len(header))
	for i, h := range header {
		hs[i] = bold.Sprint(h)
	}
	tbl.AddRow(hs...)
	return tbl
}

func actionLabel(a reminder.Action) string {
	switch a {
	case reminder.ActionComplete:
		return green.Sprint(string(a))
	case reminder.ActionDismiss:
		return faint.Sprint(string(a))
	case reminder.ActionSnooze:
		return string(a)
	}
	return string(a)
}

func priorityLabel(p reminder.Priority) string {
	if p == reminder.PriorityHigh {
		return red.Sprint(string(p))
	}
	return string(p)
}

func percent(v float64) string { return fmt.Sprintf("%.1f%%", v) }

func stamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
