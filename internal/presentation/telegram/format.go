package telegram

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"reminderd/internal/presentation"
	"reminderd/internal/reminder"
)

const textLimit = 4000

// Telegram caps callback data at 64 bytes.
const maxCallbackData = 64

var ErrBadCallback = errors.New("telegram: unrecognised callback data")

// CallbackData encodes an action as "c|id", "d|id" or "s|id|10m".
func CallbackData(a presentation.UserAction) string {
	var s string
	switch a.Action {
	case reminder.ActionComplete:
		s = "c|" + a.ReminderID
	case reminder.ActionDismiss:
		s = "d|" + a.ReminderID
	case reminder.ActionSnooze:
		s = "s|" + a.ReminderID
		if a.SnoozeFor > 0 {
			s += "|" + presentation.FormatDelay(a.SnoozeFor)
		}
	}
	return s
}

func ParseCallback(data string) (presentation.UserAction, error) {
	parts := strings.Split(data, "|")
	if len(parts) < 2 || parts[1] == "" {
		return presentation.UserAction{}, ErrBadCallback
	}
	a := presentation.UserAction{ReminderID: parts[1]}
	switch parts[0] {
	case "c":
		a.Action = reminder.ActionComplete
	case "d":
		a.Action = reminder.ActionDismiss
	case "s":
		a.Action = reminder.ActionSnooze
		if len(parts) == 3 {
			d, err := presentation.ParseDelay(parts[2])
			if err != nil {
				return presentation.UserAction{}, fmt.Errorf("%w: %v", ErrBadCallback, err)
			}
			a.SnoozeFor = d
			return a, nil
		}
	default:
		return presentation.UserAction{}, ErrBadCallback
	}
	if len(parts) != 2 {
		return presentation.UserAction{}, ErrBadCallback
	}
	return a, nil
}

// Keyboard builds the inline buttons for d. Buttons whose data would not
// fit the callback limit are left out.
func Keyboard(d presentation.Directive) [][]tele.InlineButton {
	btn := func(text string, a presentation.UserAction) (tele.InlineButton, bool) {
		data := CallbackData(a)
		return tele.InlineButton{Text: text, Data: data}, len(data) <= maxCallbackData
	}
	var rows [][]tele.InlineButton

	var top []tele.InlineButton
	if b, ok := btn("✅ Done", presentation.UserAction{ReminderID: d.ReminderID, Action: reminder.ActionComplete}); ok {
		top = append(top, b)
	}
	if b, ok := btn("✖️ Dismiss", presentation.UserAction{ReminderID: d.ReminderID, Action: reminder.ActionDismiss}); ok {
		top = append(top, b)
	}
	if len(top) > 0 {
		rows = append(rows, top)
	}

	var snooze []tele.InlineButton
	for _, o := range d.SnoozeOptions {
		if b, ok := btn("💤 "+presentation.FormatDelay(o), presentation.UserAction{ReminderID: d.ReminderID, Action: reminder.ActionSnooze, SnoozeFor: o}); ok {
			snooze = append(snooze, b)
		}
	}
	if len(snooze) == 0 {
		if b, ok := btn("💤 Snooze", presentation.UserAction{ReminderID: d.ReminderID, Action: reminder.ActionSnooze}); ok {
			snooze = append(snooze, b)
		}
	}
	if len(snooze) > 0 {
		rows = append(rows, snooze)
	}
	return rows
}

// FormatDirective renders d as Telegram HTML.
func FormatDirective(d presentation.Directive, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	icon := "🔔"
	switch {
	case d.Template == presentation.TemplateOverdue:
		icon = "⏰"
	case d.Template == presentation.TemplateSummary:
		icon = "📋"
	case d.Priority == reminder.PriorityHigh:
		icon = "🔴"
	}
	fmt.Fprintf(&b, "%s <b>%s</b>", icon, escape(d.Title))
	if d.Priority != "" && d.Priority != reminder.PriorityNormal {
		fmt.Fprintf(&b, " <i>(%s)</i>", escape(string(d.Priority)))
	}
	b.WriteString("\n")
	if d.Content != "" {
		b.WriteString(escape(d.Content))
		b.WriteString("\n")
	}
	if d.ScheduledTime != nil {
		fmt.Fprintf(&b, "🕒 %s\n", d.ScheduledTime.In(loc).Format("Mon 02 Jan 15:04"))
	}
	if d.AgentName != "" {
		fmt.Fprintf(&b, "👤 %s\n", escape(d.AgentName))
	}
	if len(d.Tags) > 0 {
		tags := make([]string, len(d.Tags))
		for i, t := range d.Tags {
			tags[i] = "#" + escape(t)
		}
		b.WriteString(strings.Join(tags, " "))
		b.WriteString("\n")
	}
	if s := d.Summary; s != nil {
		fmt.Fprintf(&b, "%d total · %d done · %d pending · %d overdue\n", s.Total, s.Completed, s.Pending, s.Overdue)
	}
	if o := d.Overdue; o != nil {
		fmt.Fprintf(&b, "%d overdue", o.Count)
		if o.OldestDeadline != nil {
			fmt.Fprintf(&b, ", oldest %s", o.OldestDeadline.In(loc).Format("02 Jan"))
		}
		b.WriteString("\n")
	}
	for _, it := range d.Items {
		mark := "▫️"
		if it.Completed {
			mark = "☑️"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, escape(it.Title))
	}
	if d.ShowHelp {
		b.WriteString("\n<i>Tap a button to complete, dismiss or snooze this reminder.</i>\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func escape(s string) string { return html.EscapeString(s) }

// stripTags removes HTML markup, keeping entity escapes intact.
func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>' && in:
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitText splits long messages into chunks Telegram accepts. It prefers
// newline boundaries and, for HTML, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode tele.ParseMode) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if parseMode == tele.ModeHTML && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
