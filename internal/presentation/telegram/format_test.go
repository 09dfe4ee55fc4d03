package telegram

import (
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"reminderd/internal/presentation"
	"reminderd/internal/reminder"
)

func TestCallbackRoundTrip(t *testing.T) {
	cases := []presentation.UserAction{
		{ReminderID: "r1", Action: reminder.ActionComplete},
		{ReminderID: "r1", Action: reminder.ActionDismiss},
		{ReminderID: "r1", Action: reminder.ActionSnooze},
		{ReminderID: "r1", Action: reminder.ActionSnooze, SnoozeFor: 4 * time.Hour},
	}
	for _, a := range cases {
		data := CallbackData(a)
		got, err := ParseCallback(data)
		if err != nil {
			t.Fatalf("ParseCallback(%q) error: %v", data, err)
		}
		if got != a {
			t.Fatalf("ParseCallback(%q) = %+v, want %+v", data, got, a)
		}
	}
	if got := CallbackData(presentation.UserAction{ReminderID: "x", Action: reminder.ActionSnooze, SnoozeFor: 10 * time.Minute}); got != "s|x|10m" {
		t.Fatalf("CallbackData = %q, want s|x|10m", got)
	}
}

func TestParseCallbackRejects(t *testing.T) {
	for _, s := range []string{"", "c", "c|", "x|r1", "c|r1|extra", "s|r1|later", "\fbtn|r1"} {
		if _, err := ParseCallback(s); err == nil {
			t.Fatalf("ParseCallback(%q) succeeded", s)
		}
	}
}

func TestKeyboard(t *testing.T) {
	rows := Keyboard(presentation.Directive{
		ReminderID:    "r1",
		SnoozeOptions: []time.Duration{10 * time.Minute, time.Hour},
	})
	if len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0][0].Data != "c|r1" || rows[0][1].Data != "d|r1" {
		t.Fatalf("action row = %+v", rows[0])
	}
	if rows[1][1].Data != "s|r1|1h" || !strings.Contains(rows[1][1].Text, "1h") {
		t.Fatalf("snooze row = %+v", rows[1])
	}

	rows = Keyboard(presentation.Directive{ReminderID: "r2"})
	if len(rows) != 2 || len(rows[1]) != 1 || rows[1][0].Data != "s|r2" {
		t.Fatalf("default snooze row = %+v", rows)
	}

	rows = Keyboard(presentation.Directive{ReminderID: strings.Repeat("x", 70)})
	if len(rows) != 0 {
		t.Fatalf("oversized ids should yield no buttons, got %+v", rows)
	}
}

func TestFormatDirective(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	got := FormatDirective(presentation.Directive{
		ReminderID:    "r1",
		Template:      presentation.TemplateReminder,
		Priority:      reminder.PriorityHigh,
		Title:         "Fix <b> & ship",
		Content:       "tag",
		ScheduledTime: &due,
		Tags:          []string{"work"},
	}, time.UTC)
	for _, want := range []string{"<b>Fix &lt;b&gt; &amp; ship</b>", "<i>(high)</i>", "Mon 02 Mar 09:30", "#work"} {
		if !strings.Contains(got, want) {
			t.Fatalf("FormatDirective missing %q:\n%s", want, got)
		}
	}

	got = FormatDirective(presentation.Directive{
		ReminderID: "sum",
		Template:   presentation.TemplateSummary,
		Title:      "Today",
		Summary:    &reminder.Summary{Total: 3, Completed: 1, Pending: 2},
		Items:      []reminder.Item{{Title: "a", Completed: true}, {Title: "b"}},
	}, time.UTC)
	if !strings.Contains(got, "3 total · 1 done · 2 pending · 0 overdue") || !strings.Contains(got, "☑️ a") {
		t.Fatalf("summary format:\n%s", got)
	}
}

func TestSplitText(t *testing.T) {
	if got := splitText("short", 10, tele.ModeHTML); len(got) != 1 || got[0] != "short" {
		t.Fatalf("splitText(short) = %q", got)
	}

	lines := strings.Repeat("abcdefghi\n", 10)
	got := splitText(lines, 35, "")
	if len(got) < 3 {
		t.Fatalf("chunks = %d, want >= 3", len(got))
	}
	for _, c := range got {
		if len([]rune(c)) > 35 {
			t.Fatalf("chunk over limit: %q", c)
		}
		if strings.HasSuffix(c, "\n") || strings.HasPrefix(c, "\n") {
			t.Fatalf("chunk keeps edge newline: %q", c)
		}
	}

	got = splitText("aaaaaaa<b>bb</b>", 9, tele.ModeHTML)
	if got[0] != "aaaaaaa" {
		t.Fatalf("html split cut inside tag: %q", got)
	}
}

func TestStripTags(t *testing.T) {
	if got := stripTags("<b>a &amp; b</b> <i>c</i>"); got != "a &amp; b c" {
		t.Fatalf("stripTags = %q", got)
	}
}
