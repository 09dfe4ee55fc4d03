package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"reminderd/internal/presentation"
	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

type Config struct {
	NoColor bool
	// Location renders times; nil means local time.
	Location *time.Location
}

// Console renders reminders as colored blocks on out and reads short
// commands ("c <id>", "d <id>", "s <id> [10m]") from in.
type Console struct {
	cfg Config
	in  io.Reader
	out io.Writer
	log logx.Logger

	mu      sync.Mutex
	handles map[string]*handle
	order   []string

	title, faint, warn, bad, good *color.Color
}

func New(cfg Config, in io.Reader, out io.Writer, log logx.Logger) *Console {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Console{
		cfg:     cfg,
		in:      in,
		out:     out,
		log:     log,
		handles: map[string]*handle{},
		title:   color.New(color.Bold),
		faint:   color.New(color.Faint),
		warn:    color.New(color.FgHiYellow),
		bad:     color.New(color.FgHiRed, color.Bold),
		good:    color.New(color.FgHiGreen),
	}
	if cfg.NoColor {
		for _, col := range []*color.Color{c.title, c.faint, c.warn, c.bad, c.good} {
			col.DisableColor()
		}
	}
	return c
}

func (c *Console) Render(_ context.Context, d presentation.Directive) (presentation.Handle, error) {
	if d.ReminderID == "" {
		return nil, errors.New("console: directive without reminder id")
	}
	var b strings.Builder
	c.writeDirective(&b, d)

	h := &handle{c: c, id: d.ReminderID, title: d.Title}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.out, b.String()); err != nil {
		return nil, err
	}
	if _, ok := c.handles[d.ReminderID]; !ok {
		c.order = append(c.order, d.ReminderID)
	}
	c.handles[d.ReminderID] = h
	return h, nil
}

func (c *Console) ShowNotice(_ context.Context, n presentation.Notice) error {
	col := c.faint
	switch n.Level {
	case "error":
		col = c.bad
	case "warn", "warning":
		col = c.warn
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := col.Fprintf(c.out, "! %s\n", n.Text)
	return err
}

// Run reads commands from in until ctx is done or in is exhausted.
func (c *Console) Run(ctx context.Context) error {
	if c.in == nil {
		<-ctx.Done()
		return nil
	}
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			c.exec(line)
		}
	}
}

func (c *Console) exec(line string) {
	cmd, err := ParseCommand(line)
	if err != nil {
		c.printf(c.warn, "%v (type help)\n", err)
		return
	}
	switch cmd.Verb {
	case VerbNone:
	case VerbHelp:
		c.printf(c.faint, "%s\n", helpText)
	case VerbList:
		c.list()
	default:
		c.mu.Lock()
		h := c.handles[cmd.ReminderID]
		c.mu.Unlock()
		if h == nil {
			c.printf(c.warn, "no open reminder %q\n", cmd.ReminderID)
			return
		}
		h.fire(presentation.UserAction{ReminderID: cmd.ReminderID, Action: cmd.Action(), SnoozeFor: cmd.Delay})
	}
}

func (c *Console) list() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		_, _ = c.faint.Fprintln(c.out, "no open reminders")
		return
	}
	for _, id := range c.order {
		_, _ = fmt.Fprintf(c.out, "  %s  %s\n", c.faint.Sprint(id), c.handles[id].title)
	}
}

func (c *Console) printf(col *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = col.Fprintf(c.out, format, args...)
}

func (c *Console) remove(h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handles[h.id] != h {
		return
	}
	delete(c.handles, h.id)
	for i, id := range c.order {
		if id == h.id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	_, _ = c.faint.Fprintf(c.out, "- closed %s\n", h.id)
}

func (c *Console) writeDirective(b *strings.Builder, d presentation.Directive) {
	head := c.title
	switch {
	case d.Template == presentation.TemplateOverdue || d.Priority == reminder.PriorityHigh:
		head = c.bad
	case d.Priority == reminder.PriorityMedium:
		head = c.warn
	case d.Template == presentation.TemplateSummary:
		head = c.good
	}

	label := strings.ToUpper(string(d.Template))
	fmt.Fprintf(b, "%s %s\n", head.Sprintf("[%s] %s", label, d.Title), c.faint.Sprintf("(%s, %s)", d.ReminderID, d.Priority))
	if d.Content != "" {
		fmt.Fprintf(b, "  %s\n", d.Content)
	}
	if d.ScheduledTime != nil {
		fmt.Fprintf(b, "  due %s\n", d.ScheduledTime.In(c.cfg.Location).Format("Mon 02 Jan 15:04"))
	}
	if d.AgentName != "" {
		fmt.Fprintf(b, "  from %s\n", d.AgentName)
	}
	if len(d.Tags) > 0 {
		fmt.Fprintf(b, "  %s\n", c.faint.Sprint("#"+strings.Join(d.Tags, " #")))
	}
	if s := d.Summary; s != nil {
		fmt.Fprintf(b, "  %d total, %d done, %d pending, %d overdue\n", s.Total, s.Completed, s.Pending, s.Overdue)
	}
	if o := d.Overdue; o != nil {
		fmt.Fprintf(b, "  %d overdue", o.Count)
		if o.OldestDeadline != nil {
			fmt.Fprintf(b, ", oldest %s", o.OldestDeadline.In(c.cfg.Location).Format("02 Jan"))
		}
		b.WriteString("\n")
	}
	for _, it := range d.Items {
		mark := "[ ]"
		if it.Completed {
			mark = "[x]"
		}
		fmt.Fprintf(b, "    %s %s\n", mark, it.Title)
	}
	if len(d.SnoozeOptions) > 0 {
		opts := make([]string, len(d.SnoozeOptions))
		for i, o := range d.SnoozeOptions {
			opts[i] = presentation.FormatDelay(o)
		}
		fmt.Fprintf(b, "  %s\n", c.faint.Sprintf("snooze: %s", strings.Join(opts, ", ")))
	}
	if d.ShowHelp {
		fmt.Fprintf(b, "  %s\n", c.faint.Sprint(helpText))
	}
}

type handle struct {
	c     *Console
	id    string
	title string

	mu      sync.Mutex
	fn      presentation.ActionFunc
	removed bool
}

func (h *handle) Remove() {
	h.mu.Lock()
	if h.removed {
		h.mu.Unlock()
		return
	}
	h.removed = true
	h.mu.Unlock()
	h.c.remove(h)
}

func (h *handle) OnUserAction(fn presentation.ActionFunc) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

func (h *handle) fire(a presentation.UserAction) {
	h.mu.Lock()
	fn, removed := h.fn, h.removed
	h.mu.Unlock()
	if fn == nil || removed {
		return
	}
	fn(a)
}
