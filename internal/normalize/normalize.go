package normalize

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"reminderd/internal/clock"
	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

const defaultTitle = "Todo reminder"

type Option func(*Normalizer)

func WithClock(c clock.Clock) Option { return func(n *Normalizer) { n.clock = clock.Or(c) } }

// WithIDFunc overrides id generation for payloads that carry none.
func WithIDFunc(fn func() string) Option {
	return func(n *Normalizer) {
		if fn != nil {
			n.newID = fn
		}
	}
}

func WithCapture(c *Capture) Option { return func(n *Normalizer) { n.capture = c } }

// Normalizer turns inbound payloads into canonical reminders.
type Normalizer struct {
	log     logx.Logger
	clock   clock.Clock
	newID   func() string
	capture *Capture
}

func New(log logx.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		log:   log,
		clock: clock.Real{},
		newID: func() string { return "reminder-" + uuid.NewString() },
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize decodes raw and maps it to a Pending reminder. Strict decode
// failures are logged and recovered with the legacy wrapper; only an empty
// payload is an error.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte) (reminder.Reminder, error) {
	p, err := Decode(raw)
	if errors.Is(err, reminder.ErrEmptyPayload) {
		return reminder.Reminder{}, err
	}
	if n.capture != nil {
		n.capture.Record(ctx, raw, p.Wire.String())
	}
	if err != nil {
		var nerr *reminder.NormalizationError
		if errors.As(err, &nerr) {
			n.log.Debug("payload fell back to legacy wrapper", logx.String("wire", nerr.Wire), logx.Err(nerr.Reason))
		}
	}
	return n.FromPayload(p), nil
}

// FromPayload maps an already-decoded payload.
func (n *Normalizer) FromPayload(p Payload) reminder.Reminder {
	now := n.clock.Now()
	var r reminder.Reminder
	switch {
	case p.Wire == WireV2 && p.V2 != nil:
		r = n.fromV2(p.V2)
	case p.Wire == WireV1 && p.V1 != nil:
		r = n.fromV1(p.V1)
	default:
		r = n.fromLegacy(p.Legacy)
	}
	if r.Source == "" {
		r.Source = p.Wire.String()
	}
	if pr, ok := r.Kind.ForcedPriority(); ok {
		r.Priority = pr
	}

	if r.ID == "" {
		r.ID = n.newID()
	}
	if r.Title == "" {
		r.Title = defaultTitle
	}
	if r.Content == "" {
		r.Content = r.Title
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	r.Tags = reminder.NormalizeTags(r.Tags)
	r.Status = reminder.StatusPending
	return r
}

func (n *Normalizer) fromV2(m *V2Message) reminder.Reminder {
	d := m.Data
	kind, _ := parseKind(m.KindName())
	r := reminder.Reminder{
		ID:            firstNonEmpty(d.TodoID, d.ID),
		Kind:          kind,
		Priority:      reminder.ParsePriority(m.PriorityName()),
		Title:         strings.TrimSpace(d.Title),
		Content:       contentChain(d.Content, d.Message, d.Description, d.Text, d.Title),
		ScheduledTime: d.Deadline.Ptr(),
		Tags:          d.Tags,
		AgentName:     strings.TrimSpace(m.Metadata.AgentName),
		Assignee:      strings.TrimSpace(d.Assignee),
		Progress:      clampProgress(d.Progress),
		Source:        strings.TrimSpace(m.Metadata.Source),
	}
	if t := d.CreatedAt.Ptr(); t != nil {
		r.CreatedAt = *t
	}
	if t := d.UpdatedAt.Ptr(); t != nil {
		r.UpdatedAt = *t
	}
	items := d.RelatedTodos
	if len(items) == 0 {
		items = d.Items
	}
	r.Summary = mapSummary(d.Summary, items)
	r.Overdue = mapOverdue(d.OverdueInfo)
	return r
}

func (n *Normalizer) fromV1(m *V1Message) reminder.Reminder {
	kind, _ := parseKind(m.ReminderType)
	sched := m.ScheduledTime.Ptr()
	if sched == nil {
		sched = m.Timestamp.Ptr()
	}
	return reminder.Reminder{
		ID:            firstNonEmpty(m.TodoID, m.ID),
		Kind:          kind,
		Priority:      reminder.ParsePriority(m.Priority),
		Title:         strings.TrimSpace(m.Title),
		Content:       contentChain(m.Content, m.Message, m.Description, m.Text, m.Title),
		ScheduledTime: sched,
		Tags:          m.Tags,
		AgentName:     strings.TrimSpace(m.AgentName),
		Summary:       mapSummary(m.Summary, m.Items),
		Overdue:       mapOverdue(m.OverdueInfo),
	}
}

func (n *Normalizer) fromLegacy(m *LegacyMessage) reminder.Reminder {
	if m == nil {
		m = &LegacyMessage{}
	}
	return reminder.Reminder{
		Kind:     reminder.KindNormal,
		Priority: reminder.PriorityNormal,
		Title:    m.Title,
		Content:  contentChain(m.Text, m.Title),
	}
}

// contentChain returns the first non-empty candidate.
func contentChain(candidates ...string) string {
	return firstNonEmpty(candidates...)
}

func clampProgress(p int) int {
	return min(max(p, 0), 100)
}

func mapItems(in []wireItem) []reminder.Item {
	if len(in) == 0 {
		return nil
	}
	out := make([]reminder.Item, 0, len(in))
	for _, it := range in {
		status := strings.ToLower(strings.TrimSpace(it.Status))
		out = append(out, reminder.Item{
			ID:        firstNonEmpty(it.TodoID, it.ID),
			Title:     strings.TrimSpace(it.Title),
			Deadline:  it.Deadline.Ptr(),
			Completed: it.Completed || status == "completed" || status == "done",
			Priority:  reminder.ParsePriority(it.Priority),
		})
	}
	return out
}

func mapSummary(s *wireSummary, items []wireItem) *reminder.Summary {
	if s == nil && len(items) == 0 {
		return nil
	}
	out := &reminder.Summary{}
	if s != nil {
		out.Total, out.Completed, out.Pending, out.Overdue = s.Total, s.Completed, s.Pending, s.Overdue
		if len(items) == 0 {
			items = s.Items
		}
	}
	out.Items = mapItems(items)
	return out
}

func mapOverdue(o *wireOverdue) *reminder.OverdueInfo {
	if o == nil {
		return nil
	}
	items := o.Items
	if len(items) == 0 {
		items = o.Todos
	}
	out := &reminder.OverdueInfo{
		Count:          max(o.Count, o.OverdueCount),
		OldestDeadline: o.OldestDeadline.Ptr(),
		Items:          mapItems(items),
	}
	if out.OldestDeadline == nil {
		out.OldestDeadline = oldestDeadline(out.Items)
	}
	return out
}

func oldestDeadline(items []reminder.Item) *time.Time {
	var oldest *time.Time
	for _, it := range items {
		if it.Deadline != nil && (oldest == nil || it.Deadline.Before(*oldest)) {
			v := *it.Deadline
			oldest = &v
		}
	}
	return oldest
}
