package reminder

import (
	"strings"
	"time"
)

type Kind string

const (
	KindNormal       Kind = "normal"
	KindOverdue      Kind = "overdue"
	KindDailySummary Kind = "daily_summary"
)

func (k Kind) Valid() bool {
	switch k {
	case KindNormal, KindOverdue, KindDailySummary:
		return true
	}
	return false
}

// ForcedPriority is the priority a kind imposes regardless of the payload:
// Overdue is always high, DailySummary always normal.
func (k Kind) ForcedPriority() (Priority, bool) {
	switch k {
	case KindOverdue:
		return PriorityHigh, true
	case KindDailySummary:
		return PriorityNormal, true
	}
	return "", false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
)

// Priorities lists priorities in declared order. Ties that are broken
// "by enum order" use this slice.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow, PriorityNormal}

// ParsePriority is lenient: unknown or empty strings map to PriorityNormal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "urgent", "critical":
		return PriorityHigh
	case "medium", "mid":
		return PriorityMedium
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSnoozed   Status = "snoozed"
	StatusCompleted Status = "completed"
	StatusDismissed Status = "dismissed"
)

// Action is a user intent on a pending reminder. It doubles as the
// HistoryEntry action once accepted.
type Action string

const (
	ActionSnooze   Action = "snoozed"
	ActionComplete Action = "completed"
	ActionDismiss  Action = "dismissed"
)

func (a Action) Valid() bool {
	switch a {
	case ActionSnooze, ActionComplete, ActionDismiss:
		return true
	}
	return false
}

// Target is the status a reminder reaches once a is accepted.
func (a Action) Target() Status {
	switch a {
	case ActionSnooze:
		return StatusSnoozed
	case ActionComplete:
		return StatusCompleted
	case ActionDismiss:
		return StatusDismissed
	}
	return ""
}

// Item is one todo inside a summary or overdue batch.
type Item struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Completed bool       `json:"completed,omitempty"`
	Priority  Priority   `json:"priority,omitempty"`
}

type Summary struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Pending   int    `json:"pending"`
	Overdue   int    `json:"overdue"`
	Items     []Item `json:"items,omitempty"`
}

type OverdueInfo struct {
	Count          int        `json:"count"`
	OldestDeadline *time.Time `json:"oldestDeadline,omitempty"`
	Items          []Item     `json:"items,omitempty"`
}

// Reminder is the canonical in-memory form of one inbound reminder.
type Reminder struct {
	ID            string       `json:"id"`
	Kind          Kind         `json:"kind"`
	Priority      Priority     `json:"priority"`
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	ScheduledTime *time.Time   `json:"scheduledTime,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	AgentName     string       `json:"agentName,omitempty"`
	Assignee      string       `json:"assignee,omitempty"`
	Progress      int          `json:"progress,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Status        Status       `json:"status"`
	Summary       *Summary     `json:"summary,omitempty"`
	Overdue       *OverdueInfo `json:"overdue,omitempty"`
	// Source names the inbound wire (v2, v1, legacy) or the sender's own
	// metadata.source when it supplied one.
	Source        string       `json:"source,omitempty"`
}

// Clone returns a deep copy.
func (r Reminder) Clone() Reminder {
	out := r
	out.ScheduledTime = cloneTime(r.ScheduledTime)
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.Summary != nil {
		s := *r.Summary
		s.Items = cloneItems(r.Summary.Items)
		out.Summary = &s
	}
	if r.Overdue != nil {
		o := *r.Overdue
		o.OldestDeadline = cloneTime(r.Overdue.OldestDeadline)
		o.Items = cloneItems(r.Overdue.Items)
		out.Overdue = &o
	}
	return out
}

// IsOverdueAt reports whether a reminder's deadline is strictly before now.
func (r Reminder) IsOverdueAt(now time.Time) bool {
	return r.ScheduledTime != nil && r.ScheduledTime.Before(now)
}

// NormalizeTags trims, drops empties and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		it.Deadline = cloneTime(it.Deadline)
		out[i] = it
	}
	return out
}

// SnoozeEntry is a deferred reminder waiting in the snooze queue.
type SnoozeEntry struct {
	ReminderID          string     `json:"reminderId"`
	DueAt               time.Time  `json:"dueAt"`
	OriginalScheduledAt *time.Time `json:"originalScheduledAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	Snapshot            Reminder   `json:"snapshot"`
}

// HistoryEntry is an immutable record of one accepted transition.
type HistoryEntry struct {
	ID         string            `json:"id"`
	Action     Action            `json:"action"`
	ReminderID string            `json:"reminderId"`
	Title      string            `json:"title"`
	Content    string            `json:"content,omitempty"`
	Priority   Priority          `json:"priority"`
	Kind       Kind              `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	AgentName  string            `json:"agentName,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Metadata keys written by the pipeline and read back by analytics.
const (
	MetaScheduledTime = "scheduled_time"
	MetaDueAt         = "due_at"
	MetaStatus        = "status"
	MetaOverdue       = "overdue"
	MetaSource        = "source"
)

// Clone returns a copy that shares nothing mutable with e.
func (e HistoryEntry) Clone() HistoryEntry {
	if e.Metadata != nil {
		m := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}
