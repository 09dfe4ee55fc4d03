package presentation

import (
	"context"
	"time"

	"reminderd/internal/reminder"
)

// Template names the popup layout a presenter should use.
type Template string

const (
	TemplateReminder Template = "reminder"
	TemplateOverdue  Template = "overdue"
	TemplateSummary  Template = "summary"
)

// Directive is everything a presenter needs to show one reminder.
type Directive struct {
	ReminderID    string
	Template      Template
	Kind          reminder.Kind
	Priority      reminder.Priority
	Title         string
	Content       string
	ScheduledTime *time.Time
	AgentName     string
	Tags          []string
	Items         []reminder.Item
	Summary       *reminder.Summary
	Overdue       *reminder.OverdueInfo
	SnoozeOptions []time.Duration
	ShowHelp      bool
}

// UserAction is a user intent reported by a presenter.
type UserAction struct {
	ReminderID string
	Action     reminder.Action
	// SnoozeFor is set for snooze actions; zero means the configured default.
	SnoozeFor time.Duration
}

type ActionFunc func(UserAction)

// Handle controls one rendered reminder.
type Handle interface {
	Remove()
	OnUserAction(fn ActionFunc)
}

type Presenter interface {
	Render(ctx context.Context, d Directive) (Handle, error)
}

// Notice is a transient, non-blocking message (e.g. a sync failure).
type Notice struct {
	Level      string
	Text       string
	ReminderID string
}

type NoticeSink interface {
	ShowNotice(ctx context.Context, n Notice) error
}
