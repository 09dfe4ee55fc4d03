package dispatch

import (
	"context"
	"errors"
	"time"

	"reminderd/internal/audio"
	"reminderd/internal/clock"
	"reminderd/internal/eventbus"
	"reminderd/internal/lifecycle"
	"reminderd/internal/presentation"
	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

var ErrMissingID = errors.New("dispatch: reminder has no id")

// DefaultSnoozeOptions are offered when the config lists none.
var DefaultSnoozeOptions = []time.Duration{10 * time.Minute, time.Hour, 4 * time.Hour}

type Config struct {
	SnoozeOptions []time.Duration
}

// FirstRun reports true exactly once per installation.
type FirstRun interface {
	Consume(ctx context.Context) bool
}

type Deps struct {
	Store     *lifecycle.Store
	Presenter presentation.Presenter
	Audio     audio.Player
	Clock     clock.Clock
	Log       logx.Logger
	Bus       eventbus.Bus
	FirstRun  FirstRun
	// OnAction receives user intents from every rendered handle.
	OnAction presentation.ActionFunc
}

// Dispatcher classifies reminders, emits one render directive and one audio
// trigger for each, and then hands them to the lifecycle store.
type Dispatcher struct {
	cfg Config
	d   Deps
}

func New(cfg Config, d Deps) *Dispatcher {
	if len(cfg.SnoozeOptions) == 0 {
		cfg.SnoozeOptions = DefaultSnoozeOptions
	}
	if d.Audio == nil {
		d.Audio = audio.Nop{}
	}
	d.Clock = clock.Or(d.Clock)
	return &Dispatcher{cfg: cfg, d: d}
}

// SetActionHandler wires the user-intent callback after construction.
func (x *Dispatcher) SetActionHandler(fn presentation.ActionFunc) { x.d.OnAction = fn }

// Dispatch surfaces r. Render failures are logged; the reminder is still tracked.
func (x *Dispatcher) Dispatch(ctx context.Context, r reminder.Reminder) error {
	if r.ID == "" {
		return ErrMissingID
	}
	r = Classify(r, x.d.Clock.Now())
	log := x.d.Log.With(logx.String("reminder_id", r.ID), logx.String("kind", string(r.Kind)))

	dir := x.directive(r)
	if x.d.FirstRun != nil {
		dir.ShowHelp = x.d.FirstRun.Consume(ctx)
	}

	var handle presentation.Handle
	if x.d.Presenter != nil {
		h, err := x.d.Presenter.Render(ctx, dir)
		if err != nil {
			log.Warn("render failed", logx.Err(err))
		} else {
			handle = h
		}
	}

	x.d.Audio.Play(audio.ProfileFor(r.Kind, r.Priority))

	var tracked lifecycle.Handle
	if handle != nil {
		if x.d.OnAction != nil {
			handle.OnUserAction(x.d.OnAction)
		}
		tracked = handle
	}
	if old := x.d.Store.Add(r, tracked); old != nil {
		old.Remove()
		log.Debug("replaced pending reminder with same id")
	}

	eventbus.Publish(x.d.Bus, eventbus.TypeDispatched, eventbus.ReminderData{
		ReminderID: r.ID, Kind: string(r.Kind), Priority: string(r.Priority),
	})
	log.Info("reminder dispatched", logx.String("priority", string(r.Priority)))
	return nil
}

func (x *Dispatcher) directive(r reminder.Reminder) presentation.Directive {
	d := presentation.Directive{
		ReminderID:    r.ID,
		Template:      presentation.TemplateReminder,
		Kind:          r.Kind,
		Priority:      r.Priority,
		Title:         r.Title,
		Content:       r.Content,
		ScheduledTime: r.ScheduledTime,
		AgentName:     r.AgentName,
		Tags:          r.Tags,
		Summary:       r.Summary,
		Overdue:       r.Overdue,
		SnoozeOptions: append([]time.Duration(nil), x.cfg.SnoozeOptions...),
	}
	switch r.Kind {
	case reminder.KindOverdue:
		d.Template = presentation.TemplateOverdue
		if r.Overdue != nil {
			d.Items = r.Overdue.Items
		}
	case reminder.KindDailySummary:
		d.Template = presentation.TemplateSummary
		if r.Summary != nil {
			d.Items = r.Summary.Items
		}
	}
	return d
}

// Classify applies kind overrides and derived counts. It never mutates r.
func Classify(r reminder.Reminder, now time.Time) reminder.Reminder {
	r = r.Clone()
	if !r.Kind.Valid() {
		r.Kind = reminder.KindNormal
	}
	if p, ok := r.Kind.ForcedPriority(); ok {
		r.Priority = p
	}
	switch r.Kind {
	case reminder.KindOverdue:
		if r.Overdue == nil {
			r.Overdue = &reminder.OverdueInfo{}
		}
		if n := countOverdue(r.Overdue.Items, now); n > 0 {
			r.Overdue.Count = n
		}
		if r.Overdue.Count == 0 {
			r.Overdue.Count = 1
		}
	case reminder.KindDailySummary:
		if r.Summary != nil && len(r.Summary.Items) > 0 {
			s := r.Summary
			s.Total = len(s.Items)
			s.Completed = 0
			for _, it := range s.Items {
				if it.Completed {
					s.Completed++
				}
			}
			s.Pending = s.Total - s.Completed
			s.Overdue = countOverdue(s.Items, now)
		}
	default:
		if r.Priority == "" {
			r.Priority = reminder.PriorityNormal
		}
	}
	return r
}

// countOverdue counts incomplete items whose deadline is missing or strictly before now.
func countOverdue(items []reminder.Item, now time.Time) int {
	n := 0
	for _, it := range items {
		if it.Completed {
			continue
		}
		if it.Deadline == nil || it.Deadline.Before(now) {
			n++
		}
	}
	return n
}
