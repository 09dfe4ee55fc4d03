package center

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reminderd/internal/analytics"
	"reminderd/internal/backend"
	"reminderd/internal/clock"
	"reminderd/internal/dispatch"
	"reminderd/internal/eventbus"
	"reminderd/internal/history"
	"reminderd/internal/lifecycle"
	"reminderd/internal/normalize"
	"reminderd/internal/presentation"
	"reminderd/internal/reminder"
	rtsup "reminderd/internal/runtime/supervisor"
	"reminderd/internal/snooze"
	logx "reminderd/pkg/logx"
)

const (
	DefaultSnoozeDelay   = 10 * time.Minute
	defaultBackendWindow = 15 * time.Second
)

// Syncer confirms user actions with the todo backend.
type Syncer interface {
	Notify(ctx context.Context, u backend.Update) error
}

type Config struct {
	DefaultSnooze time.Duration
	// BackendTimeout bounds background snooze notifications.
	BackendTimeout time.Duration
}

type Deps struct {
	Normalizer *normalize.Normalizer
	Dispatcher *dispatch.Dispatcher
	Lifecycle  *lifecycle.Store
	Snooze     *snooze.Scheduler
	History    *history.Ledger
	Analytics  *analytics.Engine
	// Backend may be nil; actions are then local-only.
	Backend Syncer
	Notices presentation.NoticeSink
	Clock   clock.Clock
	Log     logx.Logger
	Bus     eventbus.Bus
}

// Center is the orchestrating service. It routes inbound payloads and user
// intents through the pipeline and owns the backend confirmation flow.
type Center struct {
	cfg Config
	d   Deps
	sup *rtsup.Supervisor
	bg  sync.WaitGroup
}

func New(ctx context.Context, cfg Config, d Deps) *Center {
	if cfg.DefaultSnooze <= 0 {
		cfg.DefaultSnooze = DefaultSnoozeDelay
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = defaultBackendWindow
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	d.Clock = clock.Or(d.Clock)
	if d.Analytics == nil {
		d.Analytics = analytics.New(d.Clock, d.History.Location())
	}
	c := &Center{
		cfg: cfg,
		d:   d,
		sup: rtsup.New(ctx, rtsup.WithLogger(d.Log), rtsup.WithCancelOnError(false)),
	}
	if d.Dispatcher != nil {
		d.Dispatcher.SetActionHandler(func(a presentation.UserAction) {
			c.HandleUserAction(c.sup.Context(), a)
		})
	}
	return c
}

// Apply updates the tunables that are safe to change at runtime.
func (c *Center) Apply(cfg Config) {
	if cfg.DefaultSnooze > 0 {
		c.cfg.DefaultSnooze = cfg.DefaultSnooze
	}
	if cfg.BackendTimeout > 0 {
		c.cfg.BackendTimeout = cfg.BackendTimeout
	}
}

// Loops reports the background backend calls started so far.
func (c *Center) Loops() rtsup.Snapshot { return c.sup.Snapshot() }

// Stop waits for background backend notifications until ctx is done.
func (c *Center) Stop(ctx context.Context) error {
	return c.sup.Stop(ctx)
}

// Wait blocks until background work settles without canceling it.
func (c *Center) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandlePayload normalizes raw and dispatches it. A fresh inbound reminder
// supersedes any snooze entry with the same id. The returned reminder is the
// classified one that was stored and shown.
func (c *Center) HandlePayload(ctx context.Context, raw []byte) (reminder.Reminder, error) {
	r, err := c.d.Normalizer.Normalize(ctx, raw)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if c.d.Snooze != nil && c.d.Snooze.Cancel(ctx, r.ID) {
		c.d.Log.Debug("inbound reminder superseded snooze", logx.String("reminder_id", r.ID))
	}
	if err := c.d.Dispatcher.Dispatch(ctx, r); err != nil {
		return reminder.Reminder{}, err
	}
	if stored, ok := c.d.Lifecycle.Get(r.ID); ok {
		return stored, nil
	}
	return dispatch.Classify(r, c.d.Clock.Now()), nil
}

// Complete marks id completed after the backend confirms. On backend failure
// the reminder is rolled back to Pending, a notice is shown and the error
// wraps reminder.ErrBackendSync.
func (c *Center) Complete(ctx context.Context, id string) error {
	t, err := c.d.Lifecycle.Begin(id, reminder.ActionComplete)
	if err != nil {
		return err
	}
	snap, _ := c.d.Lifecycle.Get(id)
	log := c.d.Log.With(logx.String("reminder_id", id))

	if c.d.Backend != nil {
		now := c.d.Clock.Now().UTC()
		err := c.d.Backend.Notify(ctx, backend.Update{
			TodoID:      id,
			Action:      backend.ActionComplete,
			CompletedAt: &now,
			Priority:    snap.Priority,
			Title:       snap.Title,
			Content:     snap.Content,
		})
		if err != nil {
			if rbErr := c.d.Lifecycle.Rollback(t); errors.Is(rbErr, lifecycle.ErrStaleTicket) {
				log.Debug("discarding late backend failure")
				return rbErr
			}
			eventbus.Publish(c.d.Bus, eventbus.TypeBackendError, eventbus.ReminderData{
				ReminderID: id, Kind: string(snap.Kind), Priority: string(snap.Priority), Action: string(reminder.ActionComplete),
			})
			c.notice(ctx, presentation.Notice{
				Level:      "error",
				Text:       fmt.Sprintf("Could not confirm %q with the server. It is still pending.", snap.Title),
				ReminderID: id,
			})
			if !errors.Is(err, reminder.ErrBackendSync) {
				err = fmt.Errorf("%w: %w", reminder.ErrBackendSync, err)
			}
			return err
		}
	}

	ent, err := c.d.Lifecycle.Commit(t)
	if err != nil {
		if errors.Is(err, lifecycle.ErrStaleTicket) {
			log.Debug("discarding late backend confirmation")
		}
		return err
	}
	c.settled(ctx, reminder.ActionComplete, ent, nil)
	return nil
}

// Dismiss closes id locally. The backend is not told.
func (c *Center) Dismiss(ctx context.Context, id string) error {
	ent, err := c.d.Lifecycle.Transition(id, reminder.ActionDismiss)
	if err != nil {
		return err
	}
	c.settled(ctx, reminder.ActionDismiss, ent, nil)
	return nil
}

// Snooze hides id for delay (the configured default when delay <= 0) and
// notifies the backend in the background. The local snooze stands even if
// that notification fails.
func (c *Center) Snooze(ctx context.Context, id string, delay time.Duration) (reminder.SnoozeEntry, error) {
	if delay <= 0 {
		delay = c.cfg.DefaultSnooze
	}
	due := c.d.Clock.Now().Add(delay)
	entry, h, err := c.d.Snooze.Schedule(ctx, id, due)
	if err != nil {
		return reminder.SnoozeEntry{}, err
	}
	c.settled(ctx, reminder.ActionSnooze, lifecycle.Entry{Reminder: entry.Snapshot, Handle: h}, map[string]string{
		reminder.MetaDueAt: due.UTC().Format(time.RFC3339),
	})
	c.notice(ctx, presentation.Notice{
		Level:      "info",
		Text:       fmt.Sprintf("Snoozed %q until %s.", entry.Snapshot.Title, due.In(c.d.History.Location()).Format("15:04")),
		ReminderID: id,
	})

	if c.d.Backend != nil {
		snap := entry.Snapshot
		upd := backend.Update{
			TodoID:   id,
			Action:   backend.ActionSnooze,
			NewTime:  &due,
			Priority: snap.Priority,
			Title:    snap.Title,
			Content:  snap.Content,
		}
		timeout := c.cfg.BackendTimeout
		c.bg.Add(1)
		c.sup.Go0("backend.snooze", func(ctx context.Context) {
			defer c.bg.Done()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := c.d.Backend.Notify(ctx, upd); err != nil {
				eventbus.Publish(c.d.Bus, eventbus.TypeBackendError, eventbus.ReminderData{
					ReminderID: id, Kind: string(snap.Kind), Priority: string(snap.Priority), Action: string(reminder.ActionSnooze),
				})
				c.d.Log.Warn("snooze kept locally; backend not updated", logx.String("reminder_id", id), logx.Err(err))
			}
		})
	}
	return entry, nil
}

// HandleUserAction routes a presentation callback. Invalid transitions and
// conflicts are logged and dropped.
func (c *Center) HandleUserAction(ctx context.Context, a presentation.UserAction) {
	var err error
	switch a.Action {
	case reminder.ActionComplete:
		err = c.Complete(ctx, a.ReminderID)
	case reminder.ActionDismiss:
		err = c.Dismiss(ctx, a.ReminderID)
	case reminder.ActionSnooze:
		_, err = c.Snooze(ctx, a.ReminderID, a.SnoozeFor)
	default:
		err = fmt.Errorf("%w: unknown action %q", reminder.ErrInvalidTransition, a.Action)
	}
	if err == nil {
		return
	}
	log := c.d.Log.With(logx.String("reminder_id", a.ReminderID), logx.String("action", string(a.Action)))
	switch {
	case errors.Is(err, reminder.ErrInvalidTransition), errors.Is(err, reminder.ErrConflict),
		errors.Is(err, reminder.ErrNotFound), errors.Is(err, lifecycle.ErrStaleTicket):
		log.Debug("user action dropped", logx.Err(err))
	default:
		log.Warn("user action failed", logx.Err(err))
	}
}

// Pending lists reminders currently awaiting action.
func (c *Center) Pending() []reminder.Reminder { return c.d.Lifecycle.List() }

// Snoozed lists queued snooze entries by due time.
func (c *Center) Snoozed() []reminder.SnoozeEntry { return c.d.Snooze.Entries() }

func (c *Center) Stats() analytics.Statistics {
	return c.d.Analytics.Statistics(c.d.History.Entries())
}

func (c *Center) Trends(windowDays int) analytics.Trends {
	return c.d.Analytics.Trends(c.d.History.Entries(), windowDays)
}

func (c *Center) Overdue() analytics.OverdueAnalysis {
	return c.d.Analytics.AnalyzeOverdue(c.d.History.Entries())
}

func (c *Center) Report(p analytics.Period) analytics.Report {
	return c.d.Analytics.Report(c.d.History.Entries(), p)
}

// settled records an accepted transition and takes the popup down.
func (c *Center) settled(ctx context.Context, action reminder.Action, ent lifecycle.Entry, meta map[string]string) {
	r := ent.Reminder
	if _, err := c.d.History.Append(ctx, action, r, meta); err != nil {
		c.d.Log.Warn("history append not persisted", logx.String("reminder_id", r.ID), logx.Err(err))
	}
	if ent.Handle != nil {
		ent.Handle.Remove()
	}
	eventbus.Publish(c.d.Bus, eventbus.TypeTransitioned, eventbus.ReminderData{
		ReminderID: r.ID, Kind: string(r.Kind), Priority: string(r.Priority), Action: string(action),
	})
	c.d.Log.Info("reminder "+string(action), logx.String("reminder_id", r.ID))
}

func (c *Center) notice(ctx context.Context, n presentation.Notice) {
	if c.d.Notices == nil {
		return
	}
	if err := c.d.Notices.ShowNotice(ctx, n); err != nil {
		c.d.Log.Debug("notice not shown", logx.Err(err))
	}
}
