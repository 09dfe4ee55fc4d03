package dispatch

import (
	"context"
	"testing"
	"time"

	"reminderd/internal/clock"
	"reminderd/internal/lifecycle"
	"reminderd/internal/presentation"
	"reminderd/internal/presentation/presentationtest"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

type fixture struct {
	d     *Dispatcher
	store *lifecycle.Store
	rec   *presentationtest.Recorder
	tones *presentationtest.Tones
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		store: lifecycle.New(0),
		rec:   &presentationtest.Recorder{},
		tones: &presentationtest.Tones{},
	}
	f.d = New(Config{}, Deps{
		Store:     f.store,
		Presenter: f.rec,
		Audio:     f.tones,
		Clock:     clock.NewFake(now),
		Log:       logx.Nop(),
		FirstRun:  &StoreFirstRun{Store: storage.NewMemory(), Log: logx.Nop()},
	})
	return f
}

func TestOverdueForcesHighPriority(t *testing.T) {
	f := newFixture(t)
	r := reminder.Reminder{
		ID: "X", Kind: reminder.KindOverdue, Priority: reminder.PriorityLow,
		Title: "Report", Content: "late", ScheduledTime: tp(now.Add(-2 * time.Hour)),
	}
	if err := f.d.Dispatch(context.Background(), r); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	got, ok := f.store.Get("X")
	if !ok || got.Priority != reminder.PriorityHigh || got.Status != reminder.StatusPending {
		t.Fatalf("stored = %+v ok %v, want high/pending", got, ok)
	}
	dirs := f.rec.Directives()
	if len(dirs) != 1 || dirs[0].Template != presentation.TemplateOverdue || dirs[0].Priority != reminder.PriorityHigh {
		t.Fatalf("directives = %+v", dirs)
	}
	if tones := f.tones.Names(); len(tones) != 1 || tones[0] != "urgent" {
		t.Fatalf("tones = %v, want [urgent]", tones)
	}
}

func TestDailySummaryForcesNormalAndCountsOverdue(t *testing.T) {
	f := newFixture(t)
	r := reminder.Reminder{
		ID: "S", Kind: reminder.KindDailySummary, Priority: reminder.PriorityHigh, Title: "Today", Content: "summary",
		Summary: &reminder.Summary{Items: []reminder.Item{
			{ID: "1", Deadline: tp(now.Add(-time.Minute))}, // past
			{ID: "2"}, // no deadline
			{ID: "3", Deadline: tp(now)},                   // not strictly before now
			{ID: "4", Deadline: tp(now.Add(-time.Hour)), Completed: true},
			{ID: "5", Deadline: tp(now.Add(time.Hour))},
		}},
	}
	if err := f.d.Dispatch(context.Background(), r); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	got, _ := f.store.Get("S")
	if got.Priority != reminder.PriorityNormal {
		t.Fatalf("Priority = %q, want normal", got.Priority)
	}
	s := got.Summary
	if s.Total != 5 || s.Completed != 1 || s.Pending != 4 || s.Overdue != 2 {
		t.Fatalf("summary = %+v, want total 5 completed 1 pending 4 overdue 2", s)
	}
	if tones := f.tones.Names(); len(tones) != 1 {
		t.Fatalf("summary batch produced %d tones, want 1", len(tones))
	}
	if d := f.rec.Directives()[0]; d.Template != presentation.TemplateSummary || len(d.Items) != 5 {
		t.Fatalf("directive = %+v", d)
	}
}

func TestDispatchSameIDReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := reminder.Reminder{ID: "A", Kind: reminder.KindNormal, Title: "a", Content: "a"}
	_ = f.d.Dispatch(ctx, r)
	first := f.rec.Last("A")
	r.Content = "updated"
	_ = f.d.Dispatch(ctx, r)

	if f.store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", f.store.Len())
	}
	if first.Removed() != 1 {
		t.Fatalf("first popup removed %d times, want 1", first.Removed())
	}
	if got, _ := f.store.Get("A"); got.Content != "updated" {
		t.Fatalf("Content = %q", got.Content)
	}
}

func TestDispatchTracksEvenWhenRenderFails(t *testing.T) {
	f := newFixture(t)
	f.rec.Fail = true
	if err := f.d.Dispatch(context.Background(), reminder.Reminder{ID: "A", Title: "a", Content: "a"}); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if !f.store.Has("A") {
		t.Fatalf("reminder not tracked after render failure")
	}
	if len(f.tones.Names()) != 1 {
		t.Fatalf("tones = %v, want one", f.tones.Names())
	}
}

func TestFirstDirectiveShowsHelpOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.d.Dispatch(ctx, reminder.Reminder{ID: "1", Title: "a", Content: "a"})
	_ = f.d.Dispatch(ctx, reminder.Reminder{ID: "2", Title: "b", Content: "b"})
	dirs := f.rec.Directives()
	if !dirs[0].ShowHelp || dirs[1].ShowHelp {
		t.Fatalf("ShowHelp = %v,%v, want true,false", dirs[0].ShowHelp, dirs[1].ShowHelp)
	}
}

func TestFirstRunPersists(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()
	if !(&StoreFirstRun{Store: st}).Consume(ctx) {
		t.Fatalf("first Consume = false")
	}
	if (&StoreFirstRun{Store: st}).Consume(ctx) {
		t.Fatalf("Consume after restart = true")
	}
}

func TestDispatchWiresActionHandler(t *testing.T) {
	f := newFixture(t)
	var got []presentation.UserAction
	f.d.SetActionHandler(func(a presentation.UserAction) { got = append(got, a) })
	_ = f.d.Dispatch(context.Background(), reminder.Reminder{ID: "A", Title: "a", Content: "a"})
	f.rec.Last("A").Fire(presentation.UserAction{Action: reminder.ActionDismiss})
	if len(got) != 1 || got[0].ReminderID != "A" || got[0].Action != reminder.ActionDismiss {
		t.Fatalf("actions = %+v", got)
	}
}

func TestDispatchRejectsMissingID(t *testing.T) {
	f := newFixture(t)
	if err := f.d.Dispatch(context.Background(), reminder.Reminder{}); err != ErrMissingID {
		t.Fatalf("err = %v, want ErrMissingID", err)
	}
	if len(f.rec.Directives()) != 0 {
		t.Fatalf("directive emitted for invalid reminder")
	}
}
