package center

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reminderd/internal/backend"
	"reminderd/internal/clock"
	"reminderd/internal/dispatch"
	"reminderd/internal/history"
	"reminderd/internal/lifecycle"
	"reminderd/internal/normalize"
	"reminderd/internal/presentation"
	"reminderd/internal/presentation/presentationtest"
	"reminderd/internal/reminder"
	"reminderd/internal/snooze"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{} // when set, Notify blocks until closed
	entered chan struct{}
	updates []backend.Update
}

func (f *fakeBackend) Notify(ctx context.Context, u backend.Update) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return f.err
}

func (f *fakeBackend) Updates() []backend.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Update(nil), f.updates...)
}

type fixture struct {
	c     *Center
	clk   *clock.Fake
	ls    *lifecycle.Store
	sched *snooze.Scheduler
	hist  *history.Ledger
	rec   *presentationtest.Recorder
	be    *fakeBackend
}

func newFixture(t *testing.T, withBackend bool) *fixture {
	t.Helper()
	f := &fixture{
		clk: clock.NewFake(t0),
		ls:  lifecycle.New(0),
		rec: &presentationtest.Recorder{},
	}
	st := storage.NewMemory()
	disp := dispatch.New(dispatch.Config{}, dispatch.Deps{
		Store: f.ls, Presenter: f.rec, Clock: f.clk, Log: logx.Nop(),
	})
	f.sched = snooze.New(snooze.Config{ScanInterval: time.Hour}, snooze.Deps{
		Lifecycle: f.ls, Store: st, Promoter: disp, Clock: f.clk, Log: logx.Nop(),
	})
	f.hist = history.New(history.Config{Location: time.UTC}, history.Deps{Store: st, Clock: f.clk, Log: logx.Nop()})
	d := Deps{
		Normalizer: normalize.New(logx.Nop(), normalize.WithClock(f.clk)),
		Dispatcher: disp,
		Lifecycle:  f.ls,
		Snooze:     f.sched,
		History:    f.hist,
		Notices:    f.rec,
		Clock:      f.clk,
		Log:        logx.Nop(),
	}
	if withBackend {
		f.be = &fakeBackend{}
		d.Backend = f.be
	}
	f.c = New(context.Background(), Config{}, d)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.c.Stop(ctx)
		f.sched.Stop(ctx)
	})
	return f
}

func (f *fixture) payload(t *testing.T, raw string) reminder.Reminder {
	t.Helper()
	r, err := f.c.HandlePayload(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("HandlePayload error: %v", err)
	}
	return r
}

const reportPayload = `{"type":"TODO_REMINDER","version":"2.0","data":{"id":"X","title":"Report","content":"Send the report","priority":"medium"},"metadata":{"reminderType":"normal"}}`

func TestCompleteBackendFailureRollsBack(t *testing.T) {
	f := newFixture(t, true)
	f.be.err = errors.New("503")
	f.payload(t, reportPayload)

	err := f.c.Complete(context.Background(), "X")
	if !errors.Is(err, reminder.ErrBackendSync) {
		t.Fatalf("Complete err = %v, want ErrBackendSync", err)
	}
	got, ok := f.ls.Get("X")
	if !ok || got.Status != reminder.StatusPending {
		t.Fatalf("reminder after failure = %+v ok %v, want pending", got, ok)
	}
	if f.hist.Len() != 0 {
		t.Fatalf("history has %d entries, want 0", f.hist.Len())
	}
	notices := f.rec.Notices()
	if len(notices) != 1 || notices[0].ReminderID != "X" || notices[0].Level != "error" {
		t.Fatalf("notices = %+v", notices)
	}
	if f.rec.Last("X").Removed() != 0 {
		t.Fatalf("popup removed after failed completion")
	}

	// Retry succeeds once the backend is back.
	f.be.err = nil
	if err := f.c.Complete(context.Background(), "X"); err != nil {
		t.Fatalf("retry Complete error: %v", err)
	}
	if f.ls.Has("X") || f.hist.Len() != 1 {
		t.Fatalf("retry did not settle")
	}
}

func TestCompleteSuccess(t *testing.T) {
	f := newFixture(t, true)
	f.payload(t, reportPayload)
	if err := f.c.Complete(context.Background(), "X"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	entries := f.hist.Entries()
	if len(entries) != 1 || entries[0].Action != reminder.ActionComplete || entries[0].Title != "Report" {
		t.Fatalf("history = %+v", entries)
	}
	if f.rec.Last("X").Removed() != 1 {
		t.Fatalf("popup not removed")
	}
	ups := f.be.Updates()
	if len(ups) != 1 || ups[0].Action != backend.ActionComplete || ups[0].CompletedAt == nil || ups[0].TodoID != "X" {
		t.Fatalf("backend updates = %+v", ups)
	}
	if err := f.c.Complete(context.Background(), "X"); !errors.Is(err, reminder.ErrInvalidTransition) {
		t.Fatalf("second Complete err = %v, want ErrInvalidTransition", err)
	}
	if err := f.c.Dismiss(context.Background(), "X"); !errors.Is(err, reminder.ErrInvalidTransition) {
		t.Fatalf("Dismiss after complete err = %v, want ErrInvalidTransition", err)
	}
}

func TestCompleteLocalOnlyWithoutBackend(t *testing.T) {
	f := newFixture(t, false)
	f.payload(t, reportPayload)
	if err := f.c.Complete(context.Background(), "X"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if st, ok := f.ls.Settled("X"); !ok || st != reminder.StatusCompleted {
		t.Fatalf("settled = %v %v", st, ok)
	}
}

func TestConcurrentActionConflicts(t *testing.T) {
	f := newFixture(t, true)
	f.be.gate = make(chan struct{})
	f.be.entered = make(chan struct{}, 1)
	f.payload(t, reportPayload)

	done := make(chan error, 1)
	go func() { done <- f.c.Complete(context.Background(), "X") }()
	<-f.be.entered

	if err := f.c.Dismiss(context.Background(), "X"); !errors.Is(err, reminder.ErrConflict) {
		t.Fatalf("Dismiss during completion err = %v, want ErrConflict", err)
	}
	if _, err := f.c.Snooze(context.Background(), "X", time.Minute); !errors.Is(err, reminder.ErrConflict) {
		t.Fatalf("Snooze during completion err = %v, want ErrConflict", err)
	}
	close(f.be.gate)
	if err := <-done; err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if f.hist.Len() != 1 {
		t.Fatalf("history = %d, want 1", f.hist.Len())
	}
}

func TestLateConfirmationDiscarded(t *testing.T) {
	f := newFixture(t, true)
	f.be.gate = make(chan struct{})
	f.be.entered = make(chan struct{}, 1)
	f.payload(t, reportPayload)

	done := make(chan error, 1)
	go func() { done <- f.c.Complete(context.Background(), "X") }()
	<-f.be.entered

	// A fresh copy arrives while the backend call is in flight.
	f.payload(t, reportPayload)
	close(f.be.gate)
	if err := <-done; !errors.Is(err, lifecycle.ErrStaleTicket) {
		t.Fatalf("Complete err = %v, want ErrStaleTicket", err)
	}
	got, ok := f.ls.Get("X")
	if !ok || got.Status != reminder.StatusPending || f.hist.Len() != 0 {
		t.Fatalf("fresh reminder disturbed: %+v ok %v history %d", got, ok, f.hist.Len())
	}
}

func TestDismiss(t *testing.T) {
	f := newFixture(t, true)
	f.payload(t, reportPayload)
	if err := f.c.Dismiss(context.Background(), "X"); err != nil {
		t.Fatalf("Dismiss error: %v", err)
	}
	if len(f.be.Updates()) != 0 {
		t.Fatalf("dismiss reached the backend")
	}
	if e := f.hist.Entries(); len(e) != 1 || e[0].Action != reminder.ActionDismiss {
		t.Fatalf("history = %+v", e)
	}
	if f.rec.Last("X").Removed() != 1 {
		t.Fatalf("popup not removed")
	}
}

func TestSnoozeFlow(t *testing.T) {
	f := newFixture(t, true)
	f.payload(t, reportPayload)
	entry, err := f.c.Snooze(context.Background(), "X", 0)
	if err != nil {
		t.Fatalf("Snooze error: %v", err)
	}
	if !entry.DueAt.Equal(t0.Add(DefaultSnoozeDelay)) {
		t.Fatalf("DueAt = %v", entry.DueAt)
	}
	if f.ls.Has("X") || !f.sched.Has("X") {
		t.Fatalf("reminder not moved to snooze queue")
	}
	e := f.hist.Entries()
	if len(e) != 1 || e[0].Action != reminder.ActionSnooze || e[0].Metadata[reminder.MetaDueAt] != "2026-03-02T09:10:00Z" {
		t.Fatalf("history = %+v", e)
	}
	if f.rec.Last("X").Removed() != 1 {
		t.Fatalf("popup not removed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.c.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	ups := f.be.Updates()
	if len(ups) != 1 || ups[0].Action != backend.ActionSnooze || ups[0].NewTime == nil || !ups[0].NewTime.Equal(entry.DueAt) {
		t.Fatalf("backend updates = %+v", ups)
	}

	f.clk.Advance(11 * time.Minute)
	if n := f.sched.Scan(context.Background()); n != 1 {
		t.Fatalf("Scan = %d, want 1", n)
	}
	if got, ok := f.ls.Get("X"); !ok || got.Status != reminder.StatusPending {
		t.Fatalf("promoted = %+v ok %v", got, ok)
	}
}

func TestSnoozeKeptWhenBackendFails(t *testing.T) {
	f := newFixture(t, true)
	f.be.err = errors.New("down")
	f.payload(t, reportPayload)
	if _, err := f.c.Snooze(context.Background(), "X", time.Hour); err != nil {
		t.Fatalf("Snooze error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = f.c.Wait(ctx)
	if !f.sched.Has("X") {
		t.Fatalf("local snooze reverted after backend failure")
	}
}

func TestInboundSupersedesSnooze(t *testing.T) {
	f := newFixture(t, false)
	f.payload(t, reportPayload)
	_, _ = f.c.Snooze(context.Background(), "X", time.Hour)
	f.payload(t, reportPayload)
	if f.sched.Has("X") || !f.ls.Has("X") {
		t.Fatalf("snooze entry survived fresh inbound reminder")
	}
}

func TestHandlePayloadReturnsClassified(t *testing.T) {
	f := newFixture(t, false)
	r := f.payload(t, `{"version":"2.0","type":"TODO_REMINDER","reminderType":"overdue","priority":"medium","data":{"id":"inv","title":"Pay invoice","deadline":"2026-02-27T09:00:00Z"},"metadata":{"agentName":"Billing"}}`)
	if r.Kind != reminder.KindOverdue || r.Priority != reminder.PriorityHigh {
		t.Fatalf("kind=%q priority=%q, want overdue/high", r.Kind, r.Priority)
	}
	if !f.ls.Has("inv") {
		t.Fatalf("reminder not stored")
	}
}

func TestHandleUserActionRoutes(t *testing.T) {
	f := newFixture(t, false)
	f.payload(t, reportPayload)
	h := f.rec.Last("X")
	h.Fire(presentation.UserAction{Action: reminder.ActionSnooze, SnoozeFor: 30 * time.Minute})
	if !f.sched.Has("X") {
		t.Fatalf("snooze action not routed")
	}
	// Repeated clicks on a settled popup are dropped.
	h.Fire(presentation.UserAction{Action: reminder.ActionComplete})
	h.Fire(presentation.UserAction{Action: "explode"})
	if f.hist.Len() != 1 {
		t.Fatalf("history = %d, want 1", f.hist.Len())
	}
}

func TestAnalyticsWrappers(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.payload(t, `{"type":"TODO_REMINDER","version":"2.0","data":{"id":"`+id+`","title":"t"},"metadata":{"reminderType":"normal"}}`)
	}
	for _, id := range []string{"a", "b", "c"} {
		_ = f.c.Complete(ctx, id)
	}
	_ = f.c.Dismiss(ctx, "d")
	_ = f.c.Dismiss(ctx, "e")
	if s := f.c.Stats(); s.CompletionRate != 60.0 {
		t.Fatalf("CompletionRate = %v, want 60.0", s.CompletionRate)
	}
	if tr := f.c.Trends(7); tr.PeakHour != 9 {
		t.Fatalf("PeakHour = %d, want 9", tr.PeakHour)
	}
	if len(f.c.Pending()) != 0 {
		t.Fatalf("Pending = %d, want 0", len(f.c.Pending()))
	}
}
