package snooze

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reminderd/internal/clock"
	"reminderd/internal/lifecycle"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// trackingPromoter re-adds promoted reminders to the lifecycle store, the way
// the dispatcher does.
type trackingPromoter struct {
	mu       sync.Mutex
	store    *lifecycle.Store
	promoted []reminder.Reminder
}

func (p *trackingPromoter) Dispatch(_ context.Context, r reminder.Reminder) error {
	p.mu.Lock()
	p.promoted = append(p.promoted, r)
	p.mu.Unlock()
	p.store.Add(r, nil)
	return nil
}

type fixture struct {
	clk   *clock.Fake
	ls    *lifecycle.Store
	st    storage.Store
	prom  *trackingPromoter
	sched *Scheduler
}

func newFixture(t *testing.T, st storage.Store) *fixture {
	t.Helper()
	if st == nil {
		st = storage.NewMemory()
	}
	f := &fixture{clk: clock.NewFake(t0), ls: lifecycle.New(0), st: st}
	f.prom = &trackingPromoter{store: f.ls}
	f.sched = New(Config{ScanInterval: time.Hour}, Deps{
		Lifecycle: f.ls, Store: st, Promoter: f.prom, Clock: f.clk, Log: logx.Nop(),
	})
	t.Cleanup(func() { f.sched.Stop(context.Background()) })
	return f
}

func (f *fixture) add(id string) {
	f.ls.Add(reminder.Reminder{ID: id, Kind: reminder.KindNormal, Priority: reminder.PriorityMedium, Title: id, Content: id}, nil)
}

func TestSnoozeAndPromote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.add("X")

	entry, _, err := f.sched.Schedule(ctx, "X", t0.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if entry.Snapshot.Status != reminder.StatusSnoozed || !entry.CreatedAt.Equal(t0) {
		t.Fatalf("entry = %+v", entry)
	}
	if f.ls.Has("X") {
		t.Fatalf("X still in lifecycle store after snooze")
	}
	if !f.sched.Running() {
		t.Fatalf("scan loop not started")
	}

	if n := f.sched.Scan(ctx); n != 0 {
		t.Fatalf("Scan at t0 promoted %d, want 0", n)
	}
	if f.ls.Has("X") {
		t.Fatalf("X promoted early")
	}

	f.clk.Advance(11 * time.Minute)
	if n := f.sched.Scan(ctx); n != 1 {
		t.Fatalf("Scan at t0+11m promoted %d, want 1", n)
	}
	got, ok := f.ls.Get("X")
	if !ok || got.Status != reminder.StatusPending || !got.CreatedAt.Equal(t0.Add(11*time.Minute)) {
		t.Fatalf("promoted = %+v ok %v", got, ok)
	}
	if got.Priority != reminder.PriorityMedium || got.Title != "X" {
		t.Fatalf("snapshot fields lost: %+v", got)
	}
	if len(f.sched.Entries()) != 0 || f.sched.Running() {
		t.Fatalf("queue not drained or loop still running")
	}
	var persisted []reminder.SnoozeEntry
	if _, err := storage.GetJSON(ctx, f.st, storage.KeySnoozeQueue, &persisted); err != nil || len(persisted) != 0 {
		t.Fatalf("persisted = %v err %v, want empty", persisted, err)
	}
}

func TestDueExactlyNowPromotedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.add("X")
	due := t0.Add(time.Minute)
	if _, _, err := f.sched.Schedule(ctx, "X", due); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	f.clk.Set(due)
	if n := f.sched.Scan(ctx); n != 1 {
		t.Fatalf("first Scan = %d, want 1", n)
	}
	if n := f.sched.Scan(ctx); n != 0 {
		t.Fatalf("second Scan = %d, want 0", n)
	}
	if len(f.prom.promoted) != 1 {
		t.Fatalf("promoted %d times, want 1", len(f.prom.promoted))
	}
}

func TestEmptyScanIsNoop(t *testing.T) {
	st := storage.NewMemory()
	f := newFixture(t, st)
	if n := f.sched.Scan(context.Background()); n != 0 {
		t.Fatalf("Scan = %d", n)
	}
	if _, ok, _ := st.Get(context.Background(), storage.KeySnoozeQueue); ok {
		t.Fatalf("empty scan wrote the queue record")
	}
	if len(f.prom.promoted) != 0 || f.sched.Running() {
		t.Fatalf("empty scan had side effects")
	}
}

func TestScheduleRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.add("X")
	if _, _, err := f.sched.Schedule(ctx, "X", t0); !errors.Is(err, reminder.ErrInvalidDueAt) {
		t.Fatalf("dueAt == now err = %v, want ErrInvalidDueAt", err)
	}
	if !f.ls.Has("X") {
		t.Fatalf("rejected snooze removed reminder")
	}
	if _, _, err := f.sched.Schedule(ctx, "missing", t0.Add(time.Minute)); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("unknown id err = %v, want ErrNotFound", err)
	}
	_, _ = f.ls.Transition("X", reminder.ActionComplete)
	if _, _, err := f.sched.Schedule(ctx, "X", t0.Add(time.Minute)); !errors.Is(err, reminder.ErrInvalidTransition) {
		t.Fatalf("completed id err = %v, want ErrInvalidTransition", err)
	}
}

func TestRestartDropsOverdueEntries(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	f := newFixture(t, st)
	f.add("soon")
	f.add("later")
	_, _, _ = f.sched.Schedule(ctx, "soon", t0.Add(5*time.Minute))
	_, _, _ = f.sched.Schedule(ctx, "later", t0.Add(time.Hour))
	f.sched.Stop(ctx)

	// Process comes back 30 minutes later.
	g := newFixture(t, st)
	g.clk.Set(t0.Add(30 * time.Minute))
	if err := g.sched.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	entries := g.sched.Entries()
	if len(entries) != 1 || entries[0].ReminderID != "later" {
		t.Fatalf("entries = %+v, want only later", entries)
	}
	if len(g.prom.promoted) != 0 {
		t.Fatalf("overdue entry was promoted")
	}
	if !g.sched.Running() {
		t.Fatalf("loop not running with non-empty queue")
	}
	var persisted []reminder.SnoozeEntry
	_, _ = storage.GetJSON(ctx, st, storage.KeySnoozeQueue, &persisted)
	if len(persisted) != 1 {
		t.Fatalf("persisted = %d entries, want 1", len(persisted))
	}
}

func TestRestartFiresOverdueWhenConfigured(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	f := newFixture(t, st)
	f.add("soon")
	_, _, _ = f.sched.Schedule(ctx, "soon", t0.Add(5*time.Minute))
	f.sched.Stop(ctx)

	g := newFixture(t, st)
	g.sched.Apply(Config{ScanInterval: time.Hour, FireOverdueOnStart: true})
	g.clk.Set(t0.Add(30 * time.Minute))
	if err := g.sched.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if len(g.prom.promoted) != 1 || !g.ls.Has("soon") {
		t.Fatalf("overdue entry not promoted on start")
	}
	if g.sched.Running() {
		t.Fatalf("loop running with empty queue")
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.add("X")
	_, _, _ = f.sched.Schedule(ctx, "X", t0.Add(time.Minute))
	if !f.sched.Cancel(ctx, "X") {
		t.Fatalf("Cancel = false")
	}
	if f.sched.Cancel(ctx, "X") {
		t.Fatalf("second Cancel = true")
	}
	if f.sched.Has("X") || f.sched.Running() {
		t.Fatalf("entry or loop survived Cancel")
	}
}

func TestQueueOrderedByDueAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for _, id := range []string{"a", "b", "c"} {
		f.add(id)
	}
	_, _, _ = f.sched.Schedule(ctx, "a", t0.Add(3*time.Minute))
	_, _, _ = f.sched.Schedule(ctx, "b", t0.Add(1*time.Minute))
	_, _, _ = f.sched.Schedule(ctx, "c", t0.Add(2*time.Minute))
	e := f.sched.Entries()
	if e[0].ReminderID != "b" || e[1].ReminderID != "c" || e[2].ReminderID != "a" {
		t.Fatalf("order = %s %s %s", e[0].ReminderID, e[1].ReminderID, e[2].ReminderID)
	}
}
