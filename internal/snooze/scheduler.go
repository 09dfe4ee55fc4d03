package snooze

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"reminderd/internal/clock"
	"reminderd/internal/eventbus"
	"reminderd/internal/lifecycle"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

const DefaultScanInterval = 30 * time.Second

// Config controls the snooze scheduler.
type Config struct {
	ScanInterval time.Duration
	// FireOverdueOnStart promotes entries that came due while the process
	// was down instead of dropping them.
	FireOverdueOnStart bool
}

// Promoter receives reminders whose snooze has elapsed.
type Promoter interface {
	Dispatch(ctx context.Context, r reminder.Reminder) error
}

type Deps struct {
	Lifecycle *lifecycle.Store
	Store     storage.Store
	Promoter  Promoter
	Clock     clock.Clock
	Log       logx.Logger
	Bus       eventbus.Bus
}

// Scheduler owns the durable snooze queue and the recurring scan that
// promotes due entries back into the dispatcher. The scan loop only runs
// while the queue is non-empty.
type Scheduler struct {
	mu    sync.Mutex
	cfg   Config
	d     Deps
	queue []reminder.SnoozeEntry // sorted by DueAt

	scanMu sync.Mutex

	loopMu  sync.Mutex
	c       *cron.Cron
	baseCtx context.Context
}

func New(cfg Config, d Deps) *Scheduler {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	d.Clock = clock.Or(d.Clock)
	return &Scheduler{cfg: normalizeConfig(cfg), d: d, baseCtx: context.Background()}
}

func normalizeConfig(cfg Config) Config {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	return cfg
}

// Apply updates the config. A running scan loop is restarted on interval change.
func (s *Scheduler) Apply(cfg Config) {
	cfg = normalizeConfig(cfg)
	s.mu.Lock()
	old := s.cfg.ScanInterval
	s.cfg = cfg
	s.mu.Unlock()

	if old == cfg.ScanInterval {
		return
	}
	s.loopMu.Lock()
	running := s.c != nil
	s.loopMu.Unlock()
	if running {
		s.stopLoop()
		s.ensureLoop()
	}
}

// Start loads the persisted queue. Entries already due are dropped unless
// FireOverdueOnStart is set, in which case they are promoted immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.loopMu.Lock()
	s.baseCtx = ctx
	s.loopMu.Unlock()

	var saved []reminder.SnoozeEntry
	if _, err := storage.GetJSON(ctx, s.d.Store, storage.KeySnoozeQueue, &saved); err != nil {
		s.d.Log.Warn("snooze queue load failed; starting empty", logx.Err(err))
		saved = nil
	}

	now := s.d.Clock.Now()
	s.mu.Lock()
	fire := s.cfg.FireOverdueOnStart
	kept := make([]reminder.SnoozeEntry, 0, len(saved))
	dropped := 0
	for _, e := range saved {
		if e.ReminderID == "" {
			continue
		}
		if !e.DueAt.After(now) && !fire {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	sortEntries(kept)
	s.queue = kept
	if dropped > 0 {
		s.persistLocked(ctx)
	}
	n := len(s.queue)
	s.mu.Unlock()

	s.d.Log.Info("snooze queue restored", logx.Int("entries", n), logx.Int("dropped_overdue", dropped))
	if n == 0 {
		return nil
	}
	if fire {
		s.Scan(ctx)
	}
	if len(s.Entries()) > 0 {
		s.ensureLoop()
	}
	return nil
}

// Stop halts the scan loop. The persisted queue is left intact.
func (s *Scheduler) Stop(ctx context.Context) {
	s.loopMu.Lock()
	c := s.c
	s.c = nil
	s.loopMu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Schedule moves a pending reminder out of the lifecycle store and into the
// queue. The queue is persisted before Schedule returns. The popup handle of
// the snoozed reminder is returned so the caller can take it down.
func (s *Scheduler) Schedule(ctx context.Context, id string, dueAt time.Time) (reminder.SnoozeEntry, lifecycle.Handle, error) {
	now := s.d.Clock.Now()
	if !dueAt.After(now) {
		return reminder.SnoozeEntry{}, nil, fmt.Errorf("%w: %s", reminder.ErrInvalidDueAt, dueAt.Format(time.RFC3339))
	}
	t, err := s.d.Lifecycle.Begin(id, reminder.ActionSnooze)
	if err != nil {
		return reminder.SnoozeEntry{}, nil, err
	}
	ent, err := s.d.Lifecycle.Commit(t)
	if err != nil {
		return reminder.SnoozeEntry{}, nil, err
	}

	entry := reminder.SnoozeEntry{
		ReminderID:          id,
		DueAt:               dueAt,
		OriginalScheduledAt: ent.Reminder.ScheduledTime,
		CreatedAt:           now,
		Snapshot:            ent.Reminder,
	}

	s.mu.Lock()
	s.removeLocked(id)
	s.queue = append(s.queue, entry)
	sortEntries(s.queue)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.ensureLoop()
	eventbus.Publish(s.d.Bus, eventbus.TypeSnoozed, eventbus.ReminderData{
		ReminderID: id, Kind: string(ent.Reminder.Kind), Priority: string(ent.Reminder.Priority), Action: string(reminder.ActionSnooze),
	})
	s.d.Log.Info("reminder snoozed", logx.String("reminder_id", id), logx.Time("due_at", dueAt))
	return entry, ent.Handle, nil
}

// Cancel drops a queued entry. It reports whether one existed.
func (s *Scheduler) Cancel(ctx context.Context, id string) bool {
	s.mu.Lock()
	ok := s.removeLocked(id)
	if ok {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()
	if ok {
		s.stopLoopIfEmpty()
	}
	return ok
}

// Scan promotes every entry with DueAt <= now and returns how many were promoted.
func (s *Scheduler) Scan(ctx context.Context) int {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	now := s.d.Clock.Now()
	s.mu.Lock()
	var due []reminder.SnoozeEntry
	rest := s.queue[:0:0]
	for _, e := range s.queue {
		if !e.DueAt.After(now) {
			due = append(due, e)
		} else {
			rest = append(rest, e)
		}
	}
	if len(due) == 0 {
		s.mu.Unlock()
		s.stopLoopIfEmpty()
		return 0
	}
	s.queue = rest
	s.mu.Unlock()

	for _, e := range due {
		r := e.Snapshot.Clone()
		r.ID = e.ReminderID
		r.Status = reminder.StatusPending
		r.CreatedAt = now
		r.UpdatedAt = now
		if err := s.d.Promoter.Dispatch(ctx, r); err != nil {
			s.d.Log.Warn("snooze promotion failed", logx.String("reminder_id", e.ReminderID), logx.Err(err))
			continue
		}
		eventbus.Publish(s.d.Bus, eventbus.TypePromoted, eventbus.ReminderData{
			ReminderID: r.ID, Kind: string(r.Kind), Priority: string(r.Priority),
		})
	}

	s.mu.Lock()
	s.persistLocked(ctx)
	s.mu.Unlock()
	s.stopLoopIfEmpty()
	s.d.Log.Debug("snooze scan promoted entries", logx.Int("count", len(due)))
	return len(due)
}

// Entries returns a copy of the queue ordered by due time.
func (s *Scheduler) Entries() []reminder.SnoozeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reminder.SnoozeEntry, len(s.queue))
	for i, e := range s.queue {
		e.Snapshot = e.Snapshot.Clone()
		out[i] = e
	}
	return out
}

func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.queue {
		if e.ReminderID == id {
			return true
		}
	}
	return false
}

// Running reports whether the scan loop is active.
func (s *Scheduler) Running() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.c != nil
}

func (s *Scheduler) ensureLoop() {
	s.mu.Lock()
	interval := s.cfg.ScanInterval
	s.mu.Unlock()

	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.c != nil {
		return
	}
	ctx := s.baseCtx
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.d.Log}), cron.SkipIfStillRunning(cronLogger{s.d.Log})))
	c.Schedule(cron.Every(interval), cron.FuncJob(func() { s.Scan(ctx) }))
	c.Start()
	s.c = c
	s.d.Log.Debug("snooze scan loop started", logx.Duration("interval", interval))
}

// stopLoop does not wait for a running scan; it may be called from one.
func (s *Scheduler) stopLoop() {
	s.loopMu.Lock()
	c := s.c
	s.c = nil
	s.loopMu.Unlock()
	if c != nil {
		c.Stop()
		s.d.Log.Debug("snooze scan loop stopped")
	}
}

// stopLoopIfEmpty re-checks the queue under loopMu so a concurrent Schedule
// either sees the loop stopped and restarts it, or keeps it alive.
func (s *Scheduler) stopLoopIfEmpty() {
	s.loopMu.Lock()
	s.mu.Lock()
	empty := len(s.queue) == 0
	s.mu.Unlock()
	c := s.c
	if empty {
		s.c = nil
	}
	s.loopMu.Unlock()
	if empty && c != nil {
		c.Stop()
		s.d.Log.Debug("snooze scan loop stopped")
	}
}

func (s *Scheduler) removeLocked(id string) bool {
	for i, e := range s.queue {
		if e.ReminderID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

// persistLocked overwrites the durable record. Failures are logged and the
// in-memory queue stays authoritative for this cycle.
func (s *Scheduler) persistLocked(ctx context.Context) {
	if s.d.Store == nil {
		return
	}
	if err := storage.PutJSON(ctx, s.d.Store, storage.KeySnoozeQueue, s.queue); err != nil {
		s.d.Log.Error("snooze queue persist failed", logx.Err(fmt.Errorf("%w: %w", reminder.ErrPersistence, err)))
	}
}

func sortEntries(q []reminder.SnoozeEntry) {
	sort.SliceStable(q, func(i, j int) bool { return q[i].DueAt.Before(q[j].DueAt) })
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, logx.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", keysAndValues))
}
