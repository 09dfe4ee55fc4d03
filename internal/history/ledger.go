package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reminderd/internal/clock"
	"reminderd/internal/eventbus"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

const DefaultMaxEntries = 1000

type Config struct {
	MaxEntries int
	// Location is used for date buckets; nil means time.Local.
	Location *time.Location
}

type Deps struct {
	Store storage.Store
	Clock clock.Clock
	Log   logx.Logger
	Bus   eventbus.Bus
	// NewID overrides entry id generation.
	NewID func() string
}

type record struct {
	e   reminder.HistoryEntry
	seq uint64
}

// Ledger is the capped, append-only record of accepted transitions. Entries
// are kept ordered by timestamp, then by insertion.
type Ledger struct {
	mu      sync.RWMutex
	cfg     Config
	d       Deps
	entries []record
	seq     uint64
}

func New(cfg Config, d Deps) *Ledger {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	d.Clock = clock.Or(d.Clock)
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &Ledger{cfg: cfg, d: d}
}

// Load replaces the in-memory ledger with the persisted record.
func (l *Ledger) Load(ctx context.Context) error {
	var saved []reminder.HistoryEntry
	if _, err := storage.GetJSON(ctx, l.d.Store, storage.KeyHistory, &saved); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
	for _, e := range saved {
		l.insertLocked(e)
	}
	l.capLocked()
	return nil
}

// Append records one accepted transition and persists the ledger.
// A persistence failure is returned wrapped in ErrPersistence; the entry
// stays in memory either way.
func (l *Ledger) Append(ctx context.Context, action reminder.Action, snap reminder.Reminder, meta map[string]string) (string, error) {
	e := reminder.HistoryEntry{
		ID:         l.d.NewID(),
		Action:     action,
		ReminderID: snap.ID,
		Title:      snap.Title,
		Content:    snap.Content,
		Priority:   snap.Priority,
		Kind:       snap.Kind,
		Timestamp:  l.d.Clock.Now().UTC(),
		AgentName:  snap.AgentName,
	}
	m := make(map[string]string, len(meta)+2)
	for k, v := range meta {
		m[k] = v
	}
	if snap.ScheduledTime != nil {
		if _, ok := m[reminder.MetaScheduledTime]; !ok {
			m[reminder.MetaScheduledTime] = snap.ScheduledTime.UTC().Format(time.RFC3339)
		}
		if snap.IsOverdueAt(e.Timestamp) {
			m[reminder.MetaOverdue] = "true"
		}
	}
	if _, ok := m[reminder.MetaSource]; !ok && snap.Source != "" {
		m[reminder.MetaSource] = snap.Source
	}
	if len(m) > 0 {
		e.Metadata = m
	}

	l.mu.Lock()
	l.insertLocked(e)
	l.capLocked()
	err := l.persistLocked(ctx)
	l.mu.Unlock()

	eventbus.Publish(l.d.Bus, eventbus.TypeHistory, eventbus.ReminderData{
		ReminderID: e.ReminderID, Kind: string(e.Kind), Priority: string(e.Priority), Action: string(e.Action),
	})
	return e.ID, err
}

// Entries returns a copy of every entry, oldest first.
func (l *Ledger) Entries() []reminder.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]reminder.HistoryEntry, len(l.entries))
	for i, r := range l.entries {
		out[i] = r.e.Clone()
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the ledger and persists the empty record.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return l.persistLocked(ctx)
}

// Location is the zone date buckets are evaluated in.
func (l *Ledger) Location() *time.Location { return l.cfg.Location }

func (l *Ledger) insertLocked(e reminder.HistoryEntry) {
	l.seq++
	rec := record{e: e.Clone(), seq: l.seq}
	// Appends are almost always newest; search from the end.
	i := len(l.entries)
	for i > 0 && l.entries[i-1].e.Timestamp.After(e.Timestamp) {
		i--
	}
	l.entries = append(l.entries, record{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = rec
}

// capLocked drops the oldest entries by timestamp beyond MaxEntries.
func (l *Ledger) capLocked() {
	if over := len(l.entries) - l.cfg.MaxEntries; over > 0 {
		l.entries = append([]record(nil), l.entries[over:]...)
	}
}

func (l *Ledger) persistLocked(ctx context.Context) error {
	if l.d.Store == nil {
		return nil
	}
	out := make([]reminder.HistoryEntry, len(l.entries))
	for i, r := range l.entries {
		out[i] = r.e
	}
	if err := storage.PutJSON(ctx, l.d.Store, storage.KeyHistory, out); err != nil {
		err = fmt.Errorf("%w: history: %w", reminder.ErrPersistence, err)
		l.d.Log.Error("history persist failed", logx.Err(err))
		return err
	}
	return nil
}

func sortRecords(rs []record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].e.Timestamp.Equal(rs[j].e.Timestamp) {
			return rs[i].e.Timestamp.Before(rs[j].e.Timestamp)
		}
		return rs[i].seq < rs[j].seq
	})
}
