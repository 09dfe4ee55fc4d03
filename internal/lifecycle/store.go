package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"reminderd/internal/reminder"
)

// ErrStaleTicket is returned when a ticket is resolved after its reminder
// was cleared or re-added. Callers discard the late result.
var ErrStaleTicket = errors.New("lifecycle: stale ticket")

const defaultSettledSize = 4096

// Handle is whatever the presentation layer returned for a rendered reminder.
type Handle interface {
	Remove()
}

// Entry is a tracked reminder together with its popup handle.
type Entry struct {
	Reminder reminder.Reminder
	Handle   Handle
}

// Ticket identifies one provisional transition started with Begin.
type Ticket struct {
	ID     string
	Action reminder.Action
	gen    uint64
}

type slot struct {
	r        reminder.Reminder
	handle   Handle
	gen      uint64
	seq      uint64
	inflight *Ticket
}

// Store owns every pending reminder. All legality checks and status changes
// happen under one mutex, so each transition is a single compare-and-set.
type Store struct {
	mu      sync.Mutex
	items   map[string]*slot
	settled *lru.Cache[string, reminder.Status]
	gen     uint64
	seq     uint64
}

func New(settledSize int) *Store {
	if settledSize <= 0 {
		settledSize = defaultSettledSize
	}
	settled, _ := lru.New[string, reminder.Status](settledSize)
	return &Store{items: map[string]*slot{}, settled: settled}
}

// Add tracks r as Pending. If the id was already tracked, the previous
// handle is returned so the caller can take its popup down.
func (s *Store) Add(r reminder.Reminder, h Handle) (replaced Handle) {
	r = r.Clone()
	r.Status = reminder.StatusPending

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.items[r.ID]; ok {
		replaced = old.handle
	}
	s.gen++
	s.seq++
	s.items[r.ID] = &slot{r: r, handle: h, gen: s.gen, seq: s.seq}
	s.settled.Remove(r.ID)
	return replaced
}

func (s *Store) Get(id string) (reminder.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.items[id]
	if !ok {
		return reminder.Reminder{}, false
	}
	return sl.r.Clone(), true
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	return ok
}

// Settled returns the terminal status of a recently removed id.
func (s *Store) Settled(id string) (reminder.Status, bool) {
	return s.settled.Peek(id)
}

// List returns tracked reminders in insertion order.
func (s *Store) List() []reminder.Reminder {
	s.mu.Lock()
	slots := make([]*slot, 0, len(s.items))
	for _, sl := range s.items {
		slots = append(slots, sl)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].seq < slots[j].seq })
	out := make([]reminder.Reminder, len(slots))
	for i, sl := range slots {
		out[i] = sl.r.Clone()
	}
	s.mu.Unlock()
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Remove drops id without recording a terminal status.
func (s *Store) Remove(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.items[id]
	if !ok {
		return Entry{}, false
	}
	delete(s.items, id)
	return Entry{Reminder: sl.r.Clone(), Handle: sl.handle}, true
}

// Clear drops every tracked reminder and returns their handles. Tickets
// still in flight become stale.
func (s *Store) Clear() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]Handle, 0, len(s.items))
	for _, sl := range s.items {
		if sl.handle != nil {
			handles = append(handles, sl.handle)
		}
	}
	s.items = map[string]*slot{}
	s.gen++
	return handles
}

// Transition applies action immediately: the reminder leaves the store and
// its terminal status is remembered. The returned entry carries the final status.
func (s *Store) Transition(id string, action reminder.Action) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.checkLocked(id, action)
	if err != nil {
		return Entry{}, err
	}
	return s.settleLocked(sl, action), nil
}

// Begin provisionally applies action. The reminder stays tracked with the
// target status until Commit or Rollback; concurrent attempts see ErrConflict.
func (s *Store) Begin(id string, action reminder.Action) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.checkLocked(id, action)
	if err != nil {
		return Ticket{}, err
	}
	t := Ticket{ID: id, Action: action, gen: sl.gen}
	sl.inflight = &t
	sl.r.Status = action.Target()
	return t, nil
}

// Commit finalizes a ticket and removes the reminder.
func (s *Store) Commit(t Ticket) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.ticketSlotLocked(t)
	if err != nil {
		return Entry{}, err
	}
	sl.inflight = nil
	return s.settleLocked(sl, t.Action), nil
}

// Rollback restores a ticket's reminder to Pending.
func (s *Store) Rollback(t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.ticketSlotLocked(t)
	if err != nil {
		return err
	}
	sl.inflight = nil
	sl.r.Status = reminder.StatusPending
	return nil
}

// Handle returns the popup handle for id.
func (s *Store) Handle(id string) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.items[id]
	if !ok || sl.handle == nil {
		return nil, false
	}
	return sl.handle, true
}

func (s *Store) checkLocked(id string, action reminder.Action) (*slot, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", reminder.ErrInvalidTransition, action)
	}
	sl, ok := s.items[id]
	if !ok {
		if st, settled := s.settled.Peek(id); settled {
			return nil, fmt.Errorf("%w: %s is %s", reminder.ErrInvalidTransition, id, st)
		}
		return nil, fmt.Errorf("%w: %s", reminder.ErrNotFound, id)
	}
	if sl.inflight != nil {
		return nil, fmt.Errorf("%w: %s (%s pending confirmation)", reminder.ErrConflict, id, sl.inflight.Action)
	}
	if sl.r.Status != reminder.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", reminder.ErrInvalidTransition, id, sl.r.Status)
	}
	return sl, nil
}

func (s *Store) ticketSlotLocked(t Ticket) (*slot, error) {
	sl, ok := s.items[t.ID]
	if !ok || sl.gen != t.gen || sl.inflight == nil || *sl.inflight != t {
		return nil, fmt.Errorf("%w: %s", ErrStaleTicket, t.ID)
	}
	return sl, nil
}

func (s *Store) settleLocked(sl *slot, action reminder.Action) Entry {
	status := action.Target()
	sl.r.Status = status
	delete(s.items, sl.r.ID)
	s.settled.Add(sl.r.ID, status)
	return Entry{Reminder: sl.r.Clone(), Handle: sl.handle}
}
