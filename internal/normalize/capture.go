package normalize

import (
	"context"
	"sync"
	"time"

	"reminderd/internal/clock"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

const (
	DefaultCaptureSize = 50
	maxCapturedBytes   = 4096
)

type CaptureEntry struct {
	At   time.Time `json:"at"`
	Wire string    `json:"wire"`
	Raw  string    `json:"raw"`
}

// Capture is a bounded ring of recent raw inputs for diagnostics. It is off
// until Enable(true); when a store is attached the ring is persisted after
// each record.
type Capture struct {
	mu      sync.Mutex
	enabled bool
	size    int
	ring    []CaptureEntry
	next    int
	full    bool

	store storage.Store
	clock clock.Clock
	log   logx.Logger
}

func NewCapture(size int, store storage.Store, c clock.Clock, log logx.Logger) *Capture {
	if size <= 0 {
		size = DefaultCaptureSize
	}
	return &Capture{size: size, ring: make([]CaptureEntry, size), store: store, clock: clock.Or(c), log: log}
}

func (c *Capture) Enable(on bool) {
	c.mu.Lock()
	c.enabled = on
	c.mu.Unlock()
}

func (c *Capture) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Capture) Record(ctx context.Context, raw []byte, wire string) {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	if len(raw) > maxCapturedBytes {
		raw = raw[:maxCapturedBytes]
	}
	c.ring[c.next] = CaptureEntry{At: c.clock.Now(), Wire: wire, Raw: string(raw)}
	c.next = (c.next + 1) % c.size
	if c.next == 0 {
		c.full = true
	}
	snap := c.entriesLocked()
	c.mu.Unlock()

	if c.store != nil {
		if err := storage.PutJSON(ctx, c.store, storage.KeyDebugCapture, snap); err != nil {
			c.log.Warn("debug capture persist failed", logx.Err(err))
		}
	}
}

// Entries returns captured inputs, oldest first.
func (c *Capture) Entries() []CaptureEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entriesLocked()
}

func (c *Capture) entriesLocked() []CaptureEntry {
	if !c.full {
		return append([]CaptureEntry(nil), c.ring[:c.next]...)
	}
	out := make([]CaptureEntry, 0, c.size)
	out = append(out, c.ring[c.next:]...)
	return append(out, c.ring[:c.next]...)
}

// Load restores a previously persisted ring.
func (c *Capture) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	var saved []CaptureEntry
	ok, err := storage.GetJSON(ctx, c.store, storage.KeyDebugCapture, &saved)
	if err != nil || !ok {
		return err
	}
	if len(saved) > c.size {
		saved = saved[len(saved)-c.size:]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring = make([]CaptureEntry, c.size)
	copy(c.ring, saved)
	c.next = len(saved) % c.size
	c.full = len(saved) == c.size
	return nil
}
