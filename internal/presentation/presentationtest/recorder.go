// Package presentationtest provides recording presenters for tests.
package presentationtest

import (
	"context"
	"errors"
	"sync"

	"reminderd/internal/audio"
	"reminderd/internal/presentation"
)

var ErrRenderFailed = errors.New("presentationtest: render failed")

// Recorder records every directive and notice. Set Fail to make Render error.
type Recorder struct {
	mu         sync.Mutex
	Fail       bool
	directives []presentation.Directive
	handles    []*Handle
	notices    []presentation.Notice
}

func (r *Recorder) Render(_ context.Context, d presentation.Directive) (presentation.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directives = append(r.directives, d)
	if r.Fail {
		return nil, ErrRenderFailed
	}
	h := &Handle{ReminderID: d.ReminderID}
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *Recorder) ShowNotice(_ context.Context, n presentation.Notice) error {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Directives() []presentation.Directive {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]presentation.Directive(nil), r.directives...)
}

func (r *Recorder) Notices() []presentation.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]presentation.Notice(nil), r.notices...)
}

// Last returns the most recent handle for id, or nil.
func (r *Recorder) Last(id string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.handles) - 1; i >= 0; i-- {
		if r.handles[i].ReminderID == id {
			return r.handles[i]
		}
	}
	return nil
}

type Handle struct {
	ReminderID string

	mu      sync.Mutex
	removed int
	fn      presentation.ActionFunc
}

func (h *Handle) Remove() {
	h.mu.Lock()
	h.removed++
	h.mu.Unlock()
}

func (h *Handle) Removed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removed
}

func (h *Handle) OnUserAction(fn presentation.ActionFunc) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

// Fire simulates a user clicking an action on this popup.
func (h *Handle) Fire(a presentation.UserAction) bool {
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	if fn == nil {
		return false
	}
	if a.ReminderID == "" {
		a.ReminderID = h.ReminderID
	}
	fn(a)
	return true
}

// Tones is an audio.Player that records profile names.
type Tones struct {
	mu    sync.Mutex
	names []string
}

func (t *Tones) Play(p audio.ToneProfile) {
	t.mu.Lock()
	t.names = append(t.names, p.Name)
	t.mu.Unlock()
}

func (t *Tones) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.names...)
}
