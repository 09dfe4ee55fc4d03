// Package audio selects and triggers reminder tones. Playback is fire-and-forget.
package audio

import (
	"io"
	"sync"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

// ToneProfile describes a tone by name. Synthesis belongs to the player.
type ToneProfile struct {
	Name    string
	Repeats int
}

var (
	ToneGentle  = ToneProfile{Name: "gentle", Repeats: 1}
	ToneDefault = ToneProfile{Name: "default", Repeats: 1}
	ToneUrgent  = ToneProfile{Name: "urgent", Repeats: 3}
	ToneSummary = ToneProfile{Name: "summary", Repeats: 1}
)

// ProfileFor picks the tone for a reminder after kind overrides are applied.
func ProfileFor(kind reminder.Kind, prio reminder.Priority) ToneProfile {
	switch {
	case kind == reminder.KindOverdue:
		return ToneUrgent
	case kind == reminder.KindDailySummary:
		return ToneSummary
	case prio == reminder.PriorityHigh:
		return ToneUrgent
	case prio == reminder.PriorityLow:
		return ToneGentle
	default:
		return ToneDefault
	}
}

type Player interface {
	Play(p ToneProfile)
}

// Nop discards every tone.
type Nop struct{}

func (Nop) Play(ToneProfile) {}

// Bell writes BEL characters to a terminal.
type Bell struct {
	mu sync.Mutex
	W  io.Writer
}

func (b *Bell) Play(p ToneProfile) {
	if b == nil || b.W == nil {
		return
	}
	n := max(p.Repeats, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		_, _ = b.W.Write([]byte{'\a'})
	}
}

// Log records tones at debug level; useful on headless hosts.
type Log struct{ L logx.Logger }

func (l Log) Play(p ToneProfile) {
	l.L.Debug("tone", logx.String("profile", p.Name), logx.Int("repeats", p.Repeats))
}
