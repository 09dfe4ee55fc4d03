package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RemoteConfig forwards lines at or above MinLevel to a RemoteSink, at most
// RatePerSec per second. Excess lines are dropped, never queued.
type RemoteConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// RemoteSink receives formatted log lines, e.g. the chat presenter.
type RemoteSink interface {
	SendLog(ctx context.Context, text string) error
}

const (
	remoteQueueSize = 256
	remoteSendLimit = 10 * time.Second
	maxRemoteText   = 3500
	maxRemoteValue  = 600
)

// remote is a zerolog.LevelWriter that hands lines to a single sender goroutine.
type remote struct {
	mu       sync.Mutex
	sink     RemoteSink
	limiter  *rate.Limiter
	minLevel zerolog.Level

	queue  chan string
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func newRemote() *remote {
	return &remote{queue: make(chan string, remoteQueueSize), minLevel: zerolog.WarnLevel}
}

func (r *remote) setSink(sink RemoteSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

func (r *remote) configure(cfg RemoteConfig) {
	rps := max(cfg.RatePerSec, 1)
	r.mu.Lock()
	r.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	r.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	r.mu.Unlock()
	if cfg.Enabled {
		r.start()
	}
}

func (r *remote) start() {
	r.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		r.cancel = cancel
		r.done = make(chan struct{})
		done := r.done
		r.mu.Unlock()
		go func() {
			defer close(done)
			r.run(ctx)
		}()
	})
}

func (r *remote) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *remote) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-r.queue:
			r.mu.Lock()
			sink := r.sink
			r.mu.Unlock()
			if sink == nil {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, remoteSendLimit)
			_ = sink.SendLog(sendCtx, text)
			cancel()
		}
	}
}

func (r *remote) Write(p []byte) (int, error) { return r.WriteLevel(zerolog.InfoLevel, p) }

func (r *remote) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	r.mu.Lock()
	ok := r.sink != nil && r.limiter != nil && level >= r.minLevel && r.limiter.Allow()
	r.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	if text := FormatLine(p); text != "" {
		select {
		case r.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// FormatLine turns one JSON log line into "[LEVEL] message" followed by one
// "- key=value" line per field, sorted by key. Non-JSON input is returned trimmed.
func FormatLine(p []byte) string {
	line := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return clip(line, maxRemoteText)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "time" && k != "level" && k != "message" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(m[k]), maxRemoteValue))
	}
	return clip(b.String(), maxRemoteText)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
