package inbound

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"

	"reminderd/internal/backend"
	"reminderd/internal/clock"
	"reminderd/internal/reminder"
	rtsup "reminderd/internal/runtime/supervisor"
	logx "reminderd/pkg/logx"
)

type Config struct {
	URL          string
	PingInterval time.Duration
	// ReadTimeout bounds silence between frames (pongs included).
	ReadTimeout  time.Duration
	DedupWindow  time.Duration
	DedupSize    int
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * c.PingInterval
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 5 * time.Minute
	}
	if c.DedupSize <= 0 {
		c.DedupSize = 1024
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = time.Minute
	}
	return c
}

// Handler consumes raw reminder payloads.
type Handler interface {
	HandlePayload(ctx context.Context, raw []byte) (reminder.Reminder, error)
}

// Feed keeps a websocket connection to the reminder source open and hands
// every distinct frame to the handler. Identical frames repeated within the
// dedup window (redeliveries after a reconnect) are dropped.
type Feed struct {
	cfg     Config
	handler Handler
	tokens  backend.TokenSource
	clk     clock.Clock
	log     logx.Logger
	dialer  *websocket.Dialer

	mu   sync.Mutex
	sup  *rtsup.Supervisor
	seen *lru.Cache[uint64, time.Time]
}

func New(cfg Config, h Handler, tokens backend.TokenSource, clk clock.Clock, log logx.Logger) *Feed {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	seen, _ := lru.New[uint64, time.Time](cfg.DedupSize)
	return &Feed{
		cfg:     cfg,
		handler: h,
		tokens:  tokens,
		clk:     clock.Or(clk),
		log:     log,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		seen:    seen,
	}
}

// Start connects in the background. It is idempotent.
func (f *Feed) Start(ctx context.Context) error {
	if f.cfg.URL == "" {
		return errors.New("inbound: url is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sup != nil {
		return nil
	}
	f.sup = rtsup.New(ctx, rtsup.WithLogger(f.log), rtsup.WithCancelOnError(false))
	f.sup.GoRestart("inbound.ws", f.run, rtsup.WithRestartBackoff(f.cfg.ReconnectMin, f.cfg.ReconnectMax))
	f.log.Info("inbound feed started", logx.String("url", f.cfg.URL))
	return nil
}

func (f *Feed) Stop(ctx context.Context) error {
	f.mu.Lock()
	sup := f.sup
	f.sup = nil
	f.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (f *Feed) run(ctx context.Context) error {
	header := http.Header{}
	if f.tokens != nil {
		tok, err := f.tokens.Token()
		switch {
		case err == nil:
			if err := backend.CheckExpiry(tok, f.clk.Now()); err != nil {
				return err
			}
			header.Set("Authorization", "Bearer "+tok)
		case errors.Is(err, backend.ErrNoToken):
		default:
			return err
		}
	}

	conn, resp, err := f.dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	f.log.Info("inbound feed connected")

	// Unblock ReadMessage on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()
	go f.pingLoop(conn, stop)

	_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	})

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		f.deliver(ctx, data)
	}
}

func (f *Feed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(f.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// deliver hands one frame to the handler unless it is a recent duplicate.
func (f *Feed) deliver(ctx context.Context, data []byte) {
	if !f.firstSeen(data) {
		f.log.Debug("duplicate frame dropped", logx.Int("bytes", len(data)))
		return
	}
	r, err := f.handler.HandlePayload(ctx, data)
	if err != nil {
		f.log.Warn("inbound payload rejected", logx.Err(err))
		return
	}
	f.log.Debug("inbound payload accepted", logx.String("reminder_id", r.ID))
}

func (f *Feed) firstSeen(data []byte) bool {
	h := fnv.New64a()
	_, _ = h.Write(data)
	key := h.Sum64()
	now := f.clk.Now()
	if at, ok := f.seen.Get(key); ok && now.Sub(at) < f.cfg.DedupWindow {
		return false
	}
	f.seen.Add(key, now)
	return true
}
