package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"reminderd/internal/presentation"
	"reminderd/internal/reminder"
	rtsup "reminderd/internal/runtime/supervisor"
	logx "reminderd/pkg/logx"
)

type Config struct {
	Token string
	// ChatID receives reminders and notices.
	ChatID   int64
	ThreadID int
	// LogChatID receives forwarded log lines; 0 means ChatID.
	LogChatID   int64
	LogThreadID int
	// OwnerUserIDs may press buttons; empty allows anyone in the chat.
	OwnerUserIDs []int64
	PollTimeout  time.Duration
	Location     *time.Location
}

// Presenter sends each reminder as a chat message with inline action
// buttons and turns button presses into user actions.
type Presenter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	mu      sync.Mutex
	handles map[string]*handle
}

func New(cfg Config, log logx.Logger) (*Presenter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Presenter{cfg: cfg, log: log, bot: b, handles: map[string]*handle{}}
	p.bot.Handle(tele.OnCallback, p.onCallback)
	return p, nil
}

// Supervisor returns the poll supervisor (nil if not started).
func (p *Presenter) Supervisor() *rtsup.Supervisor {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.sup
}

func (p *Presenter) Start(ctx context.Context) error {
	p.runMu.Lock()
	if p.running {
		p.runMu.Unlock()
		return nil
	}
	p.running = true
	p.sup = rtsup.New(ctx,
		rtsup.WithLogger(p.log.With(logx.String("comp", "telegram"))),
		rtsup.WithCancelOnError(false),
	)
	sup := p.sup
	p.runMu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		p.bot.Stop()
	})

	// Start blocks until Stop; an early return while still running is a fault.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		p.log.Info("polling started")
		p.bot.Start()
		p.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("telebot poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (p *Presenter) Stop(ctx context.Context) error {
	p.runMu.Lock()
	sup := p.sup
	p.sup = nil
	wasRunning := p.running
	p.running = false
	p.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			p.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		p.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (p *Presenter) Render(ctx context.Context, d presentation.Directive) (presentation.Handle, error) {
	if d.ReminderID == "" {
		return nil, errors.New("telegram: directive without reminder id")
	}
	text := FormatDirective(d, p.cfg.Location)
	markup := &tele.ReplyMarkup{InlineKeyboard: Keyboard(d)}
	ref, err := p.send(ctx, p.cfg.ChatID, p.cfg.ThreadID, text, markup)
	if err != nil {
		return nil, err
	}
	h := &handle{p: p, id: d.ReminderID, msg: ref, text: text}
	p.mu.Lock()
	p.handles[d.ReminderID] = h
	p.mu.Unlock()
	return h, nil
}

func (p *Presenter) ShowNotice(ctx context.Context, n presentation.Notice) error {
	prefix := "ℹ️"
	switch n.Level {
	case "error":
		prefix = "⚠️"
	case "warn", "warning":
		prefix = "❕"
	}
	_, err := p.send(ctx, p.cfg.ChatID, p.cfg.ThreadID, prefix+" "+escape(n.Text), nil)
	return err
}

// SendLog forwards one formatted log line. It satisfies logx.RemoteSink.
func (p *Presenter) SendLog(ctx context.Context, text string) error {
	chat, thread := p.cfg.LogChatID, p.cfg.LogThreadID
	if chat == 0 {
		chat, thread = p.cfg.ChatID, p.cfg.ThreadID
	}
	_, err := p.send(ctx, chat, thread, "<pre>"+escape(text)+"</pre>", nil)
	return err
}

func (p *Presenter) send(ctx context.Context, chatID int64, threadID int, text string, markup *tele.ReplyMarkup) (*tele.Message, error) {
	chunks := splitText(text, textLimit, tele.ModeHTML)
	chat := &tele.Chat{ID: chatID}
	var first *tele.Message
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		opt := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true, ThreadID: threadID}
		if i == 0 && markup != nil {
			opt.ReplyMarkup = markup
		}
		msg, err := p.bot.Send(chat, chunk, opt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = msg
		}
	}
	return first, nil
}

func (p *Presenter) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	if m := c.Message(); m != nil && m.Chat != nil && m.Chat.ID != p.cfg.ChatID {
		return nil
	}
	if !p.allowed(cb.Sender) {
		p.log.Warn("button press from unknown user ignored", logx.Int64("user_id", userID(cb.Sender)))
		return c.Respond(&tele.CallbackResponse{Text: "Not allowed."})
	}
	a, err := ParseCallback(cb.Data)
	if err != nil {
		p.log.Debug("unrecognised callback", logx.String("data", cb.Data))
		return c.Respond(&tele.CallbackResponse{Text: "Unknown action."})
	}

	p.mu.Lock()
	h := p.handles[a.ReminderID]
	p.mu.Unlock()
	if h == nil {
		return c.Respond(&tele.CallbackResponse{Text: "This reminder is already closed."})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: ackText(a)})
	// Complete waits on the backend; keep the poller free.
	if sup := p.Supervisor(); sup != nil {
		sup.Go0("telegram.action", func(context.Context) { h.fire(a) })
	} else {
		h.fire(a)
	}
	return nil
}

func (p *Presenter) allowed(u *tele.User) bool {
	if len(p.cfg.OwnerUserIDs) == 0 {
		return true
	}
	if u == nil {
		return false
	}
	for _, id := range p.cfg.OwnerUserIDs {
		if id == u.ID {
			return true
		}
	}
	return false
}

func userID(u *tele.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// close edits the message to drop its buttons.
func (p *Presenter) close(h *handle) {
	p.mu.Lock()
	if p.handles[h.id] == h {
		delete(p.handles, h.id)
	}
	p.mu.Unlock()
	if h.msg == nil {
		return
	}
	text := h.text
	if len([]rune(text)) > textLimit {
		text = string([]rune(text)[:textLimit])
	}
	edit := func() {
		if _, err := p.bot.Edit(h.msg, "<s>"+stripTags(text)+"</s>", &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
			p.log.Debug("closing reminder message failed", logx.String("reminder_id", h.id), logx.Err(err))
		}
	}
	if sup := p.Supervisor(); sup != nil {
		sup.Go0("telegram.close", func(context.Context) { edit() })
		return
	}
	edit()
}

func ackText(a presentation.UserAction) string {
	switch a.Action {
	case reminder.ActionComplete:
		return "Marked done."
	case reminder.ActionDismiss:
		return "Dismissed."
	case reminder.ActionSnooze:
		if a.SnoozeFor > 0 {
			return fmt.Sprintf("Snoozed for %s.", presentation.FormatDelay(a.SnoozeFor))
		}
		return "Snoozed."
	}
	return "OK"
}

type handle struct {
	p    *Presenter
	id   string
	msg  *tele.Message
	text string

	mu      sync.Mutex
	fn      presentation.ActionFunc
	removed bool
}

func (h *handle) Remove() {
	h.mu.Lock()
	if h.removed {
		h.mu.Unlock()
		return
	}
	h.removed = true
	h.mu.Unlock()
	h.p.close(h)
}

func (h *handle) OnUserAction(fn presentation.ActionFunc) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

func (h *handle) fire(a presentation.UserAction) {
	h.mu.Lock()
	fn, removed := h.fn, h.removed
	h.mu.Unlock()
	if fn != nil && !removed {
		fn(a)
	}
}
