package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reminderd/internal/clock"
	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

const DefaultTimeout = 10 * time.Second

type Action string

const (
	ActionSnooze   Action = "snooze"
	ActionComplete Action = "complete"
)

// Update is the body of PUT /api/todos/{id}/reminder.
type Update struct {
	TodoID      string            `json:"todoId"`
	Action      Action            `json:"action"`
	NewTime     *time.Time        `json:"newTime,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Priority    reminder.Priority `json:"priority,omitempty"`
	Title       string            `json:"title,omitempty"`
	Content     string            `json:"content,omitempty"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithClock(clk clock.Clock) Option     { return func(c *Client) { c.clk = clk } }
func WithLogger(l logx.Logger) Option      { return func(c *Client) { c.log = l } }

// Client confirms user actions with the todo backend. Calls are not
// retried; the caller decides what a failure means locally.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
	clk    clock.Clock
	log    logx.Logger
}

func New(cfg Config, tokens TokenSource, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: invalid base_url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		clk:    clock.Real{},
		log:    logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.clk = clock.Or(c.clk)
	return c, nil
}

// Notify sends one update. Any failure, including a non-2xx status, is
// wrapped in reminder.ErrBackendSync.
func (c *Client) Notify(ctx context.Context, u Update) error {
	if err := c.notify(ctx, u); err != nil {
		c.log.Warn("backend update failed",
			logx.String("todo_id", u.TodoID), logx.String("action", string(u.Action)), logx.Err(err))
		return fmt.Errorf("%w: %w", reminder.ErrBackendSync, err)
	}
	c.log.Debug("backend update confirmed", logx.String("todo_id", u.TodoID), logx.String("action", string(u.Action)))
	return nil
}

func (c *Client) notify(ctx context.Context, u Update) error {
	if u.TodoID == "" {
		return errors.New("empty todo id")
	}
	if c.tokens == nil {
		return ErrNoToken
	}
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}
	if err := CheckExpiry(token, c.clk.Now()); err != nil {
		return err
	}

	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	endpoint := c.base.JoinPath("api", "todos", u.TodoID, "reminder")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
