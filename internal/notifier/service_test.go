package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reminderd/internal/clock"
	"reminderd/internal/presentation"
	"reminderd/internal/presentation/presentationtest"
	logx "reminderd/pkg/logx"
)

type flakySink struct {
	mu    sync.Mutex
	fails int
	calls int
	got   []presentation.Notice
}

func (f *flakySink) ShowNotice(_ context.Context, n presentation.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return errors.New("sink unavailable")
	}
	f.got = append(f.got, n)
	return nil
}

func testConfig() Config {
	return Config{Enabled: true, Workers: 1, RatePerSec: 1000, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond, DedupWindow: time.Minute}
}

func stop(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestNoticesDeliveredAndDeduped(t *testing.T) {
	rec := &presentationtest.Recorder{}
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	s := New(testConfig(), rec, logx.Nop(), nil, clk)
	s.Start(context.Background())

	ctx := context.Background()
	n := presentation.Notice{Level: "error", Text: "backend unavailable", ReminderID: "X"}
	for i := 0; i < 3; i++ {
		if err := s.ShowNotice(ctx, n); err != nil {
			t.Fatalf("ShowNotice error: %v", err)
		}
	}
	_ = s.ShowNotice(ctx, presentation.Notice{Level: "info", Text: "snoozed", ReminderID: "Y"})

	// Past the window the same notice goes through again.
	clk.Advance(2 * time.Minute)
	_ = s.ShowNotice(ctx, n)
	stop(t, s)

	if got := rec.Notices(); len(got) != 3 {
		t.Fatalf("delivered %d notices, want 3: %+v", len(got), got)
	}
	if len(s.Snapshot()) != 3 {
		t.Fatalf("history = %d, want 3", len(s.Snapshot()))
	}
}

func TestNoticeRetried(t *testing.T) {
	sink := &flakySink{fails: 2}
	s := New(testConfig(), sink, logx.Nop(), nil, nil)
	s.Start(context.Background())
	_ = s.ShowNotice(context.Background(), presentation.Notice{Text: "hello"})
	stop(t, s)

	if sink.calls != 3 || len(sink.got) != 1 {
		t.Fatalf("calls = %d delivered = %d, want 3 / 1", sink.calls, len(sink.got))
	}
}

func TestNoticeGivesUp(t *testing.T) {
	sink := &flakySink{fails: 10}
	s := New(testConfig(), sink, logx.Nop(), nil, nil)
	s.Start(context.Background())
	_ = s.ShowNotice(context.Background(), presentation.Notice{Text: "hello"})
	stop(t, s)

	if sink.calls != 3 || len(sink.got) != 0 {
		t.Fatalf("calls = %d delivered = %d, want 3 / 0", sink.calls, len(sink.got))
	}
}

func TestDisabledAndStopped(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	s := New(cfg, &presentationtest.Recorder{}, logx.Nop(), nil, nil)
	if err := s.ShowNotice(context.Background(), presentation.Notice{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}

	s = New(testConfig(), &presentationtest.Recorder{}, logx.Nop(), nil, nil)
	if err := s.ShowNotice(context.Background(), presentation.Notice{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err before Start = %v, want ErrStopped", err)
	}
	s.Start(context.Background())
	stop(t, s)
	if err := s.ShowNotice(context.Background(), presentation.Notice{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err after Stop = %v, want ErrStopped", err)
	}
}

func TestFanout(t *testing.T) {
	a, b := &presentationtest.Recorder{}, &flakySink{fails: 1}
	err := Fanout{a, nil, b}.ShowNotice(context.Background(), presentation.Notice{Text: "x"})
	if err == nil || len(a.Notices()) != 1 {
		t.Fatalf("Fanout err = %v, a got %d", err, len(a.Notices()))
	}
}

func TestRetryDelayBounded(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt < 8; attempt++ {
		if d := retryDelay(cfg, attempt); d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("retryDelay(%d) = %v", attempt, d)
		}
	}
}
