package debugserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reminderd/internal/analytics"
	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

type fakeProvider struct{}

func (fakeProvider) Pending() []reminder.Reminder {
	return []reminder.Reminder{{ID: "r1", Title: "a"}}
}
func (fakeProvider) Snoozed() []reminder.SnoozeEntry { return nil }
func (fakeProvider) Stats() analytics.Statistics {
	return analytics.Statistics{Total: 5, Completed: 3, CompletionRate: 60}
}
func (fakeProvider) Trends(days int) analytics.Trends { return analytics.Trends{WindowDays: days} }
func (fakeProvider) Overdue() analytics.OverdueAnalysis {
	return analytics.OverdueAnalysis{}
}
func (fakeProvider) Report(p analytics.Period) analytics.Report { return analytics.Report{Period: p} }

func newHandler(cfg Config) http.Handler {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_seen_total", Help: "reminders seen"})
	reg.MustRegister(c)
	c.Inc()
	return New(cfg, fakeProvider{}, reg, logx.Nop()).Handler(cfg)
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	h := newHandler(Config{Enabled: true})

	if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("/healthz = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/metrics", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "reminders_seen_total 1") {
		t.Fatalf("/metrics = %d %q", rec.Code, rec.Body.String())
	}

	rec := get(t, h, "/api/stats", nil)
	var st analytics.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if st.Total != 5 || st.CompletionRate != 60 {
		t.Fatalf("stats = %+v", st)
	}

	rec = get(t, h, "/api/trends?days=7", nil)
	var tr analytics.Trends
	_ = json.Unmarshal(rec.Body.Bytes(), &tr)
	if tr.WindowDays != 7 {
		t.Fatalf("trends window = %d, want 7", tr.WindowDays)
	}
	if rec := get(t, h, "/api/trends?days=-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad days = %d, want 400", rec.Code)
	}
	if rec := get(t, h, "/api/report?period=yearly", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad period = %d, want 400", rec.Code)
	}
	if rec := get(t, h, "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d, want 404", rec.Code)
	}
}

func TestTokenGuard(t *testing.T) {
	h := newHandler(Config{Enabled: true, Token: "s3cret", Pprof: true})

	if rec := get(t, h, "/api/pending", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/api/pending?token=wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/api/pending", map[string]string{"Authorization": "Bearer s3cret"}); rec.Code != http.StatusOK {
		t.Fatalf("bearer token = %d, want 200", rec.Code)
	}
	if rec := get(t, h, "/debug/pprof/?token=s3cret", nil); rec.Code != http.StatusOK {
		t.Fatalf("pprof with token = %d, want 200", rec.Code)
	}
	if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz needs no token, got %d", rec.Code)
	}
}

func TestRuntimeView(t *testing.T) {
	cfg := Config{Enabled: true}
	s := New(cfg, nil, nil, logx.Nop())
	if rec := get(t, s.Handler(cfg), "/api/runtime", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("runtime unset = %d, want 404", rec.Code)
	}
	s.SetRuntime(func() any { return map[string]int{"loops": 3} })
	rec := get(t, s.Handler(cfg), "/api/runtime", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"loops": 3`) {
		t.Fatalf("/api/runtime = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get(t, s.Handler(cfg), "/api/stats", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("stats without provider = %d, want 404", rec.Code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:80":   true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.1:6060":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestStartServesAndStops(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, nil, nil, logx.Nop())
	s.Start(context.Background())

	var addr string
	deadline := time.Now().Add(3 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		addr = s.Addr()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("server never bound")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatalf("Addr after Stop = %q", s.Addr())
	}
}

func TestRefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, nil, logx.Nop())
	if err := s.serveOnce(context.Background()); err == nil || !strings.Contains(err.Error(), "insecure") {
		t.Fatalf("serveOnce = %v, want insecure bind error", err)
	}
}
