package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reminderd/internal/config"
	"reminderd/internal/reminder"
)

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

const payload = `{"version":"2.0","type":"TODO_REMINDER","data":{"todoId":"t-1","title":"Ship report","priority":"HIGH"}}`

func TestAppEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
logging:
  level: error
storage:
  driver: file
  path: `+filepath.Join(dir, "state")+`
presentation:
  console:
    enabled: true
    no_color: true
`)
	var out lockedBuffer
	a, err := NewApp(cfgPath, WithStdio(strings.NewReader(""), &out), WithEnviron(map[string]string{}))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r, err := a.Center().HandlePayload(ctx, []byte(payload))
	if err != nil {
		t.Fatalf("HandlePayload: %v", err)
	}
	if r.ID != "t-1" || len(a.Center().Pending()) != 1 {
		t.Fatalf("pending = %+v", a.Center().Pending())
	}
	if !strings.Contains(out.String(), "Ship report") {
		t.Fatalf("console did not render reminder:\n%s", out.String())
	}

	if err := a.Center().Complete(ctx, "t-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(a.Center().Pending()) != 0 {
		t.Fatalf("reminder still pending after complete")
	}
	if st := a.Center().Stats(); st.Completed != 1 {
		t.Fatalf("stats = %+v", st)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// History survives a restart.
	tools, err := OpenTools(cfgPath, WithEnviron(map[string]string{}))
	if err != nil {
		t.Fatalf("OpenTools: %v", err)
	}
	defer tools.Close()
	entries := tools.History.Entries()
	if len(entries) != 1 || entries[0].Action != reminder.ActionComplete || entries[0].ReminderID != "t-1" {
		t.Fatalf("history after restart = %+v", entries)
	}
}

func TestApplyConfigTogglesNotifier(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "logging:\n  level: error\n")
	a, err := NewApp(cfgPath, WithStdio(strings.NewReader(""), &lockedBuffer{}), WithEnviron(map[string]string{}))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	if !a.notif.Enabled() {
		t.Fatalf("notifier should start enabled")
	}
	prev := a.cfgm.Get()
	next := *prev
	off := false
	next.Notifier.Enabled = &off
	next.Snooze.ScanInterval = "5s"
	a.applyConfig(ctx, prev, &next)
	if a.notif.Enabled() {
		t.Fatalf("notifier still enabled after reload")
	}
}

func TestMapConfigs(t *testing.T) {
	cfg := &config.Config{}
	sc, err := mapStorageConfig(cfg)
	if err != nil || sc.Driver != "memory" {
		t.Fatalf("default storage = %+v, %v", sc, err)
	}
	cfg.Storage = config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "3s"}
	sc, err = mapStorageConfig(cfg)
	if err != nil || sc.Driver != "sqlite" || sc.BusyTimeout != 3*time.Second {
		t.Fatalf("sqlite storage = %+v, %v", sc, err)
	}
	cfg.Storage = config.StorageConfig{Driver: "diskv"}
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatalf("diskv without path accepted")
	}

	nc, err := mapNotifierConfig(&config.Config{})
	if err != nil || !nc.Enabled || nc.RetryMax != 3 || nc.DedupWindow != 30*time.Second {
		t.Fatalf("notifier = %+v, %v", nc, err)
	}

	cc, err := mapCenterConfig(&config.Config{Snooze: config.SnoozeConfig{DefaultDelay: "15m"}})
	if err != nil || cc.DefaultSnooze != 15*time.Minute {
		t.Fatalf("center = %+v, %v", cc, err)
	}

	dc, err := mapDispatchConfig(&config.Config{Snooze: config.SnoozeConfig{Options: []string{"5m", "2h"}}})
	if err != nil || len(dc.SnoozeOptions) != 2 || dc.SnoozeOptions[1] != 2*time.Hour {
		t.Fatalf("dispatch = %+v, %v", dc, err)
	}

	_, _, on, err := mapBackendConfig(&config.Config{})
	if err != nil || on {
		t.Fatalf("backend without base_url: on=%v err=%v", on, err)
	}
	bc, creds, on, err := mapBackendConfig(&config.Config{Backend: config.BackendConfig{BaseURL: "http://todo", Timeout: "4s", TokenFile: "tok"}})
	if err != nil || !on || bc.Timeout != 4*time.Second || creds.Path != "tok" {
		t.Fatalf("backend = %+v %+v on=%v err=%v", bc, creds, on, err)
	}

	ic, err := mapInboundConfig(&config.Config{Inbound: config.InboundConfig{URL: " ws://x ", PingInterval: "20s"}})
	if err != nil || ic.URL != "ws://x" || ic.PingInterval != 20*time.Second {
		t.Fatalf("inbound = %+v, %v", ic, err)
	}

	dbg, err := mapDebugConfig(&config.Config{Debug: config.DebugConfig{Enabled: true, Token: " t "}})
	if err != nil || dbg.Token != "t" || dbg.ReadTimeout != 5*time.Second {
		t.Fatalf("debug = %+v, %v", dbg, err)
	}

	if _, err := loadLocation("Nowhere/City"); err == nil {
		t.Fatalf("bad timezone accepted")
	}
}
