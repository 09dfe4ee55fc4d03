package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"reminderd/internal/audio"
	"reminderd/internal/backend"
	"reminderd/internal/center"
	"reminderd/internal/config"
	"reminderd/internal/dispatch"
	"reminderd/internal/inbound"
	"reminderd/internal/notifier"
	"reminderd/internal/observability/debugserver"
	"reminderd/internal/presentation/telegram"
	"reminderd/internal/snooze"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Remote: logx.RemoteConfig{
			Enabled:    l.Remote.Enabled,
			MinLevel:   l.Remote.MinLevel,
			RatePerSec: l.Remote.RatePerSec,
		},
	}
}

// mapStorageConfig falls back to the in-memory driver when no driver is set.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file", "diskv":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		return storage.Config{Driver: driver, Path: path, CacheSizeMax: sc.CacheSizeMax}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	out := notifier.Config{
		Enabled:         n.IsEnabled(),
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, 30*time.Second); err != nil {
		return notifier.Config{}, err
	}
	if n.RetryMax == 0 {
		out.RetryMax = 3
	}
	return out, nil
}

func mapDebugConfig(cfg *config.Config) (debugserver.Config, error) {
	d := cfg.Debug
	out := debugserver.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		PprofPrefix:   d.PprofPrefix,
		Pprof:         d.Pprof,
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, 5*time.Second); err != nil {
		return debugserver.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationOrDefault("debug.write_timeout", d.WriteTimeout, 30*time.Second); err != nil {
		return debugserver.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", d.IdleTimeout, 60*time.Second); err != nil {
		return debugserver.Config{}, err
	}
	return out, nil
}

func mapSnoozeConfig(cfg *config.Config) (snooze.Config, error) {
	scan, err := config.ParseDurationOrDefault("snooze.scan_interval", cfg.Snooze.ScanInterval, snooze.DefaultScanInterval)
	if err != nil {
		return snooze.Config{}, err
	}
	return snooze.Config{ScanInterval: scan, FireOverdueOnStart: cfg.Snooze.FireOverdueOnStart}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	opts, err := config.ParseDurationList("snooze.options", cfg.Snooze.Options)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{SnoozeOptions: opts}, nil
}

func mapCenterConfig(cfg *config.Config) (center.Config, error) {
	def, err := config.ParseDurationOrDefault("snooze.default_delay", cfg.Snooze.DefaultDelay, center.DefaultSnoozeDelay)
	if err != nil {
		return center.Config{}, err
	}
	timeout, err := config.ParseDurationField("backend.timeout", cfg.Backend.Timeout)
	if err != nil {
		return center.Config{}, err
	}
	return center.Config{DefaultSnooze: def, BackendTimeout: timeout}, nil
}

func mapInboundConfig(cfg *config.Config) (inbound.Config, error) {
	in := cfg.Inbound
	out := inbound.Config{URL: strings.TrimSpace(in.URL), DedupSize: in.DedupSize}
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"inbound.ping_interval", in.PingInterval, &out.PingInterval},
		{"inbound.read_timeout", in.ReadTimeout, &out.ReadTimeout},
		{"inbound.dedup_window", in.DedupWindow, &out.DedupWindow},
		{"inbound.reconnect_min", in.ReconnectMin, &out.ReconnectMin},
		{"inbound.reconnect_max", in.ReconnectMax, &out.ReconnectMax},
	}
	for _, f := range fields {
		d, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return inbound.Config{}, err
		}
		*f.dst = d
	}
	return out, nil
}

// mapBackendConfig reports enabled=false when no base_url is configured.
func mapBackendConfig(cfg *config.Config) (backend.Config, backend.Credentials, bool, error) {
	b := cfg.Backend
	creds := backend.Credentials{Path: strings.TrimSpace(b.TokenFile), Env: strings.TrimSpace(b.TokenEnv)}
	base := strings.TrimSpace(b.BaseURL)
	if base == "" {
		return backend.Config{}, creds, false, nil
	}
	timeout, err := config.ParseDurationField("backend.timeout", b.Timeout)
	if err != nil {
		return backend.Config{}, creds, false, err
	}
	return backend.Config{BaseURL: base, Timeout: timeout}, creds, true, nil
}

func mapTelegramConfig(cfg *config.Config, loc *time.Location) (telegram.Config, error) {
	tg := cfg.Presentation.Telegram
	poll, err := config.ParseDurationOrDefault("presentation.telegram.poll_timeout", tg.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:        strings.TrimSpace(tg.Token),
		ChatID:       tg.ChatID,
		ThreadID:     tg.ThreadID,
		LogChatID:    tg.LogChatID,
		LogThreadID:  tg.LogThreadID,
		OwnerUserIDs: append([]int64(nil), tg.OwnerUserIDs...),
		PollTimeout:  poll,
		Location:     loc,
	}, nil
}

func newAudioPlayer(cfg *config.Config, out io.Writer, log logx.Logger) audio.Player {
	switch strings.ToLower(strings.TrimSpace(cfg.Audio.Player)) {
	case "bell":
		return &audio.Bell{W: out}
	case "log":
		return audio.Log{L: log}
	default:
		return audio.Nop{}
	}
}
