package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks the fields that would otherwise fail deep inside a
// component at startup. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	nonNeg := func(path string, v int) {
		if v < 0 {
			add(fmt.Errorf("%s: must be >= 0", path))
		}
	}

	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("timezone: %w", err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}
	nonNeg("logging.remote.rate_per_sec", cfg.Logging.Remote.RatePerSec)

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "memory":
	case "file", "diskv", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(fmt.Errorf("storage.path: required for driver %q", cfg.Storage.Driver))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	dur("inbound.ping_interval", cfg.Inbound.PingInterval)
	dur("inbound.read_timeout", cfg.Inbound.ReadTimeout)
	dur("inbound.dedup_window", cfg.Inbound.DedupWindow)
	dur("inbound.reconnect_min", cfg.Inbound.ReconnectMin)
	dur("inbound.reconnect_max", cfg.Inbound.ReconnectMax)
	nonNeg("inbound.dedup_size", cfg.Inbound.DedupSize)

	dur("backend.timeout", cfg.Backend.Timeout)

	dur("snooze.default_delay", cfg.Snooze.DefaultDelay)
	dur("snooze.scan_interval", cfg.Snooze.ScanInterval)
	_, err := ParseDurationList("snooze.options", cfg.Snooze.Options)
	add(err)

	nonNeg("history.max_entries", cfg.History.MaxEntries)

	if tg := cfg.Presentation.Telegram; tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			add(errors.New("presentation.telegram.token: required when telegram is enabled"))
		}
		if tg.ChatID == 0 {
			add(errors.New("presentation.telegram.chat_id: required when telegram is enabled"))
		}
		dur("presentation.telegram.poll_timeout", tg.PollTimeout)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Audio.Player)) {
	case "", "none", "bell", "log":
	default:
		add(fmt.Errorf("audio.player: unknown player %q", cfg.Audio.Player))
	}

	n := cfg.Notifier
	nonNeg("notifier.workers", n.Workers)
	nonNeg("notifier.queue_size", n.QueueSize)
	nonNeg("notifier.rate_per_sec", n.RatePerSec)
	nonNeg("notifier.retry_max", n.RetryMax)
	nonNeg("notifier.dedup_max_entries", n.DedupMaxEntries)
	dur("notifier.retry_base", n.RetryBase)
	dur("notifier.retry_max_delay", n.RetryMaxDelay)
	dur("notifier.dedup_window", n.DedupWindow)

	dur("debug.read_timeout", cfg.Debug.ReadTimeout)
	dur("debug.write_timeout", cfg.Debug.WriteTimeout)
	dur("debug.idle_timeout", cfg.Debug.IdleTimeout)
	nonNeg("debug.capture_size", cfg.Debug.CaptureSize)

	return errors.Join(errs...)
}
