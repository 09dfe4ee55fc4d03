package config

import (
	"reflect"
	"strings"

	logx "reminderd/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Tokens are never included; only whether one
// is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.remote_enabled", newCfg.Logging.Remote.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		// Storage is opened once; a change only takes effect after restart.
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.restart_required", true),
		)
	}

	if oldCfg.Inbound != newCfg.Inbound {
		changed = append(changed, "inbound")
		attrs = append(attrs,
			logx.Bool("inbound.url_set", strings.TrimSpace(newCfg.Inbound.URL) != ""),
			logx.Bool("inbound.restart_required", true),
		)
	}

	if oldCfg.Backend.BaseURL != newCfg.Backend.BaseURL ||
		oldCfg.Backend.Timeout != newCfg.Backend.Timeout ||
		oldCfg.Backend.TokenFile != newCfg.Backend.TokenFile ||
		oldCfg.Backend.TokenEnv != newCfg.Backend.TokenEnv {
		changed = append(changed, "backend")
		attrs = append(attrs,
			logx.String("backend.base_url", strings.TrimSpace(newCfg.Backend.BaseURL)),
			logx.String("backend.timeout", strings.TrimSpace(newCfg.Backend.Timeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Snooze, newCfg.Snooze) {
		changed = append(changed, "snooze")
		attrs = append(attrs,
			logx.String("snooze.default_delay", strings.TrimSpace(newCfg.Snooze.DefaultDelay)),
			logx.Int("snooze.options", len(newCfg.Snooze.Options)),
			logx.String("snooze.scan_interval", strings.TrimSpace(newCfg.Snooze.ScanInterval)),
		)
	}

	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs, logx.Int("history.max_entries", newCfg.History.MaxEntries))
	}

	oTG, nTG := oldCfg.Presentation.Telegram, newCfg.Presentation.Telegram
	if oldCfg.Presentation.Console != newCfg.Presentation.Console ||
		oTG.Enabled != nTG.Enabled ||
		oTG.ChatID != nTG.ChatID ||
		oTG.ThreadID != nTG.ThreadID ||
		oTG.LogChatID != nTG.LogChatID ||
		oTG.LogThreadID != nTG.LogThreadID ||
		oTG.PollTimeout != nTG.PollTimeout ||
		!reflect.DeepEqual(oTG.OwnerUserIDs, nTG.OwnerUserIDs) ||
		oTG.Token != nTG.Token {
		changed = append(changed, "presentation")
		attrs = append(attrs,
			logx.Bool("presentation.console", newCfg.Presentation.Console.Enabled),
			logx.Bool("presentation.telegram", nTG.Enabled),
			logx.Bool("presentation.telegram_token_set", strings.TrimSpace(nTG.Token) != ""),
			logx.Int("presentation.telegram_owner_count", len(nTG.OwnerUserIDs)),
			logx.Bool("presentation.restart_required", true),
		)
	}

	if oldCfg.Audio != newCfg.Audio {
		changed = append(changed, "audio")
		attrs = append(attrs, logx.String("audio.player", newCfg.Audio.Player))
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newCfg.Notifier.IsEnabled()),
			logx.Int("notifier.workers", newCfg.Notifier.Workers),
			logx.Int("notifier.queue_size", newCfg.Notifier.QueueSize),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
			logx.Bool("debug.pprof", newCfg.Debug.Pprof),
			logx.Bool("debug.capture", newCfg.Debug.Capture),
		)
	}

	return changed, attrs
}
