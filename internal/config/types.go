package config

// Config is the on-disk daemon configuration. Durations are Go duration
// strings ("500ms", "10s", "1m"). Secrets and endpoints can be overridden
// from REMINDERD_* environment variables (see ApplyEnv).
type Config struct {
	// Timezone drives history buckets and analytics; empty means local time.
	Timezone string `json:"timezone,omitempty" env:"TIMEZONE"`

	Logging      LoggingConfig      `json:"logging" envPrefix:"LOGGING_"`
	Storage      StorageConfig      `json:"storage" envPrefix:"STORAGE_"`
	Inbound      InboundConfig      `json:"inbound" envPrefix:"INBOUND_"`
	Backend      BackendConfig      `json:"backend" envPrefix:"BACKEND_"`
	Snooze       SnoozeConfig       `json:"snooze"`
	History      HistoryConfig      `json:"history"`
	Presentation PresentationConfig `json:"presentation" envPrefix:"PRESENTATION_"`
	Audio        AudioConfig        `json:"audio"`
	Notifier     NotifierConfig     `json:"notifier"`
	Debug        DebugConfig        `json:"debug" envPrefix:"DEBUG_"`
}

type LoggingConfig struct {
	Level   string        `json:"level" env:"LEVEL"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file" envPrefix:"FILE_"`
	Remote  LoggingRemote `json:"remote"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" env:"PATH"`
}

// LoggingRemote forwards warnings and errors to the chat presenter.
type LoggingRemote struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the durable record store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./reminderd_state" }
type StorageConfig struct {
	Driver       string `json:"driver" env:"DRIVER"`
	Path         string `json:"path" env:"PATH"`
	BusyTimeout  string `json:"busy_timeout,omitempty"`   // sqlite
	CacheSizeMax uint64 `json:"cache_size_max,omitempty"` // diskv, bytes
}

// InboundConfig points at the websocket the agent publishes reminders on.
// An empty url disables the feed.
type InboundConfig struct {
	URL          string `json:"url" env:"URL"`
	PingInterval string `json:"ping_interval,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	DedupWindow  string `json:"dedup_window,omitempty"`
	DedupSize    int    `json:"dedup_size,omitempty"`
	ReconnectMin string `json:"reconnect_min,omitempty"`
	ReconnectMax string `json:"reconnect_max,omitempty"`
}

// BackendConfig points at the todo service that confirms completions and
// snoozes. An empty base_url keeps every action local.
type BackendConfig struct {
	BaseURL   string `json:"base_url" env:"BASE_URL"`
	Timeout   string `json:"timeout,omitempty"`
	TokenFile string `json:"token_file,omitempty" env:"TOKEN_FILE"`
	// TokenEnv names the variable holding the bearer token.
	TokenEnv string `json:"token_env,omitempty"`
}

type SnoozeConfig struct {
	DefaultDelay string `json:"default_delay,omitempty"`
	// Options are the snooze choices offered on each reminder.
	Options            []string `json:"options,omitempty"`
	ScanInterval       string   `json:"scan_interval,omitempty"`
	FireOverdueOnStart bool     `json:"fire_overdue_on_start,omitempty"`
}

type HistoryConfig struct {
	MaxEntries int `json:"max_entries,omitempty"`
}

type PresentationConfig struct {
	Console  ConsoleConfig  `json:"console"`
	Telegram TelegramConfig `json:"telegram" envPrefix:"TELEGRAM_"`
}

type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
	NoColor bool `json:"no_color,omitempty"`
	// Commands reads action commands from stdin.
	Commands bool `json:"commands,omitempty"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token" env:"TOKEN"`
	ChatID       int64   `json:"chat_id" env:"CHAT_ID"`
	ThreadID     int     `json:"thread_id,omitempty"`
	LogChatID    int64   `json:"log_chat_id,omitempty"`
	LogThreadID  int     `json:"log_thread_id,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
}

// AudioConfig picks the tone player: "none", "bell" or "log".
type AudioConfig struct {
	Player string `json:"player,omitempty"`
}

// NotifierConfig controls the async notice pipeline.
//
// Enabled is a pointer so an omitted section defaults to enabled.
type NotifierConfig struct {
	Enabled         *bool  `json:"enabled,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

// IsEnabled reports the effective enabled flag.
func (n NotifierConfig) IsEnabled() bool { return n.Enabled == nil || *n.Enabled }

// DebugConfig controls the optional local HTTP server and payload capture.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty" env:"ADDR"`
	Token         string `json:"token,omitempty" env:"TOKEN"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Capture keeps the last raw inbound payloads for troubleshooting.
	Capture     bool `json:"capture,omitempty"`
	CaptureSize int  `json:"capture_size,omitempty"`
}
