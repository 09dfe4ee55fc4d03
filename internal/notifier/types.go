package notifier

import "time"

// Config controls the async notice pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// HistoryItem is one delivered notice, kept for /api/runtime.
type HistoryItem struct {
	At    time.Time `json:"at"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
}

// NoticeEvent is published on the event bus for sent and failed notices.
type NoticeEvent struct {
	ReminderID string    `json:"reminder_id,omitempty"`
	Level      string    `json:"level"`
	Key        string    `json:"key"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}
