package history

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"reminderd/internal/reminder"
)

// Bucket is a calendar window relative to the current time.
type Bucket string

const (
	BucketAll       Bucket = ""
	BucketToday     Bucket = "today"
	BucketYesterday Bucket = "yesterday"
	BucketThisWeek  Bucket = "this_week"
	BucketThisMonth Bucket = "this_month"
)

func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case BucketAll, BucketToday, BucketYesterday, BucketThisWeek, BucketThisMonth:
		return b, nil
	case "all":
		return BucketAll, nil
	default:
		return "", fmt.Errorf("unknown date bucket %q", s)
	}
}

// Query filters ledger entries. Zero-valued fields match everything.
type Query struct {
	Text       string
	Actions    []reminder.Action
	Priorities []reminder.Priority
	Bucket     Bucket
	Limit      int
	Newest     bool
}

// Range returns the half-open [start, end) window for b at now in loc.
func (b Bucket) Range(now time.Time, loc *time.Location) (time.Time, time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch b {
	case BucketToday:
		return day, day.AddDate(0, 0, 1), true
	case BucketYesterday:
		return day.AddDate(0, 0, -1), day, true
	case BucketThisWeek:
		// Monday-based.
		off := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -off)
		return start, start.AddDate(0, 0, 7), true
	case BucketThisMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0), true
	}
	return time.Time{}, time.Time{}, false
}

// Query returns matching entries, oldest first unless q.Newest is set.
func (l *Ledger) Query(q Query) []reminder.HistoryEntry {
	return Filter(l.Entries(), q, l.d.Clock.Now(), l.cfg.Location)
}

// Filter applies q to entries, which must be ordered oldest first.
func Filter(entries []reminder.HistoryEntry, q Query, now time.Time, loc *time.Location) []reminder.HistoryEntry {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	start, end, bounded := q.Bucket.Range(now, loc)

	out := make([]reminder.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if text != "" && !strings.Contains(strings.ToLower(e.Title), text) {
			continue
		}
		if len(q.Actions) > 0 && !slices.Contains(q.Actions, e.Action) {
			continue
		}
		if len(q.Priorities) > 0 && !slices.Contains(q.Priorities, e.Priority) {
			continue
		}
		if bounded && (e.Timestamp.Before(start) || !e.Timestamp.Before(end)) {
			continue
		}
		out = append(out, e)
	}
	if q.Newest {
		slices.Reverse(out)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
