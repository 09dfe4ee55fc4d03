package analytics

import (
	"math"
	"time"

	"reminderd/internal/clock"
	"reminderd/internal/reminder"
)

const DefaultTrendWindow = 30

// Engine computes read-only aggregates over history snapshots. It holds no
// state of its own; every call takes the entries to analyse.
type Engine struct {
	clk clock.Clock
	loc *time.Location
}

func New(clk clock.Clock, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{clk: clock.Or(clk), loc: loc}
}

type Statistics struct {
	Total          int                       `json:"total"`
	Completed      int                       `json:"completed"`
	Dismissed      int                       `json:"dismissed"`
	Snoozed        int                       `json:"snoozed"`
	Overdue        int                       `json:"overdue"`
	CompletionRate float64                   `json:"completionRate"`
	OverdueRate    float64                   `json:"overdueRate"`
	ByPriority     map[reminder.Priority]int `json:"byPriority"`
	ByKind         map[reminder.Kind]int     `json:"byKind"`
}

func (e *Engine) Statistics(entries []reminder.HistoryEntry) Statistics {
	s := Statistics{
		Total:      len(entries),
		ByPriority: map[reminder.Priority]int{},
		ByKind:     map[reminder.Kind]int{},
	}
	for _, h := range entries {
		switch h.Action {
		case reminder.ActionComplete:
			s.Completed++
		case reminder.ActionDismiss:
			s.Dismissed++
		case reminder.ActionSnooze:
			s.Snoozed++
		}
		if IsOverdue(h) {
			s.Overdue++
		}
		if h.Priority != "" {
			s.ByPriority[h.Priority]++
		}
		if h.Kind != "" {
			s.ByKind[h.Kind]++
		}
	}
	s.CompletionRate = percent(s.Completed, s.Total)
	s.OverdueRate = percent(s.Overdue, s.Total)
	return s
}

// IsOverdue reports whether an entry was recorded against an overdue reminder.
func IsOverdue(h reminder.HistoryEntry) bool {
	if h.Kind == reminder.KindOverdue {
		return true
	}
	return h.Metadata[reminder.MetaStatus] == "overdue" || h.Metadata[reminder.MetaOverdue] == "true"
}

type DayTrend struct {
	Date      string `json:"date"`
	Completed int    `json:"completed"`
	Pending   int    `json:"pending"`
}

type Trends struct {
	WindowDays int        `json:"windowDays"`
	Days       []DayTrend `json:"days"`
	// HourHistogram and WeekdayHistogram count completions only. Weekday
	// index follows time.Weekday (Sunday is 0).
	HourHistogram    [24]int `json:"hourHistogram"`
	WeekdayHistogram [7]int  `json:"weekdayHistogram"`
	PeakHour         int     `json:"peakHour"`
	BusiestDay       int     `json:"busiestDay"`
}

// Trends buckets the last windowDays calendar days, today included.
func (e *Engine) Trends(entries []reminder.HistoryEntry, windowDays int) Trends {
	if windowDays <= 0 {
		windowDays = DefaultTrendWindow
	}
	today := e.day(e.clk.Now())
	start := today.AddDate(0, 0, -(windowDays - 1))

	t := Trends{WindowDays: windowDays, Days: make([]DayTrend, windowDays), PeakHour: -1, BusiestDay: -1}
	index := make(map[string]int, windowDays)
	for i := range t.Days {
		d := start.AddDate(0, 0, i).Format(time.DateOnly)
		t.Days[i].Date = d
		index[d] = i
	}
	completions := 0
	for _, h := range entries {
		ts := h.Timestamp.In(e.loc)
		i, ok := index[ts.Format(time.DateOnly)]
		if !ok {
			continue
		}
		if h.Action != reminder.ActionComplete {
			t.Days[i].Pending++
			continue
		}
		t.Days[i].Completed++
		t.HourHistogram[ts.Hour()]++
		t.WeekdayHistogram[ts.Weekday()]++
		completions++
	}
	if completions > 0 {
		t.PeakHour = argmax(t.HourHistogram[:])
		t.BusiestDay = argmax(t.WeekdayHistogram[:])
	}
	return t
}

func (e *Engine) day(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// argmax returns the lowest index holding the maximum.
func argmax(xs []int) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(n) / float64(total) * 100)
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
