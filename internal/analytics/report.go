package analytics

import (
	"fmt"
	"strings"
	"time"

	"reminderd/internal/reminder"
)

type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodWeekly, PeriodMonthly:
		return p, nil
	case "":
		return PeriodWeekly, nil
	}
	return "", fmt.Errorf("unknown report period %q", s)
}

func (p Period) Days() int {
	if p == PeriodMonthly {
		return 30
	}
	return 7
}

type Report struct {
	Period           Period                  `json:"period"`
	Start            time.Time               `json:"start"`
	End              time.Time               `json:"end"`
	Total            int                     `json:"total"`
	ByAction         map[reminder.Action]int `json:"byAction"`
	CompletionRate   float64                 `json:"completionRate"`
	AveragePerDay    float64                 `json:"averagePerDay"`
	DominantPriority reminder.Priority       `json:"dominantPriority,omitempty"`
	// ImprovementRate is the period completion rate minus the all-time
	// rate, in percentage points. Monthly reports only.
	ImprovementRate *float64 `json:"improvementRate,omitempty"`
}

// Report summarises the trailing period ending now.
func (e *Engine) Report(entries []reminder.HistoryEntry, p Period) Report {
	if p != PeriodMonthly {
		p = PeriodWeekly
	}
	end := e.clk.Now()
	start := end.AddDate(0, 0, -p.Days())
	r := Report{Period: p, Start: start, End: end, ByAction: map[reminder.Action]int{}}

	prio := make(map[reminder.Priority]int, len(reminder.Priorities))
	for _, h := range entries {
		if h.Timestamp.Before(start) || h.Timestamp.After(end) {
			continue
		}
		r.Total++
		r.ByAction[h.Action]++
		if h.Priority != "" {
			prio[h.Priority]++
		}
	}
	r.CompletionRate = percent(r.ByAction[reminder.ActionComplete], r.Total)
	r.AveragePerDay = round1(float64(r.Total) / float64(p.Days()))

	best := 0
	for _, pr := range reminder.Priorities {
		if prio[pr] > best {
			best = prio[pr]
			r.DominantPriority = pr
		}
	}

	if p == PeriodMonthly {
		all := e.Statistics(entries)
		v := round1(r.CompletionRate - all.CompletionRate)
		r.ImprovementRate = &v
	}
	return r
}
