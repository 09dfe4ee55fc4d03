package analytics

import (
	"testing"
	"time"

	"reminderd/internal/clock"
	"reminderd/internal/reminder"
)

// Monday 09:00 UTC.
var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func entry(a reminder.Action, p reminder.Priority, ts time.Time) reminder.HistoryEntry {
	return reminder.HistoryEntry{ID: ts.String(), Action: a, Priority: p, Kind: reminder.KindNormal, Timestamp: ts}
}

func newEngine() *Engine { return New(clock.NewFake(now), time.UTC) }

func TestStatisticsCompletionRate(t *testing.T) {
	var es []reminder.HistoryEntry
	for i := 0; i < 3; i++ {
		es = append(es, entry(reminder.ActionComplete, reminder.PriorityHigh, now))
	}
	for i := 0; i < 2; i++ {
		es = append(es, entry(reminder.ActionDismiss, reminder.PriorityLow, now))
	}
	s := newEngine().Statistics(es)
	if s.CompletionRate != 60.0 {
		t.Fatalf("CompletionRate = %v, want 60.0", s.CompletionRate)
	}
	if s.Total != 5 || s.Completed != 3 || s.Dismissed != 2 {
		t.Fatalf("stats = %+v", s)
	}
	if s.ByPriority[reminder.PriorityHigh] != 3 || s.ByKind[reminder.KindNormal] != 5 {
		t.Fatalf("distribution = %v %v", s.ByPriority, s.ByKind)
	}
}

func TestStatisticsEmpty(t *testing.T) {
	s := newEngine().Statistics(nil)
	if s.Total != 0 || s.CompletionRate != 0 || s.OverdueRate != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestOverdueRate(t *testing.T) {
	late := entry(reminder.ActionComplete, reminder.PriorityHigh, now)
	late.Kind = reminder.KindOverdue
	marked := entry(reminder.ActionDismiss, reminder.PriorityLow, now)
	marked.Metadata = map[string]string{reminder.MetaOverdue: "true"}
	plain := entry(reminder.ActionComplete, reminder.PriorityLow, now)
	other := entry(reminder.ActionComplete, reminder.PriorityLow, now)
	s := newEngine().Statistics([]reminder.HistoryEntry{late, marked, plain, other})
	if s.Overdue != 2 || s.OverdueRate != 50.0 {
		t.Fatalf("overdue = %d rate %v, want 2 / 50", s.Overdue, s.OverdueRate)
	}
}

func TestTrends(t *testing.T) {
	es := []reminder.HistoryEntry{
		entry(reminder.ActionComplete, reminder.PriorityLow, now.Add(-time.Hour)),       // Mon 08
		entry(reminder.ActionComplete, reminder.PriorityLow, now.Add(-25*time.Hour)),    // Sun 08
		entry(reminder.ActionComplete, reminder.PriorityLow, now.Add(-22*time.Hour)),    // Sun 11
		entry(reminder.ActionDismiss, reminder.PriorityLow, now),                        // Mon 09
		entry(reminder.ActionSnooze, reminder.PriorityLow, now),                         // Mon 09
		entry(reminder.ActionComplete, reminder.PriorityLow, now.AddDate(0, 0, -40)),    // outside window
	}
	tr := newEngine().Trends(es, 7)
	if len(tr.Days) != 7 || tr.Days[6].Date != "2026-03-02" || tr.Days[0].Date != "2026-02-24" {
		t.Fatalf("days = %+v", tr.Days)
	}
	if tr.Days[6].Completed != 1 || tr.Days[6].Pending != 2 || tr.Days[5].Completed != 2 {
		t.Fatalf("per-day = %+v", tr.Days)
	}
	if tr.PeakHour != 8 {
		t.Fatalf("PeakHour = %d, want 8", tr.PeakHour)
	}
	if tr.BusiestDay != int(time.Sunday) {
		t.Fatalf("BusiestDay = %d, want 0", tr.BusiestDay)
	}
}

func TestTrendsTiesAndEmpty(t *testing.T) {
	e := newEngine()
	tr := e.Trends(nil, 0)
	if tr.WindowDays != DefaultTrendWindow || tr.PeakHour != -1 || tr.BusiestDay != -1 {
		t.Fatalf("empty trends = %d %d %d", tr.WindowDays, tr.PeakHour, tr.BusiestDay)
	}
	es := []reminder.HistoryEntry{
		entry(reminder.ActionComplete, reminder.PriorityLow, now.Add(5*time.Hour)), // Mon 14
		entry(reminder.ActionComplete, reminder.PriorityLow, now.Add(-2*time.Hour)), // Mon 07
	}
	if tr := e.Trends(es, 7); tr.PeakHour != 7 {
		t.Fatalf("tie PeakHour = %d, want 7", tr.PeakHour)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Reason
	}{
		{"too busy this week", ReasonTimeInsufficient},
		{"Urgent work came first", ReasonPriorityConflict},
		{"waiting for approval", ReasonDependencyBlocked},
		{"requirement unclear", ReasonInformationInsufficient},
		{"需求不清楚", ReasonInformationInsufficient},
		{"依赖上游", ReasonDependencyBlocked},
		{"urgent but waiting", ReasonPriorityConflict},
		{"no keywords here", ReasonTimeInsufficient},
	}
	for _, tt := range tests {
		if got := Classify(tt.text); got != tt.want {
			t.Fatalf("Classify(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestAnalyzeOverdue(t *testing.T) {
	mk := func(title string, sched *time.Time) reminder.HistoryEntry {
		h := entry(reminder.ActionComplete, reminder.PriorityHigh, now)
		h.Kind = reminder.KindOverdue
		h.Title = title
		if sched != nil {
			h.Metadata = map[string]string{reminder.MetaScheduledTime: sched.Format(time.RFC3339)}
		}
		return h
	}
	twoDays := now.AddDate(0, 0, -2)
	fourDays := now.AddDate(0, 0, -4)
	es := []reminder.HistoryEntry{
		mk("waiting on review", &twoDays),
		mk("blocked by infra", &fourDays),
		mk("urgent other task", nil),
		mk("need info", nil),
		mk("plain", nil),
		entry(reminder.ActionComplete, reminder.PriorityLow, now), // not overdue
	}
	a := newEngine().AnalyzeOverdue(es)
	if a.Count != 5 {
		t.Fatalf("Count = %d, want 5", a.Count)
	}
	if a.AverageDays != 3.0 {
		t.Fatalf("AverageDays = %v, want 3.0", a.AverageDays)
	}
	// dependency 2, then time/priority/info at 1 in declared order.
	want := []ReasonCount{{ReasonDependencyBlocked, 2}, {ReasonTimeInsufficient, 1}, {ReasonPriorityConflict, 1}}
	if len(a.Reasons) != len(want) {
		t.Fatalf("Reasons = %+v", a.Reasons)
	}
	for i := range want {
		if a.Reasons[i] != want[i] {
			t.Fatalf("Reasons[%d] = %+v, want %+v", i, a.Reasons[i], want[i])
		}
	}
}

func TestWeeklyReport(t *testing.T) {
	es := []reminder.HistoryEntry{
		entry(reminder.ActionComplete, reminder.PriorityLow, now.AddDate(0, 0, -1)),
		entry(reminder.ActionComplete, reminder.PriorityHigh, now.AddDate(0, 0, -2)),
		entry(reminder.ActionDismiss, reminder.PriorityHigh, now.AddDate(0, 0, -3)),
		entry(reminder.ActionDismiss, reminder.PriorityLow, now.AddDate(0, 0, -3)),
		entry(reminder.ActionComplete, reminder.PriorityLow, now.AddDate(0, 0, -20)),
	}
	r := newEngine().Report(es, PeriodWeekly)
	if r.Total != 4 || r.ByAction[reminder.ActionComplete] != 2 || r.CompletionRate != 50.0 {
		t.Fatalf("report = %+v", r)
	}
	if r.AveragePerDay != 0.6 {
		t.Fatalf("AveragePerDay = %v, want 0.6", r.AveragePerDay)
	}
	// high and low tie at 2; high is declared first.
	if r.DominantPriority != reminder.PriorityHigh {
		t.Fatalf("DominantPriority = %q, want high", r.DominantPriority)
	}
	if r.ImprovementRate != nil {
		t.Fatalf("weekly report has ImprovementRate")
	}
}

func TestMonthlyReportImprovement(t *testing.T) {
	es := []reminder.HistoryEntry{
		entry(reminder.ActionComplete, reminder.PriorityLow, now.AddDate(0, 0, -1)),
		entry(reminder.ActionComplete, reminder.PriorityLow, now.AddDate(0, 0, -5)),
		entry(reminder.ActionDismiss, reminder.PriorityLow, now.AddDate(0, 0, -60)),
		entry(reminder.ActionDismiss, reminder.PriorityLow, now.AddDate(0, 0, -90)),
	}
	r := newEngine().Report(es, PeriodMonthly)
	if r.CompletionRate != 100 || r.ImprovementRate == nil || *r.ImprovementRate != 50 {
		t.Fatalf("report = %+v", r)
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod(""); err != nil || p != PeriodWeekly {
		t.Fatalf("ParsePeriod(\"\") = %q, %v", p, err)
	}
	if _, err := ParsePeriod("yearly"); err == nil {
		t.Fatalf("ParsePeriod(yearly) succeeded")
	}
}
