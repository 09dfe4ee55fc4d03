package analytics

import (
	"sort"
	"strings"
	"time"

	"reminderd/internal/reminder"
)

type Reason string

const (
	ReasonTimeInsufficient        Reason = "time_insufficient"
	ReasonPriorityConflict        Reason = "priority_conflict"
	ReasonDependencyBlocked       Reason = "dependency_blocked"
	ReasonInformationInsufficient Reason = "information_insufficient"
)

// reasonKeywords is matched in order; the first category with a hit wins.
var reasonKeywords = []struct {
	reason   Reason
	keywords []string
}{
	{ReasonTimeInsufficient, []string{"time", "busy", "deadline", "late", "rush", "时间", "忙", "来不及"}},
	{ReasonPriorityConflict, []string{"priority", "urgent", "conflict", "other task", "优先", "紧急", "冲突"}},
	{ReasonDependencyBlocked, []string{"wait", "blocked", "depend", "approval", "review", "等待", "依赖", "阻塞"}},
	{ReasonInformationInsufficient, []string{"unclear", "info", "question", "confirm", "requirement", "不清楚", "信息", "确认", "需求"}},
}

const topReasons = 3

type ReasonCount struct {
	Reason Reason `json:"reason"`
	Count  int    `json:"count"`
}

type OverdueAnalysis struct {
	Count int `json:"count"`
	// AverageDays is measured from the scheduled time to the recorded
	// action. Entries without a scheduled time are left out.
	AverageDays float64       `json:"averageDays"`
	Reasons     []ReasonCount `json:"reasons"`
}

func (e *Engine) AnalyzeOverdue(entries []reminder.HistoryEntry) OverdueAnalysis {
	var out OverdueAnalysis
	counts := make(map[Reason]int, len(reasonKeywords))
	var sumDays float64
	aged := 0
	for _, h := range entries {
		if !IsOverdue(h) {
			continue
		}
		out.Count++
		counts[Classify(h.Title+" "+h.Content)]++
		if raw := h.Metadata[reminder.MetaScheduledTime]; raw != "" {
			if st, err := time.Parse(time.RFC3339, raw); err == nil {
				sumDays += max(h.Timestamp.Sub(st).Hours()/24, 0)
				aged++
			}
		}
	}
	if aged > 0 {
		out.AverageDays = round1(sumDays / float64(aged))
	}
	for _, rk := range reasonKeywords {
		if n := counts[rk.reason]; n > 0 {
			out.Reasons = append(out.Reasons, ReasonCount{Reason: rk.reason, Count: n})
		}
	}
	// Stable keeps declared order among ties.
	sort.SliceStable(out.Reasons, func(i, j int) bool { return out.Reasons[i].Count > out.Reasons[j].Count })
	if len(out.Reasons) > topReasons {
		out.Reasons = out.Reasons[:topReasons]
	}
	return out
}

// Classify maps free text to an overdue reason. Unmatched text counts as
// time_insufficient.
func Classify(text string) Reason {
	text = strings.ToLower(text)
	for _, rk := range reasonKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(text, kw) {
				return rk.reason
			}
		}
	}
	return ReasonTimeInsufficient
}
