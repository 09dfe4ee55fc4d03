package presentation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDelay accepts positive Go durations plus a whole-day suffix ("2d").
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid delay %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid delay %q", s)
	}
	return d, nil
}

// FormatDelay renders d compactly: 10m, 1h, 1h30m, 2d.
func FormatDelay(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "0m"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Hour:
		return fmt.Sprintf("%dh%dm", d/time.Hour, (d%time.Hour)/time.Minute)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}
