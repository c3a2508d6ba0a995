package queryintel

import (
	"regexp"
	"strings"
	"time"
)

// Deterministic temporal hint parser. Matches natural-language time
// expressions against the query without any LLM call; used as the fallback
// when expansion is disabled or fails. All matching is case-insensitive and
// the first matching pattern wins.

var (
	afterDateRe  = regexp.MustCompile(`after\s+(\d{4}-\d{2}-\d{2})`)
	beforeDateRe = regexp.MustCompile(`before\s+(\d{4}-\d{2}-\d{2})`)
	betweenRe    = regexp.MustCompile(`between\s+(\w+)\s+and\s+(\w+)`)
)

// ParseTemporalHint extracts a time range from the query relative to now.
// Returns nil when no recognized expression is present.
func ParseTemporalHint(query string, now time.Time) *TimeRange {
	q := strings.ToLower(query)
	now = now.UTC()

	if strings.Contains(q, "yesterday") {
		start := startOfDay(now).AddDate(0, 0, -1)
		end := start.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
		return &TimeRange{After: &start, Before: &end}
	}

	if strings.Contains(q, "today") {
		start := startOfDay(now)
		return &TimeRange{After: &start}
	}

	if strings.Contains(q, "last week") || strings.Contains(q, "past week") {
		after := now.AddDate(0, 0, -7)
		return &TimeRange{After: &after}
	}

	if strings.Contains(q, "last month") || strings.Contains(q, "past month") {
		after := now.AddDate(0, 0, -30)
		return &TimeRange{After: &after}
	}

	if strings.Contains(q, "last year") || strings.Contains(q, "past year") {
		after := now.AddDate(0, 0, -365)
		return &TimeRange{After: &after}
	}

	if strings.Contains(q, "a few days ago") {
		after := now.AddDate(0, 0, -5)
		before := now.AddDate(0, 0, -1)
		return &TimeRange{After: &after, Before: &before}
	}

	if strings.Contains(q, "a few weeks ago") {
		after := now.AddDate(0, 0, -28)
		before := now.AddDate(0, 0, -7)
		return &TimeRange{After: &after, Before: &before}
	}

	if strings.Contains(q, "a few months ago") {
		after := now.AddDate(0, 0, -90)
		before := now.AddDate(0, 0, -30)
		return &TimeRange{After: &after, Before: &before}
	}

	if m := afterDateRe.FindStringSubmatch(q); m != nil {
		if ts, err := time.Parse("2006-01-02", m[1]); err == nil {
			after := ts.UTC()
			return &TimeRange{After: &after}
		}
	}

	if m := beforeDateRe.FindStringSubmatch(q); m != nil {
		if ts, err := time.Parse("2006-01-02", m[1]); err == nil {
			before := ts.UTC().Add(23*time.Hour + 59*time.Minute + 59*time.Second)
			return &TimeRange{Before: &before}
		}
	}

	if m := betweenRe.FindStringSubmatch(q); m != nil {
		m1, ok1 := parseMonthName(m[1])
		m2, ok2 := parseMonthName(m[2])
		if ok1 && ok2 {
			year := now.Year()
			start := time.Date(year, m1, 1, 0, 0, 0, 0, time.UTC)
			// End of m2 = first day of the following month minus one second.
			end := time.Date(year, m2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0).Add(-time.Second)
			return &TimeRange{After: &start, Before: &end}
		}
	}

	return nil
}

func startOfDay(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

func parseMonthName(name string) (time.Month, bool) {
	switch strings.ToLower(name) {
	case "january", "jan":
		return time.January, true
	case "february", "feb":
		return time.February, true
	case "march", "mar":
		return time.March, true
	case "april", "apr":
		return time.April, true
	case "may":
		return time.May, true
	case "june", "jun":
		return time.June, true
	case "july", "jul":
		return time.July, true
	case "august", "aug":
		return time.August, true
	case "september", "sep", "sept":
		return time.September, true
	case "october", "oct":
		return time.October, true
	case "november", "nov":
		return time.November, true
	case "december", "dec":
		return time.December, true
	default:
		return 0, false
	}
}
