package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var isoDatePattern = regexp.MustCompile(`^\d{2,4}-\d{2}-\d{2}$`)

// NormalizeDate converts YYYY-MM-DD (or YY-MM-DD) into M/D/YYYY display form.
// Two-digit years are assumed to be 20xx. Anything else, including dates that
// are already in M/D/YYYY form, passes through unchanged. Empty input yields
// an empty string.
func NormalizeDate(dateStr string) string {
	if dateStr == "" {
		return ""
	}
	if !isoDatePattern.MatchString(dateStr) {
		return dateStr
	}
	parts := strings.SplitN(dateStr, "-", 3)
	year := parts[0]
	if len(year) == 2 {
		year = "20" + year
	}
	month, _ := strconv.Atoi(parts[1])
	day, _ := strconv.Atoi(parts[2])
	return fmt.Sprintf("%d/%d/%s", month, day, year)
}

var sessionDateLayouts = []string{"2006-01-02", "1/2/2006"}

// ParseSessionDate parses a stored session date in either the ISO form the
// date input produces or the M/D/YYYY display form legacy rows carry.
func ParseSessionDate(dateStr string) (time.Time, error) {
	trimmed := strings.TrimSpace(dateStr)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty session date")
	}
	for _, layout := range sessionDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized session date %q", dateStr)
}

// SessionWeekday reports the calendar weekday of a session date.
func SessionWeekday(dateStr string) (time.Weekday, bool) {
	t, err := ParseSessionDate(dateStr)
	if err != nil {
		return time.Sunday, false
	}
	return t.Weekday(), true
}

// DisplayTime renders a reading timestamp for humans: RFC3339 timestamps
// become a 12-hour clock reading, legacy display strings pass through.
func DisplayTime(timestamp string) string {
	if timestamp == "" {
		return ""
	}
	if strings.Contains(timestamp, "T") {
		if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
			return t.Format("3:04 PM")
		}
	}
	return timestamp
}
