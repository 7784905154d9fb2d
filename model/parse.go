package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// ParseOptionalInt converts user input into an optional numeric field.
// Blank and zero input clear the field (nil), so a cleared value is omitted
// on the wire instead of being sent as 0. Anything else must be an integer.
func ParseOptionalInt(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	if v == 0 {
		return nil, nil
	}
	return &v, nil
}

// timeLayouts are the accepted formats for date inputs, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// durationPattern matches duration strings like "7d", "2w", "3m", "1y"
var durationPattern = regexp.MustCompile(`^(\d+)([dwmy])$`)

// ParseDuration parses a duration string like "7d", "2w", "3m", "1y".
//
// Supported units:
//   - d: days
//   - w: weeks (7 days)
//   - m: months (30 days, approximation)
//   - y: years (365 days, approximation)
func ParseDuration(s string) (time.Duration, error) {
	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected format: <number><unit>, e.g., 7d, 2w, 3m, 1y)", s)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}

	day := 24 * time.Hour
	switch matches[2] {
	case "w":
		day *= 7
	case "m":
		day *= 30
	case "y":
		day *= 365
	}
	return time.Duration(num) * day, nil
}

// ParseOptionalTime converts a date input into seconds since epoch.
// Blank input clears the field. Unix seconds are accepted as-is, and a
// duration like "7d" means that long before now.
func ParseOptionalTime(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if d, err := ParseDuration(s); err == nil {
		v := time.Now().Add(-d).Unix()
		return &v, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if v == 0 {
			return nil, nil
		}
		return &v, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			v := t.Unix()
			return &v, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q (expected RFC3339, YYYY-MM-DD or unix seconds)", s)
}
