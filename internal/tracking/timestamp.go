package tracking

import (
	"strconv"
	"strings"
	"time"
)

// InvalidDisplay is shown wherever a timestamp cannot be parsed.
const InvalidDisplay = "Invalid"

// DisplayLayout is the layout used for every rendered timestamp.
const DisplayLayout = "2006-01-02 15:04:05"

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
}

// ParseTimestamp parses the timestamp formats found in snapshot documents.
// Layouts without a zone are read in loc (time.Local when nil). The .NET JSON
// form "/Date(1700000000000)/" is accepted as Unix milliseconds.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if ms, ok := jsonDateMillis(raw); ok {
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// jsonDateMillis extracts the milliseconds from "/Date(1700000000000)/" and
// "/Date(1700000000000+0100)/". The offset suffix is informational only.
func jsonDateMillis(raw string) (int64, bool) {
	if !strings.HasPrefix(raw, "/Date(") || !strings.HasSuffix(raw, ")/") {
		return 0, false
	}
	inner := raw[len("/Date(") : len(raw)-len(")/")]
	end := len(inner)
	for i := 1; i < len(inner); i++ {
		if inner[i] == '+' || inner[i] == '-' {
			end = i
			break
		}
	}
	ms, err := strconv.ParseInt(inner[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// FormatTimestamp renders raw for display in loc, or InvalidDisplay.
func FormatTimestamp(raw string, loc *time.Location) string {
	t, ok := ParseTimestamp(raw, loc)
	if !ok {
		return InvalidDisplay
	}
	return FormatTime(t, loc)
}

// FormatTime renders t in loc using DisplayLayout.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DisplayLayout)
}
