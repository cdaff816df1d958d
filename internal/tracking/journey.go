package tracking

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Journey is the per-message view built from every event sharing a MessageId.
type Journey struct {
	MessageID          string        `json:"message_id"`
	PrimaryEvent       Event         `json:"primary_event"`
	SortKey            int64         `json:"sort_key"`
	TimestampDisplay   string        `json:"timestamp"`
	Sender             string        `json:"sender"`
	Recipients         string        `json:"recipients"`
	Subject            string        `json:"subject"`
	HasFailure         bool          `json:"has_failure"`
	ProcessingDuration time.Duration `json:"processing_duration_ns"`
	ProcessingTime     string        `json:"processing_time"`
	Events             []Event       `json:"events,omitempty"`
}

// InvalidSortKey is the SortKey of a journey whose primary timestamp does not
// parse. It orders before every valid key.
const InvalidSortKey = math.MinInt64

type timedEvent struct {
	event Event
	at    time.Time
	ok    bool
}

// BuildJourneys groups events by MessageId and derives the summary fields of
// each group. Journeys are returned in first-appearance order of their id.
// Timestamps without a zone are read in loc.
func BuildJourneys(events []Event, loc *time.Location) []Journey {
	order := make([]string, 0)
	buckets := make(map[string][]Event)
	for _, ev := range events {
		id := strings.TrimSpace(ev.MessageID)
		if id == "" {
			id = UnknownMessageID
		}
		if _, seen := buckets[id]; !seen {
			order = append(order, id)
		}
		buckets[id] = append(buckets[id], ev)
	}

	out := make([]Journey, 0, len(order))
	for _, id := range order {
		out = append(out, buildJourney(id, buckets[id], loc))
	}
	return out
}

func buildJourney(id string, group []Event, loc *time.Location) Journey {
	primary := group[0]
	for _, ev := range group {
		if ev.Kind() == KindSend {
			primary = ev
			break
		}
	}

	hasFailure := false
	timed := make([]timedEvent, len(group))
	var earliest, latest time.Time
	parsed := 0
	for i, ev := range group {
		if ev.Kind() == KindFail {
			hasFailure = true
		}
		at, ok := ParseTimestamp(ev.Timestamp, loc)
		timed[i] = timedEvent{event: ev, at: at, ok: ok}
		if !ok {
			continue
		}
		if parsed == 0 || at.Before(earliest) {
			earliest = at
		}
		if parsed == 0 || at.After(latest) {
			latest = at
		}
		parsed++
	}

	var duration time.Duration
	if parsed >= 2 {
		duration = latest.Sub(earliest)
	}

	// Unparseable timestamps sort first, in input order.
	sort.SliceStable(timed, func(i, j int) bool {
		a, b := timed[i], timed[j]
		if a.ok != b.ok {
			return !a.ok
		}
		if !a.ok {
			return false
		}
		return a.at.Before(b.at)
	})
	sorted := make([]Event, len(timed))
	for i, te := range timed {
		sorted[i] = te.event
	}

	j := Journey{
		MessageID:          id,
		PrimaryEvent:       primary,
		SortKey:            InvalidSortKey,
		TimestampDisplay:   InvalidDisplay,
		Sender:             primary.Sender,
		Recipients:         strings.Join(primary.Recipients, ", "),
		Subject:            primary.MessageSubject,
		HasFailure:         hasFailure,
		ProcessingDuration: duration,
		ProcessingTime:     FormatDuration(duration),
		Events:             sorted,
	}
	if at, ok := ParseTimestamp(primary.Timestamp, loc); ok {
		j.SortKey = at.UnixMilli()
		j.TimestampDisplay = FormatTime(at, loc)
	}
	return j
}

// FormatDuration renders d as "{m}m {s}s", or "{s}s" under a minute.
// Sub-second remainders are dropped.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	remaining := seconds % 60
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, remaining)
	}
	return fmt.Sprintf("%ds", remaining)
}

// SortRecentFirst orders journeys by primary timestamp, most recent first.
// Journeys with an unparseable primary timestamp go last.
func SortRecentFirst(journeys []Journey) {
	sort.SliceStable(journeys, func(i, j int) bool {
		return journeys[i].SortKey > journeys[j].SortKey
	})
}

// Summary returns a copy of j without its event list.
func (j Journey) Summary() Journey {
	j.Events = nil
	return j
}

// Matches reports whether q occurs, case-insensitively, in the journey's
// id, sender, recipients or subject.
func (j Journey) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, field := range []string{j.MessageID, j.Sender, j.Recipients, j.Subject} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
