package tracking

import "time"

// DetailLine is one rendered row of a journey's expanded timeline.
type DetailLine struct {
	Icon        string `json:"icon"`
	Description string `json:"description"`
	EventID     string `json:"event_id"`
	Source      string `json:"source"`
	Timestamp   string `json:"timestamp"`
	Subject     string `json:"subject,omitempty"`
}

// Detail renders the journey's events, already in time order, one line each.
func Detail(j Journey, loc *time.Location) []DetailLine {
	out := make([]DetailLine, 0, len(j.Events))
	for _, ev := range j.Events {
		meta := MetaFor(ev.Kind())
		out = append(out, DetailLine{
			Icon:        meta.Icon,
			Description: meta.Description,
			EventID:     ev.EventID,
			Source:      ev.Source,
			Timestamp:   FormatTimestamp(ev.Timestamp, loc),
			Subject:     ev.MessageSubject,
		})
	}
	return out
}
