package smtplog

import (
	"sort"
	"strings"
	"time"

	"go-mailflow-dashboard/internal/tracking"
)

const (
	mailFromPrefix = "MAIL FROM:"
	rcptToPrefix   = "RCPT TO:"
	helloMarker    = "Hello ["
)

// DetailLine is one rendered transcript line of an expanded session.
type DetailLine struct {
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction"`
	Data      string `json:"data"`
}

// Row is the display-ready form of a valid Session.
type Row struct {
	Index        int          `json:"index"`
	SortOrder    int          `json:"sort_order"`
	StartDisplay string       `json:"start"`
	From         string       `json:"from"`
	To           string       `json:"to"`
	Direction    string       `json:"direction"`
	MessageID    string       `json:"message_id"`
	SearchText   string       `json:"search_text"`
	Detail       []DetailLine `json:"detail,omitempty"`
	Raw          *Session     `json:"-"`
}

// Normalize drops invalid sessions and derives one Row per remaining session,
// in input order. Index is the position in the filtered list and identifies a
// row uniquely; SortOrder comes from the session when present and falls back
// to Index.
func Normalize(sessions []*Session, loc *time.Location) []Row {
	valid := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Valid() {
			valid = append(valid, s)
		}
	}

	rows := make([]Row, 0, len(valid))
	for i, s := range valid {
		order := i
		if s.SortOrder != nil {
			order = *s.SortOrder
		}
		rows = append(rows, Row{
			Index:        i,
			SortOrder:    order,
			StartDisplay: tracking.FormatTimestamp(s.StartTime, loc),
			From:         extractFrom(s.Log),
			To:           extractAddress(s.Log, rcptToPrefix),
			Direction:    s.DirectionType,
			MessageID:    s.MessageID,
			SearchText:   searchText(s.Log),
			Detail:       detail(s.Log, loc),
			Raw:          s,
		})
	}
	return rows
}

func extractFrom(log []LogLine) string {
	if from := extractAddress(log, mailFromPrefix); from != "" {
		return from
	}
	if ip := helloAddress(log); ip != "" {
		return ip
	}
	if len(log) > 0 {
		return strings.TrimSpace(log[0].RemoteEndpoint)
	}
	return ""
}

// extractAddress returns the address carried by the first line starting with
// prefix, compared case-insensitively, with angle brackets removed.
func extractAddress(log []LogLine, prefix string) string {
	for _, line := range log {
		data := strings.TrimLeft(line.Data, " \t")
		if len(data) < len(prefix) || !strings.EqualFold(data[:len(prefix)], prefix) {
			continue
		}
		addr := data[len(prefix):]
		addr = strings.NewReplacer("<", "", ">", "").Replace(addr)
		return strings.TrimSpace(addr)
	}
	return ""
}

// helloAddress returns the bracketed value of the first line containing
// "Hello [", e.g. "250 mx.example.com Hello [203.0.113.5]".
func helloAddress(log []LogLine) string {
	for _, line := range log {
		if !strings.Contains(line.Data, helloMarker) {
			continue
		}
		open := strings.IndexByte(line.Data, '[')
		end := strings.IndexByte(line.Data[open+1:], ']')
		if end < 0 {
			return ""
		}
		return strings.TrimSpace(line.Data[open+1 : open+1+end])
	}
	return ""
}

func searchText(log []LogLine) string {
	parts := make([]string, 0, len(log))
	for _, line := range log {
		parts = append(parts, line.Direction+" "+line.Data)
	}
	return strings.Join(parts, " ")
}

func detail(log []LogLine, loc *time.Location) []DetailLine {
	out := make([]DetailLine, 0, len(log))
	for _, line := range log {
		out = append(out, DetailLine{
			Timestamp: tracking.FormatTimestamp(line.Timestamp, loc),
			Direction: line.Direction,
			Data:      line.Data,
		})
	}
	return out
}

// SortByOrder orders rows by SortOrder. Ties keep their relative order.
func SortByOrder(rows []Row, descending bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		if descending {
			return rows[i].SortOrder > rows[j].SortOrder
		}
		return rows[i].SortOrder < rows[j].SortOrder
	})
}

// Matches reports whether q occurs, case-insensitively, in the row's
// addresses, message id or transcript.
func (r Row) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, field := range []string{r.From, r.To, r.MessageID, r.SearchText} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
