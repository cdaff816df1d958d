package smtplog

import (
	"bytes"
	"encoding/json"
	"math"

	"go-mailflow-dashboard/internal/tracking"
)

// LogLine is one directional line of an SMTP transcript.
type LogLine struct {
	Direction      string `json:"Direction"`
	Data           string `json:"Data"`
	Timestamp      string `json:"Timestamp"`
	RemoteEndpoint string `json:"RemoteEndpoint,omitempty"`
}

// Session is one client/server exchange from SmtpSessions.json.
type Session struct {
	StartTime     string    `json:"StartTime"`
	Log           []LogLine `json:"Log"`
	DirectionType string    `json:"DirectionType"`
	MessageID     string    `json:"MessageId"`
	SortOrder     *int      `json:"SortOrder,omitempty"`

	logIsList bool
}

// UnmarshalJSON decodes a session without rejecting it over member types.
// SortOrder may be an integral number or a numeric string; any other value
// leaves it unset. Log lines that are not objects are skipped, and whether Log
// was an array at all is recorded so that sessions with a missing, null or
// non-list Log can be filtered out before normalization.
func (s *Session) UnmarshalJSON(b []byte) error {
	f, err := tracking.DecodeFields(b)
	if err != nil {
		return err
	}
	*s = Session{
		StartTime:     tracking.LenientTimestamp(f.Get("StartTime")),
		DirectionType: tracking.LenientString(f.Get("DirectionType")),
		MessageID:     tracking.LenientString(f.Get("MessageId")),
	}
	if n, ok := tracking.LenientNumber(f.Get("SortOrder")); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
		order := int(n)
		s.SortOrder = &order
	}

	trimmed := bytes.TrimSpace(f.Get("Log"))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil
	}
	s.Log = make([]LogLine, 0, len(items))
	s.logIsList = true
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		line, err := tracking.DecodeFields(item)
		if err != nil {
			continue
		}
		s.Log = append(s.Log, LogLine{
			Direction:      tracking.LenientString(line.Get("Direction")),
			Data:           tracking.LenientString(line.Get("Data")),
			Timestamp:      tracking.LenientTimestamp(line.Get("Timestamp")),
			RemoteEndpoint: tracking.LenientString(line.Get("RemoteEndpoint")),
		})
	}
	return nil
}

// Valid reports whether the session has a start time and a Log list.
// Sessions built in Go code count as having a list when Log is non-nil.
func (s *Session) Valid() bool {
	if s == nil || s.StartTime == "" {
		return false
	}
	return s.logIsList || s.Log != nil
}

// DecodeSessions decodes an SmtpSessions.json document. Array elements that
// are not objects (null, strings) decode to nil and are skipped later.
func DecodeSessions(data []byte) ([]*Session, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(raw))
	for _, item := range raw {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			out = append(out, nil)
			continue
		}
		var s Session
		if err := json.Unmarshal(trimmed, &s); err != nil {
			out = append(out, nil)
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}
