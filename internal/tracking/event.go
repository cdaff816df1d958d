package tracking

import (
	"bytes"
	"encoding/json"
	"strings"
)

// UnknownMessageID is the bucket for events that carry no message id.
const UnknownMessageID = "unknown"

// Event is one line of a message-tracking log as emitted in MessageTracking.json.
type Event struct {
	MessageID      string   `json:"MessageId"`
	EventID        string   `json:"EventId"`
	Timestamp      string   `json:"Timestamp"`
	Source         string   `json:"Source"`
	Sender         string   `json:"Sender"`
	Recipients     []string `json:"Recipients"`
	MessageSubject string   `json:"MessageSubject,omitempty"`
}

// UnmarshalJSON decodes an event without rejecting it over member types.
// MessageId and Timestamp may be strings, numbers or null, with a numeric
// Timestamp read as Unix milliseconds. Recipients may be a list or a single
// string.
func (e *Event) UnmarshalJSON(b []byte) error {
	f, err := DecodeFields(b)
	if err != nil {
		return err
	}
	*e = Event{
		MessageID:      LenientString(f.Get("MessageId")),
		EventID:        LenientString(f.Get("EventId")),
		Timestamp:      LenientTimestamp(f.Get("Timestamp")),
		Source:         LenientString(f.Get("Source")),
		Sender:         LenientString(f.Get("Sender")),
		Recipients:     LenientStrings(f.Get("Recipients")),
		MessageSubject: LenientString(f.Get("MessageSubject")),
	}
	return nil
}

// Kind is the classified form of an event's EventId tag.
type Kind int

const (
	KindUnknown Kind = iota
	KindSend
	KindDeliver
	KindDrop
	KindTransfer
	KindFail
	KindSendExternal
	KindAgentInfo
	KindDSN
	KindReceive
	KindSubmit
	KindSubmitFail
	KindExpand
	KindDuplicateDeliver
)

var kindByTag = map[string]Kind{
	"SEND":             KindSend,
	"DELIVER":          KindDeliver,
	"DROP":             KindDrop,
	"TRANSFER":         KindTransfer,
	"FAIL":             KindFail,
	"SENDEXTERNAL":     KindSendExternal,
	"AGENTINFO":        KindAgentInfo,
	"DSN":              KindDSN,
	"RECEIVE":          KindReceive,
	"SUBMIT":           KindSubmit,
	"SUBMITFAIL":       KindSubmitFail,
	"EXPAND":           KindExpand,
	"DUPLICATEDELIVER": KindDuplicateDeliver,
}

// ClassifyEventID maps a raw EventId tag to its Kind. Tags outside the known
// set classify as KindUnknown.
func ClassifyEventID(tag string) Kind {
	if k, ok := kindByTag[strings.ToUpper(strings.TrimSpace(tag))]; ok {
		return k
	}
	return KindUnknown
}

// Kind returns the classified EventId of the event.
func (e Event) Kind() Kind {
	return ClassifyEventID(e.EventID)
}

// Meta is the display metadata attached to a Kind.
type Meta struct {
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

var metaByKind = map[Kind]Meta{
	KindSend:             {Icon: "📤", Description: "Message successfully sent via SMTP to its destination."},
	KindDeliver:          {Icon: "📬", Description: "Message delivered to the recipient's mailbox."},
	KindDrop:             {Icon: "❌", Description: "Message dropped, usually due to rules or rejection."},
	KindTransfer:         {Icon: "🔁", Description: "Message handed off internally to another queue or server."},
	KindFail:             {Icon: "⚠️", Description: "Message failed to deliver. May retry or generate NDR."},
	KindSendExternal:     {Icon: "🌐", Description: "Sent to an external domain."},
	KindAgentInfo:        {Icon: "🧠", Description: "A mail rule or agent modified or processed the message."},
	KindDSN:              {Icon: "👹", Description: "Delivery status notification (e.g. bounce or NDR)."},
	KindReceive:          {Icon: "📥", Description: "Message received by the transport service."},
	KindSubmit:           {Icon: "📨", Description: "Message submitted to mailbox by user or app."},
	KindSubmitFail:       {Icon: "🛑", Description: "Submit failed, mailbox store issue."},
	KindExpand:           {Icon: "➕", Description: "Distribution list expanded."},
	KindDuplicateDeliver: {Icon: "👯", Description: "Duplicate delivery was prevented."},
}

// MetaFor returns display metadata for k. KindUnknown yields the zero Meta.
func MetaFor(k Kind) Meta {
	return metaByKind[k]
}

// String returns the canonical EventId tag for k, or "" for KindUnknown.
func (k Kind) String() string {
	for tag, kind := range kindByTag {
		if kind == k {
			return tag
		}
	}
	return ""
}

// DecodeEvents decodes a MessageTracking.json document. A single object is
// read as a one-event list. Only elements that are not objects are skipped.
func DecodeEvents(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		trimmed = append(append([]byte{'['}, trimmed...), ']')
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var ev Event
		if err := json.Unmarshal(item, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
