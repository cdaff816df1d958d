package tracking

import (
	"testing"
	"time"
)

func TestDetail_KnownAndUnknownKinds(t *testing.T) {
	j := BuildJourneys([]Event{
		{MessageID: "A", EventID: "DELIVER", Source: "STOREDRIVER", Timestamp: "2024-01-01T10:00:10Z", MessageSubject: "hello"},
		{MessageID: "A", EventID: "HAREDELETE", Source: "MAILBOXRULE", Timestamp: "2024-01-01T10:00:20Z"},
		{MessageID: "A", EventID: "RECEIVE", Source: "SMTP", Timestamp: "2024-01-01T10:00:00Z"},
	}, time.UTC)[0]

	lines := Detail(j, time.UTC)
	if len(lines) != 3 {
		t.Fatalf("expected 3 detail lines, got %d", len(lines))
	}
	if lines[0].EventID != "RECEIVE" || lines[0].Icon != "📥" {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if lines[1].Subject != "hello" || lines[1].Timestamp != "2024-01-01 10:00:10" {
		t.Fatalf("unexpected second line %+v", lines[1])
	}
	if lines[2].Icon != "" || lines[2].Description != "" {
		t.Fatalf("unknown kind must have blank metadata, got %+v", lines[2])
	}
	if lines[2].Source != "MAILBOXRULE" {
		t.Fatalf("unexpected source %q", lines[2].Source)
	}
}

func TestDetail_InvalidTimestamp(t *testing.T) {
	j := BuildJourneys([]Event{{MessageID: "A", EventID: "SEND", Timestamp: "nope"}}, time.UTC)[0]
	lines := Detail(j, time.UTC)
	if lines[0].Timestamp != InvalidDisplay {
		t.Fatalf("expected %q, got %q", InvalidDisplay, lines[0].Timestamp)
	}
}

func TestClassifyEventID(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"SEND", KindSend},
		{" send ", KindSend},
		{"DUPLICATEDELIVER", KindDuplicateDeliver},
		{"SubmitFail", KindSubmitFail},
		{"", KindUnknown},
		{"RESUBMIT", KindUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyEventID(tt.in); got != tt.want {
			t.Errorf("ClassifyEventID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if KindFail.String() != "FAIL" || KindUnknown.String() != "" {
		t.Fatalf("unexpected kind strings")
	}
}

func TestDecodeEvents(t *testing.T) {
	events, err := DecodeEvents([]byte(`[{"MessageId":"<a@x>","EventId":"SEND","Recipients":null},"junk",null]`))
	if err != nil {
		t.Fatalf("DecodeEvents: %v", err)
	}
	if len(events) != 1 || events[0].Kind() != KindSend || len(events[0].Recipients) != 0 {
		t.Fatalf("unexpected events %+v", events)
	}

	single, err := DecodeEvents([]byte(`{"MessageId":"<b@x>","EventId":"FAIL"}`))
	if err != nil || len(single) != 1 {
		t.Fatalf("expected single object to decode, got %v %+v", err, single)
	}

	if _, err := DecodeEvents([]byte(`"text"`)); err == nil {
		t.Fatalf("expected error for non-array document")
	}
}
