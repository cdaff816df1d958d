package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-mailflow-dashboard/internal/history"
	"go-mailflow-dashboard/internal/snapshot"
)

func TestInspection_ShouldSkip(t *testing.T) {
	tests := []struct {
		name     string
		in       Inspection
		view     ViewID
		wantSkip bool
	}{
		{"tracking active and expanded", Inspection{Active: ViewMessageTracking, Expanded: map[ViewID]bool{ViewMessageTracking: true}}, ViewMessageTracking, true},
		{"tracking active not expanded", Inspection{Active: ViewMessageTracking}, ViewMessageTracking, false},
		{"tracking expanded but not active", Inspection{Active: ViewSMTP, Expanded: map[ViewID]bool{ViewMessageTracking: true}}, ViewMessageTracking, false},
		{"smtp active and expanded", Inspection{Active: ViewSMTP, Expanded: map[ViewID]bool{ViewSMTP: true}}, ViewSMTP, true},
		{"smtp active not expanded", Inspection{Active: ViewSMTP}, ViewSMTP, false},
		{"error logs active", Inspection{Active: ViewErrorLogs}, ViewErrorLogs, true},
		{"error logs inactive", Inspection{Active: ViewSMTP}, ViewErrorLogs, false},
		{"queue active and expanded", Inspection{Active: ViewQueueMessages, Expanded: map[ViewID]bool{ViewQueueMessages: true}}, ViewQueueMessages, false},
		{"services active", Inspection{Active: ViewExchangeServices}, ViewExchangeServices, false},
	}
	for _, tt := range tests {
		if got := tt.in.ShouldSkip(tt.view); got != tt.wantSkip {
			t.Errorf("%s: ShouldSkip(%s) = %v, want %v", tt.name, tt.view, got, tt.wantSkip)
		}
	}
}

func TestTracker_ReplaceAndState(t *testing.T) {
	tr := NewTracker()
	tr.Replace(InspectionState{ActiveView: ViewSMTP, Expanded: []ViewID{ViewSMTP, "bogus", ViewMessageTracking}})
	st := tr.State()
	if st.ActiveView != ViewSMTP || len(st.Expanded) != 2 || st.Expanded[0] != ViewMessageTracking {
		t.Fatalf("unexpected state %+v", st)
	}

	tr.SetExpanded(ViewSMTP, false)
	if tr.Current().ShouldSkip(ViewSMTP) {
		t.Fatalf("collapsed view must refresh")
	}
	tr.Replace(InspectionState{ActiveView: "bogus"})
	if tr.Current().Active != ViewSMTP {
		t.Fatalf("unknown active view must be ignored")
	}
}

func TestHub_PublishAndDrop(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(Notice{View: ViewSMTP})
	select {
	case n := <-ch:
		if n.View != ViewSMTP {
			t.Fatalf("unexpected notice %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out")
	}

	for i := 0; i < subscriberBuffer+3; i++ {
		h.Publish(Notice{View: ViewMailStats})
	}
	if h.Dropped() != 3 {
		t.Fatalf("expected 3 dropped notices, got %d", h.Dropped())
	}

	cancel()
	cancel()
	if h.Subscribers() != 0 {
		t.Fatalf("expected subscription removed")
	}
}

type memRecorder struct {
	mu      sync.Mutex
	runs    []history.Run
	samples []history.QueueSample
}

func (m *memRecorder) RecordRun(_ context.Context, r history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func (m *memRecorder) RecordQueueSummary(_ context.Context, q history.QueueSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, q)
	return nil
}

func writeFixture(t *testing.T, dir string, doc snapshot.Document, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, string(doc)), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", doc, err)
	}
}

func TestRefresher_CycleOverDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, snapshot.MessageTracking, `[
		{"MessageId":"<a@x>","EventId":"RECEIVE","Timestamp":"2024-03-05T09:07:00Z","Sender":"a@x","Recipients":["b@y"]},
		{"MessageId":"<a@x>","EventId":"SEND","Timestamp":"2024-03-05T09:08:30Z","Sender":"a@x","Recipients":["b@y"]}
	]`)
	writeFixture(t, dir, snapshot.SMTPSessions, `[{"StartTime":"2024-03-05T09:07:00Z","Log":[{"Direction":"<","Data":"MAIL FROM:<a@x>"}]}]`)
	writeFixture(t, dir, snapshot.QueueMessages, `[
		{"Identity":"1","Status":"Retry"},
		{"Identity":"2","Status":"Suspended failed"},
		{"Identity":"3","Status":"Ready"}
	]`)
	writeFixture(t, dir, snapshot.ErrorLogs, `[{"TimeCreated":"/Date(1704103200000)/","Message":"boom"}]`)
	writeFixture(t, dir, snapshot.ExchangeServices, `[{"Name":"MSExchangeTransport","Status":"Running","CssClass":"success"}]`)
	writeFixture(t, dir, snapshot.MailStats, `{"SentLastHour":3,"ReceivedLastHour":4}`)
	writeFixture(t, dir, snapshot.QueueStats, `[]`)
	writeFixture(t, dir, snapshot.QueueStatsChart, `[{"timestamp":"2024-03-05T09:00:00Z","totalQueued":3,"retry":1,"failed":1}]`)
	// MailStatsChart.json is missing.

	rec := &memRecorder{}
	hub := NewHub()
	notices, cancel := hub.Subscribe()
	defer cancel()

	state := NewState()
	r := NewRefresher(snapshot.NewDirSource(dir), state, Options{Location: time.UTC, Recorder: rec, Hub: hub})
	res := r.Cycle(context.Background(), Inspection{Active: ViewErrorLogs})

	if res.Outcomes[ViewErrorLogs].Status != history.StatusSkipped {
		t.Fatalf("error logs should be held while active, got %+v", res.Outcomes[ViewErrorLogs])
	}
	if res.Outcomes[ViewQueueStats].Status != history.StatusFailed {
		t.Fatalf("empty queue stats should fail, got %+v", res.Outcomes[ViewQueueStats])
	}
	if res.Outcomes[ViewMailStatsChart].Status != history.StatusFailed {
		t.Fatalf("missing chart should fail, got %+v", res.Outcomes[ViewMailStatsChart])
	}

	data := state.Data()
	if len(data.Journeys) != 1 || data.Journeys[0].ProcessingTime != "1m 30s" {
		t.Fatalf("unexpected journeys %+v", data.Journeys)
	}
	if len(data.SMTPRows) != 1 || data.SMTPRows[0].From != "a@x" {
		t.Fatalf("unexpected smtp rows %+v", data.SMTPRows)
	}
	if data.QueueSummary.Total != 3 || data.QueueSummary.Retry != 1 || data.QueueSummary.Failed != 1 || data.QueueSummary.Other != 1 {
		t.Fatalf("unexpected queue summary %+v", data.QueueSummary)
	}
	if data.ErrorLogs != nil {
		t.Fatalf("held view must not be loaded")
	}
	if data.MailStats == nil || data.MailStats.ReceivedLastHour != 4 {
		t.Fatalf("unexpected mail stats %+v", data.MailStats)
	}
	if data.QueueChart == nil || data.QueueChart.Labels[0] != "03-05 09:00" {
		t.Fatalf("unexpected queue chart %+v", data.QueueChart)
	}
	if !state.Ready() {
		t.Fatalf("state should be ready after a cycle")
	}
	if st := state.ViewStatus(ViewQueueStats); st.LastError == "" || st.RefreshedAt != nil {
		t.Fatalf("unexpected queue stats status %+v", st)
	}

	if len(rec.runs) != len(AllViews) || len(rec.samples) != 1 || rec.samples[0].Total != 3 {
		t.Fatalf("unexpected history: %d runs, samples %+v", len(rec.runs), rec.samples)
	}
	if len(notices) != 6 {
		t.Fatalf("expected 6 notices, got %d", len(notices))
	}

	// A later failing snapshot keeps the previous good data.
	writeFixture(t, dir, snapshot.MessageTracking, `[]`)
	r.Cycle(context.Background(), Inspection{})
	if got := state.Data().Journeys; len(got) != 1 {
		t.Fatalf("expected previous journeys kept, got %d", len(got))
	}
	if state.Data().ErrorLogs == nil {
		t.Fatalf("error logs should load once inactive")
	}
}

func TestRefresher_StatusColumnFallback(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, snapshot.QueueMessages, `[{"a":1,"b":2,"c":3,"d":4,"e":5,"f":6,"State":"Retry"}]`)

	state := NewState()
	r := NewRefresher(snapshot.NewDirSource(dir), state, Options{})
	r.CycleViews(context.Background(), Inspection{}, []ViewID{ViewQueueMessages})
	if got := state.Data().QueueSummary; got.Retry != 1 {
		t.Fatalf("expected seventh column used as status, got %+v", got)
	}
}

func TestRefresher_RequestMerges(t *testing.T) {
	r := NewRefresher(snapshot.NewDirSource(t.TempDir()), NewState(), Options{})
	r.Request("restart", ViewExchangeServices)
	r.Request("restart", ViewExchangeServices, ViewMailStats)
	views := r.takePending()
	if len(views) != 2 || views[0] != ViewExchangeServices {
		t.Fatalf("unexpected pending views %v", views)
	}
	r.Request("manual")
	if len(r.takePending()) != len(AllViews) {
		t.Fatalf("expected every view after a bare request")
	}
	if len(r.takePending()) != 0 {
		t.Fatalf("pending set should be cleared")
	}
}
