package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go-mailflow-dashboard/internal/config"
	"go-mailflow-dashboard/internal/dashboard"
	"go-mailflow-dashboard/internal/snapshot"
)

type testEnv struct {
	mux     *http.ServeMux
	state   *dashboard.State
	tracker *dashboard.Tracker
}

func newTestEnv(t *testing.T, actions *ActionsClient) testEnv {
	t.Helper()
	return newTestEnvWith(t, actions, nil)
}

// newTestEnvWith is newTestEnv with some snapshot documents replaced.
func newTestEnvWith(t *testing.T, actions *ActionsClient, overrides map[snapshot.Document]string) testEnv {
	t.Helper()
	dir := t.TempDir()
	files := map[snapshot.Document]string{
		snapshot.MessageTracking: `[
			{"MessageId":"<a@x>","EventId":"SEND","Timestamp":"2024-03-05T09:07:00Z","Sender":"alice@corp.example","Recipients":["b@y"],"MessageSubject":"Quarterly numbers"},
			{"MessageId":"<a@x>","EventId":"DELIVER","Timestamp":"2024-03-05T09:07:05Z","Sender":"alice@corp.example","Recipients":["b@y"],"MessageSubject":"Quarterly numbers"},
			{"MessageId":"<b@x>","EventId":"FAIL","Timestamp":"2024-03-05T09:00:00Z","Sender":"bob@corp.example","Recipients":["c@y"],"MessageSubject":"Lunch"}
		]`,
		snapshot.SMTPSessions: `[
			{"StartTime":"2024-03-05T09:07:00Z","SortOrder":1,"Log":[{"Direction":"<","Data":"MAIL FROM:<a@x>"},{"Direction":"<","Data":"RCPT TO:<b@y>"}]},
			{"StartTime":"2024-03-05T09:08:00Z","SortOrder":2,"Log":[{"Direction":"<","Data":"MAIL FROM:<c@x>"}]}
		]`,
		snapshot.QueueMessages:    `[{"Identity":"1","Status":"Retry"},{"Identity":"2","Status":"Ready"}]`,
		snapshot.ExchangeServices: `[{"Name":"W3SVC","Status":"Running","CssClass":"success"},{"Name":"MSExchangeTransport","Status":"Stopped","CssClass":"danger"}]`,
	}
	for doc, body := range overrides {
		files[doc] = body
	}
	for doc, body := range files {
		if err := os.WriteFile(filepath.Join(dir, string(doc)), []byte(body), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	state := dashboard.NewState()
	tracker := dashboard.NewTracker()
	refresher := dashboard.NewRefresher(snapshot.NewDirSource(dir), state, dashboard.Options{Location: time.UTC})
	refresher.Cycle(context.Background(), dashboard.Inspection{})

	cfg := config.Config{
		DefaultListLimit: 50,
		DisplayTimezone:  "UTC",
		UserHeader:       "X-Remote-User",
		AdminUsers:       []string{"admin"},
		HistoryMaxPoints: 100,
	}
	mux := NewMux(cfg, Deps{
		State:     state,
		Tracker:   tracker,
		Refresher: refresher,
		Hub:       dashboard.NewHub(),
		Actions:   actions,
	})
	return testEnv{mux: mux, state: state, tracker: tracker}
}

func (e testEnv) do(t *testing.T, method, target, user string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)

	var payload map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return rr, payload
}

func TestJourneysHandler_RecentFirstAndRedacted(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, payload := env.do(t, http.MethodGet, "/api/v1/tracking/journeys", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	data := payload["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 journeys, got %d", len(data))
	}
	first := data[0].(map[string]any)
	second := data[1].(map[string]any)
	if first["message_id"] != "<a@x>" {
		t.Fatalf("expected most recent journey first, got %v", first["message_id"])
	}
	if first["subject"] != "Quarterly numbers" {
		t.Fatalf("sender should see own subject, got %v", first["subject"])
	}
	if second["subject"] != hiddenSubject {
		t.Fatalf("foreign subject should be hidden, got %v", second["subject"])
	}
	if _, ok := first["events"]; ok {
		t.Fatalf("list view must not carry events")
	}

	_, payload = env.do(t, http.MethodGet, "/api/v1/tracking/journeys", "admin", "")
	for _, item := range payload["data"].([]any) {
		if item.(map[string]any)["subject"] == hiddenSubject {
			t.Fatalf("admin should see every subject")
		}
	}

	_, payload = env.do(t, http.MethodGet, "/api/v1/tracking/journeys", "", "")
	for _, item := range payload["data"].([]any) {
		if item.(map[string]any)["subject"] != hiddenSubject {
			t.Fatalf("anonymous caller should see no subjects")
		}
	}
}

func TestJourneysHandler_Filters(t *testing.T) {
	env := newTestEnv(t, nil)

	_, payload := env.do(t, http.MethodGet, "/api/v1/tracking/journeys?failed=true", "admin", "")
	if data := payload["data"].([]any); len(data) != 1 || data[0].(map[string]any)["message_id"] != "<b@x>" {
		t.Fatalf("unexpected failed-only result %v", data)
	}
	_, payload = env.do(t, http.MethodGet, "/api/v1/tracking/journeys?q=quarterly&limit=1", "admin", "")
	if data := payload["data"].([]any); len(data) != 1 {
		t.Fatalf("unexpected search result %v", data)
	}
}

func TestJourneyDetailHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, payload := env.do(t, http.MethodGet, "/api/v1/tracking/journeys/%3Ca@x%3E", "admin", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	detail := payload["data"].(map[string]any)["detail"].([]any)
	if len(detail) != 2 || detail[0].(map[string]any)["event_id"] != "SEND" {
		t.Fatalf("unexpected detail %v", detail)
	}

	rr, _ = env.do(t, http.MethodGet, "/api/v1/tracking/journeys/missing", "admin", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestJourneyDetailHandler_EscapedIDs(t *testing.T) {
	env := newTestEnvWith(t, nil, map[snapshot.Document]string{
		snapshot.MessageTracking: `[
			{"MessageId":"<a%25b@x>","EventId":"SEND","Timestamp":"2024-03-05T09:07:00Z","Recipients":["b@y"]},
			{"MessageId":"<c/d@x>","EventId":"SEND","Timestamp":"2024-03-05T09:08:00Z","Recipients":["b@y"]}
		]`,
	})

	tests := []struct {
		target string
		want   string
	}{
		{target: "/api/v1/tracking/journeys/%3Ca%2525b@x%3E", want: "<a%25b@x>"},
		{target: "/api/v1/tracking/journeys/%3Cc%2Fd@x%3E", want: "<c/d@x>"},
	}
	for _, tc := range tests {
		rr, payload := env.do(t, http.MethodGet, tc.target, "admin", "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", tc.target, http.StatusOK, rr.Code)
			continue
		}
		journey := payload["data"].(map[string]any)["journey"].(map[string]any)
		if journey["message_id"] != tc.want {
			t.Errorf("%s: expected journey %q, got %v", tc.target, tc.want, journey["message_id"])
		}
	}
}

func TestSMTPSessionsHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	_, payload := env.do(t, http.MethodGet, "/api/v1/smtp/sessions", "", "")
	data := payload["data"].([]any)
	if len(data) != 2 || data[0].(map[string]any)["sort_order"].(float64) != 2 {
		t.Fatalf("expected descending order by default, got %v", data)
	}
	if _, ok := data[0].(map[string]any)["detail"]; ok {
		t.Fatalf("list view must not carry detail")
	}

	_, payload = env.do(t, http.MethodGet, "/api/v1/smtp/sessions?order=asc&q=RCPT", "", "")
	data = payload["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["to"] != "b@y" {
		t.Fatalf("unexpected filtered sessions %v", data)
	}

	rr, _ := env.do(t, http.MethodGet, "/api/v1/smtp/sessions?order=sideways", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}

	rr, payload = env.do(t, http.MethodGet, "/api/v1/smtp/sessions/0", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if detail := payload["data"].(map[string]any)["detail"].([]any); len(detail) != 2 {
		t.Fatalf("expected 2 detail lines, got %d", len(detail))
	}

	tests := []struct {
		target string
		status int
	}{
		{target: "/api/v1/smtp/sessions/99", status: http.StatusNotFound},
		{target: "/api/v1/smtp/sessions/2", status: http.StatusNotFound},
		{target: "/api/v1/smtp/sessions/-1", status: http.StatusBadRequest},
		{target: "/api/v1/smtp/sessions/abc", status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		rr, _ = env.do(t, http.MethodGet, tc.target, "", "")
		if rr.Code != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.target, tc.status, rr.Code)
		}
	}
}

func TestSMTPSessionDetail_RepeatedSortOrder(t *testing.T) {
	env := newTestEnvWith(t, nil, map[snapshot.Document]string{
		snapshot.SMTPSessions: `[
			{"StartTime":"2024-03-05T09:07:00Z","SortOrder":1,"Log":[{"Direction":"<","Data":"MAIL FROM:<first@x>"}]},
			{"StartTime":"2024-03-05T09:08:00Z","SortOrder":1,"Log":[{"Direction":"<","Data":"MAIL FROM:<second@x>"}]}
		]`,
	})

	_, payload := env.do(t, http.MethodGet, "/api/v1/smtp/sessions?order=asc", "", "")
	data := payload["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(data))
	}
	for _, item := range data {
		row := item.(map[string]any)
		target := fmt.Sprintf("/api/v1/smtp/sessions/%v", row["index"])
		rr, detail := env.do(t, http.MethodGet, target, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusOK, rr.Code)
		}
		if got := detail["data"].(map[string]any)["from"]; got != row["from"] {
			t.Fatalf("%s: expected session from %v, got %v", target, row["from"], got)
		}
	}
}

func TestQueueAndTableHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	_, payload := env.do(t, http.MethodGet, "/api/v1/queue/summary", "", "")
	summary := payload["data"].(map[string]any)
	if summary["total"].(float64) != 2 || summary["retry"].(float64) != 1 || summary["other"].(float64) != 1 {
		t.Fatalf("unexpected summary %v", summary)
	}

	rr, _ := env.do(t, http.MethodGet, "/api/v1/queue/messages", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	rr, payload = env.do(t, http.MethodGet, "/api/v1/errors", "", "")
	if rr.Code != http.StatusServiceUnavailable || payload["last_error"] == "" {
		t.Fatalf("expected 503 with last_error for missing error logs, got %d %v", rr.Code, payload)
	}
	rr, _ = env.do(t, http.MethodGet, "/api/v1/charts/mail", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestServicesHandler_SortedWithRestartFlag(t *testing.T) {
	env := newTestEnv(t, nil)

	_, payload := env.do(t, http.MethodGet, "/api/v1/services", "guest", "")
	data := payload["data"].([]any)
	if data[0].(map[string]any)["Name"] != "MSExchangeTransport" {
		t.Fatalf("expected services sorted by name, got %v", data)
	}
	if payload["meta"].(map[string]any)["can_restart"] != false {
		t.Fatalf("guest must not be offered restarts")
	}
}

func TestHistoryHandlers_Disabled(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, target := range []string{"/api/v1/history/queue-summary", "/api/v1/history/runs"} {
		rr, payload := env.do(t, http.MethodGet, target, "", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusServiceUnavailable, rr.Code)
		}
		if payload["error"] == nil {
			t.Fatalf("%s: expected error field in response", target)
		}
	}
}

func TestViewStateHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, _ := env.do(t, http.MethodPut, "/api/v1/views/state", "", `{"active_view":"smtp","expanded":["smtp"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !env.tracker.Current().ShouldSkip(dashboard.ViewSMTP) {
		t.Fatalf("expanded active smtp view should be held")
	}

	rr, _ = env.do(t, http.MethodPut, "/api/v1/views/state", "", `{"active_view":"nope"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	rr, _ = env.do(t, http.MethodDelete, "/api/v1/views/state", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestRefreshHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, _ := env.do(t, http.MethodPost, "/api/v1/refresh?view=smtp", "", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rr.Code)
	}
	rr, _ = env.do(t, http.MethodPost, "/api/v1/refresh?view=bogus", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	rr, _ = env.do(t, http.MethodGet, "/api/v1/refresh", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestActionHandler(t *testing.T) {
	var hits int32
	var gotQuery atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotQuery.Store(r.URL.Path + "?" + r.URL.RawQuery)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	disabled := newTestEnv(t, nil)
	rr, _ := disabled.do(t, http.MethodPost, "/api/v1/actions/restart-iis", "admin", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}

	env := newTestEnv(t, NewActionsClient(upstream.URL, time.Second))
	rr, _ = env.do(t, http.MethodPost, "/api/v1/actions/restart-iis", "guest", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}
	rr, _ = env.do(t, http.MethodPost, "/api/v1/actions/restart-service?service=bad;name", "admin", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	rr, _ = env.do(t, http.MethodPost, "/api/v1/actions/restart-service?service=MSExchangeTransport", "admin", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rr.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&hits) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected one upstream call, got %d", atomic.LoadInt32(&hits))
	}
	if got := gotQuery.Load().(string); got != "/restart-service?service=MSExchangeTransport" {
		t.Fatalf("unexpected upstream request %q", got)
	}
}

func TestWhoamiAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	_, payload := env.do(t, http.MethodGet, "/api/v1/whoami", "ADMIN", "")
	if payload["username"] != "admin" || payload["admin"] != true {
		t.Fatalf("unexpected identity %v", payload)
	}
	rr, _ := env.do(t, http.MethodGet, "/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready after a cycle, got %d", rr.Code)
	}

	notReady := readyHandler(dashboard.NewState())
	rec := httptest.NewRecorder()
	notReady.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	_, payload := env.do(t, http.MethodGet, "/api/v1/status", "", "")
	views := payload["views"].([]any)
	if len(views) != len(dashboard.AllViews) {
		t.Fatalf("expected %d view statuses, got %d", len(dashboard.AllViews), len(views))
	}
	if payload["history"].(map[string]any)["enabled"] != false {
		t.Fatalf("expected history disabled")
	}
}

func TestNormalizeMetricPath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/tracking/journeys/%3Ca@x%3E": "/api/v1/tracking/journeys/{message_id}",
		"/api/v1/smtp/sessions/12":            "/api/v1/smtp/sessions/{index}",
		"/api/v1/queue/summary":               "/api/v1/queue/summary",
		"/wp-login.php":                       "other",
	}
	for in, want := range tests {
		if got := normalizeMetricPath(in); got != want {
			t.Errorf("normalizeMetricPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	RecordSnapshotFetch(snapshot.MailStats, 20*time.Millisecond, nil)
	rr := httptest.NewRecorder()
	metricsHandler(dashboard.NewHub()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, `mailflow_external_call_duration_seconds_count{target="snapshot",operation="MailStats.json"}`) {
		t.Fatalf("expected snapshot fetch series in metrics output")
	}
	if !strings.Contains(body, "mailflow_notices_dropped_total 0") {
		t.Fatalf("expected hub metrics in output")
	}
}
