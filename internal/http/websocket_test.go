package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go-mailflow-dashboard/internal/dashboard"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocketHandler_StreamsNotices(t *testing.T) {
	hub := dashboard.NewHub()
	srv := httptest.NewServer(websocketHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, "subscription", func() bool { return hub.Subscribers() == 1 })

	sent := dashboard.Notice{
		View:        dashboard.ViewSMTP,
		RefreshedAt: time.Date(2024, 3, 5, 9, 7, 0, 0, time.UTC),
		Cycle:       "cycle-1",
	}
	hub.Publish(sent)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got dashboard.Notice
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read notice: %v", err)
	}
	if got.View != sent.View || got.Cycle != sent.Cycle || !got.RefreshedAt.Equal(sent.RefreshedAt) {
		t.Fatalf("expected %+v, got %+v", sent, got)
	}

	_ = conn.Close()
	waitFor(t, "unsubscribe after close", func() bool { return hub.Subscribers() == 0 })
}

func TestWebsocketHandler_DisabledFeed(t *testing.T) {
	rr := httptest.NewRecorder()
	websocketHandler(nil)(rr, httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}
