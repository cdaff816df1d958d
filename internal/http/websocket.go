package http

import (
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"go-mailflow-dashboard/internal/dashboard"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// websocketHandler streams refresh notices so clients reload only the views
// that changed.
func websocketHandler(hub *dashboard.Hub) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if hub == nil {
			writeError(w, nethttp.StatusServiceUnavailable, "change feed disabled")
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		notices, cancel := hub.Subscribe()
		defer cancel()

		// Read pump: only used to notice the client going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case n, ok := <-notices:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(n); err != nil {
					slog.Debug("websocket write failed", "err", err)
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
