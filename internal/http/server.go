package http

import (
	"context"
	"encoding/json"
	"log/slog"
	nethttp "net/http"
	"time"

	"go-mailflow-dashboard/internal/config"
	"go-mailflow-dashboard/internal/dashboard"
	"go-mailflow-dashboard/internal/history"
)

// Deps are the long-lived components the handlers read from.
type Deps struct {
	State     *dashboard.State
	Tracker   *dashboard.Tracker
	Refresher *dashboard.Refresher
	Hub       *dashboard.Hub
	History   *history.Store
	Actions   *ActionsClient
}

// Server wraps an HTTP server and route handlers.
type Server struct {
	httpServer *nethttp.Server
	history    *history.Store
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(cfg config.Config, deps Deps) *Server {
	mux := NewMux(cfg, deps)

	httpServer := &nethttp.Server{
		Addr:         cfg.ListenAddr,
		Handler:      loggingMiddleware(observabilityMiddleware(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{httpServer: httpServer, history: deps.History}
}

// NewMux registers every route. Exposed for tests.
func NewMux(cfg config.Config, deps Deps) *nethttp.ServeMux {
	loc := cfg.Location()
	ident := identityResolver{header: cfg.UserHeader, isAdmin: cfg.IsAdmin}
	limit := cfg.DefaultListLimit

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/", dashboardHandler)
	mux.HandleFunc("/favicon.ico", faviconHandler)
	mux.Handle("/metrics", metricsHandler(deps.Hub))
	mux.HandleFunc("/api/v1/metrics/app", appMetricsSummaryHandler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(deps.State))

	mux.HandleFunc("/api/v1/whoami", whoamiHandler(ident))
	mux.HandleFunc("/api/v1/tracking/journeys", journeysHandler(limit, deps.State, ident))
	mux.HandleFunc("/api/v1/tracking/journeys/", journeyDetailHandler(deps.State, ident, loc))
	mux.HandleFunc("/api/v1/smtp/sessions", smtpSessionsHandler(limit, deps.State))
	mux.HandleFunc("/api/v1/smtp/sessions/", smtpSessionDetailHandler(deps.State))
	mux.HandleFunc("/api/v1/queue/summary", queueSummaryHandler(deps.State))
	mux.HandleFunc("/api/v1/queue/stats", tableHandler(deps.State, dashboard.ViewQueueStats))
	mux.HandleFunc("/api/v1/queue/messages", tableHandler(deps.State, dashboard.ViewQueueMessages))
	mux.HandleFunc("/api/v1/errors", tableHandler(deps.State, dashboard.ViewErrorLogs))
	mux.HandleFunc("/api/v1/services", servicesHandler(deps.State, ident))
	mux.HandleFunc("/api/v1/mail/stats", mailStatsHandler(deps.State))
	mux.HandleFunc("/api/v1/charts/queue", chartHandler(deps.State, dashboard.ViewQueueStatsChart))
	mux.HandleFunc("/api/v1/charts/mail", chartHandler(deps.State, dashboard.ViewMailStatsChart))

	mux.HandleFunc("/api/v1/history/queue-summary", queueHistoryHandler(cfg.HistoryMaxPoints, deps.History))
	mux.HandleFunc("/api/v1/history/runs", runHistoryHandler(limit, deps.History))

	mux.HandleFunc("/api/v1/views/state", viewStateHandler(deps.Tracker))
	mux.HandleFunc("/api/v1/refresh", refreshHandler(deps.Refresher))
	mux.HandleFunc("/api/v1/status", statusHandler(deps.State, deps.History))
	mux.HandleFunc("/api/v1/ws", websocketHandler(deps.Hub))

	mux.HandleFunc("/api/v1/actions/restart-service", actionHandler(deps.Actions, deps.Refresher, ident, actionRestartService))
	mux.HandleFunc("/api/v1/actions/restart-exchange", actionHandler(deps.Actions, deps.Refresher, ident, actionRestartExchange))
	mux.HandleFunc("/api/v1/actions/restart-iis", actionHandler(deps.Actions, deps.Refresher, ident, actionRestartIIS))

	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.history != nil {
		defer func() { _ = s.history.Close() }()
	}
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func readyHandler(state *dashboard.State) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if state == nil || !state.Ready() {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"status": "starting"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"status":     "ready",
			"last_cycle": state.LastCycle(),
		})
	}
}

func loggingMiddleware(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: nethttp.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w nethttp.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodAllowed(w nethttp.ResponseWriter, r *nethttp.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	writeError(w, nethttp.StatusMethodNotAllowed, "method not allowed")
	return false
}
