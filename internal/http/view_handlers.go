package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"strconv"
	"time"

	"go-mailflow-dashboard/internal/dashboard"
	"go-mailflow-dashboard/internal/history"
)

func viewStateHandler(tracker *dashboard.Tracker) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !methodAllowed(w, r, nethttp.MethodGet, nethttp.MethodPut) {
			return
		}
		if r.Method == nethttp.MethodPut {
			var req dashboard.InspectionState
			if err := json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
				writeError(w, nethttp.StatusBadRequest, "invalid JSON body")
				return
			}
			if req.ActiveView != "" && !req.ActiveView.Valid() {
				writeError(w, nethttp.StatusBadRequest, "unknown view: "+string(req.ActiveView))
				return
			}
			tracker.Replace(req)
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"data": tracker.State()})
	}
}

func refreshHandler(refresher *dashboard.Refresher) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !methodAllowed(w, r, nethttp.MethodPost) {
			return
		}
		var views []dashboard.ViewID
		for _, raw := range r.URL.Query()["view"] {
			v := dashboard.ViewID(raw)
			if !v.Valid() {
				writeError(w, nethttp.StatusBadRequest, "unknown view: "+raw)
				return
			}
			views = append(views, v)
		}
		refresher.Request("api", views...)
		writeJSON(w, nethttp.StatusAccepted, map[string]any{"status": "queued", "views": views})
	}
}

func statusHandler(state *dashboard.State, store *history.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"generated_at": time.Now().UTC(),
			"ready":        state.Ready(),
			"last_cycle":   state.LastCycle(),
			"views":        state.Status(),
			"history":      historyStatus(ctx, store),
		})
	}
}

func historyStatus(ctx context.Context, store *history.Store) map[string]any {
	if store == nil {
		return map[string]any{"enabled": false, "ok": false, "error": "history store disabled"}
	}

	start := time.Now()
	stats, err := store.ServiceStats(ctx)
	recordDBQuery(store.Driver(), "ServiceStats", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "stats": stats}
}

func queueHistoryHandler(maxPoints int, store *history.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			writeError(w, nethttp.StatusServiceUnavailable, "history store disabled (set APP_HISTORY_DRIVER=sqlite or mysql)")
			return
		}

		hours := 24
		if raw := r.URL.Query().Get("hours"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 24*90 {
				writeError(w, nethttp.StatusBadRequest, "invalid hours, expected 1..2160")
				return
			}
			hours = parsed
		}
		since := time.Now().Add(-time.Duration(hours) * time.Hour)

		start := time.Now()
		items, err := store.QueueSummarySeries(r.Context(), since, maxPoints)
		recordDBQuery(store.Driver(), "QueueSummarySeries", time.Since(start).Seconds(), err)
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, "failed to fetch queue history")
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"hours": hours, "count": len(items)},
			"data": items,
		})
	}
}

func runHistoryHandler(defaultLimit int, store *history.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			writeError(w, nethttp.StatusServiceUnavailable, "history store disabled (set APP_HISTORY_DRIVER=sqlite or mysql)")
			return
		}

		limit := parseLimit(r, defaultLimit)
		start := time.Now()
		items, err := store.RecentRuns(r.Context(), limit)
		recordDBQuery(store.Driver(), "RecentRuns", time.Since(start).Seconds(), err)
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, "failed to fetch refresh runs")
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"limit": limit, "count": len(items)},
			"data": items,
		})
	}
}
