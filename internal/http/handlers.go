package http

import (
	nethttp "net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go-mailflow-dashboard/internal/dashboard"
	"go-mailflow-dashboard/internal/smtplog"
	"go-mailflow-dashboard/internal/tracking"
)

const hiddenSubject = "[Hidden]"

type identity struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// identityResolver reads the caller from a header set by the fronting proxy.
type identityResolver struct {
	header  string
	isAdmin func(string) bool
}

func (ir identityResolver) resolve(r *nethttp.Request) identity {
	user := strings.ToLower(strings.TrimSpace(r.Header.Get(ir.header)))
	admin := false
	if ir.isAdmin != nil {
		admin = ir.isAdmin(user)
	}
	return identity{Username: user, Admin: admin}
}

// canSeeSubject reports whether id may read the subject of mail from sender.
// Callers without an identity see no subjects.
func (id identity) canSeeSubject(sender string) bool {
	if id.Admin {
		return true
	}
	if id.Username == "" {
		return false
	}
	return strings.Contains(strings.ToLower(sender), id.Username)
}

func (id identity) redact(j tracking.Journey) tracking.Journey {
	if id.canSeeSubject(j.Sender) {
		return j
	}
	j.Subject = hiddenSubject
	if len(j.Events) > 0 {
		events := make([]tracking.Event, len(j.Events))
		copy(events, j.Events)
		for i := range events {
			events[i].MessageSubject = hiddenSubject
		}
		j.Events = events
	}
	j.PrimaryEvent.MessageSubject = hiddenSubject
	return j
}

func whoamiHandler(ident identityResolver) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, ident.resolve(r))
	}
}

func journeysHandler(defaultLimit int, state *dashboard.State, ident identityResolver) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		limit := parseLimit(r, defaultLimit)
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		failedOnly := r.URL.Query().Get("failed") == "true"
		id := ident.resolve(r)

		all := state.Data().Journeys
		items := make([]tracking.Journey, 0, min(limit, len(all)))
		matched := 0
		for _, j := range all {
			if failedOnly && !j.HasFailure {
				continue
			}
			if !j.Matches(query) {
				continue
			}
			matched++
			if len(items) < limit {
				items = append(items, id.redact(j.Summary()))
			}
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"limit":        limit,
				"count":        len(items),
				"matched":      matched,
				"total":        len(all),
				"refreshed_at": state.ViewStatus(dashboard.ViewMessageTracking).RefreshedAt,
			},
			"data": items,
		})
	}
}

func journeyDetailHandler(state *dashboard.State, ident identityResolver, loc *time.Location) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		// r.URL.Path is already decoded once; unescape the raw form instead so
		// ids holding '%' or '/' survive.
		raw := strings.Trim(strings.TrimPrefix(r.URL.EscapedPath(), "/api/v1/tracking/journeys/"), "/")
		messageID, err := url.PathUnescape(raw)
		if err != nil || messageID == "" {
			writeError(w, nethttp.StatusNotFound, "not found")
			return
		}

		for _, j := range state.Data().Journeys {
			if j.MessageID != messageID {
				continue
			}
			j = ident.resolve(r).redact(j)
			writeJSON(w, nethttp.StatusOK, map[string]any{
				"data": map[string]any{
					"journey": j,
					"detail":  tracking.Detail(j, loc),
				},
			})
			return
		}
		writeError(w, nethttp.StatusNotFound, "journey not found: "+messageID)
	}
}

func smtpSessionsHandler(defaultLimit int, state *dashboard.State) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		limit := parseLimit(r, defaultLimit)
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		descending := true
		switch strings.ToLower(r.URL.Query().Get("order")) {
		case "", "desc":
		case "asc":
			descending = false
		default:
			writeError(w, nethttp.StatusBadRequest, "invalid order, expected asc or desc")
			return
		}

		all := state.Data().SMTPRows
		rows := make([]smtplog.Row, 0, len(all))
		for _, row := range all {
			if row.Matches(query) {
				row.Detail = nil
				rows = append(rows, row)
			}
		}
		smtplog.SortByOrder(rows, descending)
		matched := len(rows)
		if len(rows) > limit {
			rows = rows[:limit]
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"limit":        limit,
				"count":        len(rows),
				"matched":      matched,
				"total":        len(all),
				"refreshed_at": state.ViewStatus(dashboard.ViewSMTP).RefreshedAt,
			},
			"data": rows,
		})
	}
}

func smtpSessionDetailHandler(state *dashboard.State) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/smtp/sessions/"), "/")
		index, err := strconv.Atoi(raw)
		if err != nil || index < 0 {
			writeError(w, nethttp.StatusBadRequest, "invalid session index")
			return
		}
		rows := state.Data().SMTPRows
		if index >= len(rows) {
			writeError(w, nethttp.StatusNotFound, "session not found: "+raw)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"data": rows[index]})
	}
}

func queueSummaryHandler(state *dashboard.State) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"refreshed_at": state.ViewStatus(dashboard.ViewQueueMessages).RefreshedAt,
			},
			"data": state.Data().QueueSummary,
		})
	}
}

func tableHandler(state *dashboard.State, view dashboard.ViewID) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		data := state.Data()
		tbl := data.QueueStats
		switch view {
		case dashboard.ViewQueueMessages:
			tbl = data.QueueMessages
		case dashboard.ViewErrorLogs:
			tbl = data.ErrorLogs
		}
		st := state.ViewStatus(view)
		if tbl == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{
				"error":      "no data loaded yet for " + string(view),
				"last_error": st.LastError,
			})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"count":        len(tbl.Rows),
				"refreshed_at": st.RefreshedAt,
			},
			"data": tbl,
		})
	}
}

func servicesHandler(state *dashboard.State, ident identityResolver) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		services := state.Data().Services
		sorted := append(services[:0:0], services...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"count":        len(sorted),
				"can_restart":  ident.resolve(r).Admin,
				"refreshed_at": state.ViewStatus(dashboard.ViewExchangeServices).RefreshedAt,
			},
			"data": sorted,
		})
	}
}

func mailStatsHandler(state *dashboard.State) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		stats := state.Data().MailStats
		if stats == nil {
			writeError(w, nethttp.StatusServiceUnavailable, "no mail stats loaded yet")
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"data": stats})
	}
}

func chartHandler(state *dashboard.State, view dashboard.ViewID) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		data := state.Data()
		c := data.QueueChart
		if view == dashboard.ViewMailStatsChart {
			c = data.MailChart
		}
		if c == nil {
			writeError(w, nethttp.StatusServiceUnavailable, "no chart data loaded yet for "+string(view))
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"data": c})
	}
}

func parseLimit(r *nethttp.Request, defaultLimit int) int {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed > 0 && parsed <= 5000 {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = 500
	}
	return limit
}
