package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go-mailflow-dashboard/internal/dashboard"
	"go-mailflow-dashboard/internal/snapshot"
)

const metricPrefix = "mailflow_"

var (
	appStartedAtUnix = time.Now().Unix()
	inFlightRequests int64
	metricsMu        sync.Mutex
	httpSeries       = map[httpMetricKey]*timedSeries{}
	dbQuerySeries    = map[opMetricKey]*timedSeries{}
	externalSeries   = map[opMetricKey]*timedSeries{}
	refreshSeries    = map[opMetricKey]*timedSeries{}
)

type httpMetricKey struct {
	Method string
	Path   string
	Status string
}

// opMetricKey is a (target, operation) pair: connector/operation for history
// queries, target/document for external calls, view/status for refreshes.
type opMetricKey struct {
	Target    string
	Operation string
}

type timedSeries struct {
	Count              uint64
	Errors             uint64
	DurationSecondsSum float64
}

type opRow struct {
	Key    opMetricKey
	Series timedSeries
}

func snapshotOps(m map[opMetricKey]*timedSeries) []opRow {
	out := make([]opRow, 0, len(m))
	for k, s := range m {
		out = append(out, opRow{Key: k, Series: *s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Target != out[j].Key.Target {
			return out[i].Key.Target < out[j].Key.Target
		}
		return out[i].Key.Operation < out[j].Key.Operation
	})
	return out
}

func writeOpFamily(w io.Writer, name, help, targetLabel, opLabel string, rows []opRow, withErrors bool) {
	_, _ = fmt.Fprintf(w, "# HELP %s%s_duration_seconds_sum %s duration sum in seconds.\n", metricPrefix, name, help)
	_, _ = fmt.Fprintf(w, "# TYPE %s%s_duration_seconds_sum counter\n", metricPrefix, name)
	for _, it := range rows {
		_, _ = fmt.Fprintf(w, "%s%s_duration_seconds_sum{%s=%q,%s=%q} %.9f\n", metricPrefix, name,
			targetLabel, escapeLabel(it.Key.Target), opLabel, escapeLabel(it.Key.Operation), it.Series.DurationSecondsSum)
	}
	_, _ = fmt.Fprintf(w, "# HELP %s%s_duration_seconds_count %s observation count.\n", metricPrefix, name, help)
	_, _ = fmt.Fprintf(w, "# TYPE %s%s_duration_seconds_count counter\n", metricPrefix, name)
	for _, it := range rows {
		_, _ = fmt.Fprintf(w, "%s%s_duration_seconds_count{%s=%q,%s=%q} %d\n", metricPrefix, name,
			targetLabel, escapeLabel(it.Key.Target), opLabel, escapeLabel(it.Key.Operation), it.Series.Count)
	}
	if !withErrors {
		return
	}
	_, _ = fmt.Fprintf(w, "# HELP %s%s_errors_total %s errors.\n", metricPrefix, name, help)
	_, _ = fmt.Fprintf(w, "# TYPE %s%s_errors_total counter\n", metricPrefix, name)
	for _, it := range rows {
		_, _ = fmt.Fprintf(w, "%s%s_errors_total{%s=%q,%s=%q} %d\n", metricPrefix, name,
			targetLabel, escapeLabel(it.Key.Target), opLabel, escapeLabel(it.Key.Operation), it.Series.Errors)
	}
}

func metricsHandler(hub *dashboard.Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		metricsMu.Lock()
		keys := make([]httpMetricKey, 0, len(httpSeries))
		for k := range httpSeries {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Method != keys[j].Method {
				return keys[i].Method < keys[j].Method
			}
			if keys[i].Path != keys[j].Path {
				return keys[i].Path < keys[j].Path
			}
			return keys[i].Status < keys[j].Status
		})
		httpRows := make([]timedSeries, 0, len(keys))
		for _, k := range keys {
			httpRows = append(httpRows, *httpSeries[k])
		}
		dbRows := snapshotOps(dbQuerySeries)
		exRows := snapshotOps(externalSeries)
		refreshRows := snapshotOps(refreshSeries)
		metricsMu.Unlock()

		_, _ = fmt.Fprintf(w, "# HELP %shttp_requests_total Total HTTP requests handled by this app.\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "# TYPE %shttp_requests_total counter\n", metricPrefix)
		for i, k := range keys {
			_, _ = fmt.Fprintf(w, "%shttp_requests_total{method=%q,path=%q,status=%q} %d\n", metricPrefix,
				escapeLabel(k.Method), escapeLabel(k.Path), escapeLabel(k.Status), httpRows[i].Count)
		}
		_, _ = fmt.Fprintf(w, "# HELP %shttp_request_duration_seconds_sum Total duration in seconds for observed requests.\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "# TYPE %shttp_request_duration_seconds_sum counter\n", metricPrefix)
		for i, k := range keys {
			_, _ = fmt.Fprintf(w, "%shttp_request_duration_seconds_sum{method=%q,path=%q,status=%q} %.9f\n", metricPrefix,
				escapeLabel(k.Method), escapeLabel(k.Path), escapeLabel(k.Status), httpRows[i].DurationSecondsSum)
		}
		_, _ = fmt.Fprintf(w, "# HELP %shttp_in_flight_requests In-flight HTTP requests currently served by this app.\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "# TYPE %shttp_in_flight_requests gauge\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "%shttp_in_flight_requests %d\n", metricPrefix, atomic.LoadInt64(&inFlightRequests))

		writeOpFamily(w, "history_query", "History store query", "driver", "operation", dbRows, true)
		writeOpFamily(w, "external_call", "Snapshot fetch and action call", "target", "operation", exRows, true)
		writeOpFamily(w, "view_refresh", "View pipeline", "view", "status", refreshRows, false)

		if hub != nil {
			_, _ = fmt.Fprintf(w, "# HELP %snotice_subscribers Live change feed subscribers.\n", metricPrefix)
			_, _ = fmt.Fprintf(w, "# TYPE %snotice_subscribers gauge\n", metricPrefix)
			_, _ = fmt.Fprintf(w, "%snotice_subscribers %d\n", metricPrefix, hub.Subscribers())
			_, _ = fmt.Fprintf(w, "# HELP %snotices_dropped_total Notices dropped for slow subscribers.\n", metricPrefix)
			_, _ = fmt.Fprintf(w, "# TYPE %snotices_dropped_total counter\n", metricPrefix)
			_, _ = fmt.Fprintf(w, "%snotices_dropped_total %d\n", metricPrefix, hub.Dropped())
		}

		writeRuntimeMetrics(w)
	})
}

func writeRuntimeMetrics(w io.Writer) {
	uptime := time.Now().Unix() - appStartedAtUnix
	_, _ = fmt.Fprintf(w, "# HELP %suptime_seconds Process uptime in seconds.\n", metricPrefix)
	_, _ = fmt.Fprintf(w, "# TYPE %suptime_seconds gauge\n", metricPrefix)
	_, _ = fmt.Fprintf(w, "%suptime_seconds %d\n", metricPrefix, uptime)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	_, _ = fmt.Fprintf(w, "# HELP %sruntime_goroutines Number of goroutines.\n", metricPrefix)
	_, _ = fmt.Fprintf(w, "# TYPE %sruntime_goroutines gauge\n", metricPrefix)
	_, _ = fmt.Fprintf(w, "%sruntime_goroutines %d\n", metricPrefix, runtime.NumGoroutine())
	_, _ = fmt.Fprintf(w, "# HELP %sruntime_memory_alloc_bytes Heap allocation bytes.\n", metricPrefix)
	_, _ = fmt.Fprintf(w, "# TYPE %sruntime_memory_alloc_bytes gauge\n", metricPrefix)
	_, _ = fmt.Fprintf(w, "%sruntime_memory_alloc_bytes %d\n", metricPrefix, ms.Alloc)
	_, _ = fmt.Fprintf(w, "# HELP %sruntime_gc_total Total GC runs since process start.\n", metricPrefix)
	_, _ = fmt.Fprintf(w, "# TYPE %sruntime_gc_total counter\n", metricPrefix)
	_, _ = fmt.Fprintf(w, "%sruntime_gc_total %d\n", metricPrefix, ms.NumGC)

	if cpuSec, ok := processCPUSeconds(); ok {
		_, _ = fmt.Fprintf(w, "# HELP %sruntime_cpu_seconds_total Total CPU time consumed by this process in seconds.\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "# TYPE %sruntime_cpu_seconds_total counter\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "%sruntime_cpu_seconds_total %.6f\n", metricPrefix, cpuSec)
	}
	if st := processIOStats(); st != nil {
		_, _ = fmt.Fprintf(w, "# HELP %sruntime_io_read_bytes_total Bytes read by this process from storage.\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "# TYPE %sruntime_io_read_bytes_total counter\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "%sruntime_io_read_bytes_total %d\n", metricPrefix, st.ReadBytes)
		_, _ = fmt.Fprintf(w, "# HELP %sruntime_io_write_bytes_total Bytes written by this process to storage.\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "# TYPE %sruntime_io_write_bytes_total counter\n", metricPrefix)
		_, _ = fmt.Fprintf(w, "%sruntime_io_write_bytes_total %d\n", metricPrefix, st.WriteBytes)
	}
}

func appMetricsSummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type endpointRow struct {
			Method  string  `json:"method"`
			Path    string  `json:"path"`
			Status  string  `json:"status"`
			Count   uint64  `json:"count"`
			AvgMS   float64 `json:"avg_ms"`
			TotalMS float64 `json:"total_ms"`
		}
		type opSummary struct {
			Target    string  `json:"target"`
			Operation string  `json:"operation"`
			Count     uint64  `json:"count"`
			Errors    uint64  `json:"errors"`
			AvgMS     float64 `json:"avg_ms"`
		}
		avgMS := func(s timedSeries) float64 {
			if s.Count == 0 {
				return 0
			}
			return (s.DurationSecondsSum / float64(s.Count)) * 1000.0
		}
		summarize := func(rows []opRow) ([]opSummary, uint64) {
			out := make([]opSummary, 0, len(rows))
			var errs uint64
			for _, r := range rows {
				out = append(out, opSummary{Target: r.Key.Target, Operation: r.Key.Operation, Count: r.Series.Count, Errors: r.Series.Errors, AvgMS: avgMS(r.Series)})
				errs += r.Series.Errors
			}
			sort.Slice(out, func(i, j int) bool { return out[i].AvgMS > out[j].AvgMS })
			if len(out) > 5 {
				out = out[:5]
			}
			return out, errs
		}

		metricsMu.Lock()
		httpRows := make([]endpointRow, 0, len(httpSeries))
		for k, s := range httpSeries {
			httpRows = append(httpRows, endpointRow{
				Method:  k.Method,
				Path:    k.Path,
				Status:  k.Status,
				Count:   s.Count,
				AvgMS:   avgMS(*s),
				TotalMS: s.DurationSecondsSum * 1000.0,
			})
		}
		dbRows := snapshotOps(dbQuerySeries)
		exRows := snapshotOps(externalSeries)
		metricsMu.Unlock()

		sort.Slice(httpRows, func(i, j int) bool { return httpRows[i].AvgMS > httpRows[j].AvgMS })
		if len(httpRows) > 5 {
			httpRows = httpRows[:5]
		}
		topDB, dbErrors := summarize(dbRows)
		topExternal, externalErrors := summarize(exRows)

		writeJSON(w, http.StatusOK, map[string]any{
			"meta": map[string]any{
				"generated_at": time.Now().UTC(),
			},
			"data": map[string]any{
				"top_http_slowest_avg_ms":     httpRows,
				"top_history_slowest_avg_ms":  topDB,
				"top_external_slowest_avg_ms": topExternal,
				"errors": map[string]any{
					"history_query_total": dbErrors,
					"external_call_total": externalErrors,
				},
			},
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not implement http.Hijacker")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&inFlightRequests, 1)
		defer atomic.AddInt64(&inFlightRequests, -1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := normalizeMetricPath(r.URL.Path)
		recordHTTPMetric(r.Method, route, rec.status, time.Since(start).Seconds())
	})
}

func normalizeMetricPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/tracking/journeys/"):
		return "/api/v1/tracking/journeys/{message_id}"
	case strings.HasPrefix(path, "/api/v1/smtp/sessions/"):
		return "/api/v1/smtp/sessions/{index}"
	case path == "/" || path == "/metrics" || path == "/health" || path == "/ready" || path == "/favicon.ico":
		return path
	case strings.HasPrefix(path, "/api/v1/"):
		return path
	default:
		return "other"
	}
}

func recordHTTPMetric(method, path string, status int, durationSeconds float64) {
	key := httpMetricKey{
		Method: method,
		Path:   path,
		Status: strconv.Itoa(status),
	}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := httpSeries[key]
	if !ok {
		row = &timedSeries{}
		httpSeries[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
}

func observe(m map[opMetricKey]*timedSeries, target, operation string, durationSeconds float64, err error) {
	if target == "" || operation == "" {
		return
	}
	key := opMetricKey{Target: target, Operation: operation}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := m[key]
	if !ok {
		row = &timedSeries{}
		m[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
	if err != nil {
		row.Errors++
	}
}

func recordDBQuery(driver, operation string, durationSeconds float64, err error) {
	observe(dbQuerySeries, driver, operation, durationSeconds, err)
}

func recordExternalProbe(target, operation string, durationSeconds float64, err error) {
	observe(externalSeries, target, operation, durationSeconds, err)
}

// RecordSnapshotFetch is a dashboard.FetchObserver.
func RecordSnapshotFetch(doc snapshot.Document, d time.Duration, err error) {
	recordExternalProbe("snapshot", string(doc), d.Seconds(), err)
}

// RecordCycle counts every view outcome of a finished cycle.
func RecordCycle(res dashboard.CycleResult) {
	for v, out := range res.Outcomes {
		observe(refreshSeries, string(v), out.Status, out.Duration.Seconds(), out.Err)
	}
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

func processCPUSeconds() (float64, bool) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	user := float64(ru.Utime.Sec) + (float64(ru.Utime.Usec) / 1_000_000.0)
	sys := float64(ru.Stime.Sec) + (float64(ru.Stime.Usec) / 1_000_000.0)
	return user + sys, true
}

type ioStats struct {
	ReadBytes  uint64
	WriteBytes uint64
}

func processIOStats() *ioStats {
	f, err := os.Open("/proc/self/io")
	if err != nil {
		return nil
	}
	defer f.Close()

	out := &ioStats{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "read_bytes":
			out.ReadBytes = v
		case "write_bytes":
			out.WriteBytes = v
		}
	}
	return out
}
