package dashboard

import (
	"sync"
	"time"

	"go-mailflow-dashboard/internal/charts"
	"go-mailflow-dashboard/internal/queue"
	"go-mailflow-dashboard/internal/smtplog"
	"go-mailflow-dashboard/internal/snapshot"
	"go-mailflow-dashboard/internal/tracking"
)

// Data is the last good derived content of every view. Slices and tables are
// replaced wholesale by a refresh and never mutated afterwards, so a copy of
// Data can be read without holding the lock.
type Data struct {
	Journeys      []tracking.Journey
	SMTPRows      []smtplog.Row
	QueueStats    *snapshot.Table
	QueueMessages *snapshot.Table
	QueueSummary  queue.Summary
	ErrorLogs     *snapshot.Table
	Services      []snapshot.ServiceStatus
	MailStats     *snapshot.MailCounters
	QueueChart    *charts.Chart
	MailChart     *charts.Chart
}

// ViewStatus describes the last refresh attempt of one view.
type ViewStatus struct {
	View        ViewID     `json:"view"`
	Items       int        `json:"items"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
	AttemptedAt *time.Time `json:"attempted_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Skipped     bool       `json:"skipped"`
}

// CycleInfo summarises the most recent refresh cycle.
type CycleInfo struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Count      int64     `json:"count"`
}

// State is the shared, lock-guarded view data. Each pipeline writes only its
// own view's slot.
type State struct {
	mu     sync.RWMutex
	data   Data
	status map[ViewID]*ViewStatus
	cycle  CycleInfo
}

func NewState() *State {
	status := make(map[ViewID]*ViewStatus, len(AllViews))
	for _, v := range AllViews {
		status[v] = &ViewStatus{View: v}
	}
	return &State{status: status}
}

// Data returns a copy of the current view data.
func (s *State) Data() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Status returns per-view status in AllViews order.
func (s *State) Status() []ViewStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ViewStatus, 0, len(AllViews))
	for _, v := range AllViews {
		out = append(out, *s.status[v])
	}
	return out
}

// ViewStatus returns the status of one view.
func (s *State) ViewStatus(v ViewID) ViewStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.status[v]; ok {
		return *st
	}
	return ViewStatus{View: v}
}

// LastCycle returns information about the most recent completed cycle.
func (s *State) LastCycle() CycleInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle
}

// Ready reports whether at least one cycle has completed.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle.Count > 0
}

func (s *State) apply(v ViewID, at time.Time, items int, update func(*Data)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.data)
	st := s.status[v]
	st.Items = items
	st.RefreshedAt = &at
	st.AttemptedAt = &at
	st.LastError = ""
	st.Skipped = false
}

func (s *State) fail(v ViewID, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[v]
	st.AttemptedAt = &at
	st.LastError = err.Error()
	st.Skipped = false
}

func (s *State) skip(v ViewID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[v].Skipped = true
}

func (s *State) finishCycle(id string, started time.Time, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle.ID = id
	s.cycle.StartedAt = started
	s.cycle.DurationMS = d.Milliseconds()
	s.cycle.Count++
}
