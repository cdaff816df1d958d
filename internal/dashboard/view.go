package dashboard

import (
	"sort"
	"sync"

	"go-mailflow-dashboard/internal/snapshot"
)

// ViewID names one dashboard view. Each view is fed by one snapshot document.
type ViewID string

const (
	ViewMessageTracking  ViewID = "messageTracking"
	ViewSMTP             ViewID = "smtp"
	ViewQueueStats       ViewID = "queueStats"
	ViewQueueMessages    ViewID = "queueMessages"
	ViewErrorLogs        ViewID = "errorLogs"
	ViewExchangeServices ViewID = "exchangeServices"
	ViewMailStats        ViewID = "mailStats"
	ViewQueueStatsChart  ViewID = "queueStatsChart"
	ViewMailStatsChart   ViewID = "mailStatsChart"
)

// AllViews lists every view in refresh order.
var AllViews = []ViewID{
	ViewMessageTracking,
	ViewSMTP,
	ViewQueueStats,
	ViewQueueMessages,
	ViewErrorLogs,
	ViewExchangeServices,
	ViewMailStats,
	ViewQueueStatsChart,
	ViewMailStatsChart,
}

var documentByView = map[ViewID]snapshot.Document{
	ViewMessageTracking:  snapshot.MessageTracking,
	ViewSMTP:             snapshot.SMTPSessions,
	ViewQueueStats:       snapshot.QueueStats,
	ViewQueueMessages:    snapshot.QueueMessages,
	ViewErrorLogs:        snapshot.ErrorLogs,
	ViewExchangeServices: snapshot.ExchangeServices,
	ViewMailStats:        snapshot.MailStats,
	ViewQueueStatsChart:  snapshot.QueueStatsChart,
	ViewMailStatsChart:   snapshot.MailStatsChart,
}

// Document returns the snapshot document that feeds v.
func (v ViewID) Document() snapshot.Document {
	return documentByView[v]
}

// Valid reports whether v is a known view.
func (v ViewID) Valid() bool {
	_, ok := documentByView[v]
	return ok
}

// Inspection is what the user is looking at when a cycle starts.
type Inspection struct {
	Active   ViewID
	Expanded map[ViewID]bool
}

// ShouldSkip reports whether a cycle must leave view v untouched so the user's
// open detail rows are not destroyed. The tracking and SMTP views are held
// while active with a row expanded; the error log is held whenever active.
func (in Inspection) ShouldSkip(v ViewID) bool {
	if v != in.Active {
		return false
	}
	switch v {
	case ViewMessageTracking, ViewSMTP:
		return in.Expanded[v]
	case ViewErrorLogs:
		return true
	default:
		return false
	}
}

// InspectionState is the wire form of an Inspection.
type InspectionState struct {
	ActiveView ViewID   `json:"active_view"`
	Expanded   []ViewID `json:"expanded"`
}

// Tracker holds the inspection state last reported by a presentation layer.
// The last writer wins.
type Tracker struct {
	mu       sync.Mutex
	active   ViewID
	expanded map[ViewID]bool
}

func NewTracker() *Tracker {
	return &Tracker{active: ViewMessageTracking, expanded: map[ViewID]bool{}}
}

// Current returns a copy safe to pass into a cycle.
func (t *Tracker) Current() Inspection {
	t.mu.Lock()
	defer t.mu.Unlock()
	exp := make(map[ViewID]bool, len(t.expanded))
	for v, ok := range t.expanded {
		if ok {
			exp[v] = true
		}
	}
	return Inspection{Active: t.active, Expanded: exp}
}

func (t *Tracker) SetActive(v ViewID) {
	t.mu.Lock()
	t.active = v
	t.mu.Unlock()
}

// SetExpanded records whether view v currently has an expanded row.
func (t *Tracker) SetExpanded(v ViewID, expanded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if expanded {
		t.expanded[v] = true
		return
	}
	delete(t.expanded, v)
}

// Replace swaps the whole state. Unknown views are ignored.
func (t *Tracker) Replace(s InspectionState) {
	exp := make(map[ViewID]bool, len(s.Expanded))
	for _, v := range s.Expanded {
		if v.Valid() {
			exp[v] = true
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.ActiveView.Valid() {
		t.active = s.ActiveView
	}
	t.expanded = exp
}

// State returns the wire form with expanded views sorted.
func (t *Tracker) State() InspectionState {
	in := t.Current()
	out := InspectionState{ActiveView: in.Active, Expanded: make([]ViewID, 0, len(in.Expanded))}
	for v := range in.Expanded {
		out.Expanded = append(out.Expanded, v)
	}
	sort.Slice(out.Expanded, func(i, j int) bool { return out.Expanded[i] < out.Expanded[j] })
	return out
}
