package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go-mailflow-dashboard/internal/charts"
	"go-mailflow-dashboard/internal/history"
	"go-mailflow-dashboard/internal/queue"
	"go-mailflow-dashboard/internal/smtplog"
	"go-mailflow-dashboard/internal/snapshot"
	"go-mailflow-dashboard/internal/tracking"
)

// legacyStatusColumn is the position of the status cell in QueueMessages rows
// produced by exporters that do not name their columns consistently.
const legacyStatusColumn = 6

// Recorder persists cycle outcomes. *history.Store satisfies it.
type Recorder interface {
	RecordRun(ctx context.Context, r history.Run) error
	RecordQueueSummary(ctx context.Context, q history.QueueSample) error
}

// FetchObserver is told about every snapshot fetch.
type FetchObserver func(doc snapshot.Document, d time.Duration, err error)

// Options tunes a Refresher. Zero values are usable.
type Options struct {
	Location       *time.Location
	StatusColumn   string
	ChartMaxPoints int
	Recorder       Recorder
	Hub            *Hub
	OnFetch        FetchObserver
	OnCycle        func(CycleResult)
}

// Outcome is the result of one view pipeline within a cycle.
type Outcome struct {
	Status   string
	Items    int
	Err      error
	Duration time.Duration
}

// CycleResult describes a finished cycle.
type CycleResult struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  map[ViewID]Outcome
}

// Refresher runs refresh cycles: every view is fetched, transformed and stored
// by its own pipeline, concurrently with the others.
type Refresher struct {
	src   snapshot.Source
	state *State
	opts  Options

	trigger    chan struct{}
	mu         sync.Mutex
	pending    map[ViewID]bool
	pendingAll bool
}

func NewRefresher(src snapshot.Source, state *State, opts Options) *Refresher {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.StatusColumn == "" {
		opts.StatusColumn = "Status"
	}
	return &Refresher{
		src:     src,
		state:   state,
		opts:    opts,
		trigger: make(chan struct{}, 1),
		pending: map[ViewID]bool{},
	}
}

// State returns the state the refresher writes into.
func (r *Refresher) State() *State { return r.state }

// Request asks Run for a cycle as soon as the current one (if any) ends. With
// no views every view is refreshed. Requests arriving before Run picks them up
// are merged.
func (r *Refresher) Request(reason string, views ...ViewID) {
	r.mu.Lock()
	if len(views) == 0 {
		r.pendingAll = true
	}
	for _, v := range views {
		r.pending[v] = true
	}
	r.mu.Unlock()

	select {
	case r.trigger <- struct{}{}:
	default:
	}
	slog.Debug("refresh requested", "reason", reason, "views", views)
}

func (r *Refresher) takePending() []ViewID {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.pendingAll
	views := make([]ViewID, 0, len(r.pending))
	for _, v := range AllViews {
		if r.pending[v] {
			views = append(views, v)
		}
	}
	r.pending = map[ViewID]bool{}
	r.pendingAll = false
	if all {
		return AllViews
	}
	return views
}

// Run performs a cycle immediately and then on every tick, every Request and
// every value received on changes, until ctx is done. Cycles never overlap.
// tracker supplies the inspection state; nil means nothing is inspected.
func (r *Refresher) Run(ctx context.Context, interval time.Duration, tracker *Tracker, changes <-chan string) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	inspection := func() Inspection {
		if tracker == nil {
			return Inspection{}
		}
		return tracker.Current()
	}

	r.Cycle(ctx, inspection())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cycle(ctx, inspection())
		case <-r.trigger:
			if views := r.takePending(); len(views) > 0 {
				r.CycleViews(ctx, inspection(), views)
			}
		case rel, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			slog.Debug("snapshot changed", "file", rel)
			r.Cycle(ctx, inspection())
		}
	}
}

// Cycle refreshes every view not held by in.
func (r *Refresher) Cycle(ctx context.Context, in Inspection) CycleResult {
	return r.CycleViews(ctx, in, AllViews)
}

// CycleViews refreshes the given views not held by in.
func (r *Refresher) CycleViews(ctx context.Context, in Inspection, views []ViewID) CycleResult {
	res := CycleResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Outcomes:  make(map[ViewID]Outcome, len(views)),
	}
	logger := slog.With("cycle", res.ID)

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for _, v := range views {
		if !v.Valid() {
			continue
		}
		if in.ShouldSkip(v) {
			r.state.skip(v)
			res.Outcomes[v] = Outcome{Status: history.StatusSkipped}
			logger.Debug("view held by inspection", "view", v)
			continue
		}
		v := v
		g.Go(func() error {
			out := r.runPipeline(ctx, res.ID, v)
			mu.Lock()
			res.Outcomes[v] = out
			mu.Unlock()
			if out.Err != nil {
				logger.Warn("view refresh failed, keeping previous data", "view", v, "document", v.Document(), "err", out.Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Duration = time.Since(res.StartedAt)
	r.state.finishCycle(res.ID, res.StartedAt, res.Duration)
	r.record(ctx, res)
	if r.opts.OnCycle != nil {
		r.opts.OnCycle(res)
	}
	logger.Info("refresh cycle finished", "views", len(res.Outcomes), "duration_ms", res.Duration.Milliseconds())
	return res
}

// runPipeline is fetch -> check -> transform -> store for one view.
func (r *Refresher) runPipeline(ctx context.Context, cycleID string, v ViewID) Outcome {
	started := time.Now()
	doc := v.Document()

	body, err := r.src.Fetch(ctx, doc)
	if r.opts.OnFetch != nil {
		r.opts.OnFetch(doc, time.Since(started), err)
	}
	if err == nil {
		err = snapshot.CheckShape(body)
	}
	var (
		update func(*Data)
		items  int
	)
	if err == nil {
		update, items, err = r.transform(v, body)
	}
	at := time.Now()
	if err != nil {
		r.state.fail(v, at, err)
		return Outcome{Status: history.StatusFailed, Err: err, Duration: time.Since(started)}
	}

	r.state.apply(v, at, items, update)
	if r.opts.Hub != nil {
		r.opts.Hub.Publish(Notice{View: v, RefreshedAt: at, Cycle: cycleID})
	}
	return Outcome{Status: history.StatusOK, Items: items, Duration: time.Since(started)}
}

func (r *Refresher) transform(v ViewID, body []byte) (func(*Data), int, error) {
	loc := r.opts.Location
	switch v {
	case ViewMessageTracking:
		events, err := tracking.DecodeEvents(body)
		if err != nil {
			return nil, 0, fmt.Errorf("decode events: %w", err)
		}
		journeys := tracking.BuildJourneys(events, loc)
		tracking.SortRecentFirst(journeys)
		return func(d *Data) { d.Journeys = journeys }, len(journeys), nil

	case ViewSMTP:
		sessions, err := smtplog.DecodeSessions(body)
		if err != nil {
			return nil, 0, fmt.Errorf("decode sessions: %w", err)
		}
		rows := smtplog.Normalize(sessions, loc)
		return func(d *Data) { d.SMTPRows = rows }, len(rows), nil

	case ViewQueueStats, ViewErrorLogs:
		tbl, err := snapshot.DecodeTable(body)
		if err != nil {
			return nil, 0, err
		}
		tbl.ConvertJSONDates(loc)
		if v == ViewQueueStats {
			return func(d *Data) { d.QueueStats = tbl }, len(tbl.Rows), nil
		}
		return func(d *Data) { d.ErrorLogs = tbl }, len(tbl.Rows), nil

	case ViewQueueMessages:
		tbl, err := snapshot.DecodeTable(body)
		if err != nil {
			return nil, 0, err
		}
		tbl.ConvertJSONDates(loc)
		summary := queue.Summarize(tbl.StringColumn(r.statusColumn(tbl)))
		return func(d *Data) {
			d.QueueMessages = tbl
			d.QueueSummary = summary
		}, len(tbl.Rows), nil

	case ViewExchangeServices:
		services, err := snapshot.DecodeList[snapshot.ServiceStatus](body)
		if err != nil {
			return nil, 0, err
		}
		return func(d *Data) { d.Services = services }, len(services), nil

	case ViewMailStats:
		counters, err := snapshot.DecodeMailCounters(body)
		if err != nil {
			return nil, 0, err
		}
		return func(d *Data) { d.MailStats = counters }, 1, nil

	case ViewQueueStatsChart:
		points, err := charts.DecodeQueuePoints(body)
		if err != nil {
			return nil, 0, fmt.Errorf("decode queue chart: %w", err)
		}
		c := charts.QueueChart(points, loc, r.opts.ChartMaxPoints)
		return func(d *Data) { d.QueueChart = &c }, len(c.Labels), nil

	case ViewMailStatsChart:
		points, err := charts.DecodeMailPoints(body)
		if err != nil {
			return nil, 0, fmt.Errorf("decode mail chart: %w", err)
		}
		c := charts.MailChart(points, loc, r.opts.ChartMaxPoints)
		return func(d *Data) { d.MailChart = &c }, len(c.Labels), nil
	}
	return nil, 0, fmt.Errorf("unknown view %q", v)
}

func (r *Refresher) statusColumn(tbl *snapshot.Table) int {
	if i := tbl.ColumnIndex(r.opts.StatusColumn); i >= 0 {
		return i
	}
	if len(tbl.Columns) > legacyStatusColumn {
		return legacyStatusColumn
	}
	return -1
}

func (r *Refresher) record(ctx context.Context, res CycleResult) {
	if r.opts.Recorder == nil {
		return
	}
	for _, v := range AllViews {
		out, ok := res.Outcomes[v]
		if !ok {
			continue
		}
		run := history.Run{
			CycleID:    res.ID,
			View:       string(v),
			Status:     out.Status,
			Items:      out.Items,
			DurationMS: out.Duration.Milliseconds(),
			RecordedAt: res.StartedAt,
		}
		if out.Err != nil {
			run.Error = out.Err.Error()
		}
		if err := r.opts.Recorder.RecordRun(ctx, run); err != nil {
			slog.Warn("history: record run failed", "cycle", res.ID, "view", v, "err", err)
			return
		}
	}

	if out, ok := res.Outcomes[ViewQueueMessages]; ok && out.Status == history.StatusOK {
		s := r.state.Data().QueueSummary
		sample := history.QueueSample{RecordedAt: res.StartedAt, Total: s.Total, Retry: s.Retry, Failed: s.Failed, Other: s.Other}
		if err := r.opts.Recorder.RecordQueueSummary(ctx, sample); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("history: record queue summary failed", "cycle", res.ID, "err", err)
		}
	}
}
