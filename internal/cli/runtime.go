package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go-mailflow-dashboard/internal/config"
	"go-mailflow-dashboard/internal/dashboard"
	"go-mailflow-dashboard/internal/history"
	httpapi "go-mailflow-dashboard/internal/http"
	"go-mailflow-dashboard/internal/snapshot"
)

// runtime is the wired set of long-lived components behind every command.
type runtime struct {
	cfg       config.Config
	state     *dashboard.State
	tracker   *dashboard.Tracker
	hub       *dashboard.Hub
	refresher *dashboard.Refresher
	history   *history.Store
	changes   <-chan string
}

type runtimeOptions struct {
	withHistory bool
	withWatcher bool
}

// newRuntime builds the snapshot source and the refresh engine. The watcher,
// when enabled, runs until ctx is done.
func newRuntime(ctx context.Context, cfg config.Config, ro runtimeOptions) (*runtime, error) {
	src, err := snapshot.NewSource(cfg.SnapshotLocation, cfg.SnapshotTimeout)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		state:   dashboard.NewState(),
		tracker: dashboard.NewTracker(),
		hub:     dashboard.NewHub(),
	}

	opts := dashboard.Options{
		Location:       cfg.Location(),
		StatusColumn:   cfg.QueueStatusColumn,
		ChartMaxPoints: cfg.ChartMaxPoints,
		Hub:            rt.hub,
		OnFetch:        httpapi.RecordSnapshotFetch,
		OnCycle:        httpapi.RecordCycle,
	}

	if ro.withHistory {
		store, err := history.Open(cfg)
		switch {
		case errors.Is(err, history.ErrDisabled):
			slog.Info("history store disabled")
		case err != nil:
			return nil, fmt.Errorf("history store: %w", err)
		default:
			slog.Info("history store enabled", "driver", store.Driver())
			rt.history = store
			opts.Recorder = store
		}
	}

	if dir, ok := src.(*snapshot.DirSource); ok && ro.withWatcher && cfg.SnapshotWatch {
		w, err := snapshot.NewWatcher(dir.Dir(), cfg.SnapshotWatchPattern)
		if err != nil {
			slog.Warn("snapshot watcher disabled", "dir", dir.Dir(), "err", err)
		} else {
			go w.Start(ctx)
			rt.changes = w.Changes()
		}
	}

	rt.refresher = dashboard.NewRefresher(src, rt.state, opts)
	slog.Info("snapshot source ready", "location", cfg.SnapshotLocation, "watch", rt.changes != nil)
	return rt, nil
}

func (rt *runtime) close() {
	if rt.history != nil {
		_ = rt.history.Close()
	}
}
