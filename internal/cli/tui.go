package cli

import (
	"context"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"go-mailflow-dashboard/internal/logging"
	"go-mailflow-dashboard/internal/tui"
)

func newTUICommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse journeys, SMTP sessions and the queue in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, o)
		},
	}
}

func runTUI(cmd *cobra.Command, o *options) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	// Log lines would tear the alt screen.
	slog.SetDefault(logging.New(io.Discard, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel)))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := newRuntime(ctx, cfg, runtimeOptions{withHistory: true, withWatcher: true})
	if err != nil {
		return err
	}
	defer rt.close()

	// The first cycle completes before the UI opens so it starts populated.
	rt.refresher.Cycle(ctx, rt.tracker.Current())
	notices, unsubscribe := rt.hub.Subscribe()
	defer unsubscribe()
	go rt.refresher.Run(ctx, cfg.RefreshInterval, rt.tracker, rt.changes)

	m := tui.New(rt.state, rt.tracker, rt.refresher, notices, cfg.Location())
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
