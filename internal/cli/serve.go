package cli

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpapi "go-mailflow-dashboard/internal/http"
)

func newServeCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the web dashboard and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, o)
		},
	}
}

func runServe(cmd *cobra.Command, o *options) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, runtimeOptions{withHistory: true, withWatcher: true})
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(cfg, httpapi.Deps{
		State:     rt.state,
		Tracker:   rt.tracker,
		Refresher: rt.refresher,
		Hub:       rt.hub,
		History:   rt.history,
		Actions:   httpapi.NewActionsClient(cfg.ActionsEndpoint, cfg.ActionsTimeout),
	})

	go rt.refresher.Run(ctx, cfg.RefreshInterval, rt.tracker, rt.changes)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting dashboard server", "version", o.version, "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		rt.close()
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Shutdown closes the history store.
	return srv.Shutdown(shutdownCtx)
}
