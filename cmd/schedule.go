package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/api"
	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
	"github.com/Abishekkhanal/sikkimjobs/internal/scheduler"
)

// newScheduleCmd creates the 'schedule' subcommand: run the scraper on a
// cron schedule with the ops HTTP server alongside, until terminated.
func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the scraper on a schedule with the ops server",
		RunE:  runScheduleCommand,
	}
}

func runScheduleCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := buildPipeline(a)
	sched := scheduler.New(a.Config.Schedule.Spec, pipeline.Run, a.Logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	killSwitch := ingest.NewKillSwitch(a.Store, a.Alerts, a.Clock, a.Logger)
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: api.NewServer(
			ingest.NewRunRepo(a.Store),
			killSwitch,
			a.Clock,
			a.Config.MaxRunAge(),
			a.Logger,
		).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("ops server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("ops server shutdown failed", zap.Error(err))
	}
	return nil
}
