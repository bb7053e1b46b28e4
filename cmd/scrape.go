package cmd

import (
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/app"
	"github.com/Abishekkhanal/sikkimjobs/internal/extract"
	"github.com/Abishekkhanal/sikkimjobs/internal/extract/headless"
	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
	"github.com/Abishekkhanal/sikkimjobs/internal/pdf"
)

// newScrapeCmd creates the 'scrape' subcommand: one full run, then exit.
// Designed for cron-style invocation; a lock held by another instance or a
// disabled kill switch exits zero so the supervisor does not page anyone.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape of the SPSC advertisement page",
		RunE:  runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := buildPipeline(a)
	err = pipeline.Run(ctx)
	switch {
	case err == nil:
		a.Logger.Info("scrape run finished")
		return nil
	case ingest.CleanExit(err):
		a.Logger.Info("scrape run skipped", zap.String("reason", err.Error()))
		return nil
	default:
		return err
	}
}

// buildPipeline assembles the full ingestion pipeline from the App's shared
// services plus the per-run collaborators.
func buildPipeline(a *app.App) *ingest.Pipeline {
	cfg := a.Config

	extractor := extract.New(extract.Config{
		URL:               cfg.Source.URL,
		UserAgent:         cfg.Source.UserAgent,
		Timeout:           cfg.SourceTimeout(),
		RowSelector:       cfg.Source.RowSelector,
		ContainerSelector: cfg.Source.ContainerSelector,
	}, a.Clock, a.Logger)

	var fallback ingest.Extractor
	if cfg.Source.HeadlessFallback {
		fallback = headless.New(headless.Config{
			URL:         cfg.Source.URL,
			UserAgent:   cfg.Source.UserAgent,
			Timeout:     cfg.SourceTimeout(),
			RowSelector: cfg.Source.RowSelector,
		}, a.Clock, a.Logger)
	}

	docs := pdf.New(&http.Client{Timeout: cfg.SourceTimeout()}, a.Logger)

	return ingest.NewPipeline(
		a.Store,
		extractor,
		fallback,
		docs,
		a.Blobs,
		a.Alerts,
		a.Clock,
		nil,
		ingest.PipelineConfig{
			PolitenessDelay: cfg.PolitenessDelay(),
			LockTTL:         cfg.LockTTL(),
			ExpectedMinJobs: cfg.Source.ExpectedMinJobs,
			BlobPrefix:      cfg.Blob.Prefix,
		},
		a.Logger,
	)
}
