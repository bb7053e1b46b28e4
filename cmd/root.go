// Package cmd defines and implements the CLI commands for the sikkimjobs
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/app"
	"github.com/Abishekkhanal/sikkimjobs/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. A variable so tests can swap in a mock
// factory.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. Application services
// are built in PersistentPreRunE and injected through the context, so every
// subcommand sees the same initialized App.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sikkimjobs",
		Short: "Scheduled scraper for SPSC job postings",
		Long: `sikkimjobs scrapes the Sikkim Public Service Commission advertisement
page on a schedule, parses the attached notification documents, and maintains
a deduplicated store of job postings.`,

		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newScheduleCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newControlCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point. Clean no-op exits (lock held, kill switch
// off) are handled inside the subcommands and return nil; anything that
// reaches here is a real failure and exits nonzero.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger, lerr := zap.NewProduction()
		if lerr == nil {
			logger.Error("command failed", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
