package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// newControlCmd creates the 'control' subcommand group for the remote kill
// switch.
func newControlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Inspect or flip the scraper kill switch",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the scraper is enabled",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ks := ingest.NewKillSwitch(a.Store, nil, a.Clock, a.Logger)
			enabled, err := ks.Enabled(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("enabled: %v\n", enabled)
			return nil
		},
	})

	var reason string
	enable := &cobra.Command{
		Use:   "enable",
		Short: "Allow scrape runs to start",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setKillSwitch(cmd, true, reason)
		},
	}
	disable := &cobra.Command{
		Use:   "disable",
		Short: "Stop new scrape runs from starting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setKillSwitch(cmd, false, reason)
		},
	}
	for _, c := range []*cobra.Command{enable, disable} {
		c.Flags().StringVar(&reason, "reason", "", "operator note recorded with the change")
	}
	cmd.AddCommand(enable, disable)

	return cmd
}

func setKillSwitch(cmd *cobra.Command, enabled bool, reason string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ks := ingest.NewKillSwitch(a.Store, nil, a.Clock, a.Logger)
	if err := ks.SetEnabled(cmd.Context(), enabled, reason); err != nil {
		return err
	}
	fmt.Printf("enabled: %v\n", enabled)
	return nil
}
