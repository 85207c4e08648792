package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskforge/deskforge/pkg/engine"
)

// domainNames is the fixed reconciliation order, reused for display.
var domainNames = []string{
	"packages", "flatpak", "services", "groups", "users",
	"containers", "vpn", "dotfiles",
}

func newStatusCommand() *cobra.Command {
	var (
		stateDir string
		runs     int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show managed resources and recent runs",
		Long: `List every resource deskforge manages, per domain, with the time of
its last successful apply, followed by the most recent journaled runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, stateDir, engine.RecreateAuto)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			for _, domain := range domainNames {
				records := rt.store.Load(domain)
				if len(records) == 0 {
					continue
				}
				fmt.Printf("%s (%d managed)\n", domain, len(records))
				for key, rec := range records {
					fmt.Printf("  %-40s last applied %s\n",
						key, rec.LastUpdated.Local().Format(time.RFC3339))
				}
			}

			if rt.journal == nil {
				return nil
			}
			recent, err := rt.journal.RecentRuns(ctx, runs)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				return nil
			}
			fmt.Println("\nRecent runs")
			for _, run := range recent {
				fmt.Printf("  %s  %-9s  %-11s  %s\n",
					run.StartedAt.Local().Format(time.RFC3339), run.Status, run.Mode, run.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "override the managed-record directory")
	cmd.Flags().IntVar(&runs, "runs", 10, "number of recent runs to show")

	return cmd
}
