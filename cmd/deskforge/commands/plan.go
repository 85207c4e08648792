package commands

import (
	"github.com/spf13/cobra"

	"github.com/deskforge/deskforge/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would do, without changing anything",
		Long: `Classify every configured resource against the live system and the
managed records, printing the resulting actions. Nothing is mutated
and nothing is prompted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, stateDir, engine.RecreateAuto)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			result, err := rt.engine.Plan(ctx)
			if result != nil {
				printResult(result, true)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "override the managed-record directory")

	return cmd
}
