package commands

import (
	"github.com/spf13/cobra"

	"github.com/deskforge/deskforge/pkg/engine"
)

func newApplyCommand() *cobra.Command {
	var (
		forceRecreate bool
		noRecreate    bool
		stateDir      string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile the machine against the configuration",
		Long: `Reconcile every configured domain in order: packages, flatpaks,
services, groups, users, containers, wireguard and dotfiles.

Before the domain loop the hostname is checked; after a successful
loop the configured custom commands run in order. Each action is
confirmed unless --yes or --no preselects the answer.`,
		Example: `  # Interactive apply
  deskforge apply -c config.toml

  # Unattended apply (CI, kickstart)
  deskforge apply -c config.toml --yes

  # Rebuild every container regardless of drift
  deskforge apply --force-recreate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			recreate := engine.RecreateAuto
			switch {
			case forceRecreate && noRecreate:
				return engine.NewConfigError("--force-recreate and --no-recreate are mutually exclusive", nil)
			case forceRecreate:
				recreate = engine.RecreateAlways
			case noRecreate:
				recreate = engine.RecreateNever
			}

			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, stateDir, recreate)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.steps.EnsureHostname(ctx, rt.cfg.System.Hostname, rt.policy); err != nil {
				return err
			}

			result, err := rt.engine.Run(ctx)
			if result != nil {
				printResult(result, false)
			}
			if err != nil {
				return err
			}

			return rt.steps.RunCommands(ctx, rt.cfg.CustomCommands)
		},
	}

	cmd.Flags().BoolVar(&forceRecreate, "force-recreate", false, "recreate every present resource")
	cmd.Flags().BoolVar(&noRecreate, "no-recreate", false, "never recreate, only create missing resources")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "override the managed-record directory")

	return cmd
}
