package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/deskforge/deskforge/pkg/engine"
)

// debounce coalesces editor write bursts into one re-plan.
const debounce = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-plan whenever the configuration changes",
		Long: `Watch the configuration file and print a fresh plan on every change.
Nothing is applied. When metrics are enabled in the telemetry section,
the Prometheus endpoint is served for the lifetime of the watch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, stateDir, engine.RecreateAuto)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			go func() {
				if err := rt.metrics.Serve(); err != nil {
					rt.logger.WithError(err).Warn("Metrics endpoint stopped")
				}
			}()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			// Watch the directory, not the file: editors replace the file on
			// save and the inode-level watch would go stale.
			absConf, err := filepath.Abs(configPath)
			if err != nil {
				return err
			}
			if err := watcher.Add(filepath.Dir(absConf)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absConf), err)
			}

			plan := func(rt *runtime) {
				result, err := rt.engine.Plan(ctx)
				if result != nil {
					printResult(result, true)
				}
				if err != nil {
					rt.logger.WithError(err).Error("Plan failed")
				}
			}

			fmt.Printf("Watching %s\n", absConf)
			plan(rt)

			var timer *time.Timer
			fire := make(chan struct{}, 1)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Name != absConf {
						continue
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, func() {
						select {
						case fire <- struct{}{}:
						default:
						}
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					rt.logger.WithError(err).Warn("Watcher error")
				case <-fire:
					fmt.Printf("\n%s changed, re-planning\n", absConf)
					// Reload the whole runtime so config edits take effect.
					fresh, err := buildRuntime(ctx, stateDir, engine.RecreateAuto)
					if err != nil {
						rt.logger.WithError(err).Error("Config reload failed")
						continue
					}
					plan(fresh)
					fresh.Close(ctx)
				}
			}
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "override the managed-record directory")

	return cmd
}
