package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deskforge/deskforge/pkg/cmdexec"
	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/engine"
	"github.com/deskforge/deskforge/pkg/journal"
	"github.com/deskforge/deskforge/pkg/providers/accounts"
	"github.com/deskforge/deskforge/pkg/providers/containers"
	"github.com/deskforge/deskforge/pkg/providers/dotfiles"
	"github.com/deskforge/deskforge/pkg/providers/flatpak"
	"github.com/deskforge/deskforge/pkg/providers/packages"
	"github.com/deskforge/deskforge/pkg/providers/services"
	"github.com/deskforge/deskforge/pkg/providers/system"
	"github.com/deskforge/deskforge/pkg/providers/vpn"
	"github.com/deskforge/deskforge/pkg/state"
	"github.com/deskforge/deskforge/pkg/telemetry"
)

// runtime bundles everything a command needs after wiring: the engine, the
// one-shot steps around it and the observability collaborators that need a
// shutdown.
type runtime struct {
	cfg     *config.Config
	baseDir string

	engine  *engine.Engine
	policy  *engine.Policy
	steps   *system.Steps
	store   *state.Store
	journal *journal.Store

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// Close releases the journal and flushes pending trace exports.
func (rt *runtime) Close(ctx context.Context) {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.WithError(err).Warn("Failed to close journal")
		}
	}
	if err := rt.tracer.Shutdown(ctx); err != nil {
		rt.logger.WithError(err).Warn("Failed to shut down tracer")
	}
}

// buildRuntime wires the full stack for one command invocation: telemetry,
// configuration, state, journal, confirmation policy and the ordered domain
// list. Domain order is fixed: groups before users (membership), packages
// before containers (podman itself is a package).
func buildRuntime(ctx context.Context, stateDirFlag string, recreate engine.RecreateOverride) (*runtime, error) {
	telCfg := telemetry.DefaultConfig()
	if verbose {
		telCfg.Logging.Level = "debug"
	}
	logger, err := telemetry.NewLogger(telCfg.Logging)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath, logger.Zerolog())
	if err != nil {
		return nil, err
	}

	// The config may carry its own telemetry section; rebuild on top of it.
	if cfg.Telemetry != nil {
		telCfg = cfg.Telemetry
		if verbose {
			telCfg.Logging.Level = "debug"
		}
		if logger, err = telemetry.NewLogger(telCfg.Logging); err != nil {
			return nil, err
		}
	}
	metrics, err := telemetry.NewMetrics(telCfg.Metrics)
	if err != nil {
		return nil, err
	}
	tracer, err := telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, telCfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	absConf, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	baseDir := filepath.Dir(absConf)

	stateDir := stateDirFlag
	if stateDir == "" {
		stateDir = cfg.Engine.StateDir
	}
	if stateDir == "" {
		if stateDir, err = state.DefaultDir(); err != nil {
			return nil, err
		}
	}
	store, err := state.NewStore(stateDir, logger.Zerolog())
	if err != nil {
		return nil, err
	}

	var jnl *journal.Store
	if !cfg.Journal.Disabled {
		path := cfg.Journal.Path
		if path == "" {
			path = filepath.Join(stateDir, "journal.db")
		}
		if jnl, err = journal.Open(ctx, path); err != nil {
			return nil, err
		}
	}

	policy, err := engine.NewPolicy(assumeYes, assumeNo, os.Stdin, os.Stdout, logger.Zerolog())
	if err != nil {
		return nil, err
	}

	exec := cmdexec.NewRunner(logger.Zerolog())
	writer := config.NewWriter(absConf, logger.Zerolog())

	containersDom, err := containers.New(cfg, exec, writer, logger.Zerolog())
	if err != nil {
		return nil, err
	}
	dotfilesDom, err := dotfiles.New(cfg, baseDir, logger.Zerolog())
	if err != nil {
		return nil, err
	}

	domains := []engine.DomainRunner{
		engine.NewRunner(packages.New(cfg, exec, writer)),
		engine.NewRunner(flatpak.New(cfg, exec, writer)),
		engine.NewRunner(services.New(cfg, exec, writer, logger.Zerolog())),
		engine.NewRunner(accounts.NewGroups(cfg, accounts.DefaultPaths(), exec, writer)),
		engine.NewRunner(accounts.NewUsers(cfg, accounts.DefaultPaths(), exec, writer)),
		engine.NewRunner(containersDom),
		engine.NewRunner(vpn.New(cfg, baseDir, exec, logger.Zerolog())),
		engine.NewRunner(dotfilesDom),
	}

	deps := &engine.Deps{Logger: logger, Metrics: metrics, Tracer: tracer}
	if jnl != nil {
		deps.Journal = jnl
	}

	eng, err := engine.New(engine.Options{
		Domains:  domains,
		Store:    store,
		Policy:   policy,
		Deps:     deps,
		Recreate: recreate,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		baseDir: baseDir,
		engine:  eng,
		policy:  policy,
		steps:   system.NewSteps(exec, logger.Zerolog()),
		store:   store,
		journal: jnl,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// timeRound keeps printed durations readable.
const timeRound = time.Millisecond

// printResult renders the per-domain outcome of a run or plan.
func printResult(result *engine.RunResult, planOnly bool) {
	for _, dr := range result.Domains {
		if dr.SnapshotFailed {
			fmt.Printf("%-12s snapshot failed, skipped\n", dr.Domain)
			continue
		}
		changes := 0
		for _, dec := range dr.Decisions {
			if dec.Action == engine.ActionSkip {
				continue
			}
			changes++
			fmt.Printf("%-12s %-9s %s (%s)\n", dr.Domain, dec.Action, dec.Key, dec.Reason)
		}
		if changes == 0 {
			fmt.Printf("%-12s up to date\n", dr.Domain)
		}
		if dr.Invalid > 0 {
			fmt.Printf("%-12s %d invalid declaration(s) skipped\n", dr.Domain, dr.Invalid)
		}
	}
	if planOnly {
		fmt.Printf("\nPlan finished: %s (%s)\n", result.Status, result.Duration.Round(timeRound))
		return
	}
	applied, declined := 0, 0
	for _, dr := range result.Domains {
		applied += dr.Applied
		declined += dr.Declined
	}
	fmt.Printf("\nRun %s: %s, %d applied, %d declined (%s)\n",
		result.RunID, result.Status, applied, declined, result.Duration.Round(timeRound))
}
