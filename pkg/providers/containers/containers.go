// Package containers reconciles podman containers. Containers are never
// mutated in place: any declaration change removes and recreates the
// container. Autostarted containers additionally get a systemd container
// unit under the user's quadlet directory.
package containers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/fingerprint"
)

// Runner is the subprocess surface this domain needs. Podman runs rootless,
// so plain Run is enough.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ConfigWriter is the adoption write-back surface.
type ConfigWriter interface {
	AddContainer(ct config.Container) error
}

// Domain implements engine.Domain[config.Container].
type Domain struct {
	declared map[string]config.Container
	exec     Runner
	writer   ConfigWriter
	logger   zerolog.Logger

	// unitDir is the quadlet directory, ~/.config/containers/systemd.
	unitDir string
	homeDir string
}

// New builds the containers domain.
func New(cfg *config.Config, exec Runner, writer ConfigWriter, logger zerolog.Logger) (*Domain, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	declared := make(map[string]config.Container, len(cfg.Containers))
	for _, ct := range cfg.Containers {
		declared[ct.Name] = ct
	}
	return &Domain{
		declared: declared,
		exec:     exec,
		writer:   writer,
		logger:   logger.With().Str("component", "containers").Logger(),
		unitDir:  filepath.Join(home, ".config", "containers", "systemd"),
		homeDir:  home,
	}, nil
}

func (d *Domain) Name() string { return "containers" }
func (d *Domain) Kind() string { return "container" }

func (d *Domain) Declared() map[string]config.Container { return d.declared }

func (d *Domain) Validate(key string, ct config.Container) error {
	if ct.Name == "" || ct.Image == "" {
		return fmt.Errorf("container needs both name and image")
	}
	if strings.ContainsAny(ct.Name, " \t\n/") {
		return fmt.Errorf("invalid container name %q", ct.Name)
	}
	if _, err := ParseFlags(ct.RawFlags); err != nil {
		return fmt.Errorf("raw_flags: %w", err)
	}
	return nil
}

// psEntry is the slice element of podman ps --format json.
type psEntry struct {
	Names []string `json:"Names"`
	Image string   `json:"Image"`
}

func (d *Domain) Snapshot(ctx context.Context) (map[string]bool, error) {
	out, err := d.exec.Output(ctx, "podman", "ps", "-a", "--format", "json")
	if err != nil {
		return nil, err
	}

	var entries []psEntry
	if out != "" {
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			return nil, fmt.Errorf("failed to parse podman ps output: %w", err)
		}
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		for _, name := range e.Names {
			present[name] = true
		}
	}
	return present, nil
}

func (d *Domain) Fingerprint(ct config.Container) string {
	return fingerprint.Fields("container", ct.Name, ct.Image, ct.RawFlags,
		fmt.Sprintf("%t", ct.StartAfterCreation), fmt.Sprintf("%t", ct.Autostart))
}

// Converged checks the running container's image against the declaration,
// catching containers recreated out-of-band from a different image.
func (d *Domain) Converged(ctx context.Context, key string, ct config.Container) bool {
	out, err := d.exec.Output(ctx, "podman", "inspect", "--format", "{{.ImageName}}", key)
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == ct.Image
}

// InPlaceUpdatable is always false: podman containers are immutable, the
// only update is a recreate.
func (d *Domain) InPlaceUpdatable(ct config.Container) bool { return false }

// RecreateOverridable is true: --force-recreate and --no-recreate exist for
// containers and only containers.
func (d *Domain) RecreateOverridable() bool { return true }

func (d *Domain) Sweep() bool { return true }

func (d *Domain) Describe(key string, ct config.Container) string {
	return fmt.Sprintf("container %q (image %s)", ct.Name, ct.Image)
}

func (d *Domain) Attributes(ct config.Container) map[string]string {
	return map[string]string{"image": ct.Image}
}

func (d *Domain) Create(ctx context.Context, key string, ct config.Container) error {
	flags, err := ParseFlags(ct.RawFlags)
	if err != nil {
		return err
	}

	if err := d.exec.Run(ctx, "podman", "pull", ct.Image); err != nil {
		return err
	}
	args := append([]string{"create", "--name", ct.Name}, flags.Tokens()...)
	args = append(args, ct.Image)
	if err := d.exec.Run(ctx, "podman", args...); err != nil {
		return err
	}

	if ct.Autostart {
		if ct.StartAfterCreation {
			// Conflict resolved in favor of systemd supervision: starting
			// the container here would race the generated unit.
			d.logger.Warn().Str("container", ct.Name).
				Msg("start_after_creation ignored, autostart owns the lifecycle")
		}
		return d.installUnit(ctx, ct, flags)
	}
	if ct.StartAfterCreation {
		return d.exec.Run(ctx, "podman", "start", ct.Name)
	}
	return nil
}

// Update never runs: InPlaceUpdatable is false, so the engine always takes
// the Remove+Create path.
func (d *Domain) Update(ctx context.Context, key string, ct config.Container) error {
	return fmt.Errorf("containers cannot be updated in place")
}

func (d *Domain) Remove(ctx context.Context, key string) error {
	if err := d.removeUnit(ctx, key); err != nil {
		return err
	}
	return d.exec.Run(ctx, "podman", "rm", "-f", key)
}

func (d *Domain) Adopt(ctx context.Context, key string) (config.Container, error) {
	out, err := d.exec.Output(ctx, "podman", "inspect", "--format", "{{.ImageName}}", key)
	if err != nil {
		return config.Container{}, err
	}
	ct := config.Container{Name: key, Image: strings.TrimSpace(out)}
	if err := d.writer.AddContainer(ct); err != nil {
		return config.Container{}, err
	}
	return ct, nil
}

func (d *Domain) installUnit(ctx context.Context, ct config.Container, flags *FlagSet) error {
	if err := os.MkdirAll(d.unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}
	unit := GenerateUnit(ct.Name, ct.Image, flags, d.homeDir, d.logger)
	path := filepath.Join(d.unitDir, ct.Name+".container")
	if err := os.WriteFile(path, []byte(unit), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}
	if err := d.exec.Run(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return d.exec.Run(ctx, "systemctl", "--user", "start", ct.Name+".service")
}

// removeUnit cleans up the autostart unit if one exists. Missing units are
// normal for containers that never autostarted.
func (d *Domain) removeUnit(ctx context.Context, name string) error {
	path := filepath.Join(d.unitDir, name+".container")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := d.exec.Run(ctx, "systemctl", "--user", "stop", name+".service"); err != nil {
		d.logger.Warn().Err(err).Str("container", name).Msg("Failed to stop unit before removal")
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	return d.exec.Run(ctx, "systemctl", "--user", "daemon-reload")
}
