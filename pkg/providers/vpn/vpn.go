// Package vpn reconciles WireGuard profiles through NetworkManager.
// Profiles are keyed by interface name, taken from the conf file stem, and
// fingerprinted by conf file content: editing the file triggers a delete and
// re-import, since nmcli cannot re-read a conf into an existing connection.
package vpn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/fingerprint"
)

// Runner is the subprocess surface this domain needs.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// Domain implements engine.Domain[config.WireGuard].
type Domain struct {
	declared map[string]config.WireGuard
	exec     Runner
	logger   zerolog.Logger
}

// New builds the vpn domain. Conf paths are resolved relative to baseDir,
// the directory holding the configuration file.
func New(cfg *config.Config, baseDir string, exec Runner, logger zerolog.Logger) *Domain {
	declared := make(map[string]config.WireGuard, len(cfg.WireGuard))
	for _, wg := range cfg.WireGuard {
		resolved := wg
		if !filepath.IsAbs(resolved.ConfPath) {
			resolved.ConfPath = filepath.Join(baseDir, resolved.ConfPath)
		}
		declared[InterfaceName(resolved.ConfPath)] = resolved
	}
	return &Domain{
		declared: declared,
		exec:     exec,
		logger:   logger.With().Str("component", "vpn").Logger(),
	}
}

// InterfaceName derives the WireGuard interface name from a conf path:
// /etc/wireguard/wg0.conf manages interface wg0.
func InterfaceName(confPath string) string {
	base := filepath.Base(confPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (d *Domain) Name() string { return "vpn" }
func (d *Domain) Kind() string { return "wireguard connection" }

func (d *Domain) Declared() map[string]config.WireGuard { return d.declared }

func (d *Domain) Validate(key string, wg config.WireGuard) error {
	// Kernel interface names are capped at 15 bytes.
	if key == "" || len(key) > 15 {
		return fmt.Errorf("invalid interface name %q derived from %s", key, wg.ConfPath)
	}
	if _, err := os.Stat(wg.ConfPath); err != nil {
		return fmt.Errorf("conf file: %w", err)
	}
	return nil
}

// Snapshot lists NetworkManager connection names. Terse output is one name
// per line.
func (d *Domain) Snapshot(ctx context.Context) (map[string]bool, error) {
	out, err := d.exec.Output(ctx, "nmcli", "-t", "-f", "NAME", "connection", "show")
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			present[name] = true
		}
	}
	return present, nil
}

func (d *Domain) Fingerprint(wg config.WireGuard) string {
	fp, err := fingerprint.File(wg.ConfPath)
	if err != nil {
		// Validate runs first on the reconcile path, so this only happens
		// when the file disappears mid-run. The sentinel differs from any
		// content hash and forces a re-import next run.
		return "unreadable:" + wg.ConfPath
	}
	return fingerprint.Fields("wireguard", fp, fmt.Sprintf("%t", wg.AutoConnect))
}

// Converged trusts the fingerprint comparison: NetworkManager offers no way
// to read back the imported conf for a content check.
func (d *Domain) Converged(ctx context.Context, key string, wg config.WireGuard) bool {
	return true
}

// InPlaceUpdatable is always false: a changed conf means delete + re-import.
func (d *Domain) InPlaceUpdatable(wg config.WireGuard) bool { return false }

func (d *Domain) RecreateOverridable() bool { return false }

// Sweep is off: NetworkManager holds every wifi and ethernet profile on the
// machine, none of which are this tool's business.
func (d *Domain) Sweep() bool { return false }

func (d *Domain) Describe(key string, wg config.WireGuard) string {
	return fmt.Sprintf("wireguard connection %q (%s)", key, wg.ConfPath)
}

func (d *Domain) Attributes(wg config.WireGuard) map[string]string {
	return map[string]string{"conf_path": wg.ConfPath}
}

func (d *Domain) Create(ctx context.Context, key string, wg config.WireGuard) error {
	if err := d.exec.Run(ctx, "nmcli", "connection", "import", "type", "wireguard", "file", wg.ConfPath); err != nil {
		return err
	}
	autoconnect := "no"
	if wg.AutoConnect {
		autoconnect = "yes"
	}
	if err := d.exec.Run(ctx, "nmcli", "connection", "modify", key, "connection.autoconnect", autoconnect); err != nil {
		return err
	}
	if wg.AutoConnect {
		return d.exec.Run(ctx, "nmcli", "connection", "up", key)
	}
	return nil
}

func (d *Domain) Update(ctx context.Context, key string, wg config.WireGuard) error {
	return fmt.Errorf("wireguard connections cannot be updated in place")
}

func (d *Domain) Remove(ctx context.Context, key string) error {
	return d.exec.Run(ctx, "nmcli", "connection", "delete", key)
}

// Adopt never runs with Sweep off.
func (d *Domain) Adopt(ctx context.Context, key string) (config.WireGuard, error) {
	return config.WireGuard{}, fmt.Errorf("wireguard connections cannot be adopted")
}
