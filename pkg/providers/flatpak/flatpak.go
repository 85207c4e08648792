// Package flatpak reconciles Flatpak applications by ID.
package flatpak

import (
	"context"
	"fmt"
	"strings"

	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/fingerprint"
)

// Runner is the subprocess surface this domain needs. Flatpak runs
// unprivileged for --user scoped installs, so plain Run is enough.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ConfigWriter is the adoption write-back surface.
type ConfigWriter interface {
	AddFlatpak(appID string) error
}

// App is the declared descriptor: an application ID, installed from the
// configured remote.
type App struct {
	ID     string
	Remote string
}

// Domain implements engine.Domain[App].
type Domain struct {
	remote    string
	remoteURL string
	declared  map[string]App
	exec      Runner
	writer    ConfigWriter

	remoteChecked bool
}

// New builds the flatpak domain.
func New(cfg *config.Config, exec Runner, writer ConfigWriter) *Domain {
	declared := make(map[string]App, len(cfg.Flatpak.Applications))
	for _, id := range cfg.Flatpak.Applications {
		declared[id] = App{ID: id, Remote: cfg.Flatpak.Remote}
	}
	return &Domain{
		remote:    cfg.Flatpak.Remote,
		remoteURL: cfg.Flatpak.RemoteURL,
		declared:  declared,
		exec:      exec,
		writer:    writer,
	}
}

func (d *Domain) Name() string { return "flatpak" }
func (d *Domain) Kind() string { return "flatpak application" }

func (d *Domain) Declared() map[string]App { return d.declared }

func (d *Domain) Validate(key string, a App) error {
	// Application IDs are reverse-DNS with at least three segments.
	if strings.Count(a.ID, ".") < 2 {
		return fmt.Errorf("invalid application ID %q", a.ID)
	}
	if strings.ContainsAny(a.ID, " \t\n") {
		return fmt.Errorf("invalid application ID %q", a.ID)
	}
	return nil
}

// Snapshot lists installed application IDs.
func (d *Domain) Snapshot(ctx context.Context) (map[string]bool, error) {
	out, err := d.exec.Output(ctx, "flatpak", "list", "--app", "--columns=application")
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		id := strings.TrimSpace(line)
		if id != "" && id != "Application ID" {
			present[id] = true
		}
	}
	return present, nil
}

func (d *Domain) Fingerprint(a App) string {
	return fingerprint.Fields("flatpak", a.ID, a.Remote)
}

func (d *Domain) Converged(ctx context.Context, key string, a App) bool { return true }

func (d *Domain) InPlaceUpdatable(a App) bool { return true }

func (d *Domain) RecreateOverridable() bool { return false }

func (d *Domain) Sweep() bool { return true }

func (d *Domain) Describe(key string, a App) string {
	return fmt.Sprintf("flatpak application %q", a.ID)
}

func (d *Domain) Attributes(a App) map[string]string {
	return map[string]string{"remote": a.Remote}
}

func (d *Domain) Create(ctx context.Context, key string, a App) error {
	if err := d.ensureRemote(ctx); err != nil {
		return err
	}
	return d.exec.Run(ctx, "flatpak", "install", "-y", a.Remote, a.ID)
}

func (d *Domain) Update(ctx context.Context, key string, a App) error {
	return d.Create(ctx, key, a)
}

func (d *Domain) Remove(ctx context.Context, key string) error {
	return d.exec.Run(ctx, "flatpak", "uninstall", "-y", key)
}

func (d *Domain) Adopt(ctx context.Context, key string) (App, error) {
	if err := d.writer.AddFlatpak(key); err != nil {
		return App{}, err
	}
	return App{ID: key, Remote: d.remote}, nil
}

// ensureRemote adds the configured remote once per run if it is missing.
func (d *Domain) ensureRemote(ctx context.Context) error {
	if d.remoteChecked {
		return nil
	}
	out, err := d.exec.Output(ctx, "flatpak", "remotes", "--columns=name")
	if err != nil {
		return err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == d.remote {
			d.remoteChecked = true
			return nil
		}
	}
	if d.remoteURL == "" {
		return fmt.Errorf("remote %q is not configured and no remote_url is set", d.remote)
	}
	if err := d.exec.Run(ctx, "flatpak", "remote-add", "--if-not-exists", d.remote, d.remoteURL); err != nil {
		return err
	}
	d.remoteChecked = true
	return nil
}
