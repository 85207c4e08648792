// Package packages reconciles the system package set through dnf or apt.
// The snapshot is the manually-installed set, not every package on the
// system: dependency closure packages must never surface as undeclared.
package packages

import (
	"context"
	"fmt"
	"strings"

	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/fingerprint"
)

// Runner is the subprocess surface this domain needs.
type Runner interface {
	Sudo(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ConfigWriter is the adoption write-back surface.
type ConfigWriter interface {
	AddPackage(name string) error
}

// Package is the declared descriptor. Presence is the only managed
// attribute.
type Package struct {
	Name string
}

// Domain implements engine.Domain[Package].
type Domain struct {
	distro   string
	declared map[string]Package
	exec     Runner
	writer   ConfigWriter
}

// New builds the package domain for the configured distro.
func New(cfg *config.Config, exec Runner, writer ConfigWriter) *Domain {
	declared := make(map[string]Package, len(cfg.System.Packages))
	for _, name := range cfg.System.Packages {
		declared[name] = Package{Name: name}
	}
	return &Domain{
		distro:   cfg.Distro,
		declared: declared,
		exec:     exec,
		writer:   writer,
	}
}

func (d *Domain) Name() string { return "packages" }
func (d *Domain) Kind() string { return "package" }

func (d *Domain) Declared() map[string]Package { return d.declared }

func (d *Domain) Validate(key string, p Package) error {
	if p.Name == "" {
		return fmt.Errorf("package name is empty")
	}
	if strings.ContainsAny(p.Name, " \t\n") || strings.HasPrefix(p.Name, "-") {
		return fmt.Errorf("invalid package name %q", p.Name)
	}
	return nil
}

// Snapshot returns the manually-installed package set.
func (d *Domain) Snapshot(ctx context.Context) (map[string]bool, error) {
	var out string
	var err error
	switch d.distro {
	case "debian":
		out, err = d.exec.Output(ctx, "apt-mark", "showmanual")
	default:
		out, err = d.exec.Output(ctx, "dnf", "repoquery", "--userinstalled", "--qf", "%{name}\n")
	}
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name != "" {
			present[name] = true
		}
	}
	return present, nil
}

func (d *Domain) Fingerprint(p Package) string {
	return fingerprint.Fields("package", p.Name)
}

// Converged is trivially true: presence is the whole contract, and presence
// was already established by the snapshot.
func (d *Domain) Converged(ctx context.Context, key string, p Package) bool {
	return true
}

func (d *Domain) InPlaceUpdatable(p Package) bool { return true }

func (d *Domain) RecreateOverridable() bool { return false }

func (d *Domain) Sweep() bool { return true }

func (d *Domain) Describe(key string, p Package) string {
	return fmt.Sprintf("package %q", p.Name)
}

func (d *Domain) Attributes(p Package) map[string]string { return nil }

func (d *Domain) Create(ctx context.Context, key string, p Package) error {
	return d.install(ctx, p.Name)
}

// Update re-runs the install: the package manager treats an installed
// package as a no-op and also marks a dependency as manually installed,
// which is exactly what taking an unmanaged package under management means.
func (d *Domain) Update(ctx context.Context, key string, p Package) error {
	return d.install(ctx, p.Name)
}

func (d *Domain) Remove(ctx context.Context, key string) error {
	switch d.distro {
	case "debian":
		return d.exec.Sudo(ctx, "apt-get", "remove", "-y", key)
	default:
		return d.exec.Sudo(ctx, "dnf", "remove", "-y", key)
	}
}

func (d *Domain) Adopt(ctx context.Context, key string) (Package, error) {
	if err := d.writer.AddPackage(key); err != nil {
		return Package{}, err
	}
	return Package{Name: key}, nil
}

func (d *Domain) install(ctx context.Context, name string) error {
	switch d.distro {
	case "debian":
		return d.exec.Sudo(ctx, "apt-get", "install", "-y", name)
	default:
		return d.exec.Sudo(ctx, "dnf", "install", "-y", "--skip-unavailable", name)
	}
}
