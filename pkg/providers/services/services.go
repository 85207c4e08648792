// Package services reconciles systemd units in system and user scope.
// Enabled and Started are managed independently; a nil attribute is left
// exactly as the administrator set it.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/fingerprint"
)

// Runner is the subprocess surface this domain needs.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Sudo(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ConfigWriter is the adoption write-back surface. Services never sweep, so
// it is only exercised through explicit adoption flows in future config
// tooling, but the domain carries it for symmetry with the other providers.
type ConfigWriter interface {
	AddService(svc config.Service) error
}

// Domain implements engine.Domain[config.Service].
type Domain struct {
	declared map[string]config.Service
	exec     Runner
	writer   ConfigWriter
	logger   zerolog.Logger

	// scopes remembers which listing each live unit came from, so removing
	// a unit that is no longer declared still targets the right scope.
	scopes map[string]string
}

// New builds the services domain.
func New(cfg *config.Config, exec Runner, writer ConfigWriter, logger zerolog.Logger) *Domain {
	declared := make(map[string]config.Service, len(cfg.Services))
	for _, svc := range cfg.Services {
		declared[svc.Name] = svc
	}
	return &Domain{
		declared: declared,
		exec:     exec,
		writer:   writer,
		logger:   logger.With().Str("component", "services").Logger(),
	}
}

func (d *Domain) Name() string { return "services" }
func (d *Domain) Kind() string { return "service" }

func (d *Domain) Declared() map[string]config.Service { return d.declared }

func (d *Domain) Validate(key string, svc config.Service) error {
	if svc.Name == "" {
		return fmt.Errorf("service name is empty")
	}
	if strings.ContainsAny(svc.Name, " \t\n/") {
		return fmt.Errorf("invalid service name %q", svc.Name)
	}
	if svc.Enabled == nil && svc.Started == nil {
		return fmt.Errorf("service %q manages neither enabled nor started", svc.Name)
	}
	return nil
}

// Snapshot lists unit files in both scopes. A missing user session makes
// the user listing fail; that only degrades user-scoped services, so it is
// logged and ignored rather than failing the whole domain.
func (d *Domain) Snapshot(ctx context.Context) (map[string]bool, error) {
	present := make(map[string]bool)
	d.scopes = make(map[string]string)

	out, err := d.exec.Output(ctx, "systemctl", "list-unit-files", "--type=service", "--no-legend", "--plain")
	if err != nil {
		return nil, err
	}
	d.addUnits(present, out, "system")

	userOut, err := d.exec.Output(ctx, "systemctl", "--user", "list-unit-files", "--type=service", "--no-legend", "--plain")
	if err != nil {
		d.logger.Warn().Err(err).Msg("User-scope unit listing unavailable")
	} else {
		// The user listing runs second, so a unit shadowed in both scopes
		// resolves to user scope and never gets a sudo disable.
		d.addUnits(present, userOut, "user")
	}
	return present, nil
}

func (d *Domain) addUnits(present map[string]bool, listing, scope string) {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := strings.TrimSuffix(fields[0], ".service")
		if name != "" {
			present[name] = true
			d.scopes[name] = scope
		}
	}
}

// Fingerprint covers only the managed attributes: a nil Enabled or Started
// stays out of the hash, so omitting it in configuration never triggers a
// spurious update.
func (d *Domain) Fingerprint(svc config.Service) string {
	return fingerprint.Fields("service", svc.Name, svc.Scope,
		optionalBool(svc.Enabled), optionalBool(svc.Started))
}

func optionalBool(b *bool) string {
	if b == nil {
		return "unmanaged"
	}
	return fmt.Sprintf("%t", *b)
}

// Converged queries the live enabled/active state for the managed
// attributes.
func (d *Domain) Converged(ctx context.Context, key string, svc config.Service) bool {
	if svc.Enabled != nil {
		_, err := d.exec.Output(ctx, "systemctl", d.scoped(svc, "is-enabled", key)...)
		if (err == nil) != *svc.Enabled {
			return false
		}
	}
	if svc.Started != nil {
		_, err := d.exec.Output(ctx, "systemctl", d.scoped(svc, "is-active", key)...)
		if (err == nil) != *svc.Started {
			return false
		}
	}
	return true
}

func (d *Domain) InPlaceUpdatable(svc config.Service) bool { return true }

func (d *Domain) RecreateOverridable() bool { return false }

// Sweep is off: the live unit set is the whole distribution's, and stock
// units must never prompt.
func (d *Domain) Sweep() bool { return false }

func (d *Domain) Describe(key string, svc config.Service) string {
	parts := []string{}
	if svc.Enabled != nil {
		parts = append(parts, "enabled="+fmt.Sprintf("%t", *svc.Enabled))
	}
	if svc.Started != nil {
		parts = append(parts, "started="+fmt.Sprintf("%t", *svc.Started))
	}
	return fmt.Sprintf("%s service %q (%s)", svc.Scope, svc.Name, strings.Join(parts, ", "))
}

func (d *Domain) Attributes(svc config.Service) map[string]string {
	return map[string]string{"scope": svc.Scope}
}

// Create applies the declared unit state. The unit file itself ships with
// its package; if it does not exist systemctl fails and the error carries
// that fact.
func (d *Domain) Create(ctx context.Context, key string, svc config.Service) error {
	return d.Update(ctx, key, svc)
}

func (d *Domain) Update(ctx context.Context, key string, svc config.Service) error {
	if svc.Enabled != nil {
		verb := "enable"
		if !*svc.Enabled {
			verb = "disable"
		}
		if err := d.systemctl(ctx, svc, verb, key); err != nil {
			return err
		}
	}
	if svc.Started != nil {
		verb := "start"
		if !*svc.Started {
			verb = "stop"
		}
		if err := d.systemctl(ctx, svc, verb, key); err != nil {
			return err
		}
	}
	return nil
}

// Remove releases a service from management by disabling and stopping it.
// The declaration names the scope when one exists; a unit dropped from the
// configuration falls back to the scope the snapshot saw it in.
func (d *Domain) Remove(ctx context.Context, key string) error {
	svc := config.Service{Name: key, Scope: "system"}
	if scope, ok := d.scopes[key]; ok {
		svc.Scope = scope
	}
	if declared, ok := d.declared[key]; ok {
		svc = declared
	}
	if err := d.systemctl(ctx, svc, "disable", key); err != nil {
		return err
	}
	return d.systemctl(ctx, svc, "stop", key)
}

func (d *Domain) Adopt(ctx context.Context, key string) (config.Service, error) {
	enabled := true
	svc := config.Service{Name: key, Scope: "system", Enabled: &enabled}
	if err := d.writer.AddService(svc); err != nil {
		return config.Service{}, err
	}
	return svc, nil
}

func (d *Domain) systemctl(ctx context.Context, svc config.Service, verb, unit string) error {
	args := d.scoped(svc, verb, unit)
	if svc.Scope == "user" {
		return d.exec.Run(ctx, "systemctl", args...)
	}
	return d.exec.Sudo(ctx, "systemctl", args...)
}

func (d *Domain) scoped(svc config.Service, verb, unit string) []string {
	if svc.Scope == "user" {
		return []string{"--user", verb, unit}
	}
	return []string{verb, unit}
}
