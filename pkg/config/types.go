// Package config loads, validates and rewrites the declarative TOML
// configuration. Optional descriptor fields are pointers: nil means "do not
// manage this attribute", and unmanaged attributes stay out of resource
// fingerprints.
package config

import (
	"github.com/deskforge/deskforge/pkg/telemetry"
)

// Config is the full declarative description of one machine.
type Config struct {
	// Distro selects the package manager family. Checked against
	// /etc/os-release at load time; a mismatch warns but does not abort.
	Distro string `toml:"distro" validate:"required,oneof=fedora debian"`

	System   SystemConfig  `toml:"system"`
	Flatpak  FlatpakConfig `toml:"flatpak"`
	Services []Service     `toml:"service"`
	Groups   []Group       `toml:"group"`
	Users    []User        `toml:"user"`

	Containers []Container    `toml:"container"`
	WireGuard  []WireGuard    `toml:"wireguard"`
	Dotfiles   DotfilesConfig `toml:"dotfiles"`

	// CustomCommands run as a post-step after reconciliation, in order,
	// aborting on the first failure.
	CustomCommands []string `toml:"custom_commands"`

	Engine    EngineConfig      `toml:"engine"`
	Journal   JournalConfig     `toml:"journal"`
	Telemetry *telemetry.Config `toml:"telemetry,omitempty"`
}

// SystemConfig holds host-level settings and the system package list.
type SystemConfig struct {
	// Hostname, when set, is compared to the live hostname before
	// reconciliation and set via hostnamectl on mismatch.
	Hostname string `toml:"hostname" validate:"omitempty,hostname_rfc1123"`

	// Packages is the declared system package set. Presence is the only
	// managed attribute.
	Packages []string `toml:"packages" validate:"dive,required"`
}

// FlatpakConfig declares Flatpak applications by ID.
type FlatpakConfig struct {
	// Remote is ensured before the first install. Defaults to flathub.
	Remote string `toml:"remote"`

	// RemoteURL is the repo location used when the remote has to be added.
	RemoteURL string `toml:"remote_url" validate:"omitempty,url"`

	Applications []string `toml:"applications" validate:"dive,required"`
}

// Service declares a systemd unit. Enabled and Started are optional:
// nil leaves that attribute unmanaged.
type Service struct {
	Name    string `toml:"name" validate:"required"`
	Enabled *bool  `toml:"enabled,omitempty"`
	Started *bool  `toml:"started,omitempty"`

	// Scope is "system" or "user" (systemctl --user).
	Scope string `toml:"scope" validate:"omitempty,oneof=system user"`
}

// Container declares a podman container.
type Container struct {
	Name  string `toml:"name" validate:"required"`
	Image string `toml:"image" validate:"required"`

	// RawFlags is the free-form flag string passed to podman create, and
	// the source for the autostart unit translation.
	RawFlags string `toml:"raw_flags"`

	// StartAfterCreation starts the container immediately after creation.
	// Ignored with a warning when Autostart is also set: systemd owns the
	// lifecycle then.
	StartAfterCreation bool `toml:"start_after_creation"`

	// Autostart generates a systemd container unit so the container is
	// supervised and started at login.
	Autostart bool `toml:"autostart"`
}

// Group declares a system group. Optional fields are unmanaged when nil.
type Group struct {
	Name    string   `toml:"name" validate:"required"`
	GID     *int     `toml:"gid,omitempty"`
	Members []string `toml:"members" validate:"dive,required"`
	System  bool     `toml:"system"`
}

// User declares a user account. Optional fields are unmanaged when nil.
type User struct {
	Name       string   `toml:"name" validate:"required"`
	UID        *int     `toml:"uid,omitempty"`
	GID        *int     `toml:"gid,omitempty"`
	Groups     []string `toml:"groups" validate:"dive,required"`
	Home       string   `toml:"home"`
	Shell      string   `toml:"shell"`
	Comment    string   `toml:"comment"`
	CreateHome *bool    `toml:"create_home,omitempty"`
	System     bool     `toml:"system"`
}

// WireGuard declares one VPN profile, keyed by the conf file stem (the
// interface name).
type WireGuard struct {
	ConfPath string `toml:"conf_path" validate:"required"`

	// AutoConnect brings the connection up after import.
	AutoConnect bool `toml:"auto_connect"`
}

// DotfilesConfig declares which parts of the dotfiles tree to sync into the
// home directory.
type DotfilesConfig struct {
	// SetupBashrc syncs bashrc from the dotfiles source.
	SetupBashrc bool `toml:"setup_bashrc"`

	// SetupConfigDirs lists ~/.config subdirectories to sync.
	SetupConfigDirs []string `toml:"setup_config_dirs" validate:"dive,required"`

	// Source is the dotfiles directory to sync from. Defaults to ./dotfiles
	// next to the config file.
	Source string `toml:"source"`
}

// EngineConfig tunes reconciliation behavior.
type EngineConfig struct {
	// UIDMin/UIDMax and GIDMin/GIDMax bound declared IDs to keep system
	// ranges untouched. Zero values take the defaults (1000–60000).
	UIDMin int `toml:"uid_min" validate:"gte=0"`
	UIDMax int `toml:"uid_max" validate:"gte=0"`
	GIDMin int `toml:"gid_min" validate:"gte=0"`
	GIDMax int `toml:"gid_max" validate:"gte=0"`

	// StateDir overrides the managed-record directory.
	StateDir string `toml:"state_dir"`
}

// JournalConfig configures the SQLite run journal.
type JournalConfig struct {
	// Enabled defaults to true; the journal lives next to the state files.
	Disabled bool `toml:"disabled"`

	// Path overrides the journal database location.
	Path string `toml:"path"`
}

const (
	// DefaultUIDMin is the lower bound for declared UIDs/GIDs.
	DefaultUIDMin = 1000
	// DefaultUIDMax is the upper bound for declared UIDs/GIDs.
	DefaultUIDMax = 60000
	// DefaultFlatpakRemote is used when no remote is configured.
	DefaultFlatpakRemote = "flathub"
	// DefaultFlatpakRemoteURL is the repo added when the default remote is
	// missing.
	DefaultFlatpakRemoteURL = "https://dl.flathub.org/repo/flathub.flatpakrepo"
)

// applyDefaults fills zero values after decoding.
func (c *Config) applyDefaults() {
	if c.Engine.UIDMin == 0 {
		c.Engine.UIDMin = DefaultUIDMin
	}
	if c.Engine.UIDMax == 0 {
		c.Engine.UIDMax = DefaultUIDMax
	}
	if c.Engine.GIDMin == 0 {
		c.Engine.GIDMin = DefaultUIDMin
	}
	if c.Engine.GIDMax == 0 {
		c.Engine.GIDMax = DefaultUIDMax
	}
	if c.Flatpak.Remote == "" {
		c.Flatpak.Remote = DefaultFlatpakRemote
	}
	if c.Flatpak.Remote == DefaultFlatpakRemote && c.Flatpak.RemoteURL == "" {
		c.Flatpak.RemoteURL = DefaultFlatpakRemoteURL
	}
	for i := range c.Services {
		if c.Services[i].Scope == "" {
			c.Services[i].Scope = "system"
		}
	}
	if c.Telemetry != nil {
		defaults := telemetry.DefaultConfig()
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = defaults.ServiceName
		}
		if c.Telemetry.ServiceVersion == "" {
			c.Telemetry.ServiceVersion = defaults.ServiceVersion
		}
		if c.Telemetry.Logging.Level == "" {
			c.Telemetry.Logging.Level = defaults.Logging.Level
		}
		if c.Telemetry.Logging.Format == "" {
			c.Telemetry.Logging.Format = defaults.Logging.Format
		}
		if c.Telemetry.Logging.Output == "" {
			c.Telemetry.Logging.Output = defaults.Logging.Output
		}
		if c.Telemetry.Tracing.Exporter == "" {
			c.Telemetry.Tracing.Exporter = defaults.Tracing.Exporter
		}
		if c.Telemetry.Tracing.SamplingRate == 0 {
			c.Telemetry.Tracing.SamplingRate = defaults.Tracing.SamplingRate
		}
		if c.Telemetry.Tracing.ExportTimeout == 0 {
			c.Telemetry.Tracing.ExportTimeout = defaults.Tracing.ExportTimeout
		}
		if c.Telemetry.Metrics.ListenAddress == "" {
			c.Telemetry.Metrics.ListenAddress = defaults.Metrics.ListenAddress
		}
		if c.Telemetry.Metrics.Path == "" {
			c.Telemetry.Metrics.Path = defaults.Metrics.Path
		}
		if c.Telemetry.Metrics.Namespace == "" {
			c.Telemetry.Metrics.Namespace = defaults.Metrics.Namespace
		}
	}
}
