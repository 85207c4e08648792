package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/engine"
)

var validate = validator.New()

// Load reads, decodes and validates the configuration file. Every failure
// is a fatal configuration error: nothing reconciles against a config that
// did not fully parse.
func Load(path string, logger zerolog.Logger) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("failed to parse %s", path), err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logger.Warn().Strs("keys", keys).Str("path", path).
			Msg("Unknown configuration keys ignored")
	}

	cfg.applyDefaults()

	if err := validate.Struct(&cfg); err != nil {
		return nil, engine.NewConfigError("invalid configuration", err)
	}
	if err := cfg.checkDuplicates(); err != nil {
		return nil, err
	}
	if cfg.Telemetry != nil {
		if err := cfg.Telemetry.Validate(); err != nil {
			return nil, engine.NewConfigError("invalid telemetry configuration", err)
		}
	}

	warnDistroMismatch(&cfg, logger)
	return &cfg, nil
}

// checkDuplicates rejects configs that declare the same resource key twice.
// Silent last-one-wins here would make reconciliation nondeterministic.
func (c *Config) checkDuplicates() error {
	check := func(section string, keys []string) error {
		seen := make(map[string]bool, len(keys))
		for _, k := range keys {
			if seen[k] {
				return engine.NewConfigError(
					fmt.Sprintf("duplicate %s %q", section, k), nil)
			}
			seen[k] = true
		}
		return nil
	}

	if err := check("package", c.System.Packages); err != nil {
		return err
	}
	if err := check("flatpak application", c.Flatpak.Applications); err != nil {
		return err
	}
	if err := check("service", names(c.Services, func(s Service) string { return s.Name })); err != nil {
		return err
	}
	if err := check("container", names(c.Containers, func(ct Container) string { return ct.Name })); err != nil {
		return err
	}
	if err := check("group", names(c.Groups, func(g Group) string { return g.Name })); err != nil {
		return err
	}
	if err := check("user", names(c.Users, func(u User) string { return u.Name })); err != nil {
		return err
	}
	return check("wireguard profile", names(c.WireGuard, func(w WireGuard) string {
		return ProfileName(w.ConfPath)
	}))
}

func names[T any](items []T, key func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = key(item)
	}
	return out
}

// ProfileName derives the VPN resource key from a conf path: the file stem,
// which nmcli also uses as the connection and interface name.
func ProfileName(confPath string) string {
	return strings.TrimSuffix(filepath.Base(confPath), filepath.Ext(confPath))
}

// warnDistroMismatch compares the declared distro family against
// /etc/os-release. A mismatch is worth a warning but not an abort: the
// declared distro decides which package manager runs either way.
func warnDistroMismatch(cfg *Config, logger zerolog.Logger) {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return
	}
	detected := detectDistro(string(data))
	if detected != "" && detected != cfg.Distro {
		logger.Warn().
			Str("declared", cfg.Distro).
			Str("detected", detected).
			Msg("Declared distro does not match /etc/os-release")
	}
}

func detectDistro(osRelease string) string {
	for _, line := range strings.Split(osRelease, "\n") {
		if !strings.HasPrefix(line, "ID=") && !strings.HasPrefix(line, "ID_LIKE=") {
			continue
		}
		value := strings.Trim(strings.SplitN(line, "=", 2)[1], `"`)
		for _, id := range strings.Fields(value) {
			switch id {
			case "fedora", "rhel", "centos":
				return "fedora"
			case "debian", "ubuntu":
				return "debian"
			}
		}
	}
	return ""
}
