package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/engine"
)

// Writer performs adoption write-backs: inserting a discovered descriptor
// into the configuration file so the next run treats the resource as
// declared and prompt-free. The file is re-encoded from the struct, so
// hand-written comments do not survive a write-back; adoption is an
// explicit opt-in with that cost.
type Writer struct {
	path   string
	logger zerolog.Logger
}

// NewWriter creates a writer for the given configuration file.
func NewWriter(path string, logger zerolog.Logger) *Writer {
	return &Writer{
		path:   path,
		logger: logger.With().Str("component", "config-writer").Logger(),
	}
}

// AddPackage appends a package to the declared system package list.
func (w *Writer) AddPackage(name string) error {
	return w.rewrite(func(cfg *Config) error {
		for _, p := range cfg.System.Packages {
			if p == name {
				return nil
			}
		}
		cfg.System.Packages = append(cfg.System.Packages, name)
		return nil
	})
}

// AddFlatpak appends an application ID to the declared Flatpak list.
func (w *Writer) AddFlatpak(appID string) error {
	return w.rewrite(func(cfg *Config) error {
		for _, a := range cfg.Flatpak.Applications {
			if a == appID {
				return nil
			}
		}
		cfg.Flatpak.Applications = append(cfg.Flatpak.Applications, appID)
		return nil
	})
}

// AddService appends a service declaration.
func (w *Writer) AddService(svc Service) error {
	return w.rewrite(func(cfg *Config) error {
		for _, s := range cfg.Services {
			if s.Name == svc.Name {
				return nil
			}
		}
		cfg.Services = append(cfg.Services, svc)
		return nil
	})
}

// AddContainer appends a container declaration.
func (w *Writer) AddContainer(ct Container) error {
	return w.rewrite(func(cfg *Config) error {
		for _, c := range cfg.Containers {
			if c.Name == ct.Name {
				return nil
			}
		}
		cfg.Containers = append(cfg.Containers, ct)
		return nil
	})
}

// AddGroup appends a group declaration.
func (w *Writer) AddGroup(g Group) error {
	return w.rewrite(func(cfg *Config) error {
		for _, existing := range cfg.Groups {
			if existing.Name == g.Name {
				return nil
			}
		}
		cfg.Groups = append(cfg.Groups, g)
		return nil
	})
}

// AddUser appends a user declaration.
func (w *Writer) AddUser(u User) error {
	return w.rewrite(func(cfg *Config) error {
		for _, existing := range cfg.Users {
			if existing.Name == u.Name {
				return nil
			}
		}
		cfg.Users = append(cfg.Users, u)
		return nil
	})
}

// rewrite loads the current file, applies the mutation and atomically
// replaces the file with the re-encoded result.
func (w *Writer) rewrite(mutate func(cfg *Config) error) error {
	var cfg Config
	if _, err := toml.DecodeFile(w.path, &cfg); err != nil {
		return engine.NewConfigError(fmt.Sprintf("failed to re-read %s for write-back", w.path), err)
	}
	if err := mutate(&cfg); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(&cfg); err != nil {
		return engine.NewConfigError("failed to encode configuration", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return engine.NewConfigError("failed to create temp config file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return engine.NewConfigError("failed to write configuration", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return engine.NewConfigError("failed to close temp config file", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		_ = os.Remove(tmpPath)
		return engine.NewConfigError("failed to replace configuration file", err)
	}
	w.logger.Info().Str("path", w.path).Msg("Configuration rewritten")
	return nil
}
