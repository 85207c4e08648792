// Package dotfiles syncs configuration files from a dotfiles directory into
// the home directory. Two entry kinds exist: the bashrc file and named
// ~/.config subdirectories. Existing targets are moved to a .bak sibling
// before being replaced, never overwritten in place.
package dotfiles

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/fingerprint"
)

// Entry is one sync unit: a source path inside the dotfiles directory and
// its target in the home directory.
type Entry struct {
	// Dir marks directory entries; Tree hashing and recursive copy apply.
	Dir    bool
	Source string
	Target string
}

// Domain implements engine.Domain[Entry].
type Domain struct {
	declared map[string]Entry
	logger   zerolog.Logger
}

// New builds the dotfiles domain. The source defaults to a dotfiles
// directory next to the configuration file.
func New(cfg *config.Config, baseDir string, logger zerolog.Logger) (*Domain, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return newWithHome(cfg, baseDir, home, logger), nil
}

func newWithHome(cfg *config.Config, baseDir, home string, logger zerolog.Logger) *Domain {
	source := cfg.Dotfiles.Source
	if source == "" {
		source = filepath.Join(baseDir, "dotfiles")
	} else if !filepath.IsAbs(source) {
		source = filepath.Join(baseDir, source)
	}

	declared := make(map[string]Entry)
	if cfg.Dotfiles.SetupBashrc {
		declared["bashrc"] = Entry{
			Source: filepath.Join(source, "bashrc"),
			Target: filepath.Join(home, ".bashrc"),
		}
	}
	for _, name := range cfg.Dotfiles.SetupConfigDirs {
		declared["config/"+name] = Entry{
			Dir:    true,
			Source: filepath.Join(source, "config", name),
			Target: filepath.Join(home, ".config", name),
		}
	}
	return &Domain{
		declared: declared,
		logger:   logger.With().Str("component", "dotfiles").Logger(),
	}
}

func (d *Domain) Name() string { return "dotfiles" }
func (d *Domain) Kind() string { return "dotfile" }

func (d *Domain) Declared() map[string]Entry { return d.declared }

func (d *Domain) Validate(key string, e Entry) error {
	info, err := os.Stat(e.Source)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if e.Dir != info.IsDir() {
		if e.Dir {
			return fmt.Errorf("source %s is not a directory", e.Source)
		}
		return fmt.Errorf("source %s is a directory, expected a file", e.Source)
	}
	return nil
}

// Snapshot reports which targets exist in the home directory.
func (d *Domain) Snapshot(ctx context.Context) (map[string]bool, error) {
	present := make(map[string]bool, len(d.declared))
	for key, e := range d.declared {
		if _, err := os.Stat(e.Target); err == nil {
			present[key] = true
		}
	}
	return present, nil
}

func (d *Domain) Fingerprint(e Entry) string {
	fp, err := d.hash(e.Source, e.Dir)
	if err != nil {
		return "unreadable:" + e.Source
	}
	return fp
}

// Converged compares the live target against the source content, catching
// local edits to a previously synced file.
func (d *Domain) Converged(ctx context.Context, key string, e Entry) bool {
	src, err := d.hash(e.Source, e.Dir)
	if err != nil {
		return false
	}
	dst, err := d.hash(e.Target, e.Dir)
	if err != nil {
		return false
	}
	return src == dst
}

func (d *Domain) hash(path string, dir bool) (string, error) {
	if dir {
		return fingerprint.Tree(path)
	}
	return fingerprint.File(path)
}

// InPlaceUpdatable is always true: an update is a backup plus re-copy.
func (d *Domain) InPlaceUpdatable(e Entry) bool { return true }

func (d *Domain) RecreateOverridable() bool { return false }

// Sweep is off: unmanaged files in $HOME are none of this tool's business.
func (d *Domain) Sweep() bool { return false }

func (d *Domain) Describe(key string, e Entry) string {
	return fmt.Sprintf("dotfile %s (%s)", key, e.Target)
}

func (d *Domain) Attributes(e Entry) map[string]string {
	return map[string]string{"target": e.Target}
}

func (d *Domain) Create(ctx context.Context, key string, e Entry) error {
	return d.sync(e)
}

func (d *Domain) Update(ctx context.Context, key string, e Entry) error {
	return d.sync(e)
}

func (d *Domain) Remove(ctx context.Context, key string) error {
	e, ok := d.declared[key]
	if !ok {
		return fmt.Errorf("unknown dotfile entry %q", key)
	}
	return os.RemoveAll(e.Target)
}

// Adopt never runs with Sweep off.
func (d *Domain) Adopt(ctx context.Context, key string) (Entry, error) {
	return Entry{}, fmt.Errorf("dotfiles cannot be adopted")
}

// sync backs up an existing target, then copies the source over.
func (d *Domain) sync(e Entry) error {
	if _, err := os.Stat(e.Target); err == nil {
		backup := e.Target + ".bak"
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("failed to clear old backup: %w", err)
		}
		if err := os.Rename(e.Target, backup); err != nil {
			return fmt.Errorf("failed to back up %s: %w", e.Target, err)
		}
		d.logger.Info().Str("target", e.Target).Str("backup", backup).Msg("Backed up existing target")
	}
	if err := os.MkdirAll(filepath.Dir(e.Target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if e.Dir {
		return copyTree(e.Source, e.Target)
	}
	return copyFile(e.Source, e.Target)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy to %s: %w", dst, err)
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	var paths []string
	err := filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", src, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
	}
	return nil
}
