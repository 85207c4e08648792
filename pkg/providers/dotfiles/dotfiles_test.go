package dotfiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/config"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newDomain(t *testing.T, cfg config.DotfilesConfig) (*Domain, string, string) {
	t.Helper()
	base := t.TempDir()
	home := t.TempDir()
	d := newWithHome(&config.Config{Dotfiles: cfg}, base, home, zerolog.Nop())
	return d, base, home
}

func TestDeclaredEntries(t *testing.T) {
	d, base, home := newDomain(t, config.DotfilesConfig{
		SetupBashrc:     true,
		SetupConfigDirs: []string{"nvim", "tmux"},
	})

	bashrc, ok := d.Declared()["bashrc"]
	if !ok {
		t.Fatalf("declared = %v", d.Declared())
	}
	if bashrc.Source != filepath.Join(base, "dotfiles", "bashrc") {
		t.Errorf("bashrc source = %q", bashrc.Source)
	}
	if bashrc.Target != filepath.Join(home, ".bashrc") {
		t.Errorf("bashrc target = %q", bashrc.Target)
	}

	nvim, ok := d.Declared()["config/nvim"]
	if !ok || !nvim.Dir {
		t.Fatalf("config/nvim entry = %+v", nvim)
	}
	if nvim.Target != filepath.Join(home, ".config", "nvim") {
		t.Errorf("nvim target = %q", nvim.Target)
	}
}

func TestSourceOverride(t *testing.T) {
	d, base, _ := newDomain(t, config.DotfilesConfig{SetupBashrc: true, Source: "my-dots"})
	if got := d.Declared()["bashrc"].Source; got != filepath.Join(base, "my-dots", "bashrc") {
		t.Errorf("source = %q", got)
	}
}

func TestValidate(t *testing.T) {
	d, base, _ := newDomain(t, config.DotfilesConfig{SetupBashrc: true, SetupConfigDirs: []string{"nvim"}})
	write(t, filepath.Join(base, "dotfiles", "bashrc"), "export PS1=x\n")
	write(t, filepath.Join(base, "dotfiles", "config", "nvim", "init.lua"), "-- init\n")

	if err := d.Validate("bashrc", d.Declared()["bashrc"]); err != nil {
		t.Errorf("bashrc rejected: %v", err)
	}
	if err := d.Validate("config/nvim", d.Declared()["config/nvim"]); err != nil {
		t.Errorf("config dir rejected: %v", err)
	}
	if err := d.Validate("config/tmux", Entry{Dir: true, Source: filepath.Join(base, "nope")}); err == nil {
		t.Error("missing source accepted")
	}
	if err := d.Validate("bashrc", Entry{Source: filepath.Join(base, "dotfiles", "config")}); err == nil {
		t.Error("directory accepted for a file entry")
	}
}

func TestSnapshotReportsExistingTargets(t *testing.T) {
	d, base, home := newDomain(t, config.DotfilesConfig{SetupBashrc: true, SetupConfigDirs: []string{"nvim"}})
	write(t, filepath.Join(base, "dotfiles", "bashrc"), "x\n")
	write(t, filepath.Join(home, ".bashrc"), "y\n")

	got, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got["bashrc"] || got["config/nvim"] {
		t.Errorf("snapshot = %v", got)
	}
}

func TestCreateCopiesFile(t *testing.T) {
	d, base, home := newDomain(t, config.DotfilesConfig{SetupBashrc: true})
	write(t, filepath.Join(base, "dotfiles", "bashrc"), "export EDITOR=vi\n")

	if err := d.Create(context.Background(), "bashrc", d.Declared()["bashrc"]); err != nil {
		t.Fatal(err)
	}
	if got := read(t, filepath.Join(home, ".bashrc")); got != "export EDITOR=vi\n" {
		t.Errorf("target content = %q", got)
	}
}

func TestUpdateBacksUpExistingTarget(t *testing.T) {
	d, base, home := newDomain(t, config.DotfilesConfig{SetupBashrc: true})
	write(t, filepath.Join(base, "dotfiles", "bashrc"), "new\n")
	write(t, filepath.Join(home, ".bashrc"), "old\n")

	if err := d.Update(context.Background(), "bashrc", d.Declared()["bashrc"]); err != nil {
		t.Fatal(err)
	}
	if got := read(t, filepath.Join(home, ".bashrc")); got != "new\n" {
		t.Errorf("target = %q", got)
	}
	if got := read(t, filepath.Join(home, ".bashrc.bak")); got != "old\n" {
		t.Errorf("backup = %q", got)
	}
}

func TestSyncCopiesDirectoryTree(t *testing.T) {
	d, base, home := newDomain(t, config.DotfilesConfig{SetupConfigDirs: []string{"nvim"}})
	write(t, filepath.Join(base, "dotfiles", "config", "nvim", "init.lua"), "-- init\n")
	write(t, filepath.Join(base, "dotfiles", "config", "nvim", "lua", "opts.lua"), "-- opts\n")

	if err := d.Create(context.Background(), "config/nvim", d.Declared()["config/nvim"]); err != nil {
		t.Fatal(err)
	}
	if got := read(t, filepath.Join(home, ".config", "nvim", "lua", "opts.lua")); got != "-- opts\n" {
		t.Errorf("nested file = %q", got)
	}
}

func TestConvergedDetectsLocalEdits(t *testing.T) {
	d, base, home := newDomain(t, config.DotfilesConfig{SetupBashrc: true})
	write(t, filepath.Join(base, "dotfiles", "bashrc"), "same\n")
	write(t, filepath.Join(home, ".bashrc"), "same\n")

	e := d.Declared()["bashrc"]
	if !d.Converged(context.Background(), "bashrc", e) {
		t.Error("identical content reported drifted")
	}
	write(t, filepath.Join(home, ".bashrc"), "edited\n")
	if d.Converged(context.Background(), "bashrc", e) {
		t.Error("local edit not detected")
	}
}

func TestFingerprintTracksSource(t *testing.T) {
	d, base, _ := newDomain(t, config.DotfilesConfig{SetupBashrc: true})
	write(t, filepath.Join(base, "dotfiles", "bashrc"), "v1\n")

	e := d.Declared()["bashrc"]
	before := d.Fingerprint(e)
	write(t, filepath.Join(base, "dotfiles", "bashrc"), "v2\n")
	if d.Fingerprint(e) == before {
		t.Error("source edit did not change fingerprint")
	}
}

func TestRemoveDeletesTarget(t *testing.T) {
	d, _, home := newDomain(t, config.DotfilesConfig{SetupConfigDirs: []string{"nvim"}})
	write(t, filepath.Join(home, ".config", "nvim", "init.lua"), "x\n")

	if err := d.Remove(context.Background(), "config/nvim"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(home, ".config", "nvim")); !os.IsNotExist(err) {
		t.Error("target not removed")
	}
}
