package config

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestWriterAddPackage(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	w := NewWriter(path, zerolog.Nop())

	if err := w.AddPackage("tmux"); err != nil {
		t.Fatalf("AddPackage() error: %v", err)
	}

	cfg, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload after write-back failed: %v", err)
	}
	found := false
	for _, p := range cfg.System.Packages {
		if p == "tmux" {
			found = true
		}
	}
	if !found {
		t.Errorf("tmux not written back: %v", cfg.System.Packages)
	}
}

func TestWriterAddPackageIdempotent(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	w := NewWriter(path, zerolog.Nop())

	if err := w.AddPackage("vim"); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, zerolog.Nop())
	if err != nil {
		// A duplicate entry would fail the duplicate-key check here.
		t.Fatalf("reload failed: %v", err)
	}
	count := 0
	for _, p := range cfg.System.Packages {
		if p == "vim" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("vim appears %d times after re-adding", count)
	}
}

func TestWriterPreservesOtherSections(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	w := NewWriter(path, zerolog.Nop())

	if err := w.AddContainer(Container{Name: "db", Image: "postgres:16"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(cfg.Containers) != 2 {
		t.Fatalf("containers = %+v", cfg.Containers)
	}
	// Unrelated sections survive the rewrite.
	if cfg.System.Hostname != "workstation" {
		t.Errorf("hostname lost: %q", cfg.System.Hostname)
	}
	if len(cfg.WireGuard) != 1 {
		t.Errorf("wireguard section lost: %+v", cfg.WireGuard)
	}
	if cfg.Services[0].Enabled == nil {
		t.Error("service enabled flag lost")
	}
}

func TestWriterAddUserAndGroup(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	w := NewWriter(path, zerolog.Nop())

	gid := 1600
	if err := w.AddGroup(Group{Name: "render", GID: &gid}); err != nil {
		t.Fatal(err)
	}
	if err := w.AddUser(User{Name: "bob", Shell: "/bin/bash"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(cfg.Groups) != 2 || cfg.Groups[1].GID == nil || *cfg.Groups[1].GID != 1600 {
		t.Errorf("groups = %+v", cfg.Groups)
	}
	if len(cfg.Users) != 2 || cfg.Users[1].Name != "bob" {
		t.Errorf("users = %+v", cfg.Users)
	}
}
