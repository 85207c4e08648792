package containers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/config"
)

type fakeRunner struct {
	outputs map[string]string
	calls   []string
}

func (f *fakeRunner) key(name string, args []string) string {
	return name + " " + strings.Join(args, " ")
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, f.key(name, args))
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	key := f.key(name, args)
	f.calls = append(f.calls, key)
	return f.outputs[key], nil
}

type fakeWriter struct{ added []config.Container }

func (f *fakeWriter) AddContainer(ct config.Container) error {
	f.added = append(f.added, ct)
	return nil
}

func newDomain(t *testing.T, cts []config.Container, exec *fakeRunner) *Domain {
	t.Helper()
	cfg := &config.Config{Distro: "fedora", Containers: cts}
	d, err := New(cfg, exec, &fakeWriter{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	d.unitDir = filepath.Join(t.TempDir(), "systemd")
	d.homeDir = "/home/alice"
	return d
}

func TestSnapshotParsesPodmanPS(t *testing.T) {
	exec := &fakeRunner{outputs: map[string]string{
		"podman ps -a --format json": `[{"Names":["web"],"Image":"docker.io/library/nginx:1.24"},{"Names":["db"],"Image":"postgres:16"}]`,
	}}
	d := newDomain(t, nil, exec)

	got, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got["web"] || !got["db"] {
		t.Errorf("snapshot = %v", got)
	}
}

func TestSnapshotEmptyOutput(t *testing.T) {
	exec := &fakeRunner{outputs: map[string]string{"podman ps -a --format json": ""}}
	d := newDomain(t, nil, exec)

	got, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("snapshot = %v", got)
	}
}

func TestCreatePullsThenCreates(t *testing.T) {
	exec := &fakeRunner{}
	ct := config.Container{Name: "web", Image: "nginx:1.25", RawFlags: "-p 8080:80", StartAfterCreation: true}
	d := newDomain(t, []config.Container{ct}, exec)

	if err := d.Create(context.Background(), "web", ct); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"podman pull nginx:1.25",
		"podman create --name web -p 8080:80 nginx:1.25",
		"podman start web",
	}
	if len(exec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", exec.calls, want)
	}
	for i := range want {
		if exec.calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, exec.calls[i], want[i])
		}
	}
}

func TestCreateAutostartWritesUnit(t *testing.T) {
	exec := &fakeRunner{}
	ct := config.Container{Name: "web", Image: "nginx:1.25", RawFlags: "-p 8080:80", Autostart: true}
	d := newDomain(t, []config.Container{ct}, exec)

	if err := d.Create(context.Background(), "web", ct); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(d.unitDir, "web.container"))
	if err != nil {
		t.Fatalf("unit file not written: %v", err)
	}
	if !strings.Contains(string(data), "PublishPort=8080:80") {
		t.Errorf("unit content:\n%s", data)
	}

	joined := strings.Join(exec.calls, "|")
	if !strings.Contains(joined, "systemctl --user daemon-reload") {
		t.Errorf("daemon-reload missing: %v", exec.calls)
	}
	if !strings.Contains(joined, "systemctl --user start web.service") {
		t.Errorf("unit not started: %v", exec.calls)
	}
}

func TestCreateAutostartWinsOverStartAfterCreation(t *testing.T) {
	exec := &fakeRunner{}
	ct := config.Container{Name: "web", Image: "nginx:1.25", StartAfterCreation: true, Autostart: true}
	d := newDomain(t, []config.Container{ct}, exec)

	if err := d.Create(context.Background(), "web", ct); err != nil {
		t.Fatal(err)
	}
	for _, call := range exec.calls {
		if call == "podman start web" {
			t.Error("container started directly despite autostart")
		}
	}
}

func TestRemoveCleansUpUnit(t *testing.T) {
	exec := &fakeRunner{}
	d := newDomain(t, nil, exec)

	if err := os.MkdirAll(d.unitDir, 0755); err != nil {
		t.Fatal(err)
	}
	unitPath := filepath.Join(d.unitDir, "web.container")
	if err := os.WriteFile(unitPath, []byte("[Container]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := d.Remove(context.Background(), "web"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(unitPath); !os.IsNotExist(err) {
		t.Error("unit file not removed")
	}
	joined := strings.Join(exec.calls, "|")
	if !strings.Contains(joined, "podman rm -f web") {
		t.Errorf("container not removed: %v", exec.calls)
	}
}

func TestRemoveWithoutUnit(t *testing.T) {
	exec := &fakeRunner{}
	d := newDomain(t, nil, exec)

	if err := d.Remove(context.Background(), "web"); err != nil {
		t.Fatal(err)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "podman rm -f web" {
		t.Errorf("calls = %v", exec.calls)
	}
}

func TestFingerprintChangesWithImage(t *testing.T) {
	d := newDomain(t, nil, &fakeRunner{})
	a := config.Container{Name: "web", Image: "nginx:1.24"}
	b := config.Container{Name: "web", Image: "nginx:1.25"}
	if d.Fingerprint(a) == d.Fingerprint(b) {
		t.Error("image change did not change fingerprint")
	}
}

func TestConvergedComparesImage(t *testing.T) {
	exec := &fakeRunner{outputs: map[string]string{
		"podman inspect --format {{.ImageName}} web": "nginx:1.24",
	}}
	d := newDomain(t, nil, exec)

	ct := config.Container{Name: "web", Image: "nginx:1.25"}
	if d.Converged(context.Background(), "web", ct) {
		t.Error("image mismatch reported converged")
	}
	ct.Image = "nginx:1.24"
	if !d.Converged(context.Background(), "web", ct) {
		t.Error("matching image reported drifted")
	}
}

func TestValidateRejectsBadFlags(t *testing.T) {
	d := newDomain(t, nil, &fakeRunner{})
	if err := d.Validate("web", config.Container{Name: "web", Image: "nginx", RawFlags: "-p"}); err == nil {
		t.Error("flag without value accepted")
	}
	if err := d.Validate("web", config.Container{Name: "web"}); err == nil {
		t.Error("missing image accepted")
	}
}
