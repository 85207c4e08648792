package accounts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deskforge/deskforge/pkg/config"
)

const samplePasswd = `root:x:0:0:root:/root:/bin/bash
daemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin
alice:x:1001:1001:Alice:/home/alice:/bin/bash
bob:x:1002:1002::/home/bob:/bin/zsh
`

const sampleGroup = `root:x:0:
wheel:x:10:alice
media:x:1500:alice,bob
`

const sampleShells = `# valid login shells
/bin/bash
/bin/zsh
/usr/sbin/nologin
`

type fakeRunner struct {
	calls []string
}

func (f *fakeRunner) Sudo(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return nil
}

type fakeWriter struct {
	users  []config.User
	groups []config.Group
}

func (f *fakeWriter) AddUser(u config.User) error {
	f.users = append(f.users, u)
	return nil
}

func (f *fakeWriter) AddGroup(g config.Group) error {
	f.groups = append(f.groups, g)
	return nil
}

func intPtr(v int) *int    { return &v }
func boolPtr(b bool) *bool { return &b }

func testPaths(t *testing.T) Paths {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{
		Passwd: filepath.Join(dir, "passwd"),
		Group:  filepath.Join(dir, "group"),
		Shells: filepath.Join(dir, "shells"),
	}
	for path, content := range map[string]string{
		paths.Passwd: samplePasswd,
		paths.Group:  sampleGroup,
		paths.Shells: sampleShells,
	} {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func baseConfig() *config.Config {
	cfg := &config.Config{Distro: "fedora"}
	cfg.Engine.UIDMin = 1000
	cfg.Engine.UIDMax = 60000
	cfg.Engine.GIDMin = 1000
	cfg.Engine.GIDMax = 60000
	return cfg
}

func TestUsersSnapshot(t *testing.T) {
	d := NewUsers(baseConfig(), testPaths(t), &fakeRunner{}, &fakeWriter{})

	got, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"root", "alice", "bob"} {
		if !got[name] {
			t.Errorf("%s missing from snapshot", name)
		}
	}
}

func TestUsersValidate(t *testing.T) {
	d := NewUsers(baseConfig(), testPaths(t), &fakeRunner{}, &fakeWriter{})

	cases := []struct {
		name string
		user config.User
		ok   bool
	}{
		{"valid", config.User{Name: "carol", UID: intPtr(1003), Shell: "/bin/bash"}, true},
		{"bad name chars", config.User{Name: "Carol!"}, false},
		{"name too long", config.User{Name: strings.Repeat("a", 33)}, false},
		{"uid below range", config.User{Name: "carol", UID: intPtr(500)}, false},
		{"uid above range", config.User{Name: "carol", UID: intPtr(70000)}, false},
		{"system uid exempt", config.User{Name: "svc", UID: intPtr(500), System: true}, true},
		{"unknown shell", config.User{Name: "carol", Shell: "/bin/fish"}, false},
		{"shell unmanaged", config.User{Name: "carol"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := d.Validate(tc.user.Name, tc.user)
			if (err == nil) != tc.ok {
				t.Errorf("Validate(%+v) = %v, want ok=%v", tc.user, err, tc.ok)
			}
		})
	}
}

func TestUsersCreateFlags(t *testing.T) {
	exec := &fakeRunner{}
	d := NewUsers(baseConfig(), testPaths(t), exec, &fakeWriter{})

	u := config.User{
		Name:       "carol",
		UID:        intPtr(1003),
		Groups:     []string{"wheel", "media"},
		Shell:      "/bin/bash",
		CreateHome: boolPtr(true),
	}
	if err := d.Create(context.Background(), "carol", u); err != nil {
		t.Fatal(err)
	}
	want := "useradd -u 1003 -G wheel,media -s /bin/bash -m carol"
	if len(exec.calls) != 1 || exec.calls[0] != want {
		t.Errorf("calls = %v, want [%s]", exec.calls, want)
	}
}

func TestUsersUpdateAppendsGroups(t *testing.T) {
	exec := &fakeRunner{}
	d := NewUsers(baseConfig(), testPaths(t), exec, &fakeWriter{})

	u := config.User{Name: "alice", Groups: []string{"media"}}
	if err := d.Update(context.Background(), "alice", u); err != nil {
		t.Fatal(err)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "usermod -aG media alice" {
		t.Errorf("calls = %v", exec.calls)
	}
}

func TestUsersConvergedIgnoresUnmanagedFields(t *testing.T) {
	d := NewUsers(baseConfig(), testPaths(t), &fakeRunner{}, &fakeWriter{})
	ctx := context.Background()

	// bob's live shell is zsh; shell is unmanaged here.
	if !d.Converged(ctx, "bob", config.User{Name: "bob", UID: intPtr(1002)}) {
		t.Error("unmanaged shell affected convergence")
	}
	if d.Converged(ctx, "bob", config.User{Name: "bob", Shell: "/bin/bash"}) {
		t.Error("managed shell mismatch not detected")
	}
	if d.Converged(ctx, "bob", config.User{Name: "bob", UID: intPtr(1099)}) {
		t.Error("uid mismatch not detected")
	}
}

func TestUsersAdoptReadsLiveEntry(t *testing.T) {
	writer := &fakeWriter{}
	d := NewUsers(baseConfig(), testPaths(t), &fakeRunner{}, writer)

	u, err := d.Adopt(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u.UID == nil || *u.UID != 1001 || u.Shell != "/bin/bash" || u.Home != "/home/alice" {
		t.Errorf("adopted descriptor = %+v", u)
	}
	if len(writer.users) != 1 {
		t.Error("descriptor not written back")
	}
}

func TestUsersFingerprintExcludesUnmanaged(t *testing.T) {
	d := NewUsers(baseConfig(), testPaths(t), &fakeRunner{}, &fakeWriter{})

	bare := config.User{Name: "alice"}
	withUID := config.User{Name: "alice", UID: intPtr(1001)}
	if d.Fingerprint(bare) == d.Fingerprint(withUID) {
		t.Error("managing uid must change the fingerprint")
	}

	a := config.User{Name: "alice", Groups: []string{"wheel", "media"}}
	b := config.User{Name: "alice", Groups: []string{"media", "wheel"}}
	if d.Fingerprint(a) != d.Fingerprint(b) {
		t.Error("group order must not affect the fingerprint")
	}
}

func TestGroupsSnapshotAndConverged(t *testing.T) {
	d := NewGroups(baseConfig(), testPaths(t), &fakeRunner{}, &fakeWriter{})
	ctx := context.Background()

	got, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got["media"] || !got["wheel"] {
		t.Errorf("snapshot = %v", got)
	}

	if !d.Converged(ctx, "media", config.Group{Name: "media", GID: intPtr(1500), Members: []string{"alice"}}) {
		t.Error("converged group reported drifted")
	}
	if d.Converged(ctx, "media", config.Group{Name: "media", GID: intPtr(1501)}) {
		t.Error("gid mismatch not detected")
	}
	if d.Converged(ctx, "media", config.Group{Name: "media", Members: []string{"carol"}}) {
		t.Error("missing member not detected")
	}
}

func TestGroupsCreateAddsMissingMembersOnly(t *testing.T) {
	exec := &fakeRunner{}
	d := NewGroups(baseConfig(), testPaths(t), exec, &fakeWriter{})

	g := config.Group{Name: "media", GID: intPtr(1500), Members: []string{"alice", "carol"}}
	if err := d.Create(context.Background(), "media", g); err != nil {
		t.Fatal(err)
	}
	// alice is already a member in the fixture; only carol is added.
	want := []string{"groupadd -g 1500 media", "gpasswd -a carol media"}
	if len(exec.calls) != 2 || exec.calls[0] != want[0] || exec.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", exec.calls, want)
	}
}

func TestGroupsValidateGIDRange(t *testing.T) {
	d := NewGroups(baseConfig(), testPaths(t), &fakeRunner{}, &fakeWriter{})

	if err := d.Validate("media", config.Group{Name: "media", GID: intPtr(1500)}); err != nil {
		t.Errorf("valid group rejected: %v", err)
	}
	if err := d.Validate("media", config.Group{Name: "media", GID: intPtr(100)}); err == nil {
		t.Error("gid below range accepted")
	}
	if err := d.Validate("media", config.Group{Name: "Media"}); err == nil {
		t.Error("uppercase group name accepted")
	}
}

func TestParsePasswdSkipsMalformedLines(t *testing.T) {
	entries := parsePasswd("broken line\nalice:x:1001:1001:Alice:/home/alice:/bin/bash\n:x:9:9:::\n")
	if len(entries) != 1 {
		t.Errorf("entries = %v", entries)
	}
	if entries["alice"].UID != 1001 {
		t.Errorf("alice = %+v", entries["alice"])
	}
}

func TestParseShellsSkipsComments(t *testing.T) {
	shells := parseShells(sampleShells)
	if !shells["/bin/bash"] || !shells["/bin/zsh"] {
		t.Errorf("shells = %v", shells)
	}
	if shells["# valid login shells"] {
		t.Error("comment parsed as shell")
	}
}
