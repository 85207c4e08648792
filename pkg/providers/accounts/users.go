package accounts

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/fingerprint"
)

// UserWriter is the adoption write-back surface for users.
type UserWriter interface {
	AddUser(u config.User) error
}

// Users implements engine.Domain[config.User].
type Users struct {
	declared map[string]config.User
	uidMin   int
	uidMax   int
	paths    Paths
	exec     Runner
	writer   UserWriter
}

// NewUsers builds the users domain.
func NewUsers(cfg *config.Config, paths Paths, exec Runner, writer UserWriter) *Users {
	declared := make(map[string]config.User, len(cfg.Users))
	for _, u := range cfg.Users {
		declared[u.Name] = u
	}
	return &Users{
		declared: declared,
		uidMin:   cfg.Engine.UIDMin,
		uidMax:   cfg.Engine.UIDMax,
		paths:    paths,
		exec:     exec,
		writer:   writer,
	}
}

func (d *Users) Name() string { return "users" }
func (d *Users) Kind() string { return "user" }

func (d *Users) Declared() map[string]config.User { return d.declared }

// Validate gates user mutations: name shape, UID/GID range and the shell
// whitelist are all checked before useradd/usermod ever runs.
func (d *Users) Validate(key string, u config.User) error {
	if err := validName(u.Name); err != nil {
		return err
	}
	if u.UID != nil && !u.System && (*u.UID < d.uidMin || *u.UID > d.uidMax) {
		return fmt.Errorf("uid %d outside allowed range %d–%d", *u.UID, d.uidMin, d.uidMax)
	}
	if u.GID != nil && !u.System && (*u.GID < d.uidMin || *u.GID > d.uidMax) {
		return fmt.Errorf("gid %d outside allowed range %d–%d", *u.GID, d.uidMin, d.uidMax)
	}
	if u.Shell != "" {
		shells, err := readShells(d.paths.Shells)
		if err != nil {
			return err
		}
		if !shells[u.Shell] {
			return fmt.Errorf("shell %q is not listed in %s", u.Shell, d.paths.Shells)
		}
	}
	for _, g := range u.Groups {
		if err := validName(g); err != nil {
			return fmt.Errorf("group: %w", err)
		}
	}
	return nil
}

func (d *Users) Snapshot(ctx context.Context) (map[string]bool, error) {
	entries, err := readPasswd(d.paths.Passwd)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(entries))
	for name := range entries {
		present[name] = true
	}
	return present, nil
}

// Fingerprint covers the managed attributes only: every nil optional field
// hashes as "unmanaged" so leaving it out never triggers a spurious update.
func (d *Users) Fingerprint(u config.User) string {
	groups := append([]string(nil), u.Groups...)
	sort.Strings(groups)
	return fingerprint.Fields("user", u.Name,
		optionalInt(u.UID), optionalInt(u.GID),
		strings.Join(groups, ","),
		u.Home, u.Shell, u.Comment,
		optionalBoolField(u.CreateHome), fmt.Sprintf("%t", u.System))
}

func optionalInt(v *int) string {
	if v == nil {
		return "unmanaged"
	}
	return strconv.Itoa(*v)
}

func optionalBoolField(b *bool) string {
	if b == nil {
		return "unmanaged"
	}
	return fmt.Sprintf("%t", *b)
}

func (d *Users) Converged(ctx context.Context, key string, u config.User) bool {
	entries, err := readPasswd(d.paths.Passwd)
	if err != nil {
		return false
	}
	live, ok := entries[key]
	if !ok {
		return false
	}
	if u.UID != nil && live.UID != *u.UID {
		return false
	}
	if u.GID != nil && live.GID != *u.GID {
		return false
	}
	if u.Home != "" && live.Home != u.Home {
		return false
	}
	if u.Shell != "" && live.Shell != u.Shell {
		return false
	}
	if u.Comment != "" && live.Comment != u.Comment {
		return false
	}
	return true
}

func (d *Users) InPlaceUpdatable(u config.User) bool { return true }

func (d *Users) RecreateOverridable() bool { return false }

// Sweep is off: the passwd file is full of system accounts.
func (d *Users) Sweep() bool { return false }

func (d *Users) Describe(key string, u config.User) string {
	if u.UID != nil {
		return fmt.Sprintf("user %q (uid %d)", u.Name, *u.UID)
	}
	return fmt.Sprintf("user %q", u.Name)
}

func (d *Users) Attributes(u config.User) map[string]string {
	attrs := make(map[string]string)
	if u.UID != nil {
		attrs["uid"] = strconv.Itoa(*u.UID)
	}
	if u.Shell != "" {
		attrs["shell"] = u.Shell
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func (d *Users) Create(ctx context.Context, key string, u config.User) error {
	args := []string{}
	if u.System {
		args = append(args, "--system")
	}
	if u.UID != nil {
		args = append(args, "-u", strconv.Itoa(*u.UID))
	}
	if u.GID != nil {
		args = append(args, "-g", strconv.Itoa(*u.GID))
	}
	if len(u.Groups) > 0 {
		args = append(args, "-G", strings.Join(u.Groups, ","))
	}
	if u.Home != "" {
		args = append(args, "-d", u.Home)
	}
	if u.Shell != "" {
		args = append(args, "-s", u.Shell)
	}
	if u.Comment != "" {
		args = append(args, "-c", u.Comment)
	}
	if u.CreateHome != nil {
		if *u.CreateHome {
			args = append(args, "-m")
		} else {
			args = append(args, "-M")
		}
	}
	args = append(args, u.Name)
	return d.exec.Sudo(ctx, "useradd", args...)
}

func (d *Users) Update(ctx context.Context, key string, u config.User) error {
	args := []string{}
	if u.UID != nil {
		args = append(args, "-u", strconv.Itoa(*u.UID))
	}
	if u.GID != nil {
		args = append(args, "-g", strconv.Itoa(*u.GID))
	}
	if u.Home != "" {
		args = append(args, "-d", u.Home)
	}
	if u.Shell != "" {
		args = append(args, "-s", u.Shell)
	}
	if u.Comment != "" {
		args = append(args, "-c", u.Comment)
	}
	if len(args) > 0 {
		args = append(args, u.Name)
		if err := d.exec.Sudo(ctx, "usermod", args...); err != nil {
			return err
		}
	}
	// Supplementary groups are appended, never replaced: -G alone would
	// strip memberships the administrator added by hand.
	if len(u.Groups) > 0 {
		if err := d.exec.Sudo(ctx, "usermod", "-aG", strings.Join(u.Groups, ","), u.Name); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the account but keeps the home directory; destroying user
// data needs a human, not a reconcile loop.
func (d *Users) Remove(ctx context.Context, key string) error {
	return d.exec.Sudo(ctx, "userdel", key)
}

func (d *Users) Adopt(ctx context.Context, key string) (config.User, error) {
	entries, err := readPasswd(d.paths.Passwd)
	if err != nil {
		return config.User{}, err
	}
	live, ok := entries[key]
	if !ok {
		return config.User{}, fmt.Errorf("user %q not found", key)
	}
	uid := live.UID
	gid := live.GID
	u := config.User{
		Name:    key,
		UID:     &uid,
		GID:     &gid,
		Home:    live.Home,
		Shell:   live.Shell,
		Comment: live.Comment,
	}
	if err := d.writer.AddUser(u); err != nil {
		return config.User{}, err
	}
	return u, nil
}
