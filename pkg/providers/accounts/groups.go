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

// Runner is the subprocess surface the account domains need.
type Runner interface {
	Sudo(ctx context.Context, name string, args ...string) error
}

// GroupWriter is the adoption write-back surface for groups.
type GroupWriter interface {
	AddGroup(g config.Group) error
}

// Groups implements engine.Domain[config.Group].
type Groups struct {
	declared map[string]config.Group
	gidMin   int
	gidMax   int
	paths    Paths
	exec     Runner
	writer   GroupWriter
}

// NewGroups builds the groups domain.
func NewGroups(cfg *config.Config, paths Paths, exec Runner, writer GroupWriter) *Groups {
	declared := make(map[string]config.Group, len(cfg.Groups))
	for _, g := range cfg.Groups {
		declared[g.Name] = g
	}
	return &Groups{
		declared: declared,
		gidMin:   cfg.Engine.GIDMin,
		gidMax:   cfg.Engine.GIDMax,
		paths:    paths,
		exec:     exec,
		writer:   writer,
	}
}

func (d *Groups) Name() string { return "groups" }
func (d *Groups) Kind() string { return "group" }

func (d *Groups) Declared() map[string]config.Group { return d.declared }

// Validate gates group mutations: the name shape and the GID range are
// checked before any external command sees the declaration.
func (d *Groups) Validate(key string, g config.Group) error {
	if err := validName(g.Name); err != nil {
		return err
	}
	if g.GID != nil && !g.System && (*g.GID < d.gidMin || *g.GID > d.gidMax) {
		return fmt.Errorf("gid %d outside allowed range %d–%d", *g.GID, d.gidMin, d.gidMax)
	}
	for _, m := range g.Members {
		if err := validName(m); err != nil {
			return fmt.Errorf("member: %w", err)
		}
	}
	return nil
}

func (d *Groups) Snapshot(ctx context.Context) (map[string]bool, error) {
	entries, err := readGroup(d.paths.Group)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(entries))
	for name := range entries {
		present[name] = true
	}
	return present, nil
}

// Fingerprint covers the managed attributes; members are sorted so the
// declaration order never matters.
func (d *Groups) Fingerprint(g config.Group) string {
	gid := "unmanaged"
	if g.GID != nil {
		gid = strconv.Itoa(*g.GID)
	}
	members := append([]string(nil), g.Members...)
	sort.Strings(members)
	return fingerprint.Fields("group", g.Name, gid,
		strings.Join(members, ","), fmt.Sprintf("%t", g.System))
}

func (d *Groups) Converged(ctx context.Context, key string, g config.Group) bool {
	entries, err := readGroup(d.paths.Group)
	if err != nil {
		return false
	}
	live, ok := entries[key]
	if !ok {
		return false
	}
	if g.GID != nil && live.GID != *g.GID {
		return false
	}
	liveMembers := make(map[string]bool, len(live.Members))
	for _, m := range live.Members {
		liveMembers[m] = true
	}
	for _, m := range g.Members {
		if !liveMembers[m] {
			return false
		}
	}
	return true
}

func (d *Groups) InPlaceUpdatable(g config.Group) bool { return true }

func (d *Groups) RecreateOverridable() bool { return false }

// Sweep is off: every stock system group would prompt otherwise.
func (d *Groups) Sweep() bool { return false }

func (d *Groups) Describe(key string, g config.Group) string {
	if g.GID != nil {
		return fmt.Sprintf("group %q (gid %d)", g.Name, *g.GID)
	}
	return fmt.Sprintf("group %q", g.Name)
}

func (d *Groups) Attributes(g config.Group) map[string]string {
	if g.GID == nil {
		return nil
	}
	return map[string]string{"gid": strconv.Itoa(*g.GID)}
}

func (d *Groups) Create(ctx context.Context, key string, g config.Group) error {
	args := []string{}
	if g.System {
		args = append(args, "--system")
	}
	if g.GID != nil {
		args = append(args, "-g", strconv.Itoa(*g.GID))
	}
	args = append(args, g.Name)
	if err := d.exec.Sudo(ctx, "groupadd", args...); err != nil {
		return err
	}
	return d.ensureMembers(ctx, g)
}

func (d *Groups) Update(ctx context.Context, key string, g config.Group) error {
	if g.GID != nil {
		if err := d.exec.Sudo(ctx, "groupmod", "-g", strconv.Itoa(*g.GID), g.Name); err != nil {
			return err
		}
	}
	return d.ensureMembers(ctx, g)
}

func (d *Groups) Remove(ctx context.Context, key string) error {
	return d.exec.Sudo(ctx, "groupdel", key)
}

func (d *Groups) Adopt(ctx context.Context, key string) (config.Group, error) {
	entries, err := readGroup(d.paths.Group)
	if err != nil {
		return config.Group{}, err
	}
	live, ok := entries[key]
	if !ok {
		return config.Group{}, fmt.Errorf("group %q not found", key)
	}
	gid := live.GID
	g := config.Group{Name: key, GID: &gid, Members: live.Members}
	if err := d.writer.AddGroup(g); err != nil {
		return config.Group{}, err
	}
	return g, nil
}

// ensureMembers adds declared members that are not yet in the group.
// Membership declared here is additive; members added by hand stay.
func (d *Groups) ensureMembers(ctx context.Context, g config.Group) error {
	if len(g.Members) == 0 {
		return nil
	}
	entries, err := readGroup(d.paths.Group)
	if err != nil {
		return err
	}
	liveMembers := make(map[string]bool)
	if live, ok := entries[g.Name]; ok {
		for _, m := range live.Members {
			liveMembers[m] = true
		}
	}
	for _, m := range g.Members {
		if liveMembers[m] {
			continue
		}
		if err := d.exec.Sudo(ctx, "gpasswd", "-a", m, g.Name); err != nil {
			return err
		}
	}
	return nil
}
