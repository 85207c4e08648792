// Package accounts reconciles local groups and users. The two are separate
// domains sharing the passwd/group file parsers; group creation is ordered
// before user creation by the engine's domain order, since users reference
// groups.
package accounts

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Paths locates the account databases. Tests point these at fixtures.
type Paths struct {
	Passwd string
	Group  string
	Shells string
}

// DefaultPaths returns the system locations.
func DefaultPaths() Paths {
	return Paths{Passwd: "/etc/passwd", Group: "/etc/group", Shells: "/etc/shells"}
}

// nameRe is the portable username/groupname shape enforced by shadow-utils.
var nameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]*\$?$`)

// validName reports whether a user or group name is acceptable.
func validName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if len(name) > 32 {
		return fmt.Errorf("name %q exceeds 32 characters", name)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("name %q does not match ^[a-z_][a-z0-9_-]*$", name)
	}
	return nil
}

type passwdEntry struct {
	Name    string
	UID     int
	GID     int
	Comment string
	Home    string
	Shell   string
}

type groupEntry struct {
	Name    string
	GID     int
	Members []string
}

func parsePasswd(data string) map[string]passwdEntry {
	entries := make(map[string]passwdEntry)
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 7 || fields[0] == "" {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		entries[fields[0]] = passwdEntry{
			Name:    fields[0],
			UID:     uid,
			GID:     gid,
			Comment: fields[4],
			Home:    fields[5],
			Shell:   fields[6],
		}
	}
	return entries
}

func parseGroup(data string) map[string]groupEntry {
	entries := make(map[string]groupEntry)
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 4 || fields[0] == "" {
			continue
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		var members []string
		for _, m := range strings.Split(fields[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		entries[fields[0]] = groupEntry{Name: fields[0], GID: gid, Members: members}
	}
	return entries
}

// parseShells returns the set of valid login shells.
func parseShells(data string) map[string]bool {
	shells := make(map[string]bool)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		shells[line] = true
	}
	return shells
}

func readPasswd(path string) (map[string]passwdEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parsePasswd(string(data)), nil
}

func readGroup(path string) (map[string]groupEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseGroup(string(data)), nil
}

func readShells(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseShells(string(data)), nil
}
