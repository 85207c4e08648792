// Package state persists managed-resource records between reconciliation
// runs. A record exists for a resource only after the engine has created or
// adopted it; this is what separates managed resources from ones that
// merely happen to exist on the system.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Record is the persisted proof that the engine manages a resource.
type Record struct {
	// Fingerprint is the content hash of the declared descriptor at the
	// time of the last successful apply.
	Fingerprint string `json:"fingerprint"`

	// Attributes optionally carries descriptor attributes worth keeping
	// alongside the fingerprint (uid, gid, image).
	Attributes map[string]string `json:"attributes,omitempty"`

	// LastUpdated is when the record was last written.
	LastUpdated time.Time `json:"last_updated"`

	// Managed is true for every record the engine writes. It is kept
	// explicit in the file so a human inspecting the JSON can see it.
	Managed bool `json:"managed"`
}

// domainFile is the on-disk JSON shape of one domain's state file.
type domainFile struct {
	Resources map[string]Record `json:"resources"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store loads and saves per-domain record maps as JSON files under a state
// directory. Every save is an atomic replace (write to temp, rename) so a
// kill mid-write never truncates the file.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore creates a store rooted at dir, creating it on demand.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "state-store").Logger(),
	}, nil
}

// DefaultDir returns the per-user state directory
// (~/.config/deskforge/state on Linux).
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, "deskforge", "state"), nil
}

// Load reads the record map for a domain. A missing or corrupt file is
// recovered as an empty map with a warning: losing state must never stop a
// run, it only costs re-reconciliation.
func (s *Store) Load(domain string) map[string]Record {
	path := s.path(domain)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("domain", domain).
				Msg("State file unreadable, starting from empty state")
		}
		return make(map[string]Record)
	}

	var file domainFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Warn().Err(err).Str("domain", domain).Str("path", path).
			Msg("State file corrupt, starting from empty state")
		return make(map[string]Record)
	}
	if file.Resources == nil {
		file.Resources = make(map[string]Record)
	}
	return file.Resources
}

// Save atomically writes the record map for a domain.
func (s *Store) Save(domain string, records map[string]Record) error {
	path := s.path(domain)

	file := domainFile{
		Resources: records,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", domain, err)
	}

	tmp, err := os.CreateTemp(s.dir, domain+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write state for %s: %w", domain, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file for %s: %w", domain, err)
	}
	return nil
}

// NewRecord builds a record stamped with the current time.
func NewRecord(fingerprint string, attrs map[string]string) Record {
	return Record{
		Fingerprint: fingerprint,
		Attributes:  attrs,
		LastUpdated: time.Now().UTC(),
		Managed:     true,
	}
}

func (s *Store) path(domain string) string {
	return filepath.Join(s.dir, domain+".json")
}
