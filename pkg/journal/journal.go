// Package journal keeps a durable SQLite audit log of reconciliation runs
// and the actions they applied. The prompt echoes on stdout disappear with
// the terminal; the journal is what --yes and --no runs leave behind.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/deskforge/deskforge/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite-backed journal. It implements engine.Journal.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating on demand) the journal database and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// Single process, single writer: a small pool is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// BeginRun records the start of a reconciliation run.
func (s *Store) BeginRun(ctx context.Context, run engine.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, dry_run, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), run.DryRun, "running", run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to journal run start: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, status engine.RunStatus, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), finishedAt.Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("failed to journal run completion: %w", err)
	}
	return nil
}

// RecordAction records one resolved action.
func (s *Store) RecordAction(ctx context.Context, entry engine.ActionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (run_id, domain, resource, action, status, detail, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Domain, entry.Resource, string(entry.Action),
		entry.Status, entry.Detail, entry.At.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to journal action: %w", err)
	}
	return nil
}

// Run is one journaled run row.
type Run struct {
	ID         string
	Mode       string
	DryRun     bool
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Action is one journaled action row.
type Action struct {
	RunID    string
	Domain   string
	Resource string
	Action   string
	Status   string
	Detail   string
	At       time.Time
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, dry_run, status, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Mode, &r.DryRun, &r.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
		}
		if finished.Valid {
			t, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ActionsForRun returns every journaled action of one run, in order.
func (s *Store) ActionsForRun(ctx context.Context, runID string) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, domain, resource, action, status, detail, at
		 FROM actions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var (
			a  Action
			at string
		)
		if err := rows.Scan(&a.RunID, &a.Domain, &a.Resource, &a.Action, &a.Status, &a.Detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		if a.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("failed to parse action timestamp: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
