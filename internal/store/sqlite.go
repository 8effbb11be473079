package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailsweep/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// StartRun inserts a run row with its start time.
func (s *SQLiteStore) StartRun(ctx context.Context, run model.Run) error {
	const query = `
		INSERT INTO runs (
			id, kind, mailbox, started_at, finished_at,
			scanned, skipped, domains, report_path
		) VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, string(run.Kind), run.Mailbox,
		run.StartedAt, run.StartedAt, run.ReportPath,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun updates a run's counters and finish time.
func (s *SQLiteStore) FinishRun(ctx context.Context, run model.Run) error {
	const query = `
		UPDATE runs
		SET finished_at = ?, scanned = ?, skipped = ?, domains = ?, report_path = ?
		WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query,
		run.FinishedAt, run.Scanned, run.Skipped,
		run.Domains, run.ReportPath, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	return nil
}

// RecordOutcome appends one unsubscribe outcome row.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, o model.Outcome) error {
	const query = `
		INSERT INTO outcomes (run_id, domain, status, method, reason, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		o.RunID, o.Domain, o.Status, o.Method, o.Reason, o.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", o.Domain, err)
	}
	return nil
}

// Runs returns all recorded runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]model.Run, error) {
	const query = `
		SELECT id, kind, mailbox, started_at, finished_at,
		       scanned, skipped, domains, report_path
		FROM runs
		ORDER BY started_at DESC`

	var runs []model.Run
	if err := s.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}

// Outcomes returns the outcomes recorded for a run, in insertion order.
func (s *SQLiteStore) Outcomes(ctx context.Context, runID string) ([]model.Outcome, error) {
	const query = `
		SELECT run_id, domain, status, method, reason, attempted_at
		FROM outcomes
		WHERE run_id = ?
		ORDER BY seq`

	var outcomes []model.Outcome
	if err := s.db.SelectContext(ctx, &outcomes, query, runID); err != nil {
		return nil, fmt.Errorf("querying outcomes for run %s: %w", runID, err)
	}
	return outcomes, nil
}
