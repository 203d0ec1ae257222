package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openconverge/openconverge/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
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

// SaveReport persists a run report: the run row, the per-resource outcomes in
// apply order, and the delivered refresh events. The write is transactional.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *engine.RunReport) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var errMsg *string
	if report.Error != "" {
		errMsg = &report.Error
	}
	var completedAt *time.Time
	if !report.CompletedAt.IsZero() {
		completedAt = &report.CompletedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, status, started_at, completed_at, error,
			total, unchanged, changed, failed, skipped, refreshed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		string(report.Status),
		report.StartedAt,
		completedAt,
		errMsg,
		report.Summary.Total,
		report.Summary.Unchanged,
		report.Summary.Changed,
		report.Summary.Failed,
		report.Summary.Skipped,
		report.Summary.Refreshed,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for i, res := range report.Resources {
		var detail *string
		if res.Detail != "" {
			detail = &res.Detail
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_resources (run_id, position, resource_type, resource_name,
				outcome, detail, refreshed, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			report.ID,
			i,
			res.Resource.Type,
			res.Resource.Title,
			string(res.Outcome),
			detail,
			res.Refreshed,
			res.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to save resource outcome %s: %w", res.Resource, err)
		}
	}

	for i, ev := range report.Refreshes {
		notifiers, err := json.Marshal(ev.Notifiers)
		if err != nil {
			return fmt.Errorf("failed to encode notifiers for %s: %w", ev.Target, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_refreshes (run_id, position, target_type, target_name, notifiers)
			VALUES (?, ?, ?, ?, ?)
		`,
			report.ID,
			i,
			ev.Target.Type,
			ev.Target.Title,
			string(notifiers),
		)
		if err != nil {
			return fmt.Errorf("failed to save refresh event for %s: %w", ev.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// GetReport reconstructs a run report by ID.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*engine.RunReport, error) {
	report := &engine.RunReport{ID: id}

	var status string
	var completedAt sql.NullTime
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT status, started_at, completed_at, error,
			total, unchanged, changed, failed, skipped, refreshed
		FROM runs WHERE id = ?
	`, id).Scan(
		&status,
		&report.StartedAt,
		&completedAt,
		&errMsg,
		&report.Summary.Total,
		&report.Summary.Unchanged,
		&report.Summary.Changed,
		&report.Summary.Failed,
		&report.Summary.Skipped,
		&report.Summary.Refreshed,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	report.Status = engine.RunStatus(status)
	if completedAt.Valid {
		report.CompletedAt = completedAt.Time
	}
	if errMsg.Valid {
		report.Error = errMsg.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_type, resource_name, outcome, detail, refreshed, duration_ms
		FROM run_resources WHERE run_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res engine.ResourceReport
		var outcome string
		var detail sql.NullString
		var durationMS int64
		if err := rows.Scan(&res.Resource.Type, &res.Resource.Title, &outcome,
			&detail, &res.Refreshed, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan resource outcome: %w", err)
		}
		res.Outcome = engine.Outcome(outcome)
		if detail.Valid {
			res.Detail = detail.String
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		report.Resources = append(report.Resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resource outcomes: %w", err)
	}

	refreshRows, err := s.db.QueryContext(ctx, `
		SELECT target_type, target_name, notifiers
		FROM run_refreshes WHERE run_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh events: %w", err)
	}
	defer refreshRows.Close()

	for refreshRows.Next() {
		var ev engine.RefreshEvent
		var notifiers string
		if err := refreshRows.Scan(&ev.Target.Type, &ev.Target.Title, &notifiers); err != nil {
			return nil, fmt.Errorf("failed to scan refresh event: %w", err)
		}
		if err := json.Unmarshal([]byte(notifiers), &ev.Notifiers); err != nil {
			return nil, fmt.Errorf("failed to decode notifiers: %w", err)
		}
		report.Refreshes = append(report.Refreshes, ev)
	}
	if err := refreshRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refresh events: %w", err)
	}

	return report, nil
}

// ListRuns lists run records with pagination, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, started_at, completed_at, error,
			total, unchanged, changed, failed, skipped, refreshed, created_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run := &RunRecord{}
		if err := rows.Scan(
			&run.ID,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.Total,
			&run.Unchanged,
			&run.Changed,
			&run.Failed,
			&run.Skipped,
			&run.Refreshed,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// DeleteRun deletes a run by ID. Resource outcomes and refresh events cascade.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
