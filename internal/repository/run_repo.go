package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dump-ingestion-api/internal/config"
	"github.com/dump-ingestion-api/internal/database"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/lib/pq"
)

const runColumns = `id, operation, table_name, outcome, total_items, succeeded, failed,
	duration_ms, items_per_sec, log_path, started_at, completed_at`

// runRepo is the concrete implementation of RunRepository
type runRepo struct {
	db *database.DB
}

// NewRunRepo creates a new run repository
func NewRunRepo(db *database.DB) RunRepository {
	return &runRepo{db: db}
}

// Create inserts a finished run
func (r *runRepo) Create(ctx context.Context, run *models.IngestionRun) error {
	query := `
		INSERT INTO ingestion_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Operation, run.Entity, run.Outcome, run.TotalItems, run.Succeeded,
		run.Failed, run.DurationMs, run.ItemsPerSec, nullString(run.LogPath),
		run.StartedAt, completedAt,
	)
	return err
}

// GetByID retrieves a run by ID
func (r *runRepo) GetByID(ctx context.Context, id string) (*models.IngestionRun, error) {
	query := `SELECT ` + runColumns + ` FROM ingestion_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRecent returns the latest runs, optionally for one entity table
func (r *runRepo) ListRecent(ctx context.Context, entity string, limit int) ([]*models.IngestionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if entity != "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM ingestion_runs WHERE table_name = $1 ORDER BY started_at DESC LIMIT $2`,
			entity, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM ingestion_runs ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.IngestionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.IngestionRun, error) {
	var run models.IngestionRun
	var logPath sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.Operation, &run.Entity, &run.Outcome, &run.TotalItems, &run.Succeeded,
		&run.Failed, &run.DurationMs, &run.ItemsPerSec, &logPath, &run.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.LogPath = logPath.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// AddFailures stores the failed items of a run. On lib/pq connections the
// COPY protocol is used; other drivers fall back to a prepared INSERT.
func (r *runRepo) AddFailures(ctx context.Context, runID string, failures []models.RunFailure) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stmt *sql.Stmt
	if r.db.Driver() == config.DriverPostgres {
		stmt, err = tx.PrepareContext(ctx, pq.CopyIn("ingestion_run_failures",
			"run_id", "position", "identifier", "kind", "reason",
		))
	} else {
		stmt, err = tx.PrepareContext(ctx,
			`INSERT INTO ingestion_run_failures (run_id, position, identifier, kind, reason) VALUES ($1, $2, $3, $4, $5)`)
	}
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.ExecContext(ctx, runID, f.Position, f.Identifier, f.Kind, f.Reason); err != nil {
			return fmt.Errorf("add failure %d: %w", f.Position, err)
		}
	}

	if r.db.Driver() == config.DriverPostgres {
		// Flush the COPY buffer
		if _, err := stmt.ExecContext(ctx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetFailures retrieves the failed items of a run in input order
func (r *runRepo) GetFailures(ctx context.Context, runID string, limit int) ([]models.RunFailure, error) {
	query := `SELECT position, identifier, kind, reason FROM ingestion_run_failures WHERE run_id = $1 ORDER BY position`
	if limit > 0 {
		query += " LIMIT $2"
	}

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query, runID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, runID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []models.RunFailure
	for rows.Next() {
		var f models.RunFailure
		if err := rows.Scan(&f.Position, &f.Identifier, &f.Kind, &f.Reason); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}

	return failures, rows.Err()
}
